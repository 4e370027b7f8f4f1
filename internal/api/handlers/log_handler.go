package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/internal/service"
	"github.com/maheshrc27/fanflow/pkg/apperror"
)

type LogHandler struct {
	s service.ActivityLog
}

func NewLogHandler(s service.ActivityLog) *LogHandler {
	return &LogHandler{s: s}
}

func (h *LogHandler) ListLogs(c *fiber.Ctx) error {
	q := repository.LogQuery{
		Level:    models.LogLevel(c.Query("level")),
		Page:     c.QueryInt("page", 1),
		PageSize: c.QueryInt("page_size", 50),
	}
	if raw := c.Query("item_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return respondError(c, apperror.Validation("invalid item_id"))
		}
		q.ItemID = &id
	}

	page, err := h.s.List(c.UserContext(), q)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(page)
}
