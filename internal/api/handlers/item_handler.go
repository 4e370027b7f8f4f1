package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/internal/service"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/apperror"
)

type ItemHandler struct {
	s service.ScheduleService
	d service.DispatchService
}

func NewItemHandler(s service.ScheduleService, d service.DispatchService) *ItemHandler {
	return &ItemHandler{s: s, d: d}
}

func (h *ItemHandler) CreateItem(c *fiber.Ctx) error {
	var req transfer.CreateItemRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	item, err := h.s.CreateItem(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

func (h *ItemHandler) GetItem(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	item, err := h.s.GetItem(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	if item == nil {
		return respondError(c, apperror.NotFound("item %d not found", id))
	}
	return c.Status(fiber.StatusOK).JSON(item)
}

func (h *ItemHandler) ListItems(c *fiber.Ctx) error {
	filter := repository.ItemFilter{
		Status:      models.LocalStatus(c.Query("status")),
		Destination: models.Destination(c.Query("destination")),
		BatchID:     c.Query("batch_id"),
		Limit:       c.QueryInt("limit", 0),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return respondError(c, apperror.Validation("unknown status %q", filter.Status))
	}
	if filter.Destination != "" && !filter.Destination.Valid() {
		return respondError(c, apperror.Validation("unknown destination %q", filter.Destination))
	}

	items, err := h.s.ListItems(c.UserContext(), filter)
	if err != nil {
		return respondError(c, err)
	}
	if items == nil {
		items = []*models.ScheduleItem{}
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"items": items})
}

// Dispatch runs the given items now and returns one result per id.
func (h *ItemHandler) Dispatch(c *fiber.Ctx) error {
	var req transfer.DispatchRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	results := h.d.Dispatch(c.UserContext(), req.ItemIDs, service.DispatchOptions{Force: req.Force})
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"results": results})
}
