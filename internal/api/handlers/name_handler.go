package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/fanflow/internal/service"
)

type NameHandler struct {
	s service.NameService
}

func NewNameHandler(s service.NameService) *NameHandler {
	return &NameHandler{s: s}
}

func (h *NameHandler) StartGeneration(c *fiber.Ctx) error {
	started, err := h.s.Start(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	if !started {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"started": false,
			"error":   "name generation already running",
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"started": true})
}

func (h *NameHandler) GenerationStatus(c *fiber.Ctx) error {
	state, err := h.s.Status(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(state)
}
