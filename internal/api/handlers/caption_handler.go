package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/fanflow/internal/service"
	"github.com/maheshrc27/fanflow/internal/transfer"
)

type CaptionHandler struct {
	s service.CaptionService
}

func NewCaptionHandler(s service.CaptionService) *CaptionHandler {
	return &CaptionHandler{s: s}
}

func (h *CaptionHandler) GenerateCaptions(c *fiber.Ctx) error {
	var req transfer.CaptionRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	captions, err := h.s.Generate(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"captions": captions})
}
