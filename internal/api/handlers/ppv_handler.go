package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/fanflow/internal/jobs"
	"github.com/maheshrc27/fanflow/internal/service"
	"github.com/maheshrc27/fanflow/internal/transfer"
)

// PPVRunner triggers one recurring-PPV tick on demand.
type PPVRunner interface {
	ProcessRecurringPPVs(ctx context.Context) (*jobs.PPVRunSummary, error)
}

type PPVHandler struct {
	s      service.PPVService
	runner PPVRunner
}

func NewPPVHandler(s service.PPVService, runner PPVRunner) *PPVHandler {
	return &PPVHandler{s: s, runner: runner}
}

func (h *PPVHandler) CreatePPV(c *fiber.Ctx) error {
	var req transfer.CreatePPVRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	ppv, err := h.s.Create(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ppv)
}

func (h *PPVHandler) ListPPVs(c *fiber.Ctx) error {
	ppvs, err := h.s.List(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ppvs": ppvs})
}

// RunPPVs processes the PPVs due at this minute. Per-fan failures are
// reported alongside the summary rather than as a failed request.
func (h *PPVHandler) RunPPVs(c *fiber.Ctx) error {
	summary, err := h.runner.ProcessRecurringPPVs(c.UserContext())
	body := fiber.Map{"summary": summary}
	if err != nil {
		if summary == nil {
			return respondError(c, err)
		}
		body["error"] = err.Error()
	}
	return c.Status(fiber.StatusOK).JSON(body)
}
