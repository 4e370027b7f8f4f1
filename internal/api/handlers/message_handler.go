package handlers

import (
	"bufio"
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/fanflow/internal/service"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/rs/zerolog/log"
)

type MessageHandler struct {
	s service.BroadcastService
}

func NewMessageHandler(s service.BroadcastService) *MessageHandler {
	return &MessageHandler{s: s}
}

// Broadcast streams one NDJSON line per recipient as sends complete, then a
// final summary line.
func (h *MessageHandler) Broadcast(c *fiber.Ctx) error {
	var req transfer.BroadcastRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	// the request context ends once the handler returns; the stream outlives it
	ctx := context.WithoutCancel(c.UserContext())

	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Status(fiber.StatusOK).Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		enc := json.NewEncoder(w)
		summary, err := h.s.SendToMany(ctx, req, func(e service.BroadcastEvent) {
			if err := enc.Encode(e); err != nil {
				log.Debug().Err(err).Msg("write broadcast event")
				return
			}
			_ = w.Flush()
		})
		if err != nil {
			_ = enc.Encode(fiber.Map{"error": err.Error()})
		} else {
			_ = enc.Encode(fiber.Map{"summary": summary})
		}
		_ = w.Flush()
	})
	return nil
}
