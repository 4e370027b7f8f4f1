package service

import (
	"context"
	"strings"
	"sync"

	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/maheshrc27/fanflow/pkg/fanout"
	"github.com/maheshrc27/fanflow/pkg/utils"
	"github.com/shopspring/decimal"
)

const (
	BroadcastSent   = "sent"
	BroadcastFailed = "failed"
)

// BroadcastEvent is the outcome for one recipient.
type BroadcastEvent struct {
	FanID     string        `json:"fan_id"`
	Status    string        `json:"status"`
	MessageID string        `json:"message_id,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorKind apperror.Kind `json:"error_kind,omitempty"`
}

type BroadcastSummary struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type BroadcastService interface {
	// SendToMany sends one chat message per recipient. emit receives every
	// outcome as it completes; a nil emit collects nothing.
	SendToMany(ctx context.Context, req transfer.BroadcastRequest, emit func(BroadcastEvent)) (*BroadcastSummary, error)
}

type broadcastService struct {
	platform    PlatformService
	concurrency int
}

func NewBroadcastService(platform PlatformService, concurrency int) BroadcastService {
	if concurrency <= 0 {
		concurrency = fanout.DefaultConcurrency
	}
	return &broadcastService{platform: platform, concurrency: concurrency}
}

func (s *broadcastService) SendToMany(ctx context.Context, req transfer.BroadcastRequest, emit func(BroadcastEvent)) (*BroadcastSummary, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, apperror.Validation("text is required")
	}
	recipients := dedupe(req.FanIDs)
	if len(recipients) == 0 {
		return nil, apperror.Validation("at least one recipient is required")
	}

	var price float64
	if req.Price != "" {
		p, err := decimal.NewFromString(req.Price)
		if err != nil || p.IsNegative() {
			return nil, apperror.Validation("invalid price %q", req.Price)
		}
		price = p.Round(2).InexactFloat64()
	}

	message := transfer.ChatMessageRequest{Text: req.Text, MediaFiles: req.MediaFiles, Price: price}
	var idsMu sync.Mutex
	ids := make(map[string]string, len(recipients))
	summary := &BroadcastSummary{Total: len(recipients)}

	fanout.Run(ctx, recipients, s.concurrency,
		func(ctx context.Context, fanID string) error {
			id, err := s.platform.SendChatMessage(ctx, fanID, message)
			if err == nil {
				idsMu.Lock()
				ids[fanID] = id
				idsMu.Unlock()
			}
			return err
		},
		func(o fanout.Outcome[string]) {
			event := BroadcastEvent{FanID: o.Input, Status: BroadcastSent}
			if o.Err != nil {
				event.Status = BroadcastFailed
				event.Error = utils.SanitizeString(o.Err.Error())
				event.ErrorKind = apperror.KindOf(o.Err)
				summary.Failed++
			} else {
				idsMu.Lock()
				event.MessageID = ids[o.Input]
				idsMu.Unlock()
				summary.Sent++
			}
			if emit != nil {
				emit(event)
			}
		})
	return summary, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
