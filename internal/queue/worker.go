package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/fanflow/internal/service"
	"github.com/rs/zerolog/log"
)

// HandleDispatchTask runs a batch dispatch. Item failures are recorded on the
// items themselves, so the task only fails on a malformed payload.
func (q *Queue) HandleDispatchTask(ctx context.Context, task *asynq.Task) error {
	var payload DispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode dispatch payload: %v: %w", err, asynq.SkipRetry)
	}
	if len(payload.ItemIDs) == 0 {
		return fmt.Errorf("dispatch payload has no items: %w", asynq.SkipRetry)
	}

	results := q.ds.Dispatch(ctx, payload.ItemIDs, service.DispatchOptions{Force: payload.Force, Due: true})

	failed, skipped := 0, 0
	for _, res := range results {
		switch {
		case res.Error != "":
			failed++
			log.Warn().Int64("item_id", res.ItemID).Str("kind", string(res.ErrorKind)).Msg("dispatch task item failed")
		case res.Skipped:
			skipped++
		}
	}
	log.Info().Int("items", len(results)).Int("failed", failed).Int("skipped", skipped).Msg("dispatch task finished")
	return nil
}

// Mux routes queue tasks to their handlers.
func (q *Queue) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeDispatch, q.HandleDispatchTask)
	return mux
}
