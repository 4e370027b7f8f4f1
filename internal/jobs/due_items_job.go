package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/internal/service"
	"github.com/rs/zerolog/log"
)

const dueBatchSize = 50

// DueItemsJob dispatches scheduled or ready items whose time has come. It is
// the backstop for delayed queue tasks; the store's claim keeps the two from
// double-dispatching.
type DueItemsJob struct {
	items    repository.ScheduleItemRepository
	dispatch service.DispatchService
	lead     time.Duration
	now      func() time.Time
}

func NewDueItemsJob(items repository.ScheduleItemRepository, dispatch service.DispatchService, lead time.Duration) *DueItemsJob {
	return &DueItemsJob{items: items, dispatch: dispatch, lead: lead, now: time.Now}
}

func (j *DueItemsJob) Name() string { return "due_items" }

func (j *DueItemsJob) Run(ctx context.Context) error {
	due, err := j.items.ListDue(ctx, j.now().UTC().Add(j.lead), dueBatchSize)
	if err != nil {
		return fmt.Errorf("list due items: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	ids := make([]int64, len(due))
	for i, item := range due {
		ids[i] = item.ID
	}

	failed := 0
	for _, res := range j.dispatch.Dispatch(ctx, ids, service.DispatchOptions{Due: true}) {
		if res.Error != "" {
			failed++
		}
	}
	log.Info().Int("due", len(ids)).Int("failed", failed).Msg("dispatched due items")
	return nil
}
