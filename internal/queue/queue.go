package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// taskClient is the subset of *asynq.Client used for enqueueing.
type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer schedules delayed dispatch tasks.
type Enqueuer struct {
	client taskClient
	queue  string
	now    func() time.Time
}

func NewEnqueuer(client *asynq.Client, queueName string) *Enqueuer {
	return &Enqueuer{client: client, queue: queueName, now: time.Now}
}

// EnqueueDispatch schedules a dispatch of ids at the given instant; instants in
// the past are processed immediately.
func (e *Enqueuer) EnqueueDispatch(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	taskPayload, err := json.Marshal(DispatchPayload{ItemIDs: ids})
	if err != nil {
		return err
	}

	delay := at.Sub(e.now())
	if delay < 0 {
		delay = 0
	}

	opts := []asynq.Option{asynq.ProcessIn(delay), asynq.MaxRetry(0)}
	if e.queue != "" {
		opts = append(opts, asynq.Queue(e.queue))
	}

	task := asynq.NewTask(TaskTypeDispatch, taskPayload)
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return fmt.Errorf("enqueue dispatch: %w", err)
	}

	log.Debug().Str("task_id", info.ID).Int("items", len(ids)).Dur("delay", delay).Msg("dispatch task scheduled")
	return nil
}
