package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/internal/service"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/fanout"
	"github.com/maheshrc27/fanflow/pkg/metrics"
	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// PPVRunSummary counts what one tick did. Claimed counts fans another run
// had already claimed for the cycle.
type PPVRunSummary struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Claimed int `json:"claimed"`
}

var errSendClaimed = errors.New("ppv send already claimed")

type PPVSchedulerJob struct {
	ppvs        repository.PPVRepository
	fans        repository.FanRepository
	platform    service.PlatformService
	metrics     *metrics.DispatchMetrics
	concurrency int
	now         func() time.Time
}

func NewPPVSchedulerJob(
	ppvs repository.PPVRepository,
	fans repository.FanRepository,
	platform service.PlatformService,
	m *metrics.DispatchMetrics,
	concurrency int,
) *PPVSchedulerJob {
	return &PPVSchedulerJob{
		ppvs:        ppvs,
		fans:        fans,
		platform:    platform,
		metrics:     m,
		concurrency: concurrency,
		now:         time.Now,
	}
}

func (j *PPVSchedulerJob) Name() string { return "ppv_scheduler" }

func (j *PPVSchedulerJob) Run(ctx context.Context) error {
	_, err := j.ProcessRecurringPPVs(ctx)
	return err
}

// IsDue reports whether def fires at now, compared in UTC to the minute.
// Days that do not exist in the current month never fire.
func IsDue(def *models.PPVDefinition, now time.Time) bool {
	now = now.UTC()
	return now.Day() == def.ScheduleDay && now.Format("15:04") == def.ScheduleTime
}

// ProcessRecurringPPVs sends every due PPV to each eligible fan that has no
// send record for the current cycle. The record is claimed before the send, so
// overlapping runs never send twice. Per-fan failures are collected and never
// stop the other fans.
func (j *PPVSchedulerJob) ProcessRecurringPPVs(ctx context.Context) (*PPVRunSummary, error) {
	now := j.now().UTC()
	cycle := models.Cycle(now)
	summary := &PPVRunSummary{}

	defs, err := j.ppvs.List(ctx)
	if err != nil {
		return summary, fmt.Errorf("list ppvs: %w", err)
	}

	var errs error
	for _, def := range defs {
		if !IsDue(def, now) {
			continue
		}
		summary.Due++
		if err := j.sendPPV(ctx, def, cycle, now, summary); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return summary, errs
}

func (j *PPVSchedulerJob) sendPPV(ctx context.Context, def *models.PPVDefinition, cycle string, now time.Time, summary *PPVRunSummary) error {
	media, err := j.ppvs.ListMedia(ctx, def.ID)
	if err != nil {
		return fmt.Errorf("ppv %d: list media: %w", def.PPVNumber, err)
	}
	fans, err := j.fans.ListPPVCandidates(ctx, def.ID, cycle)
	if err != nil {
		return fmt.Errorf("ppv %d: %w", def.PPVNumber, err)
	}

	msg := chatMessageFor(def, media)

	var (
		errs    error
		touched bool
	)
	fanout.Run(ctx, fans, j.concurrency,
		func(ctx context.Context, fan *models.Fan) error {
			claimed, err := j.ppvs.ClaimSend(ctx, models.PPVSendRecord{PPVID: def.ID, FanID: fan.ID, Cycle: cycle, SentAt: now})
			if err != nil {
				return fmt.Errorf("claim send: %w", err)
			}
			if !claimed {
				return errSendClaimed
			}
			if _, err := j.platform.SendChatMessage(ctx, fan.PlatformUserID, msg); err != nil {
				if relErr := j.ppvs.ReleaseSend(context.WithoutCancel(ctx), def.ID, fan.ID, cycle); relErr != nil {
					// the fan stays claimed and is not retried this cycle
					log.Error().Err(relErr).Int64("ppv_id", def.ID).Int64("fan_id", fan.ID).Msg("release ppv send")
					return multierr.Append(err, relErr)
				}
				return err
			}
			return nil
		},
		func(o fanout.Outcome[*models.Fan]) {
			if errors.Is(o.Err, errSendClaimed) {
				summary.Claimed++
				return
			}
			if o.Err != nil {
				summary.Failed++
				j.metrics.IncPPVSend("failed")
				errs = multierr.Append(errs, fmt.Errorf("ppv %d fan %d: %w", def.PPVNumber, o.Input.ID, o.Err))
				return
			}
			summary.Sent++
			touched = true
			j.metrics.IncPPVSend("sent")
		})

	if len(fans) == 0 {
		summary.Skipped++
	}
	if touched {
		if err := j.ppvs.TouchLastSent(ctx, def.ID, now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("ppv %d: touch last sent: %w", def.PPVNumber, err))
		}
	}
	return errs
}

func chatMessageFor(def *models.PPVDefinition, media []models.PPVMedia) transfer.ChatMessageRequest {
	var paid, previews []string
	for _, m := range media {
		if m.IsPreview {
			previews = append(previews, m.MediaID)
		} else {
			paid = append(paid, m.MediaID)
		}
	}
	return transfer.ChatMessageRequest{
		Text:       def.Message,
		MediaFiles: append(paid, previews...),
		Previews:   previews,
		Price:      def.Price.InexactFloat64(),
	}
}
