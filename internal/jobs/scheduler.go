package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/fanflow/pkg/kv"
	"github.com/maheshrc27/fanflow/pkg/logger"
	"github.com/maheshrc27/fanflow/pkg/metrics"
	"github.com/robfig/cron"
)

const lockKeyPrefix = "fanflow:cron:"

// Job is a unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type SchedulerParams struct {
	Logger  *logger.Logger
	Metrics *metrics.CronJobMetrics
	// Store backs the per-job locks; without it locks are process-local.
	Store   kv.Store
	LockTTL time.Duration
}

// Scheduler runs registered jobs on cron expressions, one run per job at a time.
type Scheduler struct {
	cron    *cron.Cron
	logg    *logger.Logger
	metrics *metrics.CronJobMetrics
	store   kv.Store
	lockTTL time.Duration
	jobs    []Job
}

func NewScheduler(params SchedulerParams) *Scheduler {
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Scheduler{
		cron:    cron.New(),
		logg:    logg,
		metrics: params.Metrics,
		store:   params.Store,
		lockTTL: params.LockTTL,
	}
}

// Register schedules job on a cron expression, e.g. "0 * * * * *" or "@every 00h30m00s".
func (s *Scheduler) Register(expr string, job Job) error {
	lock, err := s.lockFor(job)
	if err != nil {
		return err
	}
	err = s.cron.AddFunc(expr, func() {
		s.runJob(context.Background(), job, lock)
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", job.Name(), err)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *Scheduler) Jobs() []Job {
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	return jobs
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) lockFor(job Job) (Lock, error) {
	if s.store == nil {
		return &localLock{}, nil
	}
	return NewRedisLock(s.store, lockKeyPrefix+job.Name(), s.lockTTL)
}

func (s *Scheduler) runJob(ctx context.Context, job Job, lock Lock) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")

	locked, err := lock.Acquire(jobCtx)
	if err != nil {
		s.logg.Error(jobCtx, "lock acquire failed", err)
		s.metrics.IncFailure(job.Name())
		return
	}
	if !locked {
		s.logg.Debug(jobCtx, "job already running elsewhere; skipping tick")
		return
	}
	defer func() {
		if relErr := lock.Release(jobCtx); relErr != nil {
			s.logg.Error(jobCtx, "failed to release job lock", relErr)
		}
	}()

	start := time.Now()
	err = job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(job.Name())
		return
	}
	s.logg.Debug(jobCtx, "job completed")
	s.metrics.IncSuccess(job.Name())
}
