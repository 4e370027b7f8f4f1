package service

import (
	"context"

	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/maheshrc27/fanflow/pkg/logger"
	"github.com/maheshrc27/fanflow/pkg/utils"
)

// ActivityLog records per-item steps to the item store and mirrors them to the
// process logger. Meta is redacted before it is written anywhere.
type ActivityLog interface {
	Info(ctx context.Context, itemID *int64, step, message string, meta map[string]any)
	Warn(ctx context.Context, itemID *int64, step, message string, meta map[string]any)
	Error(ctx context.Context, itemID *int64, step, message string, meta map[string]any)
	List(ctx context.Context, q repository.LogQuery) (*repository.LogPage, error)
}

type activityLog struct {
	repo repository.LogRepository
	log  *logger.Logger
}

func NewActivityLog(repo repository.LogRepository, log *logger.Logger) ActivityLog {
	if log == nil {
		log = logger.Nop()
	}
	return &activityLog{repo: repo, log: log}
}

func (a *activityLog) Info(ctx context.Context, itemID *int64, step, message string, meta map[string]any) {
	a.append(ctx, models.LogLevelInfo, itemID, step, message, meta)
}

func (a *activityLog) Warn(ctx context.Context, itemID *int64, step, message string, meta map[string]any) {
	a.append(ctx, models.LogLevelWarn, itemID, step, message, meta)
}

func (a *activityLog) Error(ctx context.Context, itemID *int64, step, message string, meta map[string]any) {
	a.append(ctx, models.LogLevelError, itemID, step, message, meta)
}

func (a *activityLog) List(ctx context.Context, q repository.LogQuery) (*repository.LogPage, error) {
	if q.Level != "" && !q.Level.Valid() {
		return nil, apperror.Validation("unknown log level %q", q.Level)
	}
	return a.repo.List(ctx, q)
}

// append never fails the caller; a lost log row is reported on the process log.
func (a *activityLog) append(ctx context.Context, level models.LogLevel, itemID *int64, step, message string, meta map[string]any) {
	entry := &models.LogEntry{
		ItemID:  itemID,
		Level:   level,
		Step:    step,
		Message: utils.SanitizeString(message),
		Meta:    utils.SanitizeMeta(meta),
	}

	fields := map[string]any{"step": step}
	if itemID != nil {
		fields["item_id"] = *itemID
	}
	for k, v := range entry.Meta {
		fields["meta_"+k] = v
	}
	logCtx := a.log.WithFields(ctx, fields)
	switch level {
	case models.LogLevelError:
		a.log.Error(logCtx, entry.Message, nil)
	case models.LogLevelWarn:
		a.log.Warn(logCtx, entry.Message)
	default:
		a.log.Info(logCtx, entry.Message)
	}

	if _, err := a.repo.Append(ctx, entry); err != nil {
		a.log.Error(logCtx, "persist activity log entry", err)
	}
}
