package service

import (
	"context"
	"fmt"
	"time"

	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/maheshrc27/fanflow/pkg/metrics"
	"github.com/maheshrc27/fanflow/pkg/utils"
)

const (
	surfacePost    = "post"
	surfaceMessage = "message"

	reconcileBatchSize = repository.MaxPageSize
)

// DispatchOptions tune one Dispatch call. Due marks a time-triggered call:
// scheduled items whose time is further away than the dispatch lead are left
// for a later trigger.
type DispatchOptions struct {
	Force bool
	Due   bool
}

// DispatchResult is the outcome of one item in a Dispatch call.
type DispatchResult struct {
	ItemID         int64              `json:"item_id"`
	Status         models.LocalStatus `json:"status,omitempty"`
	Skipped        bool               `json:"skipped,omitempty"`
	PostQueueID    string             `json:"post_queue_id,omitempty"`
	MessageBatchID string             `json:"message_batch_id,omitempty"`
	Error          string             `json:"error,omitempty"`
	ErrorKind      apperror.Kind      `json:"error_kind,omitempty"`
	Retryable      bool               `json:"retryable"`
}

type DispatchService interface {
	Dispatch(ctx context.Context, ids []int64, opts DispatchOptions) []DispatchResult
	Reconcile(ctx context.Context) (int, error)
}

type DispatchConfig struct {
	MediaMode       string
	ClaimStaleAfter time.Duration
	Lead            time.Duration
}

type dispatchService struct {
	items    repository.ScheduleItemRepository
	platform PlatformService
	fetcher  MediaFetcher
	activity ActivityLog
	metrics  *metrics.DispatchMetrics
	cfg      DispatchConfig
	now      func() time.Time
}

func NewDispatchService(
	items repository.ScheduleItemRepository,
	platform PlatformService,
	fetcher MediaFetcher,
	activity ActivityLog,
	m *metrics.DispatchMetrics,
	cfg DispatchConfig) DispatchService {
	if cfg.MediaMode == "" {
		cfg.MediaMode = MediaModeUpload
	}
	if cfg.ClaimStaleAfter <= 0 {
		cfg.ClaimStaleAfter = 15 * time.Minute
	}
	if cfg.Lead <= 0 {
		cfg.Lead = time.Minute
	}
	return &dispatchService{
		items:    items,
		platform: platform,
		fetcher:  fetcher,
		activity: activity,
		metrics:  m,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Dispatch processes the items one after another and returns one result per id.
// A failing item never stops the rest of the batch.
func (s *dispatchService) Dispatch(ctx context.Context, ids []int64, opts DispatchOptions) []DispatchResult {
	results := make([]DispatchResult, 0, len(ids))
	for _, id := range ids {
		result := s.dispatchOne(ctx, id, opts)
		switch {
		case result.Skipped:
			s.metrics.IncItem("skipped")
		case result.Error != "":
			s.metrics.IncItem("error")
		default:
			s.metrics.IncItem(string(result.Status))
		}
		results = append(results, result)
	}
	return results
}

func (s *dispatchService) dispatchOne(ctx context.Context, id int64, opts DispatchOptions) DispatchResult {
	result := DispatchResult{ItemID: id}

	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return failedResult(result, apperror.Wrap(apperror.KindInternal, err, "load item"))
	}
	if item == nil {
		return failedResult(result, apperror.NotFound("item %d not found", id))
	}

	result.PostQueueID = item.PostQueueID
	result.MessageBatchID = item.MessageBatchID
	if !opts.Force && (item.LocalStatus == models.StatusQueued || item.LocalStatus == models.StatusSent) {
		result.Status = item.LocalStatus
		result.Skipped = true
		return result
	}
	if opts.Due && !opts.Force && s.notYetDue(item) {
		result.Status = item.LocalStatus
		result.Skipped = true
		return result
	}

	claimed, err := s.items.Claim(ctx, id, s.now().Add(-s.cfg.ClaimStaleAfter), opts.Force)
	if err != nil {
		return failedResult(result, apperror.Wrap(apperror.KindInternal, err, "claim item"))
	}
	if !claimed {
		result.Status = models.StatusPending
		result.Skipped = true
		return result
	}

	previous := item.LocalStatus
	s.activity.Info(ctx, &id, "dispatch", "dispatch started", map[string]any{
		"destination": item.Destination,
		"force":       opts.Force,
	})

	surface, err := s.process(ctx, item)
	result.PostQueueID = item.PostQueueID
	result.MessageBatchID = item.MessageBatchID
	if err != nil {
		s.fail(ctx, item, surface, err)
		result.Status = models.StatusError
		return failedResult(result, err)
	}

	final := models.StatusQueued
	if previous == models.StatusSent {
		final = models.StatusSent
	}
	if err := s.items.Update(ctx, id, repository.ItemUpdate{LocalStatus: statusPtr(final), LastError: strPtr("")}); err != nil {
		return failedResult(result, apperror.Wrap(apperror.KindInternal, err, "persist final status"))
	}
	s.activity.Info(ctx, &id, "dispatch", "dispatch completed", map[string]any{
		"status":           final,
		"post_queue_id":    item.PostQueueID,
		"message_batch_id": item.MessageBatchID,
	})
	result.Status = final
	return result
}

func (s *dispatchService) notYetDue(item *models.ScheduleItem) bool {
	return item.LocalStatus == models.StatusScheduled &&
		item.ScheduleTime != nil &&
		item.ScheduleTime.After(s.now().Add(s.cfg.Lead))
}

// process runs the remaining side effects for item. Each id obtained from the
// platform is stored before the next call so a resubmission resumes where this
// one stopped. The returned surface names the destination that failed.
func (s *dispatchService) process(ctx context.Context, item *models.ScheduleItem) (string, error) {
	needPost := item.Destination.NeedsPost() && !item.PostDone()
	needMessage := item.Destination.NeedsMessage() && !item.MessageDone()

	if needPost && (item.PostMediaID == "" || item.PostMediaID == item.MessageMediaID) {
		mediaID, err := s.acquireMedia(ctx, item, surfacePost)
		if err != nil {
			return surfacePost, err
		}
		item.PostMediaID = mediaID
		if err := s.items.Update(ctx, item.ID, repository.ItemUpdate{PostMediaID: strPtr(mediaID)}); err != nil {
			return surfacePost, apperror.Wrap(apperror.KindInternal, err, "persist post media id")
		}
	}
	if needMessage && (item.MessageMediaID == "" || item.MessageMediaID == item.PostMediaID) {
		mediaID, err := s.acquireMedia(ctx, item, surfaceMessage)
		if err != nil {
			return surfaceMessage, err
		}
		item.MessageMediaID = mediaID
		if err := s.items.Update(ctx, item.ID, repository.ItemUpdate{MessageMediaID: strPtr(mediaID)}); err != nil {
			return surfaceMessage, apperror.Wrap(apperror.KindInternal, err, "persist message media id")
		}
	}

	if needPost {
		if err := s.sendPost(ctx, item); err != nil {
			return surfacePost, err
		}
	}
	if needMessage {
		if err := s.sendMessage(ctx, item); err != nil {
			return surfaceMessage, err
		}
	}
	return "", nil
}

func (s *dispatchService) acquireMedia(ctx context.Context, item *models.ScheduleItem, surface string) (string, error) {
	step := "media:" + surface
	s.activity.Info(ctx, &item.ID, step, "acquiring media", map[string]any{"mode": s.cfg.MediaMode})

	var (
		mediaID string
		err     error
	)
	if s.cfg.MediaMode == MediaModeScrape {
		mediaID, err = s.platform.ScrapeMedia(ctx, item.MediaURL)
	} else {
		var media *FetchedMedia
		media, err = s.fetcher.Fetch(ctx, item.MediaURL)
		if err == nil {
			mediaID, err = s.platform.UploadMedia(ctx, media.Data, media.Filename, media.MimeType)
		}
	}
	if err != nil {
		s.activity.Error(ctx, &item.ID, step, "media acquisition failed", errorMeta(err))
		return "", err
	}

	s.activity.Info(ctx, &item.ID, step, "media acquired", map[string]any{"media_id": mediaID})
	return mediaID, nil
}

func (s *dispatchService) sendPost(ctx context.Context, item *models.ScheduleItem) error {
	if item.PostQueueID == "" {
		req := transfer.QueuedPostRequest{Text: item.Caption, MediaFiles: []string{item.PostMediaID}}
		if item.ScheduleTime != nil && item.ScheduleTime.After(s.now()) {
			req.ScheduledDate = item.ScheduleTime.UTC().Format(time.RFC3339)
		} else {
			req.SaveForLater = true
		}

		queueID, err := s.platform.CreateQueuedPost(ctx, req)
		if err != nil {
			s.activity.Error(ctx, &item.ID, "post:create", "queued post creation failed", errorMeta(err))
			return err
		}
		item.PostQueueID = queueID
		item.PostStatus = models.RemoteStatusQueued
		if err := s.items.Update(ctx, item.ID, repository.ItemUpdate{
			PostQueueID: strPtr(queueID),
			PostStatus:  strPtr(models.RemoteStatusQueued),
		}); err != nil {
			return apperror.Wrap(apperror.KindInternal, err, "persist post queue id")
		}
		s.activity.Info(ctx, &item.ID, "post:create", "queued post created", map[string]any{"queue_id": queueID})
	}

	status, err := s.platform.PublishQueuedPost(ctx, item.PostQueueID)
	if err != nil {
		s.activity.Error(ctx, &item.ID, "post:publish", "publish failed", errorMeta(err))
		return err
	}
	if status != models.RemoteStatusSent {
		status = models.RemoteStatusPublished
	}
	item.PostStatus = status
	if err := s.items.Update(ctx, item.ID, repository.ItemUpdate{PostStatus: strPtr(status)}); err != nil {
		return apperror.Wrap(apperror.KindInternal, err, "persist post status")
	}
	s.activity.Info(ctx, &item.ID, "post:publish", "post published", map[string]any{"queue_id": item.PostQueueID})
	return nil
}

func (s *dispatchService) sendMessage(ctx context.Context, item *models.ScheduleItem) error {
	recipients, err := s.platform.ListActiveFollowings(ctx)
	if err != nil {
		s.activity.Error(ctx, &item.ID, "message:recipients", "recipient lookup failed", errorMeta(err))
		return err
	}
	if len(recipients) == 0 {
		err := apperror.Validation("no active followings to message")
		s.activity.Warn(ctx, &item.ID, "message:recipients", err.Message, nil)
		return err
	}

	text := item.MessageBody
	if text == "" {
		text = item.Caption
	}
	batchID, err := s.platform.CreateMassMessage(ctx, transfer.MassMessageRequest{
		UserIDs:    recipients,
		Text:       text,
		MediaFiles: []string{item.MessageMediaID},
	})
	if err != nil {
		s.activity.Error(ctx, &item.ID, "message:send", "mass message failed", errorMeta(err))
		return err
	}

	item.MessageBatchID = batchID
	item.MessageStatus = models.RemoteStatusQueued
	if err := s.items.Update(ctx, item.ID, repository.ItemUpdate{
		MessageBatchID: strPtr(batchID),
		MessageStatus:  strPtr(models.RemoteStatusQueued),
	}); err != nil {
		return apperror.Wrap(apperror.KindInternal, err, "persist message batch id")
	}
	s.activity.Info(ctx, &item.ID, "message:send", "mass message queued", map[string]any{
		"batch_id":   batchID,
		"recipients": len(recipients),
	})
	return nil
}

// fail records the error on the item while keeping every id already obtained.
func (s *dispatchService) fail(ctx context.Context, item *models.ScheduleItem, surface string, cause error) {
	lastError := utils.SanitizeString(cause.Error())
	upd := repository.ItemUpdate{
		LocalStatus: statusPtr(models.StatusError),
		LastError:   &lastError,
	}
	switch surface {
	case surfacePost:
		upd.PostStatus = strPtr(models.RemoteStatusFailed)
	case surfaceMessage:
		upd.MessageStatus = strPtr(models.RemoteStatusFailed)
	}
	if err := s.items.Update(ctx, item.ID, upd); err != nil {
		s.activity.Error(ctx, &item.ID, "dispatch", "persist failure status", errorMeta(err))
	}

	meta := errorMeta(cause)
	meta["surface"] = surface
	s.activity.Error(ctx, &item.ID, "dispatch", "dispatch failed", meta)
}

// Reconcile promotes queued items to sent once every required destination has
// left the platform's draft queue.
func (s *dispatchService) Reconcile(ctx context.Context) (int, error) {
	items, err := s.items.List(ctx, repository.ItemFilter{Status: models.StatusQueued, Limit: reconcileBatchSize})
	if err != nil {
		return 0, fmt.Errorf("list queued items: %w", err)
	}
	if len(items) == 0 {
		return 0, nil
	}

	listing, err := s.platform.ListQueue(ctx)
	if err != nil {
		return 0, err
	}
	// an entry missing from a truncated listing may still be a draft
	drafts := make(map[string]bool, len(listing.Entries))
	for _, e := range listing.Entries {
		drafts[e.ID.String()] = e.IsDraft()
	}
	pending := func(id string) bool {
		draft, listed := drafts[id]
		return draft || (!listed && !listing.Complete)
	}

	promoted := 0
	for _, item := range items {
		if item.Destination.NeedsPost() {
			if item.PostQueueID == "" || pending(item.PostQueueID) {
				continue
			}
		}
		if item.Destination.NeedsMessage() {
			if item.MessageBatchID == "" || pending(item.MessageBatchID) {
				continue
			}
		}

		upd := repository.ItemUpdate{LocalStatus: statusPtr(models.StatusSent)}
		if item.Destination.NeedsPost() {
			upd.PostStatus = strPtr(models.RemoteStatusSent)
		}
		if item.Destination.NeedsMessage() {
			upd.MessageStatus = strPtr(models.RemoteStatusSent)
		}
		if err := s.items.Update(ctx, item.ID, upd); err != nil {
			return promoted, fmt.Errorf("promote item %d: %w", item.ID, err)
		}
		s.activity.Info(ctx, int64Ptr(item.ID), "reconcile", "remote entries confirmed", nil)
		promoted++
	}
	return promoted, nil
}

func failedResult(result DispatchResult, err error) DispatchResult {
	result.Error = utils.SanitizeString(err.Error())
	result.ErrorKind = apperror.KindOf(err)
	result.Retryable = apperror.IsRetryable(err)
	return result
}

func errorMeta(err error) map[string]any {
	meta := map[string]any{
		"error": err.Error(),
		"kind":  string(apperror.KindOf(err)),
	}
	if appErr := apperror.As(err); appErr != nil {
		if appErr.UpstreamStatus != 0 {
			meta["upstream_status"] = appErr.UpstreamStatus
		}
		if appErr.RequestID != "" {
			meta["request_id"] = appErr.RequestID
		}
	}
	return meta
}
