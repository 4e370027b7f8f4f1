package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	config "github.com/maheshrc27/fanflow/configs"
	"github.com/maheshrc27/fanflow/internal/cache"
	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/maheshrc27/fanflow/pkg/fanout"
	"github.com/maheshrc27/fanflow/pkg/utils"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	UploadStatusUploaded = "uploaded"
	UploadStatusFailed   = "failed"
	UploadStatusProvided = "provided"

	ResultStatusFailed = "failed"
	ResultStatusStored = "stored"

	missingRetryData = "Missing retry data"
)

// BulkFile is one uploaded file of a bulk request, already read into memory.
type BulkFile struct {
	Filename string
	Data     []byte
}

type BulkScheduleRequest struct {
	Posts               []transfer.BulkPost
	Files               []BulkFile
	RetryMissingUploads bool
	BatchID             string
}

type BulkPostResult struct {
	Index        int    `json:"index"`
	Filename     string `json:"filename"`
	UploadStatus string `json:"upload_status"`
	ImageURL     string `json:"image_url,omitempty"`
	ImageID      string `json:"image_id,omitempty"`
	ItemID       int64  `json:"item_id,omitempty"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
}

type BulkScheduleResponse struct {
	BatchID   string           `json:"batch_id"`
	Persisted bool             `json:"persisted"`
	Created   int              `json:"created"`
	Failed    int              `json:"failed"`
	Results   []BulkPostResult `json:"results"`
}

// DispatchEnqueuer schedules a time-triggered dispatch of stored items.
type DispatchEnqueuer interface {
	EnqueueDispatch(ctx context.Context, ids []int64, at time.Time) error
}

type ScheduleService interface {
	ScheduleBulk(ctx context.Context, req BulkScheduleRequest) (*BulkScheduleResponse, error)
	CreateItem(ctx context.Context, req transfer.CreateItemRequest) (*models.ScheduleItem, error)
	GetItem(ctx context.Context, id int64) (*models.ScheduleItem, error)
	ListItems(ctx context.Context, filter repository.ItemFilter) ([]*models.ScheduleItem, error)
}

type scheduleService struct {
	db       *repository.DB
	items    repository.ScheduleItemRepository
	store    ImageStore
	cache    *cache.RetryCache
	activity ActivityLog
	enqueuer DispatchEnqueuer
	now      func() time.Time

	// retries of one batch must not interleave
	retryMu sync.Mutex
}

func NewScheduleService(
	db *repository.DB,
	items repository.ScheduleItemRepository,
	store ImageStore,
	retryCache *cache.RetryCache,
	activity ActivityLog,
	enqueuer DispatchEnqueuer) ScheduleService {
	return &scheduleService{
		db:       db,
		items:    items,
		store:    store,
		cache:    retryCache,
		activity: activity,
		enqueuer: enqueuer,
		now:      time.Now,
	}
}

// plannedPost is a validated bulk entry on its way to the item store.
type plannedPost struct {
	index        int
	post         transfer.BulkPost
	destination  models.Destination
	scheduleTime *time.Time
	file         *BulkFile
}

func (s *scheduleService) ScheduleBulk(ctx context.Context, req BulkScheduleRequest) (*BulkScheduleResponse, error) {
	if req.RetryMissingUploads {
		return s.retryMissingUploads(ctx, req)
	}

	plans, err := s.plan(req.Posts, req.Files, true)
	if err != nil {
		return nil, err
	}

	results := make([]BulkPostResult, len(plans))
	var toUpload []*plannedPost
	for i, p := range plans {
		results[i] = BulkPostResult{Index: i, Filename: p.post.Filename}
		if p.post.ImageURL != "" {
			results[i].UploadStatus = UploadStatusProvided
			results[i].ImageURL = p.post.ImageURL
			continue
		}
		toUpload = append(toUpload, plans[i])
	}

	if len(toUpload) > 0 {
		cfg, err := s.store.GetConfig()
		if err != nil {
			return nil, err
		}
		if err := s.store.VerifyToken(ctx, cfg); err != nil {
			return nil, err
		}

		fanout.Collect(ctx, toUpload, fanout.DefaultConcurrency, func(ctx context.Context, p *plannedPost) error {
			res := &results[p.index]
			img, err := s.uploadFile(ctx, p.file, cfg)
			if err != nil {
				res.UploadStatus = UploadStatusFailed
				res.Status = ResultStatusFailed
				res.Error = uploadErrorMessage(err)
				return err
			}
			res.UploadStatus = UploadStatusUploaded
			res.ImageURL = img.URL
			res.ImageID = img.ImageID
			return nil
		})
	}

	batchID, err := gonanoid.New()
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "generate batch id")
	}
	resp := &BulkScheduleResponse{BatchID: batchID, Results: results}

	if failed := countFailed(results); failed > 0 {
		items := make([]cache.RetryItem, len(plans))
		for i, p := range plans {
			items[i] = cache.RetryItem{
				UploadStatus: results[i].UploadStatus,
				ImageURL:     results[i].ImageURL,
				ImageID:      results[i].ImageID,
				Error:        results[i].Error,
			}
			if results[i].UploadStatus == UploadStatusFailed && p.file != nil {
				items[i].RetryData = &cache.RetryData{
					Buffer:   p.file.Data,
					MimeType: sniffOrEmpty(p.file.Data),
					Filename: p.file.Filename,
				}
			}
		}
		s.cache.Save(batchID, items)
		resp.Failed = failed
		s.activity.Warn(ctx, nil, "bulk:upload", "bulk batch rejected, uploads pending retry", map[string]any{
			"batch_id": batchID,
			"failed":   failed,
			"total":    len(plans),
		})
		return resp, nil
	}

	if err := s.persist(ctx, batchID, plans, results); err != nil {
		return nil, err
	}
	resp.Persisted = true
	resp.Created = len(plans)
	return resp, nil
}

func (s *scheduleService) retryMissingUploads(ctx context.Context, req BulkScheduleRequest) (*BulkScheduleResponse, error) {
	if req.BatchID == "" {
		return nil, apperror.Validation("batch_id is required when retrying missing uploads")
	}
	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	batch, err := s.cache.Get(req.BatchID)
	if err != nil {
		if errors.Is(err, cache.ErrBatchNotFound) {
			return nil, apperror.NotFound("retry batch %s not found or expired", req.BatchID)
		}
		return nil, err
	}

	plans, err := s.plan(req.Posts, req.Files, false)
	if err != nil {
		return nil, err
	}

	cfg, err := s.store.GetConfig()
	if err != nil {
		return nil, err
	}
	if err := s.store.VerifyToken(ctx, cfg); err != nil {
		return nil, err
	}

	results := make([]BulkPostResult, len(plans))
	var ok []*plannedPost
	for i, p := range plans {
		res := &results[i]
		*res = BulkPostResult{Index: i, Filename: p.post.Filename}

		var cached *cache.RetryItem
		if i < len(batch.Items) {
			cached = &batch.Items[i]
		}

		switch {
		case cached != nil && cached.ItemID != 0:
			res.UploadStatus = cached.UploadStatus
			res.ImageURL = cached.ImageURL
			res.ImageID = cached.ImageID
			res.ItemID = cached.ItemID
			res.Status = ResultStatusStored
			continue
		case p.post.ImageURL != "":
			res.UploadStatus = UploadStatusProvided
			res.ImageURL = p.post.ImageURL
		case cached != nil && cached.ImageURL != "":
			res.UploadStatus = UploadStatusUploaded
			res.ImageURL = cached.ImageURL
			res.ImageID = cached.ImageID
		case cached == nil || cached.RetryData == nil:
			res.UploadStatus = UploadStatusFailed
			res.Status = ResultStatusFailed
			res.Error = missingRetryData
			continue
		default:
			img, err := s.uploadFile(ctx, &BulkFile{Filename: cached.RetryData.Filename, Data: cached.RetryData.Buffer}, cfg)
			if err != nil {
				res.UploadStatus = UploadStatusFailed
				res.Status = ResultStatusFailed
				res.Error = uploadErrorMessage(err)
				continue
			}
			res.UploadStatus = UploadStatusUploaded
			res.ImageURL = img.URL
			res.ImageID = img.ImageID
		}
		ok = append(ok, plans[i])
	}

	resp := &BulkScheduleResponse{BatchID: req.BatchID, Results: results, Failed: countFailed(results)}
	if len(ok) > 0 {
		if err := s.persist(ctx, req.BatchID, ok, results); err != nil {
			return nil, err
		}
		resp.Persisted = true
		resp.Created = len(ok)
	}

	_ = s.cache.Update(req.BatchID, func(b *cache.RetryBatch) {
		for i := range b.Items {
			if i >= len(results) {
				break
			}
			if results[i].UploadStatus != UploadStatusFailed {
				b.Items[i].UploadStatus = results[i].UploadStatus
				b.Items[i].ImageURL = results[i].ImageURL
				b.Items[i].ImageID = results[i].ImageID
				b.Items[i].ItemID = results[i].ItemID
				b.Items[i].RetryData = nil
				b.Items[i].Error = ""
			} else {
				b.Items[i].Error = results[i].Error
			}
		}
	})

	s.activity.Info(ctx, nil, "bulk:retry", "retried missing uploads", map[string]any{
		"batch_id": req.BatchID,
		"created":  resp.Created,
		"failed":   resp.Failed,
	})
	return resp, nil
}

// plan validates every post before anything touches the network. On the first
// call each post without an image_url must match one of the uploaded files.
func (s *scheduleService) plan(posts []transfer.BulkPost, files []BulkFile, requireFiles bool) ([]*plannedPost, error) {
	if len(posts) == 0 {
		return nil, apperror.Validation("posts must contain at least one entry")
	}

	byName := make(map[string]*BulkFile, len(files))
	for i := range files {
		byName[files[i].Filename] = &files[i]
	}

	plans := make([]*plannedPost, len(posts))
	for i, post := range posts {
		dest := models.Destination(post.Destination)
		if dest == "" {
			dest = models.DestinationPost
		}
		if !dest.Valid() {
			return nil, apperror.Validation("post %d: unknown destination %q", i, post.Destination)
		}
		when, err := parseScheduleTime(post.ScheduleTime, post.Timezone)
		if err != nil {
			return nil, apperror.Validation("post %d: %s", i, err.Error())
		}

		p := &plannedPost{index: i, post: post, destination: dest, scheduleTime: when}
		if post.ImageURL == "" {
			p.file = byName[post.Filename]
			if p.file == nil && requireFiles {
				return nil, apperror.Validation("post %d: no file named %q in upload", i, post.Filename)
			}
		}
		plans[i] = p
	}
	return plans, nil
}

func (s *scheduleService) uploadFile(ctx context.Context, file *BulkFile, cfg *config.ImageStoreConfig) (*UploadedImage, error) {
	mimeType, err := DetectMedia(file.Data)
	if err != nil {
		return nil, err
	}
	return s.store.Upload(ctx, file.Data, file.Filename, mimeType, cfg)
}

// persist stores the posts of one batch in a single transaction.
func (s *scheduleService) persist(ctx context.Context, batchID string, plans []*plannedPost, results []BulkPostResult) error {
	// one delayed dispatch per distinct schedule time
	scheduled := make(map[int64][]int64)

	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, p := range plans {
			res := &results[p.index]
			status := models.StatusReady
			if p.scheduleTime != nil {
				status = models.StatusScheduled
			}
			item := &models.ScheduleItem{
				BatchID:        batchID,
				SourceFilename: p.post.Filename,
				MediaURL:       res.ImageURL,
				Caption:        p.post.Caption,
				MessageBody:    p.post.MessageBody,
				ScheduleTime:   p.scheduleTime,
				Timezone:       p.post.Timezone,
				Destination:    p.destination,
				LocalStatus:    status,
			}
			id, err := s.items.Create(ctx, tx, item)
			if err != nil {
				return fmt.Errorf("error creating item for %q: %w", p.post.Filename, err)
			}
			res.ItemID = id
			res.Status = string(status)
			if p.scheduleTime != nil {
				at := p.scheduleTime.UnixNano()
				scheduled[at] = append(scheduled[at], id)
			}
		}
		return nil
	})
	if err != nil {
		s.activity.Error(ctx, nil, "bulk:persist", "bulk insert rolled back", map[string]any{"batch_id": batchID, "error": err.Error()})
		return err
	}

	s.activity.Info(ctx, nil, "bulk:persist", "bulk batch stored", map[string]any{"batch_id": batchID, "items": len(plans)})
	times := make([]int64, 0, len(scheduled))
	for at := range scheduled {
		times = append(times, at)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	for _, at := range times {
		s.enqueue(ctx, scheduled[at], time.Unix(0, at).UTC())
	}
	return nil
}

func (s *scheduleService) CreateItem(ctx context.Context, req transfer.CreateItemRequest) (*models.ScheduleItem, error) {
	dest := models.Destination(req.Destination)
	if !dest.Valid() {
		return nil, apperror.Validation("unknown destination %q", req.Destination)
	}
	if strings.TrimSpace(req.MediaURL) == "" {
		return nil, apperror.Validation("media_url is required")
	}
	when, err := parseScheduleTime(req.ScheduleTime, req.Timezone)
	if err != nil {
		return nil, apperror.Validation("%s", err.Error())
	}

	status := models.StatusReady
	if when != nil {
		status = models.StatusScheduled
	}
	item := &models.ScheduleItem{
		SourceFilename: req.SourceFilename,
		MediaURL:       req.MediaURL,
		Caption:        req.Caption,
		MessageBody:    req.MessageBody,
		ScheduleTime:   when,
		Timezone:       req.Timezone,
		Destination:    dest,
		LocalStatus:    status,
	}
	if _, err := s.items.Create(ctx, nil, item); err != nil {
		return nil, err
	}

	s.activity.Info(ctx, &item.ID, "create", "item created", map[string]any{"destination": dest, "status": status})
	if when != nil {
		s.enqueue(ctx, []int64{item.ID}, *when)
	}
	return item, nil
}

func (s *scheduleService) GetItem(ctx context.Context, id int64) (*models.ScheduleItem, error) {
	item, err := s.items.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperror.NotFound("item %d not found", id)
	}
	return item, nil
}

func (s *scheduleService) ListItems(ctx context.Context, filter repository.ItemFilter) ([]*models.ScheduleItem, error) {
	return s.items.List(ctx, filter)
}

// enqueue is best effort; the due-items poller picks up anything missed here.
func (s *scheduleService) enqueue(ctx context.Context, ids []int64, at time.Time) {
	if s.enqueuer == nil || len(ids) == 0 {
		return
	}
	if err := s.enqueuer.EnqueueDispatch(ctx, ids, at); err != nil {
		s.activity.Warn(ctx, nil, "enqueue", "delayed dispatch not enqueued", map[string]any{"items": ids, "error": err.Error()})
	}
}

// parseScheduleTime accepts RFC 3339, or a local "2006-01-02T15:04" wall time
// interpreted in timezone (UTC when empty). The result is always UTC.
func parseScheduleTime(value, timezone string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}

	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q", timezone)
		}
		loc = l
	}
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid schedule_time %q", value)
}

func countFailed(results []BulkPostResult) int {
	n := 0
	for _, r := range results {
		if r.Status == ResultStatusFailed {
			n++
		}
	}
	return n
}

func uploadErrorMessage(err error) string {
	if appErr := apperror.As(err); appErr != nil {
		return appErr.Message
	}
	return utils.SanitizeString(err.Error())
}

func sniffOrEmpty(data []byte) string {
	mimeType, err := DetectMedia(data)
	if err != nil {
		return ""
	}
	return mimeType
}
