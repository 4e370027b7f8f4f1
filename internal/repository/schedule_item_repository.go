package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/rs/zerolog/log"
)

type ScheduleItemRepository interface {
	Create(ctx context.Context, tx *sql.Tx, item *models.ScheduleItem) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduleItem, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*models.ScheduleItem, error)
	List(ctx context.Context, filter ItemFilter) ([]*models.ScheduleItem, error)
	ListDue(ctx context.Context, before time.Time, limit int) ([]*models.ScheduleItem, error)
	Update(ctx context.Context, id int64, upd ItemUpdate) error
	Claim(ctx context.Context, id int64, staleBefore time.Time, force bool) (bool, error)
}

// ItemFilter narrows List. Zero values match everything.
type ItemFilter struct {
	Status      models.LocalStatus
	Destination models.Destination
	BatchID     string
	Limit       int
}

// ItemUpdate is a partial update; nil fields are left untouched.
type ItemUpdate struct {
	LocalStatus    *models.LocalStatus
	MediaURL       *string
	PostStatus     *string
	MessageStatus  *string
	PostMediaID    *string
	MessageMediaID *string
	PostQueueID    *string
	MessageBatchID *string
	LastError      *string
}

type scheduleItemRepository struct {
	db  *DB
	now func() time.Time
}

func NewScheduleItemRepository(db *DB) ScheduleItemRepository {
	return &scheduleItemRepository{db: db, now: time.Now}
}

const scheduleItemColumns = `id, batch_id, source_filename, media_url, caption, message_body, schedule_time, timezone,
	destination, local_status, post_status, message_status, post_media_id, message_media_id,
	post_queue_id, message_batch_id, last_error, created_at, updated_at`

func (r *scheduleItemRepository) Create(ctx context.Context, tx *sql.Tx, item *models.ScheduleItem) (int64, error) {
	if !item.Destination.Valid() {
		return 0, apperror.Validation("unknown destination %q", item.Destination)
	}
	if item.LocalStatus == "" {
		item.LocalStatus = models.StatusDraft
	}
	if !item.LocalStatus.Valid() {
		return 0, apperror.Validation("unknown status %q", item.LocalStatus)
	}

	query := `
		INSERT INTO schedule_items (batch_id, source_filename, media_url, caption, message_body, schedule_time, timezone,
			destination, local_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING id
	`

	now := r.now().UTC()
	var id int64
	err := r.db.conn(tx).QueryRowContext(ctx, r.db.Rebind(query),
		nullString(item.BatchID), item.SourceFilename, item.MediaURL, item.Caption, item.MessageBody,
		nullTime(item.ScheduleTime), nullString(item.Timezone), string(item.Destination), string(item.LocalStatus), now,
	).Scan(&id)
	if err != nil {
		log.Debug().Err(err).Msg("insert schedule item")
		return 0, err
	}

	item.ID = id
	item.CreatedAt = now
	item.UpdatedAt = now
	return id, nil
}

func (r *scheduleItemRepository) GetByID(ctx context.Context, id int64) (*models.ScheduleItem, error) {
	query := `SELECT ` + scheduleItemColumns + ` FROM schedule_items WHERE id = $1`
	item, err := scanScheduleItem(r.db.QueryRowContext(ctx, r.db.Rebind(query), id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		log.Debug().Err(err).Int64("item_id", id).Msg("get schedule item")
		return nil, err
	}
	return item, nil
}

func (r *scheduleItemRepository) ListByIDs(ctx context.Context, ids []int64) ([]*models.ScheduleItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT ` + scheduleItemColumns + ` FROM schedule_items WHERE id IN (` + strings.Join(placeholders, ", ") + `) ORDER BY id`
	return r.queryItems(ctx, query, args...)
}

func (r *scheduleItemRepository) List(ctx context.Context, filter ItemFilter) ([]*models.ScheduleItem, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return nil, apperror.Validation("unknown status %q", filter.Status)
		}
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("local_status = $%d", len(args)))
	}
	if filter.Destination != "" {
		if !filter.Destination.Valid() {
			return nil, apperror.Validation("unknown destination %q", filter.Destination)
		}
		args = append(args, string(filter.Destination))
		conds = append(conds, fmt.Sprintf("destination = $%d", len(args)))
	}
	if filter.BatchID != "" {
		args = append(args, filter.BatchID)
		conds = append(conds, fmt.Sprintf("batch_id = $%d", len(args)))
	}

	query := `SELECT ` + scheduleItemColumns + ` FROM schedule_items`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY id DESC`

	limit := filter.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	return r.queryItems(ctx, query, args...)
}

// ListDue returns scheduled or ready items whose schedule time is at or before the given instant.
func (r *scheduleItemRepository) ListDue(ctx context.Context, before time.Time, limit int) ([]*models.ScheduleItem, error) {
	if limit <= 0 {
		limit = MaxPageSize
	}
	query := `
		SELECT ` + scheduleItemColumns + ` FROM schedule_items
		WHERE local_status IN ('scheduled', 'ready')
			AND schedule_time IS NOT NULL
			AND schedule_time <= $1
		ORDER BY schedule_time, id
		LIMIT $2
	`
	return r.queryItems(ctx, query, before.UTC(), limit)
}

func (r *scheduleItemRepository) Update(ctx context.Context, id int64, upd ItemUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.LocalStatus != nil {
		if !upd.LocalStatus.Valid() {
			return apperror.Validation("unknown status %q", *upd.LocalStatus)
		}
		add("local_status", string(*upd.LocalStatus))
	}
	if upd.MediaURL != nil {
		add("media_url", *upd.MediaURL)
	}
	if upd.PostStatus != nil {
		add("post_status", nullString(*upd.PostStatus))
	}
	if upd.MessageStatus != nil {
		add("message_status", nullString(*upd.MessageStatus))
	}
	if upd.PostMediaID != nil {
		add("post_media_id", nullString(*upd.PostMediaID))
	}
	if upd.MessageMediaID != nil {
		add("message_media_id", nullString(*upd.MessageMediaID))
	}
	if upd.PostQueueID != nil {
		add("post_queue_id", nullString(*upd.PostQueueID))
	}
	if upd.MessageBatchID != nil {
		add("message_batch_id", nullString(*upd.MessageBatchID))
	}
	if upd.LastError != nil {
		add("last_error", nullString(*upd.LastError))
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", r.now().UTC())
	args = append(args, id)

	query := fmt.Sprintf("UPDATE schedule_items SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		log.Debug().Err(err).Int64("item_id", id).Msg("update schedule item")
		return err
	}
	return nil
}

// Claim atomically moves an item to pending. Items already queued or sent are
// only claimed when force is set; a pending item is only reclaimed once its
// claim is older than staleBefore.
func (r *scheduleItemRepository) Claim(ctx context.Context, id int64, staleBefore time.Time, force bool) (bool, error) {
	query := `
		UPDATE schedule_items SET local_status = 'pending', updated_at = $1
		WHERE id = $2 AND (
			local_status IN ('draft', 'ready', 'scheduled', 'error')
			OR (local_status = 'pending' AND updated_at < $3)
		)
	`
	if force {
		query = `
			UPDATE schedule_items SET local_status = 'pending', updated_at = $1
			WHERE id = $2 AND (local_status <> 'pending' OR updated_at < $3)
		`
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), r.now().UTC(), id, staleBefore.UTC())
	if err != nil {
		log.Debug().Err(err).Int64("item_id", id).Msg("claim schedule item")
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *scheduleItemRepository) queryItems(ctx context.Context, query string, args ...any) ([]*models.ScheduleItem, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		log.Debug().Err(err).Msg("query schedule items")
		return nil, err
	}
	defer rows.Close()

	var items []*models.ScheduleItem
	for rows.Next() {
		item, err := scanScheduleItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScheduleItem(row rowScanner) (*models.ScheduleItem, error) {
	var (
		item                                          models.ScheduleItem
		batchID, timezone, postStatus, messageStatus  sql.NullString
		postMedia, messageMedia, postQueue, lastError sql.NullString
		messageBatch                                  sql.NullString
		scheduleTime                                  sql.NullTime
		destination, status                           string
	)
	err := row.Scan(&item.ID, &batchID, &item.SourceFilename, &item.MediaURL, &item.Caption, &item.MessageBody,
		&scheduleTime, &timezone, &destination, &status, &postStatus, &messageStatus, &postMedia, &messageMedia,
		&postQueue, &messageBatch, &lastError, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}

	item.BatchID = batchID.String
	item.ScheduleTime = timePtr(scheduleTime)
	item.Timezone = timezone.String
	item.Destination = models.Destination(destination)
	item.LocalStatus = models.LocalStatus(status)
	item.PostStatus = postStatus.String
	item.MessageStatus = messageStatus.String
	item.PostMediaID = postMedia.String
	item.MessageMediaID = messageMedia.String
	item.PostQueueID = postQueue.String
	item.MessageBatchID = messageBatch.String
	item.LastError = lastError.String
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}
