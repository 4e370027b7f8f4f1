package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

type LogRepository interface {
	Append(ctx context.Context, entry *models.LogEntry) (int64, error)
	List(ctx context.Context, q LogQuery) (*LogPage, error)
}

type LogQuery struct {
	ItemID   *int64
	Level    models.LogLevel
	Page     int
	PageSize int
}

type LogPage struct {
	Entries  []*models.LogEntry `json:"entries"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Total    int64              `json:"total"`
}

type logRepository struct {
	db  *DB
	now func() time.Time
}

func NewLogRepository(db *DB) LogRepository {
	return &logRepository{db: db, now: time.Now}
}

// Append stores entry as given; callers are expected to have redacted Meta.
func (r *logRepository) Append(ctx context.Context, entry *models.LogEntry) (int64, error) {
	if !entry.Level.Valid() {
		return 0, apperror.Validation("unknown log level %q", entry.Level)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	var meta sql.NullString
	if len(entry.Meta) > 0 {
		raw, err := json.Marshal(entry.Meta)
		if err != nil {
			return 0, fmt.Errorf("encode log meta: %w", err)
		}
		meta = sql.NullString{String: string(raw), Valid: true}
	}

	var itemID sql.NullInt64
	if entry.ItemID != nil {
		itemID = sql.NullInt64{Int64: *entry.ItemID, Valid: true}
	}

	query := `
		INSERT INTO item_logs (item_id, level, step, message, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRowContext(ctx, r.db.Rebind(query), itemID, string(entry.Level), entry.Step, entry.Message, meta, entry.CreatedAt).Scan(&id)
	if err != nil {
		log.Debug().Err(err).Msg("append item log")
		return 0, err
	}
	entry.ID = id
	return id, nil
}

// List pages through logs newest first. PageSize defaults to 25 and is capped at 100.
func (r *logRepository) List(ctx context.Context, q LogQuery) (*LogPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	var (
		conds []string
		args  []any
	)
	if q.ItemID != nil {
		args = append(args, *q.ItemID)
		conds = append(conds, fmt.Sprintf("item_id = $%d", len(args)))
	}
	if q.Level != "" {
		if !q.Level.Valid() {
			return nil, apperror.Validation("unknown log level %q", q.Level)
		}
		args = append(args, string(q.Level))
		conds = append(conds, fmt.Sprintf("level = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, r.db.Rebind(`SELECT COUNT(*) FROM item_logs`+where), args...).Scan(&total); err != nil {
		log.Debug().Err(err).Msg("count item logs")
		return nil, err
	}

	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf(`SELECT id, item_id, level, step, message, meta, created_at FROM item_logs%s
		ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		log.Debug().Err(err).Msg("list item logs")
		return nil, err
	}
	defer rows.Close()

	out := &LogPage{Page: page, PageSize: size, Total: total, Entries: []*models.LogEntry{}}
	for rows.Next() {
		var (
			entry  models.LogEntry
			itemID sql.NullInt64
			level  string
			meta   sql.NullString
		)
		if err := rows.Scan(&entry.ID, &itemID, &level, &entry.Step, &entry.Message, &meta, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if itemID.Valid {
			id := itemID.Int64
			entry.ItemID = &id
		}
		entry.Level = models.LogLevel(level)
		entry.CreatedAt = entry.CreatedAt.UTC()
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &entry.Meta); err != nil {
				return nil, fmt.Errorf("decode log meta: %w", err)
			}
		}
		out.Entries = append(out.Entries, &entry)
	}
	return out, rows.Err()
}
