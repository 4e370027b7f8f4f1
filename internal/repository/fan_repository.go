package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/rs/zerolog/log"
)

type FanRepository interface {
	Upsert(ctx context.Context, tx *sql.Tx, fan models.FanUpsert) (int64, error)
	MarkAllUnsubscribed(ctx context.Context, tx *sql.Tx) error
	GetByID(ctx context.Context, id int64) (*models.Fan, error)
	List(ctx context.Context, limit, offset int) ([]*models.Fan, error)
	ListWithoutGeneratedName(ctx context.Context, afterID int64, limit int) ([]*models.Fan, error)
	SetGeneratedName(ctx context.Context, id int64, name string) error
	ListPPVCandidates(ctx context.Context, ppvID int64, cycle string) ([]*models.Fan, error)
}

type fanRepository struct {
	db  *DB
	now func() time.Time
}

func NewFanRepository(db *DB) FanRepository {
	return &fanRepository{db: db, now: time.Now}
}

const fanColumns = `id, platform_user_id, username, name, generated_name, is_subscribed, is_active, can_receive_chat, updated_at`

func (r *fanRepository) Upsert(ctx context.Context, tx *sql.Tx, fan models.FanUpsert) (int64, error) {
	query := `
		INSERT INTO fans (platform_user_id, username, name, is_subscribed, can_receive_chat, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (platform_user_id) DO UPDATE SET
			username = excluded.username,
			name = excluded.name,
			is_subscribed = excluded.is_subscribed,
			can_receive_chat = excluded.can_receive_chat,
			updated_at = excluded.updated_at
		RETURNING id
	`
	var id int64
	err := r.db.conn(tx).QueryRowContext(ctx, r.db.Rebind(query),
		fan.PlatformUserID, fan.Username, fan.Name, nullBool(fan.IsSubscribed), nullBool(fan.CanReceiveChat), r.now().UTC(),
	).Scan(&id)
	if err != nil {
		log.Debug().Err(err).Str("platform_user_id", fan.PlatformUserID).Msg("upsert fan")
		return 0, err
	}
	return id, nil
}

// MarkAllUnsubscribed clears the subscription flag ahead of a full roster refresh.
func (r *fanRepository) MarkAllUnsubscribed(ctx context.Context, tx *sql.Tx) error {
	query := `UPDATE fans SET is_subscribed = $1, updated_at = $2`
	if _, err := r.db.conn(tx).ExecContext(ctx, r.db.Rebind(query), false, r.now().UTC()); err != nil {
		log.Debug().Err(err).Msg("mark fans unsubscribed")
		return err
	}
	return nil
}

func (r *fanRepository) GetByID(ctx context.Context, id int64) (*models.Fan, error) {
	query := `SELECT ` + fanColumns + ` FROM fans WHERE id = $1`
	fan, err := scanFan(r.db.QueryRowContext(ctx, r.db.Rebind(query), id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return fan, nil
}

func (r *fanRepository) List(ctx context.Context, limit, offset int) ([]*models.Fan, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	query := `SELECT ` + fanColumns + ` FROM fans ORDER BY id LIMIT $1 OFFSET $2`
	return r.queryFans(ctx, query, limit, offset)
}

// ListWithoutGeneratedName pages unnamed fans by id, starting after afterID.
func (r *fanRepository) ListWithoutGeneratedName(ctx context.Context, afterID int64, limit int) ([]*models.Fan, error) {
	if limit <= 0 {
		limit = MaxPageSize
	}
	query := `
		SELECT ` + fanColumns + ` FROM fans
		WHERE id > $1 AND (generated_name IS NULL OR generated_name = '')
		ORDER BY id LIMIT $2
	`
	return r.queryFans(ctx, query, afterID, limit)
}

func (r *fanRepository) SetGeneratedName(ctx context.Context, id int64, name string) error {
	query := `UPDATE fans SET generated_name = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), nullString(name), r.now().UTC(), id); err != nil {
		log.Debug().Err(err).Int64("fan_id", id).Msg("set generated name")
		return err
	}
	return nil
}

// ListPPVCandidates returns fans that are subscribed, can receive chat and have
// no send record for the PPV in the given cycle.
func (r *fanRepository) ListPPVCandidates(ctx context.Context, ppvID int64, cycle string) ([]*models.Fan, error) {
	query := `
		SELECT ` + fanColumns + ` FROM fans f
		WHERE NOT EXISTS (
			SELECT 1 FROM ppv_send_records s
			WHERE s.ppv_id = $1 AND s.fan_id = f.id AND s.cycle = $2
		)
		ORDER BY f.id
	`
	fans, err := r.queryFans(ctx, query, ppvID, cycle)
	if err != nil {
		return nil, fmt.Errorf("list ppv candidates: %w", err)
	}

	eligible := fans[:0]
	for _, fan := range fans {
		if fan.Subscribed && fan.CanReceiveChat {
			eligible = append(eligible, fan)
		}
	}
	return eligible, nil
}

func (r *fanRepository) queryFans(ctx context.Context, query string, args ...any) ([]*models.Fan, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		log.Debug().Err(err).Msg("query fans")
		return nil, err
	}
	defer rows.Close()

	var fans []*models.Fan
	for rows.Next() {
		fan, err := scanFan(rows)
		if err != nil {
			return nil, err
		}
		fans = append(fans, fan)
	}
	return fans, rows.Err()
}

// scanFan is the only place roster flags are interpreted:
//
//	subscribed       = is_subscribed ?? is_active ?? false
//	can_receive_chat = can_receive_chat ?? false
//
// is_active is a legacy column still populated by older imports.
func scanFan(row rowScanner) (*models.Fan, error) {
	var (
		fan                              models.Fan
		generatedName                    sql.NullString
		isSubscribed, isActive, canReach sql.NullBool
	)
	err := row.Scan(&fan.ID, &fan.PlatformUserID, &fan.Username, &fan.Name, &generatedName,
		&isSubscribed, &isActive, &canReach, &fan.UpdatedAt)
	if err != nil {
		return nil, err
	}

	fan.GeneratedName = generatedName.String
	switch {
	case isSubscribed.Valid:
		fan.Subscribed = isSubscribed.Bool
	case isActive.Valid:
		fan.Subscribed = isActive.Bool
	}
	fan.CanReceiveChat = canReach.Valid && canReach.Bool
	fan.UpdatedAt = fan.UpdatedAt.UTC()
	return &fan, nil
}
