package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/rs/zerolog/log"
)

type PPVRepository interface {
	Create(ctx context.Context, tx *sql.Tx, def *models.PPVDefinition) (int64, error)
	AddMedia(ctx context.Context, tx *sql.Tx, media models.PPVMedia) error
	List(ctx context.Context) ([]*models.PPVDefinition, error)
	ListMedia(ctx context.Context, ppvID int64) ([]models.PPVMedia, error)
	ClaimSend(ctx context.Context, rec models.PPVSendRecord) (bool, error)
	ReleaseSend(ctx context.Context, ppvID, fanID int64, cycle string) error
	TouchLastSent(ctx context.Context, ppvID int64, at time.Time) error
}

type ppvRepository struct {
	db  *DB
	now func() time.Time
}

func NewPPVRepository(db *DB) PPVRepository {
	return &ppvRepository{db: db, now: time.Now}
}

func (r *ppvRepository) Create(ctx context.Context, tx *sql.Tx, def *models.PPVDefinition) (int64, error) {
	if def.ScheduleDay < 1 || def.ScheduleDay > 31 {
		return 0, apperror.Validation("schedule day must be between 1 and 31, got %d", def.ScheduleDay)
	}

	query := `
		INSERT INTO ppv_definitions (ppv_number, description, message, price, vault_list_id, schedule_day, schedule_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	now := r.now().UTC()
	var id int64
	err := r.db.conn(tx).QueryRowContext(ctx, r.db.Rebind(query),
		def.PPVNumber, def.Description, def.Message, def.Price.StringFixed(2), nullString(def.VaultListID),
		def.ScheduleDay, def.ScheduleTime, now,
	).Scan(&id)
	if err != nil {
		log.Debug().Err(err).Int("ppv_number", def.PPVNumber).Msg("insert ppv definition")
		return 0, err
	}
	def.ID = id
	def.CreatedAt = now
	return id, nil
}

func (r *ppvRepository) AddMedia(ctx context.Context, tx *sql.Tx, media models.PPVMedia) error {
	query := `
		INSERT INTO ppv_media (ppv_id, media_id, is_preview) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.conn(tx).ExecContext(ctx, r.db.Rebind(query), media.PPVID, media.MediaID, media.IsPreview); err != nil {
		log.Debug().Err(err).Int64("ppv_id", media.PPVID).Msg("insert ppv media")
		return err
	}
	return nil
}

func (r *ppvRepository) List(ctx context.Context) ([]*models.PPVDefinition, error) {
	query := `
		SELECT id, ppv_number, description, message, price, vault_list_id, schedule_day, schedule_time, last_sent_at, created_at
		FROM ppv_definitions ORDER BY ppv_number
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		log.Debug().Err(err).Msg("list ppv definitions")
		return nil, err
	}
	defer rows.Close()

	var defs []*models.PPVDefinition
	for rows.Next() {
		var (
			def        models.PPVDefinition
			vaultList  sql.NullString
			lastSentAt sql.NullTime
		)
		err := rows.Scan(&def.ID, &def.PPVNumber, &def.Description, &def.Message, &def.Price, &vaultList,
			&def.ScheduleDay, &def.ScheduleTime, &lastSentAt, &def.CreatedAt)
		if err != nil {
			return nil, err
		}
		def.VaultListID = vaultList.String
		def.LastSentAt = timePtr(lastSentAt)
		def.CreatedAt = def.CreatedAt.UTC()
		defs = append(defs, &def)
	}
	return defs, rows.Err()
}

func (r *ppvRepository) ListMedia(ctx context.Context, ppvID int64) ([]models.PPVMedia, error) {
	query := `SELECT ppv_id, media_id, is_preview FROM ppv_media WHERE ppv_id = $1 ORDER BY is_preview, media_id`
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), ppvID)
	if err != nil {
		log.Debug().Err(err).Int64("ppv_id", ppvID).Msg("list ppv media")
		return nil, err
	}
	defer rows.Close()

	var media []models.PPVMedia
	for rows.Next() {
		var m models.PPVMedia
		if err := rows.Scan(&m.PPVID, &m.MediaID, &m.IsPreview); err != nil {
			return nil, err
		}
		media = append(media, m)
	}
	return media, rows.Err()
}

// ClaimSend inserts the cycle's send record and reports whether this caller
// owns it. Only the owner may send; a failed send releases the claim.
func (r *ppvRepository) ClaimSend(ctx context.Context, rec models.PPVSendRecord) (bool, error) {
	if rec.SentAt.IsZero() {
		rec.SentAt = r.now()
	}
	query := `
		INSERT INTO ppv_send_records (ppv_id, fan_id, cycle, sent_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (ppv_id, fan_id, cycle) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), rec.PPVID, rec.FanID, rec.Cycle, rec.SentAt.UTC())
	if err != nil {
		log.Debug().Err(err).Int64("ppv_id", rec.PPVID).Int64("fan_id", rec.FanID).Msg("claim ppv send")
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *ppvRepository) ReleaseSend(ctx context.Context, ppvID, fanID int64, cycle string) error {
	query := `DELETE FROM ppv_send_records WHERE ppv_id = $1 AND fan_id = $2 AND cycle = $3`
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), ppvID, fanID, cycle); err != nil {
		log.Debug().Err(err).Int64("ppv_id", ppvID).Int64("fan_id", fanID).Msg("release ppv send")
		return err
	}
	return nil
}

func (r *ppvRepository) TouchLastSent(ctx context.Context, ppvID int64, at time.Time) error {
	query := `UPDATE ppv_definitions SET last_sent_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), at.UTC(), ppvID); err != nil {
		log.Debug().Err(err).Int64("ppv_id", ppvID).Msg("touch ppv last sent")
		return err
	}
	return nil
}
