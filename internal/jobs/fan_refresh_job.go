package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/internal/service"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/rs/zerolog/log"
)

const fanPageSize = 100

// FanRefreshJob mirrors the platform's active-fan roster into the store.
type FanRefreshJob struct {
	db       *repository.DB
	fans     repository.FanRepository
	platform service.PlatformService
	maxFans  int
}

func NewFanRefreshJob(db *repository.DB, fans repository.FanRepository, platform service.PlatformService, maxFans int) *FanRefreshJob {
	if maxFans <= 0 {
		maxFans = 5000
	}
	return &FanRefreshJob{db: db, fans: fans, platform: platform, maxFans: maxFans}
}

func (j *FanRefreshJob) Name() string { return "fan_refresh" }

func (j *FanRefreshJob) Run(ctx context.Context) error {
	roster, err := j.fetchRoster(ctx)
	if err != nil {
		// a partial roster would unsubscribe everyone not yet fetched
		return err
	}

	tx, err := j.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = j.fans.MarkAllUnsubscribed(ctx, tx); err != nil {
		return fmt.Errorf("reset subscriptions: %w", err)
	}
	for _, fan := range roster {
		if _, err = j.fans.Upsert(ctx, tx, fan); err != nil {
			return fmt.Errorf("upsert fan %s: %w", fan.PlatformUserID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().Int("fans", len(roster)).Msg("fan roster refreshed")
	return nil
}

func (j *FanRefreshJob) fetchRoster(ctx context.Context) ([]models.FanUpsert, error) {
	var roster []models.FanUpsert
	seen := map[string]struct{}{}
	for offset := 0; len(roster) < j.maxFans; offset += fanPageSize {
		page, err := j.platform.ListActiveFans(ctx, fanPageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list active fans at offset %d: %w", offset, err)
		}
		for _, f := range page.Fans {
			id := f.ID.String()
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			roster = append(roster, toFanUpsert(f))
		}
		if !page.HasMore || len(page.Fans) == 0 {
			break
		}
	}
	if len(roster) > j.maxFans {
		roster = roster[:j.maxFans]
	}
	return roster, nil
}

// toFanUpsert resolves the subscription flag as subscribedOn, then the
// subscription status, then true since the listing only returns active fans.
func toFanUpsert(f transfer.PlatformFan) models.FanUpsert {
	subscribed := true
	switch {
	case f.SubscribedOn != nil:
		subscribed = *f.SubscribedOn
	case f.SubscribedByData != nil && f.SubscribedByData.Status != "":
		subscribed = strings.EqualFold(f.SubscribedByData.Status, "active")
	}
	return models.FanUpsert{
		PlatformUserID: f.ID.String(),
		Username:       f.Username,
		Name:           f.Name,
		IsSubscribed:   &subscribed,
		CanReceiveChat: f.CanReceiveChatMessage,
	}
}
