package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/shopspring/decimal"
)

// PPVWithMedia is a definition together with its paid and preview media.
type PPVWithMedia struct {
	*models.PPVDefinition
	Media []models.PPVMedia `json:"media"`
}

type PPVService interface {
	Create(ctx context.Context, req transfer.CreatePPVRequest) (*PPVWithMedia, error)
	List(ctx context.Context) ([]PPVWithMedia, error)
}

type ppvService struct {
	db   *repository.DB
	ppvs repository.PPVRepository
}

func NewPPVService(db *repository.DB, ppvs repository.PPVRepository) PPVService {
	return &ppvService{db: db, ppvs: ppvs}
}

func (s *ppvService) Create(ctx context.Context, req transfer.CreatePPVRequest) (*PPVWithMedia, error) {
	if req.PPVNumber < 1 {
		return nil, apperror.Validation("ppv number must be positive")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, apperror.Validation("message is required")
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return nil, apperror.Validation("invalid price %q", req.Price)
	}
	if req.ScheduleDay < 1 || req.ScheduleDay > 31 {
		return nil, apperror.Validation("schedule day must be between 1 and 31")
	}
	if _, err := time.Parse("15:04", req.ScheduleTime); err != nil {
		return nil, apperror.Validation("schedule time must be HH:MM, got %q", req.ScheduleTime)
	}

	def := &models.PPVDefinition{
		PPVNumber:    req.PPVNumber,
		Description:  req.Description,
		Message:      req.Message,
		Price:        price.Round(2),
		VaultListID:  req.VaultListID,
		ScheduleDay:  req.ScheduleDay,
		ScheduleTime: req.ScheduleTime,
	}
	out := &PPVWithMedia{PPVDefinition: def}

	err = inTx(ctx, s.db, func(tx *sql.Tx) error {
		id, err := s.ppvs.Create(ctx, tx, def)
		if err != nil {
			return fmt.Errorf("create ppv %d: %w", req.PPVNumber, err)
		}
		for _, m := range req.Media {
			if strings.TrimSpace(m.MediaID) == "" {
				return apperror.Validation("media id is required")
			}
			media := models.PPVMedia{PPVID: id, MediaID: m.MediaID, IsPreview: m.IsPreview}
			if err := s.ppvs.AddMedia(ctx, tx, media); err != nil {
				return fmt.Errorf("add ppv media: %w", err)
			}
			out.Media = append(out.Media, media)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ppvService) List(ctx context.Context) ([]PPVWithMedia, error) {
	defs, err := s.ppvs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ppvs: %w", err)
	}
	out := make([]PPVWithMedia, 0, len(defs))
	for _, def := range defs {
		media, err := s.ppvs.ListMedia(ctx, def.ID)
		if err != nil {
			return nil, fmt.Errorf("list media for ppv %d: %w", def.ID, err)
		}
		out = append(out, PPVWithMedia{PPVDefinition: def, Media: media})
	}
	return out, nil
}
