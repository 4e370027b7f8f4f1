package service

import (
	"context"
	"testing"

	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPPVServiceCreateAndList(t *testing.T) {
	db := newTestDB(t)
	svc := NewPPVService(db, repository.NewPPVRepository(db))
	ctx := context.Background()

	created, err := svc.Create(ctx, transfer.CreatePPVRequest{
		PPVNumber:    7,
		Message:      "new set",
		Price:        "12.5",
		ScheduleDay:  15,
		ScheduleTime: "18:30",
		Media: []transfer.PPVMediaRequest{
			{MediaID: "paid_1"},
			{MediaID: "prev_1", IsPreview: true},
		},
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Len(t, created.Media, 2)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "12.50", list[0].Price.StringFixed(2))
	assert.Equal(t, "18:30", list[0].ScheduleTime)
	require.Len(t, list[0].Media, 2)
	assert.Equal(t, "paid_1", list[0].Media[0].MediaID)
	assert.True(t, list[0].Media[1].IsPreview)
}

func TestPPVServiceCreateIsAtomic(t *testing.T) {
	db := newTestDB(t)
	svc := NewPPVService(db, repository.NewPPVRepository(db))
	ctx := context.Background()

	_, err := svc.Create(ctx, transfer.CreatePPVRequest{
		PPVNumber:    1,
		Message:      "m",
		Price:        "5",
		ScheduleDay:  1,
		ScheduleTime: "09:00",
		Media:        []transfer.PPVMediaRequest{{MediaID: "ok"}, {MediaID: ""}},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPPVServiceCreateValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewPPVService(db, repository.NewPPVRepository(db))
	base := transfer.CreatePPVRequest{PPVNumber: 1, Message: "m", Price: "5", ScheduleDay: 1, ScheduleTime: "09:00"}

	cases := map[string]func(r *transfer.CreatePPVRequest){
		"bad price": func(r *transfer.CreatePPVRequest) { r.Price = "abc" },
		"day 0":     func(r *transfer.CreatePPVRequest) { r.ScheduleDay = 0 },
		"day 32":    func(r *transfer.CreatePPVRequest) { r.ScheduleDay = 32 },
		"bad time":  func(r *transfer.CreatePPVRequest) { r.ScheduleTime = "25:00" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := base
			mutate(&req)
			_, err := svc.Create(context.Background(), req)
			assert.True(t, apperror.IsKind(err, apperror.KindValidation))
		})
	}
}
