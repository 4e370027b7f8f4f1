package jobs

import (
	"context"
	"testing"

	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanRefreshUpsertsRosterAndUnsubscribesMissing(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	fans := repository.NewFanRepository(db)
	gone := seedFan(t, fans, "gone", boolPtr(true), boolPtr(true))

	platform := newChatPlatform()
	platform.fanPages = [][]transfer.PlatformFan{
		{
			{ID: "1", Username: "one", CanReceiveChatMessage: boolPtr(true)},
			{ID: "2", Username: "two", SubscribedOn: boolPtr(false)},
		},
		{
			{ID: "3", Username: "three", SubscribedByData: &transfer.SubscriptionData{Status: "Expired"}},
			{ID: "1", Username: "dup"},
		},
	}

	job := NewFanRefreshJob(db, fans, platform, 0)
	require.NoError(t, job.Run(ctx))

	list, err := fans.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 4)

	byUser := map[string]bool{}
	chat := map[string]bool{}
	for _, f := range list {
		byUser[f.PlatformUserID] = f.Subscribed
		chat[f.PlatformUserID] = f.CanReceiveChat
	}
	assert.True(t, byUser["1"])
	assert.True(t, chat["1"])
	assert.False(t, byUser["2"])
	assert.False(t, byUser["3"])
	assert.False(t, byUser["gone"])

	one, err := fans.GetByID(ctx, gone)
	require.NoError(t, err)
	assert.False(t, one.Subscribed)
}

func TestFanRefreshLeavesStoreAloneOnListFailure(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	fans := repository.NewFanRepository(db)
	id := seedFan(t, fans, "kept", boolPtr(true), boolPtr(true))

	platform := newChatPlatform()
	platform.fansErr = apperror.Upstream("down")

	job := NewFanRefreshJob(db, fans, platform, 0)
	require.Error(t, job.Run(ctx))

	fan, err := fans.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, fan.Subscribed)
}

func TestFanRefreshRespectsLimit(t *testing.T) {
	db := newTestDB(t)
	fans := repository.NewFanRepository(db)
	platform := newChatPlatform()
	platform.fanPages = [][]transfer.PlatformFan{{{ID: "1"}, {ID: "2"}, {ID: "3"}}}

	job := NewFanRefreshJob(db, fans, platform, 2)
	require.NoError(t, job.Run(context.Background()))

	list, err := fans.List(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
