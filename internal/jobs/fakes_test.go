package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/internal/service"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *repository.DB {
	t.Helper()
	db, err := repository.Open(context.Background(), repository.DriverSQLite, "file::memory:?_pragma=foreign_keys(1)&_time_format=sqlite")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// chatPlatform implements the parts of the platform the jobs touch.
type chatPlatform struct {
	service.PlatformService

	mu       sync.Mutex
	sends    map[string]int
	failFor  map[string]error
	fanPages [][]transfer.PlatformFan
	fansErr  error
	delay    time.Duration
}

func newChatPlatform() *chatPlatform {
	return &chatPlatform{sends: map[string]int{}, failFor: map[string]error{}}
}

func (p *chatPlatform) SendChatMessage(ctx context.Context, fanID string, req transfer.ChatMessageRequest) (string, error) {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sends[fanID]++
	if err := p.failFor[fanID]; err != nil {
		return "", err
	}
	return "msg_" + fanID, nil
}

func (p *chatPlatform) ListActiveFans(ctx context.Context, limit, offset int) (*transfer.FanPage, error) {
	if p.fansErr != nil {
		return nil, p.fansErr
	}
	page := offset / limit
	if page >= len(p.fanPages) {
		return &transfer.FanPage{}, nil
	}
	return &transfer.FanPage{Fans: p.fanPages[page], HasMore: page < len(p.fanPages)-1}, nil
}

func (p *chatPlatform) sendCount(fanID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sends[fanID]
}

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}} }

func (f *fakeKV) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeKV) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = fmt.Sprint(value)
	return nil
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeKV) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

type fakeDispatch struct {
	dispatched [][]int64
	promoted   int
	err        error
}

func (f *fakeDispatch) Dispatch(ctx context.Context, ids []int64, opts service.DispatchOptions) []service.DispatchResult {
	f.dispatched = append(f.dispatched, ids)
	results := make([]service.DispatchResult, len(ids))
	for i, id := range ids {
		results[i] = service.DispatchResult{ItemID: id, Status: models.StatusQueued}
	}
	return results
}

func (f *fakeDispatch) Reconcile(ctx context.Context) (int, error) {
	return f.promoted, f.err
}

func seedFan(t *testing.T, repo repository.FanRepository, userID string, subscribed, canChat *bool) int64 {
	t.Helper()
	id, err := repo.Upsert(context.Background(), nil, models.FanUpsert{
		PlatformUserID: userID,
		Username:       "user_" + userID,
		IsSubscribed:   subscribed,
		CanReceiveChat: canChat,
	})
	require.NoError(t, err)
	return id
}

func boolPtr(b bool) *bool { return &b }
