package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	config "github.com/maheshrc27/fanflow/configs"
	"github.com/maheshrc27/fanflow/internal/models"
	"github.com/maheshrc27/fanflow/internal/repository"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/logger"
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

type fakePlatform struct {
	mu sync.Mutex

	mediaSeq int
	calls    map[string]int
	errs     map[string]error

	followings []string
	queue      []transfer.QueueEntry
	queueCut   bool
	fanPages   [][]transfer.PlatformFan

	lastPost transfer.QueuedPostRequest
	lastMass transfer.MassMessageRequest
	chats    map[string]transfer.ChatMessageRequest
	chatErrs map[string]error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		calls:      map[string]int{},
		errs:       map[string]error{},
		followings: []string{"u1", "u2"},
		chats:      map[string]transfer.ChatMessageRequest{},
		chatErrs:   map[string]error{},
	}
}

func (f *fakePlatform) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.errs[op]
}

func (f *fakePlatform) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakePlatform) setErr(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

func (f *fakePlatform) nextMedia() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mediaSeq++
	return fmt.Sprintf("media_%d", f.mediaSeq)
}

func (f *fakePlatform) GetAccountID(ctx context.Context) (string, error) { return "acct_1", nil }

func (f *fakePlatform) UploadMedia(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	if err := f.record("upload"); err != nil {
		return "", err
	}
	return f.nextMedia(), nil
}

func (f *fakePlatform) ScrapeMedia(ctx context.Context, mediaURL string) (string, error) {
	if err := f.record("scrape"); err != nil {
		return "", err
	}
	return f.nextMedia(), nil
}

func (f *fakePlatform) CreateQueuedPost(ctx context.Context, req transfer.QueuedPostRequest) (string, error) {
	if err := f.record("post"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPost = req
	return fmt.Sprintf("q_%d", f.calls["post"]), nil
}

func (f *fakePlatform) PublishQueuedPost(ctx context.Context, queueID string) (string, error) {
	if err := f.record("publish"); err != nil {
		return "", err
	}
	return "published", nil
}

func (f *fakePlatform) ListActiveFollowings(ctx context.Context) ([]string, error) {
	if err := f.record("followings"); err != nil {
		return nil, err
	}
	return f.followings, nil
}

func (f *fakePlatform) CreateMassMessage(ctx context.Context, req transfer.MassMessageRequest) (string, error) {
	if err := f.record("mass"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMass = req
	return fmt.Sprintf("mm_%d", f.calls["mass"]), nil
}

func (f *fakePlatform) ListQueue(ctx context.Context) (*transfer.QueueListing, error) {
	if err := f.record("queue"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return &transfer.QueueListing{Entries: append([]transfer.QueueEntry(nil), f.queue...), Complete: !f.queueCut}, nil
}

func (f *fakePlatform) SendChatMessage(ctx context.Context, fanID string, req transfer.ChatMessageRequest) (string, error) {
	if err := f.record("chat"); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.chatErrs[fanID]; err != nil {
		return "", err
	}
	f.chats[fanID] = req
	return "msg_" + fanID, nil
}

func (f *fakePlatform) ListActiveFans(ctx context.Context, limit, offset int) (*transfer.FanPage, error) {
	if err := f.record("fans"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 {
		limit = platformPageSize
	}
	page := offset / limit
	if page >= len(f.fanPages) {
		return &transfer.FanPage{}, nil
	}
	return &transfer.FanPage{Fans: f.fanPages[page], HasMore: page < len(f.fanPages)-1}, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*FetchedMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &FetchedMedia{Data: pngBytes, MimeType: "image/png", Filename: "a.png"}, nil
}

// pngBytes is the smallest header filetype recognises as PNG.
var pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 0x49, 0x48, 0x44, 0x52}

type fakeImageStore struct {
	mu          sync.Mutex
	verifyErr   error
	configErr   error
	failFor     map[string]error
	uploads     []string
	verifyCalls int
}

func (f *fakeImageStore) GetConfig() (*config.ImageStoreConfig, error) {
	if f.configErr != nil {
		return nil, f.configErr
	}
	return &config.ImageStoreConfig{}, nil
}

func (f *fakeImageStore) VerifyToken(ctx context.Context, cfg *config.ImageStoreConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	return f.verifyErr
}

func (f *fakeImageStore) Upload(ctx context.Context, data []byte, filename, mimeType string, cfg *config.ImageStoreConfig) (*UploadedImage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[filename]; err != nil {
		return nil, err
	}
	f.uploads = append(f.uploads, filename)
	return &UploadedImage{ImageID: "img_" + filename, URL: "https://imagedelivery.net/h/img_" + filename + "/public"}, nil
}

type dispatchFixture struct {
	db       *repository.DB
	items    repository.ScheduleItemRepository
	logs     repository.LogRepository
	platform *fakePlatform
	fetcher  *fakeFetcher
	svc      DispatchService
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	db := newTestDB(t)
	items := repository.NewScheduleItemRepository(db)
	logs := repository.NewLogRepository(db)
	platform := newFakePlatform()
	fetcher := &fakeFetcher{}
	svc := NewDispatchService(items, platform, fetcher, NewActivityLog(logs, logger.Nop()), nil, DispatchConfig{MediaMode: MediaModeUpload})
	return &dispatchFixture{db: db, items: items, logs: logs, platform: platform, fetcher: fetcher, svc: svc}
}

func (f *dispatchFixture) createItem(t *testing.T, dest models.Destination) int64 {
	t.Helper()
	id, err := f.items.Create(context.Background(), nil, &models.ScheduleItem{
		SourceFilename: "a.png",
		MediaURL:       "https://cdn.example.com/a.png",
		Caption:        "caption",
		MessageBody:    "message body",
		Destination:    dest,
		LocalStatus:    models.StatusReady,
	})
	require.NoError(t, err)
	return id
}

func (f *dispatchFixture) get(t *testing.T, id int64) *models.ScheduleItem {
	t.Helper()
	item, err := f.items.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item
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

type fakeGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (f *fakeGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "Friend", nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func seedFan(t *testing.T, repo repository.FanRepository, userID string, subscribed, canChat *bool) int64 {
	t.Helper()
	id, err := repo.Upsert(context.Background(), nil, models.FanUpsert{
		PlatformUserID: userID,
		Username:       "user_" + userID,
		Name:           "Name " + userID,
		IsSubscribed:   subscribed,
		CanReceiveChat: canChat,
	})
	require.NoError(t, err)
	return id
}

func boolPtr(b bool) *bool { return &b }
