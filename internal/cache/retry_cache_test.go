package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func newTestCache(opts ...Option) (*RetryCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewRetryCache(append([]Option{WithClock(clock.Now)}, opts...)...), clock
}

func TestRetryCacheExpiresAfterTTL(t *testing.T) {
	c, clock := newTestCache()
	c.Save("batch-1", []RetryItem{{UploadStatus: "failed", RetryData: &RetryData{Buffer: []byte("img"), Filename: "a.png"}}})

	clock.Advance(29 * time.Minute)
	batch, err := c.Get("batch-1")
	require.NoError(t, err)
	require.Len(t, batch.Items, 1)
	assert.Equal(t, "a.png", batch.Items[0].RetryData.Filename)

	clock.Advance(2 * time.Minute)
	_, err = c.Get("batch-1")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestRetryCacheAccessDoesNotRefreshTTL(t *testing.T) {
	c, clock := newTestCache()
	c.Save("b", []RetryItem{{}})

	clock.Advance(20 * time.Minute)
	_, err := c.Get("b")
	require.NoError(t, err)
	require.NoError(t, c.Update("b", func(batch *RetryBatch) {
		batch.Items[0].UploadStatus = "success"
		batch.CreatedAt = clock.now
	}))

	clock.Advance(11 * time.Minute)
	_, err = c.Get("b")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestRetryCacheEvictsOldestCreatedFirst(t *testing.T) {
	c, clock := newTestCache(WithMaxBatches(3))
	for i := 0; i < 3; i++ {
		c.Save(fmt.Sprintf("b%d", i), nil)
		clock.Advance(time.Minute)
	}
	_, err := c.Get("b0")
	require.NoError(t, err)

	c.Save("b3", nil)

	assert.Equal(t, 3, c.Len())
	_, err = c.Get("b0")
	assert.ErrorIs(t, err, ErrBatchNotFound)
	for _, id := range []string{"b1", "b2", "b3"} {
		_, err := c.Get(id)
		assert.NoError(t, err, id)
	}
}

func TestRetryCacheMissingBatch(t *testing.T) {
	c, _ := newTestCache()
	_, err := c.Get("nope")
	assert.ErrorIs(t, err, ErrBatchNotFound)
	assert.ErrorIs(t, c.Update("nope", func(*RetryBatch) {}), ErrBatchNotFound)
}

func TestRetryCachePruneExpired(t *testing.T) {
	c, clock := newTestCache()
	c.Save("old", nil)
	clock.Advance(40 * time.Minute)
	c.Save("new", nil)

	assert.Equal(t, 0, c.PruneExpired())
	assert.Equal(t, 1, c.Len())
}

func TestRetryCacheGetReturnsCopy(t *testing.T) {
	c, _ := newTestCache()
	c.Save("b", []RetryItem{{UploadStatus: "failed"}})

	batch, err := c.Get("b")
	require.NoError(t, err)
	batch.Items[0].UploadStatus = "success"

	again, err := c.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "failed", again.Items[0].UploadStatus)
}
