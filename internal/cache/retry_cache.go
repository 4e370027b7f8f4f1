package cache

import (
	"errors"
	"sort"
	"sync"
	"time"
)

const (
	DefaultRetryTTL   = 30 * time.Minute
	DefaultMaxBatches = 50
)

var ErrBatchNotFound = errors.New("retry batch not found or expired")

// RetryData holds the raw bytes of an upload that has not reached the image store yet.
type RetryData struct {
	Buffer   []byte
	MimeType string
	Filename string
}

// RetryItem is one post of a rejected batch. ItemID is set once the post
// has been stored, after which retries leave it alone.
type RetryItem struct {
	RetryData    *RetryData
	UploadStatus string
	ImageURL     string
	ImageID      string
	Error        string
	ItemID       int64
}

type RetryBatch struct {
	Items     []RetryItem
	CreatedAt time.Time
}

// RetryCache keeps rejected upload batches in process memory so a follow-up
// request can retry them without the caller re-sending files. Entries expire
// TTL after creation; reads do not extend their lifetime. When more than
// MaxBatches are live, the oldest created are evicted first.
type RetryCache struct {
	mu         sync.Mutex
	batches    map[string]*RetryBatch
	ttl        time.Duration
	maxBatches int
	now        func() time.Time
}

type Option func(*RetryCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *RetryCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithMaxBatches(n int) Option {
	return func(c *RetryCache) {
		if n > 0 {
			c.maxBatches = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *RetryCache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewRetryCache(opts ...Option) *RetryCache {
	c := &RetryCache{
		batches:    make(map[string]*RetryBatch),
		ttl:        DefaultRetryTTL,
		maxBatches: DefaultMaxBatches,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RetryCache) Save(batchID string, items []RetryItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()
	c.batches[batchID] = &RetryBatch{Items: copyItems(items), CreatedAt: c.now()}
	c.evictLocked()
}

// Get returns a copy of the batch, or ErrBatchNotFound.
func (c *RetryCache) Get(batchID string) (RetryBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()
	batch, ok := c.batches[batchID]
	if !ok {
		return RetryBatch{}, ErrBatchNotFound
	}
	return RetryBatch{Items: copyItems(batch.Items), CreatedAt: batch.CreatedAt}, nil
}

// Update applies mutator to a live batch in place. CreatedAt is preserved.
func (c *RetryCache) Update(batchID string, mutator func(*RetryBatch)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()
	batch, ok := c.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	createdAt := batch.CreatedAt
	mutator(batch)
	batch.CreatedAt = createdAt
	return nil
}

// PruneExpired drops expired batches and reports how many were removed.
func (c *RetryCache) PruneExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked()
}

func (c *RetryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *RetryCache) pruneLocked() int {
	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for id, batch := range c.batches {
		if !batch.CreatedAt.After(cutoff) {
			delete(c.batches, id)
			removed++
		}
	}
	return removed
}

func (c *RetryCache) evictLocked() {
	overflow := len(c.batches) - c.maxBatches
	if overflow <= 0 {
		return
	}

	type aged struct {
		id        string
		createdAt time.Time
	}
	all := make([]aged, 0, len(c.batches))
	for id, batch := range c.batches {
		all = append(all, aged{id: id, createdAt: batch.CreatedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].createdAt.Before(all[j].createdAt) })

	for _, victim := range all[:overflow] {
		delete(c.batches, victim.id)
	}
}

func copyItems(items []RetryItem) []RetryItem {
	out := make([]RetryItem, len(items))
	copy(out, items)
	return out
}
