package fanout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectIsolatesFailures(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	outcomes := Collect(context.Background(), items, 3, func(_ context.Context, n int) error {
		if n%2 == 0 {
			return errors.New("even")
		}
		return nil
	})

	require.Len(t, outcomes, 5)
	for i, o := range outcomes {
		assert.Equal(t, items[i], o.Input)
		assert.Equal(t, i, o.Index)
	}
	assert.Len(t, Errors(outcomes), 2)
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	items := make([]int, 12)

	Run(context.Background(), items, 3, func(context.Context, int) error {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return nil
	}, nil)

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
}

func TestRunEmitsOncePerItem(t *testing.T) {
	seen := map[string]int{}
	Run(context.Background(), []string{"a", "b", "c"}, 0, func(context.Context, string) error { return nil }, func(o Outcome[string]) {
		seen[o.Input]++
	})
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)
}

func TestRunEmptyInput(t *testing.T) {
	called := false
	Run(context.Background(), nil, 3, func(context.Context, int) error { called = true; return nil }, nil)
	assert.False(t, called)
}
