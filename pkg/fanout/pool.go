package fanout

import (
	"context"
	"sync"
)

const DefaultConcurrency = 3

// Outcome is the result of processing one input.
type Outcome[T any] struct {
	Index int
	Input T
	Err   error
}

type job[T any] struct {
	index int
	input T
}

// Run processes every item with at most concurrency workers pulling from one
// shared queue. emit is invoked once per item from the calling goroutine, in
// completion order. A failing item never stops the others.
func Run[T any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) error, emit func(Outcome[T])) {
	if len(items) == 0 {
		return
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	jobs := make(chan job[T])
	results := make(chan Outcome[T])

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- Outcome[T]{Index: j.index, Input: j.input, Err: fn(ctx, j.input)}
			}
		}()
	}

	go func() {
		for i, item := range items {
			jobs <- job[T]{index: i, input: item}
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for outcome := range results {
		if emit != nil {
			emit(outcome)
		}
	}
}

// Collect runs the pool and returns the outcomes ordered by input index.
func Collect[T any](ctx context.Context, items []T, concurrency int, fn func(context.Context, T) error) []Outcome[T] {
	outcomes := make([]Outcome[T], len(items))
	Run(ctx, items, concurrency, fn, func(o Outcome[T]) {
		outcomes[o.Index] = o
	})
	return outcomes
}

// Errors returns the non-nil errors from outcomes.
func Errors[T any](outcomes []Outcome[T]) []error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}
