// Package dispatcher fans a fixed batch of work out to a bounded pool of
// goroutines and hands every result back to the caller's goroutine.
package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 6

type outcome[T, R any] struct {
	item   T
	result R
}

// Run processes items with at most workers concurrent calls to work. collect
// is invoked serially on the calling goroutine for each finished item, so it
// may mutate shared state without locking. Run returns once every dispatched
// item has been collected; when ctx is done no further items are dispatched.
// The return value is the number of items dispatched.
func Run[T, R any](
	ctx context.Context,
	workers int,
	items []T,
	work func(context.Context, T) R,
	collect func(T, R),
) int {
	if len(items) == 0 {
		return 0
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan T)
	results := make(chan outcome[T, R], workers)
	var dispatched atomic.Int64

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				results <- outcome[T, R]{item: item, result: work(ctx, item)}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, item := range items {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- item:
				dispatched.Add(1)
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for out := range results {
		collect(out.item, out.result)
	}
	return int(dispatched.Load())
}
