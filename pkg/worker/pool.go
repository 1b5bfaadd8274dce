package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// ErrPanic wraps a panic recovered while handling one item
var ErrPanic = errors.New("worker panic")

// Handler processes one item
type Handler[T any] func(ctx context.Context, item T) error

// Result is what a worker reports for one item
type Result[T any] struct {
	Item     T
	WorkerID int
	Err      error
}

// Stats are the aggregated counts of a pool run
type Stats struct {
	Done   int
	Errors int
}

// Run distributes items over a fixed number of workers. newHandler is called once per
// worker so each worker can own its resources (HTTP client, DB session).
//
// onResult is called for every finished item, in completion order, from the calling
// goroutine only; it needs no locking. Cancelling ctx stops starting new items and
// dropped items are not reported; handlers that must finish a started item detach
// from ctx themselves.
func Run[T any](ctx context.Context, workers int, items []T, newHandler func(workerID int) Handler[T], onResult func(Result[T])) Stats {
	if workers < 1 {
		workers = 1
	}

	// Unbuffered so that cancellation leaves no queued items behind
	jobs := make(chan T)
	go func() {
		defer close(jobs)
		for _, item := range items {
			select {
			case jobs <- item:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make(chan Result[T], workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			handle := newHandler(workerID)
			for item := range jobs {
				// The feeder may still win a send after cancellation; such an item is not started
				if ctx.Err() != nil {
					continue
				}
				results <- Result[T]{
					Item:     item,
					WorkerID: workerID,
					Err:      safeHandle(ctx, handle, item),
				}
			}
		}(i)
	}

	// Close results channel when all workers finish
	go func() {
		wg.Wait()
		close(results)
	}()

	// Aggregate results (no contention - single goroutine reads from channel)
	var stats Stats
	for res := range results {
		if res.Err != nil {
			stats.Errors++
		} else {
			stats.Done++
		}
		if onResult != nil {
			onResult(res)
		}
	}
	return stats
}

// safeHandle turns a panic in handle into an error so one bad item cannot take the pool down
func safeHandle[T any](ctx context.Context, handle Handler[T], item T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return handle(ctx, item)
}
