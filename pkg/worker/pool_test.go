package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CountsAndIsolatesPanics(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6}
	var handlersCreated atomic.Int32

	var seen []int
	stats := Run(context.Background(), 3, items, func(workerID int) Handler[int] {
		handlersCreated.Add(1)
		return func(ctx context.Context, item int) error {
			switch item {
			case 2:
				return errors.New("boom")
			case 4:
				panic("unexpected markup")
			}
			return nil
		}
	}, func(res Result[int]) {
		seen = append(seen, res.Item)
		if res.Item == 4 {
			assert.ErrorIs(t, res.Err, ErrPanic)
		}
	})

	assert.Equal(t, 4, stats.Done)
	assert.Equal(t, 2, stats.Errors)
	assert.Len(t, seen, len(items))
	assert.EqualValues(t, 3, handlersCreated.Load())
}

func TestRun_CancelStopsSubmission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	items := make([]int, 100)
	var processed atomic.Int32

	stats := Run(ctx, 2, items, func(int) Handler[int] {
		return func(ctx context.Context, item int) error {
			if processed.Add(1) == 3 {
				cancel()
			}
			return nil
		}
	}, nil)

	assert.Less(t, stats.Done, len(items))
	assert.Equal(t, int(processed.Load()), stats.Done)
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRun_CancelStartsNoNewItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var started []int
	stats := Run(ctx, 1, []int{1, 2, 3}, func(int) Handler[int] {
		return func(ctx context.Context, item int) error {
			started = append(started, item)
			cancel()
			return nil
		}
	}, nil)

	assert.Equal(t, []int{1}, started)
	assert.Equal(t, Stats{Done: 1}, stats)
}
