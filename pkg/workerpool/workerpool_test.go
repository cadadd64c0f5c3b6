package workerpool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andrej220/octahe/internal/lg"
	"github.com/andrej220/octahe/pkg/workerpool"
	"github.com/stretchr/testify/assert"
)

func TestPoolRunsAllJobs(t *testing.T) {
	ctx := lg.Attach(context.Background(), lg.Discard)
	pool := workerpool.NewPool[int](3)

	var sum, cleanups int64
	for i := 1; i <= 10; i++ {
		pool.Submit(workerpool.Job[int]{
			Payload: i,
			Ctx:     ctx,
			Fn: func(_ context.Context, n int) error {
				atomic.AddInt64(&sum, int64(n))
				return nil
			},
			CleanupFunc: func() { atomic.AddInt64(&cleanups, 1) },
		})
	}
	pool.Wait()

	assert.Equal(t, int64(55), sum)
	assert.Equal(t, int64(10), cleanups)
	assert.Equal(t, int32(0), pool.ActiveWorkers())
}

func TestPoolBoundsConcurrency(t *testing.T) {
	ctx := lg.Attach(context.Background(), lg.Discard)
	const limit = 2
	pool := workerpool.NewPool[int](limit)

	var inFlight, peak int32
	for i := 0; i < 8; i++ {
		pool.Submit(workerpool.Job[int]{
			Payload: i,
			Ctx:     ctx,
			Fn: func(context.Context, int) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			},
		})
	}
	pool.Wait()

	assert.LessOrEqual(t, peak, int32(limit))
	assert.Equal(t, limit, pool.MaxWorkers())
}

func TestPoolSkipsCanceledJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(lg.Attach(context.Background(), lg.Discard))
	cancel()
	pool := workerpool.NewPool[string](1)

	var ran, cleaned int32
	pool.Submit(workerpool.Job[string]{
		Payload:     "skipped",
		Ctx:         ctx,
		Fn:          func(context.Context, string) error { atomic.AddInt32(&ran, 1); return nil },
		CleanupFunc: func() { atomic.AddInt32(&cleaned, 1) },
	})
	pool.Wait()

	assert.Equal(t, int32(0), ran)
	assert.Equal(t, int32(1), cleaned)
}

func TestPoolJobErrorDoesNotStopOthers(t *testing.T) {
	ctx := lg.Attach(context.Background(), lg.Discard)
	pool := workerpool.NewPool[int](0)
	assert.Equal(t, workerpool.TotalMaxWorkers, pool.MaxWorkers())

	var ok int32
	for i := 0; i < 4; i++ {
		pool.Submit(workerpool.Job[int]{
			Payload: i,
			Ctx:     ctx,
			Fn: func(_ context.Context, n int) error {
				if n == 0 {
					return errors.New("boom")
				}
				atomic.AddInt32(&ok, 1)
				return nil
			},
		})
	}
	pool.Wait()
	pool.Wait()

	assert.Equal(t, int32(3), ok)
}
