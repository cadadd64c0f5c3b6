package workerpool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/andrej220/octahe/internal/lg"
)

// TotalMaxWorkers is the pool size used when none is given. It is also the
// default connection quota of a deployment.
const TotalMaxWorkers = 10

type JobFunc[T any] func(context.Context, T) error

type Job[T any] struct {
	Payload     T
	Fn          JobFunc[T]
	Ctx         context.Context
	CleanupFunc func()
}

// Pool runs submitted jobs on a fixed number of workers. At most maxWorkers
// jobs execute at any time. Wait closes the queue and blocks until every
// submitted job has returned.
type Pool[T any] struct {
	Jobs          chan Job[T]
	activeWorkers int32
	wg            sync.WaitGroup
	closeOnce     sync.Once
	maxWorkers    int
}

func NewPool[T any](maxWorkers int) *Pool[T] {
	if maxWorkers <= 0 {
		maxWorkers = TotalMaxWorkers
	}
	pool := &Pool[T]{
		Jobs:       make(chan Job[T], maxWorkers),
		maxWorkers: maxWorkers,
	}
	pool.wg.Add(maxWorkers)
	for range maxWorkers {
		go pool.worker()
	}
	return pool
}

// Submit queues a job, blocking while every worker is busy and the queue is
// full. Submit must not be called after Wait.
func (p *Pool[T]) Submit(job Job[T]) {
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}
	lg.FromContext(job.Ctx).Debug("Job submitted", lg.Any("job", job.Payload))
	p.Jobs <- job
}

// Wait closes the queue and waits for the workers to drain it.
func (p *Pool[T]) Wait() {
	p.closeOnce.Do(func() { close(p.Jobs) })
	p.wg.Wait()
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for job := range p.Jobs {
		p.run(job)
	}
}

func (p *Pool[T]) run(job Job[T]) {
	defer func() {
		if job.CleanupFunc != nil {
			job.CleanupFunc()
		}
	}()
	logger := lg.FromContext(job.Ctx).With(lg.Any("job", job.Payload))

	if err := job.Ctx.Err(); err != nil {
		logger.Info("Job canceled before start", lg.Err(err))
		return
	}

	active := atomic.AddInt32(&p.activeWorkers, 1)
	defer atomic.AddInt32(&p.activeWorkers, -1)
	logger.Debug("Worker started", lg.Int32("workers", active))

	if err := job.Fn(job.Ctx, job.Payload); err != nil {
		logger.Warn("Worker error", lg.Err(err))
		return
	}
	logger.Debug("Worker finished")
}

func (p *Pool[T]) ActiveWorkers() int32 {
	return atomic.LoadInt32(&p.activeWorkers)
}

func (p *Pool[T]) MaxWorkers() int {
	return p.maxWorkers
}
