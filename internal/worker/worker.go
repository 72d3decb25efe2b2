// Package worker implements the bounded task pool for the content phase.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Worker-count bounds. Content fetching fans out one task per record; an
// unbounded launch would open one connection per record at once.
const (
	MinWorkers     = 8
	MaxWorkers     = 32
	DefaultWorkers = 16
)

// Clamp normalizes a configured worker count into the supported range.
// Zero or negative picks the default.
func Clamp(n int) int {
	switch {
	case n <= 0:
		return DefaultWorkers
	case n < MinWorkers:
		return MinWorkers
	case n > MaxWorkers:
		return MaxWorkers
	default:
		return n
	}
}

// Pool runs submitted tasks on a fixed set of goroutines. Submit blocks when
// the queue is full, so producers feel backpressure instead of growing an
// unbounded backlog. Once submitted, a task always runs: workers drain the
// queue on shutdown rather than abandoning accepted work.
type Pool struct {
	workers int
	tasks   chan func()
	wg      sync.WaitGroup
	logger  *zap.Logger

	closeOnce sync.Once
}

// NewPool starts a pool with the clamped worker count.
func NewPool(workers int, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers = Clamp(workers)
	p := &Pool{
		workers: workers,
		tasks:   make(chan func(), workers),
		logger:  logger,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.run()
	}
	logger.Debug("worker pool started", zap.Int("workers", workers))
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

// Submit queues one task, blocking while the queue is full. It returns the
// context's error if the caller gives up before the task is accepted.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and blocks until every accepted task has run.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
	})
	p.wg.Wait()
}

// Workers reports the pool size after clamping.
func (p *Pool) Workers() int { return p.workers }
