// package tasks provides the scheduling primitives of the synchronization engine: a bounded fire-and-forget worker
// pool, a one-shot debounce timer and a non-blocking update stream.
package tasks

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/shared"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	defaultWorkers   = 8
	defaultRateLimit = 10.0
	backlogFactor    = 32
)

// PoolOpts configures a [Pool].
type PoolOpts struct {
	MaxConcurrent int     // Tasks running at once (default: 8)
	RateLimit     float64 // Tasks started per second (default: 10, negative disables)
	MaxBacklog    int     // Tasks waiting for a slot before new ones are rejected (default: 32 * MaxConcurrent)
}

// Pool runs fire-and-forget tasks with a cap on concurrency, start rate and backlog.
//
// Callers never block: [Pool.Go] spawns the task and returns. The task waits for a semaphore slot and a rate
// limiter token before running.
type Pool struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	backlog int64
	queued  atomic.Int64
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex // guards closed and wg.Add against Close
	closed  bool
	logger  *log.Logger
}

// NewPool creates a pool. A nil logger writes to stderr.
func NewPool(opts PoolOpts, logger *log.Logger) *Pool {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultWorkers
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.MaxBacklog <= 0 {
		opts.MaxBacklog = backlogFactor * opts.MaxConcurrent
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	limit := rate.Limit(opts.RateLimit)
	if opts.RateLimit < 0 {
		limit = rate.Inf
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:     semaphore.NewWeighted(int64(opts.MaxConcurrent)),
		limiter: rate.NewLimiter(limit, opts.MaxConcurrent),
		backlog: int64(opts.MaxBacklog),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With("component", "pool"),
	}
}

// Go schedules fn. It returns false, without running fn, when the pool is closed or the backlog is full.
func (p *Pool) Go(fn func(ctx context.Context)) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	if p.queued.Add(1) > p.backlog {
		p.queued.Add(-1)
		p.mu.Unlock()
		p.logger.Warn("backlog full, task rejected", "backlog", p.backlog)
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.queued.Add(-1)

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)

		if err := p.limiter.Wait(p.ctx); err != nil || p.ctx.Err() != nil {
			return
		}
		fn(p.ctx)
	}()
	return true
}

// Pending returns the number of scheduled tasks that have not finished.
func (p *Pool) Pending() int {
	return int(p.queued.Load())
}

// Wait blocks until every scheduled task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops accepting tasks, drops the ones still waiting for a slot and waits for running ones.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
