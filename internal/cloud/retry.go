package cloud

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/desertthunder/playsync/internal/tasks"
)

// DefaultRetrySteps is the backoff schedule of the [RetryScheduler].
var DefaultRetrySteps = []time.Duration{10 * time.Second, 30 * time.Second, time.Minute, 3 * time.Minute, 5 * time.Minute}

// RetryScheduler replays requests that failed at the transport level with an escalating backoff.
//
// The step index is -1 while idle. The first failure arms steps[0]; every round replays the whole buffer
// concurrently, then either resets to idle (buffer empty) or advances the step, clamped to the last one.
type RetryScheduler struct {
	mu     sync.Mutex
	items  map[string]*models.RetryItem
	step   int
	steps  []time.Duration
	timer  *tasks.Debouncer
	client services.SignedRequestClient
	pool   *tasks.Pool
	events chan<- tasks.Update
	logger *log.Logger
}

// NewRetryScheduler creates an idle scheduler. Empty steps fall back to [DefaultRetrySteps].
func NewRetryScheduler(client services.SignedRequestClient, pool *tasks.Pool, steps []time.Duration, logger *log.Logger) *RetryScheduler {
	if len(steps) == 0 {
		steps = DefaultRetrySteps
	}
	r := &RetryScheduler{
		items:  map[string]*models.RetryItem{},
		step:   -1,
		steps:  steps,
		client: client,
		pool:   pool,
		logger: logger.With("component", "retry"),
	}
	r.timer = tasks.NewDebouncer(steps[0], r.round)
	return r
}

// Add buffers item, replacing any item with the same key, and arms the first step when idle.
func (r *RetryScheduler) Add(item *models.RetryItem) {
	if item.Key == "" {
		item.Key = models.RetryKey(item.Method, item.Path, item.Query)
	}

	r.mu.Lock()
	r.items[item.Key] = item
	arm := r.step == -1
	if arm {
		r.step = 0
	}
	r.mu.Unlock()

	if arm {
		r.logger.Info("scheduling retry", "in", r.steps[0], "request", item.Key)
		r.timer.ResetAfter(r.steps[0])
	}
}

// Step returns the current backoff index, -1 when idle.
func (r *RetryScheduler) Step() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step
}

// Len returns the number of buffered items.
func (r *RetryScheduler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Stop disarms the timer. Buffered items are kept but no longer replayed.
func (r *RetryScheduler) Stop() {
	r.timer.Stop()
}

// round replays every buffered item and re-arms the timer.
func (r *RetryScheduler) round() {
	r.mu.Lock()
	batch := r.items
	r.items = map[string]*models.RetryItem{}
	r.mu.Unlock()

	r.logger.Info("replaying requests", "count", len(batch))
	tasks.Notify(r.events, tasks.NewUpdate(tasks.KindRetry, "replaying %d request(s)", len(batch)))

	var wg sync.WaitGroup
	for _, item := range batch {
		wg.Add(1)
		if !r.pool.Go(func(ctx context.Context) {
			defer wg.Done()
			r.replay(ctx, item)
		}) {
			wg.Done()
			r.requeue(item)
		}
	}
	wg.Wait()

	r.mu.Lock()
	remaining := len(r.items)
	if remaining == 0 {
		r.step = -1
	} else {
		r.step = min(r.step+1, len(r.steps)-1)
	}
	next := time.Duration(0)
	if r.step >= 0 {
		next = r.steps[r.step]
	}
	r.mu.Unlock()

	if remaining == 0 {
		r.logger.Info("retry buffer drained")
		return
	}
	r.logger.Info("scheduling retry", "in", next, "remaining", remaining)
	r.timer.ResetAfter(next)
}

func (r *RetryScheduler) requeue(item *models.RetryItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.Key]; !ok {
		r.items[item.Key] = item
	}
}

func (r *RetryScheduler) replay(ctx context.Context, item *models.RetryItem) {
	req := &services.Request{Method: item.Method, Path: item.Path, Query: item.Query}
	if item.Body != "" {
		req.Body = []byte(item.Body)
	}

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		if errors.Is(err, shared.ErrTransport) {
			r.requeue(item)
			return
		}
		r.logger.Warn("replay failed", "request", item.Key, "error", err)
		return
	}

	if item.OnResponse != nil {
		item.OnResponse(resp.StatusCode, resp.Body)
		return
	}
	r.logger.Debug("replayed", "request", item.Key, "status", resp.StatusCode)
}
