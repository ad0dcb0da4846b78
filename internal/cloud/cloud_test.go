package cloud

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/shared"
	"github.com/desertthunder/playsync/internal/tasks"
)

const waitTimeout = 2 * time.Second

func testLogger() *log.Logger {
	return shared.NewLogger(io.Discard)
}

func testPool(t *testing.T) *tasks.Pool {
	t.Helper()
	p := tasks.NewPool(tasks.PoolOpts{MaxConcurrent: 4, RateLimit: -1}, testLogger())
	t.Cleanup(p.Close)
	return p
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// opRecorder is an [Enqueuer] that keeps every operation.
type opRecorder struct {
	mu  sync.Mutex
	ops []*models.SyncOperation
}

func (r *opRecorder) Enqueue(op *models.SyncOperation) {
	r.mu.Lock()
	r.ops = append(r.ops, op)
	r.mu.Unlock()
}

func (r *opRecorder) all() []*models.SyncOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.SyncOperation(nil), r.ops...)
}

func track(path, title string) models.Track {
	return models.Track{Path: path, Title: title}
}

func paths(tracks []models.Track) []string {
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, t.Path)
	}
	return out
}
