package cloud

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/playsync/internal/models"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/tasks"
)

// CreatedFunc receives the response of a successful create and returns the cloud id it assigned, 0 if none.
type CreatedFunc func(op *models.SyncOperation, resp *services.Response) uint

// OutgoingBuffer coalesces local mutations into a debounced batch of operations.
//
// Failed operations are logged and dropped; the buffer never requeues them. Changes to an object whose create
// is in flight wait for its cloud id and are queued once it is known, or dropped with the create.
type OutgoingBuffer struct {
	mu        sync.Mutex
	ops       []*models.SyncOperation
	awaiting  map[string][]*models.SyncOperation
	stopped   bool
	debounce  *tasks.Debouncer
	client    services.SignedRequestClient
	pool      *tasks.Pool
	onCreated CreatedFunc
	events    chan<- tasks.Update
	logger    *log.Logger
}

// NewOutgoingBuffer creates a buffer that flushes delay after the last enqueue.
func NewOutgoingBuffer(client services.SignedRequestClient, pool *tasks.Pool, delay time.Duration, logger *log.Logger) *OutgoingBuffer {
	b := &OutgoingBuffer{
		awaiting: make(map[string][]*models.SyncOperation),
		client:   client,
		pool:     pool,
		logger:   logger.With("component", "buffer"),
	}
	b.debounce = tasks.NewDebouncer(delay, func() { b.Flush() })
	return b
}

// OnCreated registers the handler of successful create responses. Must be called before the first flush.
func (b *OutgoingBuffer) OnCreated(fn CreatedFunc) {
	b.onCreated = fn
}

func (b *OutgoingBuffer) notify(u tasks.Update) {
	tasks.Notify(b.events, u)
}

// Enqueue adds op to the batch and restarts the flush timer.
//
//   - An update of an object that already has a pending update is merged into it, field by field.
//   - A change to an object without a cloud id is merged into the pending create with the same Ref.
//   - A delete drops every pending operation on the same object; a delete of an object that never
//     reached the server is not sent at all.
//   - A change to an object whose create is in flight is held until the create resolves.
func (b *OutgoingBuffer) Enqueue(op *models.SyncOperation) {
	if op == nil {
		return
	}
	if op.Params == nil {
		op.Params = models.NewParams()
	}

	b.mu.Lock()
	queued := b.enqueueLocked(op)
	b.mu.Unlock()

	if queued {
		b.debounce.Reset()
	}
}

func awaitKey(objectType, ref string) string {
	return objectType + "/" + ref
}

func (b *OutgoingBuffer) enqueueLocked(op *models.SyncOperation) bool {
	if op.Ref != "" {
		key := awaitKey(op.ObjectType, op.Ref)
		if held, ok := b.awaiting[key]; ok {
			if op.Command == models.CommandDelete {
				held = held[:0]
			}
			b.awaiting[key] = append(held, op)
			return false
		}
	}

	if op.Command == models.CommandDelete {
		before := len(b.ops)
		b.dropLocked(op)
		if op.ObjectID == 0 {
			b.logger.Debug("delete of unsynchronized object", "op", op, "ref", op.Ref, "dropped", before-len(b.ops))
			return false
		}
		b.ops = append(b.ops, op)
		return true
	}

	if op.ObjectID == 0 && op.Ref != "" {
		for _, pending := range b.ops {
			if pending.Command == models.CommandCreate && pending.ObjectType == op.ObjectType && pending.Ref == op.Ref {
				pending.Params.Merge(op.Params)
				return true
			}
		}
		if op.Command == models.CommandUpdate {
			b.logger.Warn("update of object without cloud id dropped", "op", op, "ref", op.Ref)
			return false
		}
	}

	if op.Command == models.CommandUpdate {
		for _, pending := range b.ops {
			if pending.Coalesces(op) {
				pending.Params.Merge(op.Params)
				return true
			}
		}
	}

	b.ops = append(b.ops, op)
	return true
}

func (b *OutgoingBuffer) dropLocked(del *models.SyncOperation) {
	kept := b.ops[:0]
	for _, pending := range b.ops {
		same := pending.ObjectType == del.ObjectType &&
			((del.ObjectID != 0 && pending.ObjectID == del.ObjectID) || (del.Ref != "" && pending.Ref == del.Ref))
		if !same {
			kept = append(kept, pending)
		}
	}
	for i := len(kept); i < len(b.ops); i++ {
		b.ops[i] = nil
	}
	b.ops = kept
}

// Pending returns copies of the buffered operations in insertion order.
func (b *OutgoingBuffer) Pending() []models.SyncOperation {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.SyncOperation, 0, len(b.ops))
	for _, op := range b.ops {
		c := *op
		c.Params = op.Params.Clone()
		out = append(out, c)
	}
	return out
}

// Len returns the number of buffered operations.
func (b *OutgoingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ops)
}

// Flush swaps the batch for an empty one and dispatches every operation in insertion order.
// It returns the number of operations dispatched; an empty batch issues nothing.
func (b *OutgoingBuffer) Flush() int {
	b.mu.Lock()
	batch := b.ops
	b.ops = nil
	for _, op := range batch {
		if op.Command == models.CommandCreate && op.Ref != "" {
			b.awaiting[awaitKey(op.ObjectType, op.Ref)] = nil
		}
	}
	b.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}

	b.logger.Debug("flushing", "operations", len(batch))
	b.notify(tasks.NewUpdate(tasks.KindFlush, "flushing %d operation(s)", len(batch)))

	for _, op := range batch {
		req, err := encodeOperation(op)
		if err != nil {
			b.logger.Warn("operation dropped", "op", op, "error", err)
			b.resolve(op, 0)
			continue
		}
		if !b.pool.Go(func(ctx context.Context) { b.send(ctx, op, req) }) {
			b.logger.Warn("operation dropped, pool unavailable", "op", op)
			b.resolve(op, 0)
		}
	}
	return len(batch)
}

func (b *OutgoingBuffer) send(ctx context.Context, op *models.SyncOperation, req *services.Request) {
	resp, err := services.Call(ctx, b.client, req, expectedStatus(op.Command)...)
	if err != nil {
		b.logger.Warn("sync failed", "op", op, "error", err)
		b.notify(tasks.NewUpdate(tasks.KindFlush, "%s failed", op).WithErr(err))
		b.resolve(op, 0)
		return
	}

	b.logger.Debug("synced", "op", op, "status", resp.StatusCode)
	if op.Command != models.CommandCreate {
		return
	}
	var id uint
	if b.onCreated != nil {
		id = b.onCreated(op, resp)
	}
	b.resolve(op, id)
}

// resolve releases the changes held behind an in-flight create. With a cloud id they are stamped and queued,
// without one they are dropped.
func (b *OutgoingBuffer) resolve(op *models.SyncOperation, id uint) {
	if op.Command != models.CommandCreate || op.Ref == "" {
		return
	}

	key := awaitKey(op.ObjectType, op.Ref)
	b.mu.Lock()
	held, ok := b.awaiting[key]
	delete(b.awaiting, key)
	queued := false
	if id != 0 {
		for _, h := range held {
			if h.ObjectID == 0 {
				h.ObjectID = id
			}
			if b.enqueueLocked(h) {
				queued = true
			}
		}
	}
	stopped := b.stopped
	b.mu.Unlock()

	if !ok {
		return
	}
	if id == 0 && len(held) > 0 {
		b.logger.Warn("changes to unsynchronized object dropped", "ref", op.Ref, "dropped", len(held))
		return
	}
	if !queued {
		return
	}
	if stopped {
		b.Flush()
		return
	}
	b.debounce.Reset()
}

// Stop cancels the flush timer and flushes what is left. Changes released by creates still in flight are
// flushed as soon as they resolve.
func (b *OutgoingBuffer) Stop() int {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()

	b.debounce.Stop()
	return b.Flush()
}

// Held returns the number of changes waiting for an in-flight create.
func (b *OutgoingBuffer) Held() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, held := range b.awaiting {
		n += len(held)
	}
	return n
}
