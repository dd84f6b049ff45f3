/*
Package replication keeps the durable store in step with the in-memory state.

PURPOSE:
  Catalog and ledger mutations happen in memory first and are reported as
  whole-entity changes. The Worker writes them to a pos.Store in the order
  they happened without making the caller wait for I/O. The Poller does
  the reverse: it re-reads the store so writes from other devices become
  visible, then re-runs shift repair.

FAILURE MODEL:
  Writes are fire-and-forget for the caller; the in-memory state is never
  rolled back. The worker keeps the latest change of every entity whose
  write is queued, in flight or failed (the outbox). The poller overlays
  the outbox on each loaded snapshot so unstored local values win, then
  asks the worker to retry the failed ones.

SEE ALSO:
  - poller.go: Snapshot polling
  - pos/store.go: Store contract
*/
package replication

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warp/cashdrawer/pos"
)

// DefaultQueueSize is the change buffer used when none is given.
const DefaultQueueSize = 1024

type Stats struct {
	Applied int64 `json:"applied"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
	Retried int64 `json:"retried"`
}

type entityKey struct {
	kind pos.Kind
	id   string
}

// queued is a change stamped with its enqueue sequence.
type queued struct {
	change pos.Change
	seq    uint64
}

// unsaved is the latest change of an entity that is not in the store yet.
type unsaved struct {
	queued
	failed bool
}

type Worker struct {
	store    pos.Store
	changeCh chan queued
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	// mu guards stopped, seq, version and outbox. Sends on changeCh happen
	// with mu held so none can follow Shutdown.
	mu      sync.Mutex
	stopped bool
	seq     uint64
	version uint64
	outbox  map[entityKey]unsaved

	pending atomic.Int64
	applied atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
	retried atomic.Int64
}

func NewWorker(store pos.Store, bufferSize int) *Worker {
	if bufferSize <= 0 {
		bufferSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		store:    store,
		changeCh: make(chan queued, bufferSize),
		ctx:      ctx,
		cancel:   cancel,
		outbox:   make(map[entityKey]unsaved),
	}
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.ctx.Done():
				slog.Info("draining changes before shutdown", "remaining_changes", len(w.changeCh))
				for len(w.changeCh) > 0 {
					w.apply(context.Background(), <-w.changeCh)
				}
				return
			case q := <-w.changeCh:
				w.apply(w.ctx, q)
			}
		}
	}()
}

func (w *Worker) apply(ctx context.Context, q queued) {
	defer w.pending.Add(-1)
	err := w.store.Apply(ctx, q.change)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.version++
	key := entityKey{q.change.Kind, q.change.ID}
	latest, tracked := w.outbox[key]
	if err != nil {
		w.failed.Add(1)
		slog.Error("failed to persist change", "error", err, "op", q.change.Op, "kind", q.change.Kind, "id", q.change.ID)
		if tracked && latest.seq == q.seq {
			latest.failed = true
			w.outbox[key] = latest
		}
		return
	}
	w.applied.Add(1)
	// a newer change of the same entity is still queued
	if tracked && latest.seq == q.seq {
		delete(w.outbox, key)
	}
}

// Enqueue hands a change to the worker. It never blocks: when the buffer is
// full or the worker is shut down the change is dropped and logged. A change
// dropped for a full buffer stays in the outbox and is retried.
// Enqueue has the pos.Listener signature.
func (w *Worker) Enqueue(c pos.Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enqueueLocked(c)
}

func (w *Worker) enqueueLocked(c pos.Change) bool {
	if w.stopped {
		w.dropped.Add(1)
		slog.Warn("worker stopped, dropping change", "op", c.Op, "kind", c.Kind, "id", c.ID)
		return false
	}
	w.seq++
	w.version++
	q := queued{change: c, seq: w.seq}
	key := entityKey{c.Kind, c.ID}

	w.pending.Add(1)
	select {
	case w.changeCh <- q:
		w.outbox[key] = unsaved{queued: q}
		return true
	default:
		w.pending.Add(-1)
		w.dropped.Add(1)
		w.outbox[key] = unsaved{queued: q, failed: true}
		slog.Warn("change channel full, dropping change", "op", c.Op, "kind", c.Kind, "id", c.ID)
		return false
	}
}

// Retry re-queues the latest change of every entity whose write failed.
// It returns how many were queued.
func (w *Worker) Retry() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	var failed []queued
	for _, u := range w.outbox {
		if u.failed {
			failed = append(failed, u.queued)
		}
	}
	// original mutation order
	sort.Slice(failed, func(i, j int) bool { return failed[i].seq < failed[j].seq })

	n := 0
	for _, q := range failed {
		if w.enqueueLocked(q.change) {
			n++
		}
	}
	w.retried.Add(int64(n))
	return n
}

// Outbox returns the latest change of every entity not yet stored, in
// mutation order.
func (w *Worker) Outbox() []pos.Change {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.outboxLocked()
}

func (w *Worker) outboxLocked() []pos.Change {
	all := make([]queued, 0, len(w.outbox))
	for _, u := range w.outbox {
		all = append(all, u.queued)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	out := make([]pos.Change, len(all))
	for i, q := range all {
		out[i] = q.change
	}
	return out
}

// Version changes whenever a change is queued or a write finishes.
func (w *Worker) Version() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version
}

// Unsaved returns the outbox if the version still equals v.
func (w *Worker) Unsaved(v uint64) ([]pos.Change, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.version != v {
		return nil, false
	}
	return w.outboxLocked(), true
}

// Pending is the number of accepted changes not yet written.
func (w *Worker) Pending() int {
	return int(w.pending.Load())
}

func (w *Worker) Stats() Stats {
	return Stats{Applied: w.applied.Load(), Failed: w.failed.Load(), Dropped: w.dropped.Load(), Retried: w.retried.Load()}
}

// Flush waits until every accepted change has been written or ctx ends.
func (w *Worker) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for w.Pending() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Shutdown stops accepting changes and writes out what is buffered.
func (w *Worker) Shutdown() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cancel()
	w.wg.Wait()
}
