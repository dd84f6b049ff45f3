/*
poller.go - Durable store snapshot poller

PURPOSE:
  Several tills may share one durable store. The poller periodically
  re-reads the full snapshot and swaps it into the catalog and ledger,
  which re-runs multi-open shift repair on every load.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - The worker's outbox (queued, in-flight and failed writes) is laid over
    the snapshot, so a local value that is not stored yet always wins
  - The swap runs with the ledger, the catalog and then every extra
    collection (customers, discounts) locked, and is
    abandoned when the worker's version moved since the load started: a
    write finished or a mutation landed, so the snapshot may be stale
  - After a swap, failed writes are queued again
  - Sync() is also called once at startup to load initial state

USAGE:
  poller := NewPoller(store, catalog, ledger, worker)
  poller.Interval = 30 * time.Second
  poller.Start()
  // ... later
  poller.Stop()
*/
package replication

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warp/cashdrawer/pos"
)

// CatalogState is swapped wholesale on every poll. The customer and
// discount books satisfy it too.
type CatalogState interface {
	Swap(install func() (pos.Snapshot, bool)) bool
}

// LedgerState is swapped wholesale on every poll; Swap runs repair.
type LedgerState interface {
	Swap(install func() (pos.Snapshot, bool)) (int, bool)
}

// Backlog tracks local writes not yet in the store.
type Backlog interface {
	// Version changes whenever a write is queued or finishes.
	Version() uint64
	// Unsaved returns the latest change of every unstored entity, unless
	// the version moved away from v.
	Unsaved(v uint64) ([]pos.Change, bool)
	// Retry queues failed writes again.
	Retry() int
}

// SyncResult describes one poll.
type SyncResult struct {
	Skipped  bool
	Records  int
	Unsaved  int
	Repaired int
	Retried  int
}

type Poller struct {
	Store    pos.Store
	Catalog  CatalogState
	Ledger   LedgerState
	Backlog  Backlog
	// Collections are swapped after the catalog, inside its lock.
	Collections []CatalogState
	Interval    time.Duration
	Enabled     bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	syncMu sync.Mutex
}

// NewPoller creates a poller with a 30 second interval. backlog may be nil.
func NewPoller(store pos.Store, catalog CatalogState, ledger LedgerState, backlog Backlog) *Poller {
	return &Poller{
		Store:    store,
		Catalog:  catalog,
		Ledger:   ledger,
		Backlog:  backlog,
		Interval: 30 * time.Second,
		Enabled:  true,
	}
}

func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.Enabled || p.Interval <= 0 {
		log.Println("[Poller] Disabled, not starting")
		return
	}
	if p.ticker != nil {
		return
	}

	p.ticker = time.NewTicker(p.Interval)
	p.stop = make(chan struct{})
	p.wg.Add(1)
	go p.run()

	log.Printf("[Poller] Started with interval: %v", p.Interval)
}

func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ticker != nil {
		p.ticker.Stop()
		close(p.stop)
		p.wg.Wait()
		p.ticker = nil
		log.Println("[Poller] Stopped")
	}
}

func (p *Poller) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ticker.C:
			if _, err := p.Sync(context.Background()); err != nil {
				log.Printf("[Poller] Error: %v", err)
			}
		case <-p.stop:
			return
		}
	}
}

// Sync loads the store's snapshot, lays the unsaved local changes over it
// and replaces the in-memory state with the result.
func (p *Poller) Sync(ctx context.Context) (SyncResult, error) {
	p.syncMu.Lock()
	defer p.syncMu.Unlock()

	var version uint64
	if p.Backlog != nil {
		version = p.Backlog.Version()
	}
	snap, err := p.Store.Load(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("loading snapshot: %w", err)
	}

	var res SyncResult
	var merged pos.Snapshot
	install := func() (pos.Snapshot, bool) {
		if p.Backlog == nil {
			merged = snap
			return merged, true
		}
		unsaved, ok := p.Backlog.Unsaved(version)
		if !ok {
			return pos.Snapshot{}, false
		}
		res.Unsaved = len(unsaved)
		merged = snap.Overlay(unsaved...)
		return merged, true
	}

	chain := install
	for i := len(p.Collections) - 1; i >= 0; i-- {
		c, next := p.Collections[i], chain
		chain = func() (pos.Snapshot, bool) {
			if !c.Swap(next) {
				return pos.Snapshot{}, false
			}
			return merged, true
		}
	}

	repaired, ok := p.Ledger.Swap(func() (pos.Snapshot, bool) {
		if !p.Catalog.Swap(chain) {
			return pos.Snapshot{}, false
		}
		return merged, true
	})
	if !ok {
		return SyncResult{Skipped: true}, nil
	}

	res.Records = len(merged.Changes())
	res.Repaired = repaired
	if repaired > 0 {
		log.Printf("[Poller] Repaired %d shifts after load", repaired)
	}
	if p.Backlog != nil {
		res.Retried = p.Backlog.Retry()
		if res.Retried > 0 {
			log.Printf("[Poller] Retrying %d failed writes", res.Retried)
		}
	}
	return res, nil
}
