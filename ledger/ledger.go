/*
Package ledger implements the cash shift and transaction ledger.

PURPOSE:
  The Ledger owns Shift, Sale, Expense and Return records. It opens and
  closes cash drawer shifts, records sales and expenses against the open
  shift, keeps the running expected cash balance, repairs inconsistent
  histories and reconciles against the counted cash at close.

CRITICAL INVARIANTS:
  1. SINGLE OPEN: at most one shift is OPEN after every successful operation
  2. BALANCE: while open, endCashExpected == startCash
                + Σ cash sales on the shift
                − Σ expenses on the shift
                − Σ cash refunds processed on the shift
  3. IMMUTABLE SALES: totals and line snapshots never change after recording
  4. NO PARTIAL MUTATION: a failed operation leaves state untouched

CONCURRENCY:
  One mutex serializes every operation. There is a single contended
  resource (the open shift's balance) so a finer lock buys nothing. Reads
  take the read lock.

PERSISTENCE:
  The in-memory state is the source of truth for the running session.
  Every mutation is reported to listeners as whole-entity changes, in the
  order they happen; replication/ writes them to durable storage without
  blocking the caller.

SEE ALSO:
  - shift.go:   Open / close / active shift
  - sale.go:    Sale recording and stock interaction
  - expense.go: Expense ledger
  - returns.go: Return workflow
  - repair.go:  Multi-open shift repair
  - reports.go: Read-only accessors for reporting
*/
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/cashdrawer/pos"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Catalog is the part of the catalog store the ledger consumes.
type Catalog interface {
	FindVariant(id pos.VariantID) (pos.Variant, bool)
	FindProduct(id pos.ProductID) (pos.Product, bool)
	AdjustStock(id pos.VariantID, delta int) error
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// ExpensePolicy decides whether an expense may exceed the expected cash.
type ExpensePolicy string

const (
	// ExpenseCapAtExpected rejects expenses (and cash refunds) larger than
	// the current expected cash with InsufficientFundsError.
	ExpenseCapAtExpected ExpensePolicy = "cap"
	// ExpenseAllowOverdraft lets the expected cash go negative.
	ExpenseAllowOverdraft ExpensePolicy = "allow"
)

// ClosePolicy decides what happens to unusable counted-cash input.
type ClosePolicy string

const (
	// CloseCoerce treats non-numeric or negative counted cash as zero so
	// the cashier is never blocked from closing.
	CloseCoerce ClosePolicy = "coerce"
	// CloseStrict rejects it with ValidationError.
	CloseStrict ClosePolicy = "strict"
)

type Config struct {
	ExpensePolicy ExpensePolicy
	ClosePolicy   ClosePolicy
}

func DefaultConfig() Config {
	return Config{ExpensePolicy: ExpenseCapAtExpected, ClosePolicy: CloseCoerce}
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDs replaces the uuid generator.
func WithIDs(next func() string) Option {
	return func(l *Ledger) { l.newID = next }
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	mu      sync.RWMutex
	cfg     Config
	catalog Catalog
	now     func() time.Time
	newID   func() string

	shifts   map[pos.ShiftID]pos.Shift
	sales    map[pos.SaleID]pos.Sale
	expenses map[pos.ExpenseID]pos.Expense
	returns  map[pos.ReturnID]pos.Return

	listeners []pos.Listener
}

func New(catalog Catalog, cfg Config, opts ...Option) *Ledger {
	if cfg.ExpensePolicy == "" {
		cfg.ExpensePolicy = ExpenseCapAtExpected
	}
	if cfg.ClosePolicy == "" {
		cfg.ClosePolicy = CloseCoerce
	}
	l := &Ledger{
		cfg:      cfg,
		catalog:  catalog,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		shifts:   make(map[pos.ShiftID]pos.Shift),
		sales:    make(map[pos.SaleID]pos.Sale),
		expenses: make(map[pos.ExpenseID]pos.Expense),
		returns:  make(map[pos.ReturnID]pos.Return),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) Config() Config { return l.cfg }

// Subscribe registers a listener for every later change.
func (l *Ledger) Subscribe(fn pos.Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

func (l *Ledger) emitLocked(changes ...pos.Change) {
	for _, c := range changes {
		for _, fn := range l.listeners {
			fn(c)
		}
	}
}

// =============================================================================
// BULK STATE
// =============================================================================

// Replace swaps in the ledger part of a snapshot, then runs shift repair.
// Only the repair's own writes are emitted. It returns how many shifts the
// repair force-closed.
func (l *Ledger) Replace(s pos.Snapshot) int {
	n, _ := l.Swap(func() (pos.Snapshot, bool) { return s, true })
	return n
}

// Swap is Replace with the snapshot produced by install. install runs with
// the ledger locked, so no sale, expense or return lands between building
// the snapshot and installing it; the poller swaps the catalog from inside
// it. Nothing changes when install reports false.
func (l *Ledger) Swap(install func() (pos.Snapshot, bool)) (repaired int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := install()
	if !ok {
		return 0, false
	}
	l.replaceLocked(s)
	changes := l.repairLocked()
	l.emitLocked(changes...)
	return len(changes), true
}

// Restore swaps in the ledger part of a snapshot, runs shift repair and
// re-emits every record. Used by backup import.
func (l *Ledger) Restore(s pos.Snapshot) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.replaceLocked(s)
	repaired := l.repairLocked()
	l.emitLocked(l.snapshotLocked().Changes()...)
	return len(repaired)
}

func (l *Ledger) replaceLocked(s pos.Snapshot) {
	l.shifts = make(map[pos.ShiftID]pos.Shift, len(s.Shifts))
	for _, sh := range s.Shifts {
		l.shifts[sh.ID] = sh.Clone()
	}
	l.sales = make(map[pos.SaleID]pos.Sale, len(s.Sales))
	for _, sa := range s.Sales {
		l.sales[sa.ID] = sa.Clone()
	}
	l.expenses = make(map[pos.ExpenseID]pos.Expense, len(s.Expenses))
	for _, e := range s.Expenses {
		l.expenses[e.ID] = e
	}
	l.returns = make(map[pos.ReturnID]pos.Return, len(s.Returns))
	for _, r := range s.Returns {
		l.returns[r.ID] = r.Clone()
	}
}

// Snapshot returns a copy of the ledger collections (catalog fields empty).
func (l *Ledger) Snapshot() pos.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() pos.Snapshot {
	return pos.Snapshot{
		Shifts:   l.sortedShiftsLocked(),
		Sales:    l.sortedSalesLocked(),
		Expenses: l.sortedExpensesLocked(),
		Returns:  l.sortedReturnsLocked(),
	}
}
