// Package store provides pos.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/cashdrawer/pos"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	records map[pos.Kind]map[string]any
	applied int
	fail    error
}

func NewMemory() *Memory {
	m := &Memory{records: make(map[pos.Kind]map[string]any)}
	for _, k := range pos.Kinds {
		m.records[k] = make(map[string]any)
	}
	return m
}

// Apply writes all changes or none.
func (m *Memory) Apply(_ context.Context, changes ...pos.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return m.fail
	}
	for _, c := range changes {
		if _, ok := m.records[c.Kind]; !ok {
			return fmt.Errorf("unknown collection %q", c.Kind)
		}
	}
	for _, c := range changes {
		switch c.Op {
		case pos.OpDelete:
			delete(m.records[c.Kind], c.ID)
		default:
			m.records[c.Kind][c.ID] = c.Entity
		}
		m.applied++
	}
	return nil
}

// SetFailure makes every later Apply fail with err without writing.
// Pass nil to recover.
func (m *Memory) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Load returns every record, each collection sorted by id.
func (m *Memory) Load(_ context.Context) (pos.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var snap pos.Snapshot
	for _, id := range m.sortedIDs(pos.KindProduct) {
		snap.Products = append(snap.Products, m.records[pos.KindProduct][id].(pos.Product))
	}
	for _, id := range m.sortedIDs(pos.KindVariant) {
		snap.Variants = append(snap.Variants, m.records[pos.KindVariant][id].(pos.Variant))
	}
	for _, id := range m.sortedIDs(pos.KindShift) {
		snap.Shifts = append(snap.Shifts, m.records[pos.KindShift][id].(pos.Shift).Clone())
	}
	for _, id := range m.sortedIDs(pos.KindSale) {
		snap.Sales = append(snap.Sales, m.records[pos.KindSale][id].(pos.Sale).Clone())
	}
	for _, id := range m.sortedIDs(pos.KindExpense) {
		snap.Expenses = append(snap.Expenses, m.records[pos.KindExpense][id].(pos.Expense))
	}
	for _, id := range m.sortedIDs(pos.KindReturn) {
		snap.Returns = append(snap.Returns, m.records[pos.KindReturn][id].(pos.Return).Clone())
	}
	for _, id := range m.sortedIDs(pos.KindCustomer) {
		snap.Customers = append(snap.Customers, m.records[pos.KindCustomer][id].(pos.Customer).Clone())
	}
	for _, id := range m.sortedIDs(pos.KindDiscount) {
		snap.Discounts = append(snap.Discounts, m.records[pos.KindDiscount][id].(pos.Discount).Clone())
	}
	return snap, nil
}

func (m *Memory) sortedIDs(k pos.Kind) []string {
	ids := make([]string, 0, len(m.records[k]))
	for id := range m.records[k] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get returns one record, for assertions in tests.
func (m *Memory) Get(k pos.Kind, id string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.records[k][id]
	return v, ok
}

// Count returns the number of records in a collection.
func (m *Memory) Count(k pos.Kind) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records[k])
}

// Applied returns how many changes were written in total.
func (m *Memory) Applied() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.applied
}

func (m *Memory) Close() error { return nil }
