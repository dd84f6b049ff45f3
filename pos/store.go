/*
store.go - Persistence contract for the entity collections

PURPOSE:
  Defines the interface between the in-memory engine and durable storage.
  The in-memory state is authoritative for the running session; the Store
  is a best-effort replica written asynchronously (see replication/).

COLLECTIONS:
  products, variants, shifts, sales, expenses, returns, customers,
  discounts. Each record is keyed by its id.

WRITE CONTRACT:
  - Apply(): upsert-by-id or delete-by-id of whole entities
  - No partial or field-level updates
  - Last writer wins; there is no optimistic-lock field

READ CONTRACT:
  - Load(): full snapshot of every collection, used on startup and by the
    poller. Callers run shift repair after every Load.

IMPLEMENTATIONS:
  - pos/store/memory.go:        In-memory for tests
  - store/sqlite/sqlite.go:     Local file
  - store/postgres/postgres.go: Shared JSONB document tables
  - store/firestore/firestore.go: Cloud document store

SEE ALSO:
  - replication/worker.go: Applies changes asynchronously
*/
package pos

import (
	"context"
	"fmt"
	"slices"
)

// =============================================================================
// CHANGES
// =============================================================================

// Kind names an entity collection.
type Kind string

const (
	KindProduct  Kind = "products"
	KindVariant  Kind = "variants"
	KindShift    Kind = "shifts"
	KindSale     Kind = "sales"
	KindExpense  Kind = "expenses"
	KindReturn   Kind = "returns"
	KindCustomer Kind = "customers"
	KindDiscount Kind = "discounts"
)

// Kinds lists every collection in dependency order.
var Kinds = []Kind{KindProduct, KindVariant, KindShift, KindSale, KindExpense, KindReturn, KindCustomer, KindDiscount}

type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// Change is one whole-entity write. Entity is nil for deletes.
type Change struct {
	Op     Op
	Kind   Kind
	ID     string
	Entity any
}

// Upsert builds an upsert change for a supported entity value.
func Upsert(entity any) Change {
	switch e := entity.(type) {
	case Product:
		return Change{Op: OpUpsert, Kind: KindProduct, ID: string(e.ID), Entity: e}
	case Variant:
		return Change{Op: OpUpsert, Kind: KindVariant, ID: string(e.ID), Entity: e}
	case Shift:
		return Change{Op: OpUpsert, Kind: KindShift, ID: string(e.ID), Entity: e.Clone()}
	case Sale:
		return Change{Op: OpUpsert, Kind: KindSale, ID: string(e.ID), Entity: e.Clone()}
	case Expense:
		return Change{Op: OpUpsert, Kind: KindExpense, ID: string(e.ID), Entity: e}
	case Return:
		return Change{Op: OpUpsert, Kind: KindReturn, ID: string(e.ID), Entity: e.Clone()}
	case Customer:
		return Change{Op: OpUpsert, Kind: KindCustomer, ID: string(e.ID), Entity: e.Clone()}
	case Discount:
		return Change{Op: OpUpsert, Kind: KindDiscount, ID: string(e.ID), Entity: e.Clone()}
	}
	panic(fmt.Sprintf("pos: unsupported entity %T", entity))
}

// Delete builds a delete change.
func Delete(kind Kind, id string) Change {
	return Change{Op: OpDelete, Kind: kind, ID: id}
}

// Listener receives changes after they are applied in memory. Listeners are
// called with the owner's lock held and must not call back into it.
type Listener func(Change)

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the full entity set.
type Snapshot struct {
	Products  []Product
	Variants  []Variant
	Shifts    []Shift
	Sales     []Sale
	Expenses  []Expense
	Returns   []Return
	Customers []Customer
	Discounts []Discount
}

// Changes flattens the snapshot into upserts, in dependency order.
func (s Snapshot) Changes() []Change {
	out := make([]Change, 0, len(s.Products)+len(s.Variants)+len(s.Shifts)+len(s.Sales)+len(s.Expenses)+len(s.Returns)+len(s.Customers)+len(s.Discounts))
	for _, e := range s.Products {
		out = append(out, Upsert(e))
	}
	for _, e := range s.Variants {
		out = append(out, Upsert(e))
	}
	for _, e := range s.Shifts {
		out = append(out, Upsert(e))
	}
	for _, e := range s.Sales {
		out = append(out, Upsert(e))
	}
	for _, e := range s.Expenses {
		out = append(out, Upsert(e))
	}
	for _, e := range s.Returns {
		out = append(out, Upsert(e))
	}
	for _, e := range s.Customers {
		out = append(out, Upsert(e))
	}
	for _, e := range s.Discounts {
		out = append(out, Upsert(e))
	}
	return out
}

// Overlay returns a copy of the snapshot with the changes applied in order:
// upserts replace or add the record, deletes remove it.
func (s Snapshot) Overlay(changes ...Change) Snapshot {
	out := Snapshot{
		Products:  slices.Clone(s.Products),
		Variants:  slices.Clone(s.Variants),
		Shifts:    slices.Clone(s.Shifts),
		Sales:     slices.Clone(s.Sales),
		Expenses:  slices.Clone(s.Expenses),
		Returns:   slices.Clone(s.Returns),
		Customers: slices.Clone(s.Customers),
		Discounts: slices.Clone(s.Discounts),
	}
	for _, c := range changes {
		switch c.Kind {
		case KindProduct:
			out.Products = overlay(out.Products, c, func(e Product) string { return string(e.ID) })
		case KindVariant:
			out.Variants = overlay(out.Variants, c, func(e Variant) string { return string(e.ID) })
		case KindShift:
			out.Shifts = overlay(out.Shifts, c, func(e Shift) string { return string(e.ID) })
		case KindSale:
			out.Sales = overlay(out.Sales, c, func(e Sale) string { return string(e.ID) })
		case KindExpense:
			out.Expenses = overlay(out.Expenses, c, func(e Expense) string { return string(e.ID) })
		case KindReturn:
			out.Returns = overlay(out.Returns, c, func(e Return) string { return string(e.ID) })
		case KindCustomer:
			out.Customers = overlay(out.Customers, c, func(e Customer) string { return string(e.ID) })
		case KindDiscount:
			out.Discounts = overlay(out.Discounts, c, func(e Discount) string { return string(e.ID) })
		}
	}
	return out
}

func overlay[T any](list []T, c Change, id func(T) string) []T {
	i := slices.IndexFunc(list, func(e T) bool { return id(e) == c.ID })
	if c.Op == OpDelete {
		if i >= 0 {
			return slices.Delete(list, i, i+1)
		}
		return list
	}
	e, ok := c.Entity.(T)
	if !ok {
		return list
	}
	if i >= 0 {
		list[i] = e
		return list
	}
	return append(list, e)
}

// =============================================================================
// STORE
// =============================================================================

// Store is a durable replica of the entity collections.
type Store interface {
	// Load returns every record of every collection.
	Load(ctx context.Context) (Snapshot, error)

	// Apply writes the changes. Backends with transactions apply them
	// atomically.
	Apply(ctx context.Context, changes ...Change) error

	Close() error
}
