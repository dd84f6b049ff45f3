/*
Package customer keeps the buyer directory of the till.

PURPOSE:
  The Book is an in-memory state container for Customer records, shaped
  like the catalog: it is authoritative for the running session and
  reports every mutation to its listeners as a whole-entity change.

PURCHASES:
  RecordPurchase bumps the purchase count and spent total of a customer
  after a sale is recorded for them. The totals are running counters and
  are not recomputed from sales.

SEE ALSO:
  - catalog/catalog.go: The same container pattern for products
  - api/handlers.go: Sale recording calls RecordPurchase
*/
package customer

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/cashdrawer/pos"
)

type Book struct {
	mu        sync.RWMutex
	customers map[pos.CustomerID]pos.Customer
	listeners []pos.Listener
	now       func() time.Time
	newID     func() string
}

// Option customizes a Book.
type Option func(*Book)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Book) { b.now = now }
}

// WithIDs replaces the uuid generator.
func WithIDs(next func() string) Option {
	return func(b *Book) { b.newID = next }
}

func New(opts ...Option) *Book {
	b := &Book{
		customers: make(map[pos.CustomerID]pos.Customer),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a listener for every later change.
func (b *Book) Subscribe(l pos.Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

func (b *Book) emitLocked(changes ...pos.Change) {
	for _, c := range changes {
		for _, l := range b.listeners {
			l(c)
		}
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Add registers a customer. The id, totals and creation time are assigned
// here.
func (b *Book) Add(c pos.Customer) (pos.Customer, error) {
	if err := validate(c); err != nil {
		return pos.Customer{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c.ID = pos.CustomerID(b.newID())
	c.TotalPurchases = 0
	c.TotalSpent = decimal.Zero
	c.CreatedAt = b.now()
	c.LastPurchaseAt = nil

	b.customers[c.ID] = c
	b.emitLocked(pos.Upsert(c))
	return c.Clone(), nil
}

// Update replaces the contact fields of a customer. Purchase totals and
// creation time are kept.
func (b *Book) Update(c pos.Customer) (pos.Customer, error) {
	if err := validate(c); err != nil {
		return pos.Customer{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	old, ok := b.customers[c.ID]
	if !ok {
		return pos.Customer{}, &pos.NotFoundError{Kind: pos.KindCustomer, ID: string(c.ID)}
	}
	c.TotalPurchases = old.TotalPurchases
	c.TotalSpent = old.TotalSpent
	c.CreatedAt = old.CreatedAt
	c.LastPurchaseAt = old.LastPurchaseAt

	b.customers[c.ID] = c
	b.emitLocked(pos.Upsert(c))
	return c.Clone(), nil
}

func (b *Book) Delete(id pos.CustomerID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.customers[id]; !ok {
		return &pos.NotFoundError{Kind: pos.KindCustomer, ID: string(id)}
	}
	delete(b.customers, id)
	b.emitLocked(pos.Delete(pos.KindCustomer, string(id)))
	return nil
}

// RecordPurchase adds one purchase of amount to the customer's totals.
func (b *Book) RecordPurchase(id pos.CustomerID, amount decimal.Decimal) (pos.Customer, error) {
	if amount.IsNegative() {
		return pos.Customer{}, &pos.ValidationError{Field: "amount", Message: "must not be negative"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.customers[id]
	if !ok {
		return pos.Customer{}, &pos.NotFoundError{Kind: pos.KindCustomer, ID: string(id)}
	}
	at := b.now()
	c.TotalPurchases++
	c.TotalSpent = c.TotalSpent.Add(amount)
	c.LastPurchaseAt = &at

	b.customers[id] = c
	b.emitLocked(pos.Upsert(c))
	return c.Clone(), nil
}

func validate(c pos.Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return &pos.ValidationError{Field: "name", Message: "a customer needs a name"}
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return &pos.ValidationError{Field: "email", Message: fmt.Sprintf("%q is not an email address", c.Email)}
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (b *Book) Get(id pos.CustomerID) (pos.Customer, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.customers[id]
	return c.Clone(), ok
}

// Customers returns every customer ordered by name.
func (b *Book) Customers() []pos.Customer {
	return b.filter(func(pos.Customer) bool { return true })
}

// Search matches the query against name and email ignoring case, and
// against the phone number as typed.
func (b *Book) Search(query string) []pos.Customer {
	q := strings.ToLower(strings.TrimSpace(query))
	return b.filter(func(c pos.Customer) bool {
		return strings.Contains(strings.ToLower(c.Name), q) ||
			(c.Email != "" && strings.Contains(strings.ToLower(c.Email), q)) ||
			(c.Phone != "" && strings.Contains(c.Phone, q))
	})
}

// Top returns the customers who spent the most, at most limit of them
// (all when limit <= 0).
func (b *Book) Top(limit int) []pos.Customer {
	out := b.Customers()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalSpent.GreaterThan(out[j].TotalSpent)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (b *Book) filter(keep func(pos.Customer) bool) []pos.Customer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []pos.Customer
	for _, c := range b.customers {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// BULK STATE
// =============================================================================

// Snapshot returns the customers, ordered by id, in an otherwise empty
// snapshot.
func (b *Book) Snapshot() pos.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return pos.Snapshot{Customers: b.sortedLocked()}
}

func (b *Book) sortedLocked() []pos.Customer {
	out := make([]pos.Customer, 0, len(b.customers))
	for _, c := range b.customers {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Swap installs the customers of the snapshot install returns, holding the
// lock while install runs. Nothing changes when install reports false.
func (b *Book) Swap(install func() (pos.Snapshot, bool)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := install()
	if !ok {
		return false
	}
	b.replaceLocked(s)
	return true
}

// Restore installs the customers of a snapshot and re-emits every one.
func (b *Book) Restore(s pos.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replaceLocked(s)
	for _, c := range b.sortedLocked() {
		b.emitLocked(pos.Upsert(c))
	}
}

func (b *Book) replaceLocked(s pos.Snapshot) {
	b.customers = make(map[pos.CustomerID]pos.Customer, len(s.Customers))
	for _, c := range s.Customers {
		b.customers[c.ID] = c.Clone()
	}
}
