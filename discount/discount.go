/*
Package discount keeps the discount rules and prices carts against them.

PURPOSE:
  The Book is an in-memory state container for Discount records, shaped
  like the catalog, that reports every mutation as a whole-entity change.
  Calculate computes which discounts a cart earns. It never touches a
  sale: totals recorded by the ledger are the undiscounted line sums.

ELIGIBILITY:
  A discount is active when it is switched on, the clock is inside its
  validity window and its usage limit is not reached. Rules without a
  coupon code apply automatically; a coupon rule applies only when its
  code (any case) is presented.

AMOUNTS:
  PERCENTAGE takes Value percent of the base, capped by MaxDiscount when
  set. FIXED takes Value. Either way the amount never exceeds the base
  and is rounded to cents. The base is the cart total for CART scope,
  the lines of the listed products for PRODUCT scope and the lines whose
  product is in a listed category for CATEGORY scope. A cart below
  MinPurchase earns nothing from that rule.

SEE ALSO:
  - catalog/catalog.go: Product categories
  - api/handlers.go: Quote endpoint
*/
package discount

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/cashdrawer/pos"
)

// Catalog resolves the category of a cart line.
type Catalog interface {
	FindProduct(id pos.ProductID) (pos.Product, bool)
}

var hundred = decimal.NewFromInt(100)

type Book struct {
	mu        sync.RWMutex
	catalog   Catalog
	discounts map[pos.DiscountID]pos.Discount
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

func New(catalog Catalog, opts ...Option) *Book {
	b := &Book{
		catalog:   catalog,
		discounts: make(map[pos.DiscountID]pos.Discount),
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

// Create adds a rule. The id, usage count and creation time are assigned
// here.
func (b *Book) Create(d pos.Discount) (pos.Discount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d.ID = pos.DiscountID(b.newID())
	d.UsageCount = 0
	d.CreatedAt = b.now()
	if err := b.validateLocked(d); err != nil {
		return pos.Discount{}, err
	}

	b.discounts[d.ID] = d.Clone()
	b.emitLocked(pos.Upsert(d))
	return d.Clone(), nil
}

// Update replaces a rule. Usage count and creation time are kept.
func (b *Book) Update(d pos.Discount) (pos.Discount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	old, ok := b.discounts[d.ID]
	if !ok {
		return pos.Discount{}, &pos.NotFoundError{Kind: pos.KindDiscount, ID: string(d.ID)}
	}
	d.UsageCount = old.UsageCount
	d.CreatedAt = old.CreatedAt
	if err := b.validateLocked(d); err != nil {
		return pos.Discount{}, err
	}

	b.discounts[d.ID] = d.Clone()
	b.emitLocked(pos.Upsert(d))
	return d.Clone(), nil
}

func (b *Book) Delete(id pos.DiscountID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.discounts[id]; !ok {
		return &pos.NotFoundError{Kind: pos.KindDiscount, ID: string(id)}
	}
	delete(b.discounts, id)
	b.emitLocked(pos.Delete(pos.KindDiscount, string(id)))
	return nil
}

// ToggleActive switches a rule on or off.
func (b *Book) ToggleActive(id pos.DiscountID) (pos.Discount, error) {
	return b.modify(id, func(d *pos.Discount) { d.Active = !d.Active })
}

// IncrementUsage counts one redemption of a rule.
func (b *Book) IncrementUsage(id pos.DiscountID) (pos.Discount, error) {
	return b.modify(id, func(d *pos.Discount) { d.UsageCount++ })
}

func (b *Book) modify(id pos.DiscountID, fn func(*pos.Discount)) (pos.Discount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.discounts[id]
	if !ok {
		return pos.Discount{}, &pos.NotFoundError{Kind: pos.KindDiscount, ID: string(id)}
	}
	d = d.Clone()
	fn(&d)
	b.discounts[id] = d
	b.emitLocked(pos.Upsert(d))
	return d.Clone(), nil
}

func (b *Book) validateLocked(d pos.Discount) error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return &pos.ValidationError{Field: "name", Message: "a discount needs a name"}
	case !d.Type.Valid():
		return &pos.ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", d.Type)}
	case !d.Scope.Valid():
		return &pos.ValidationError{Field: "scope", Message: fmt.Sprintf("unknown scope %q", d.Scope)}
	case !d.Value.IsPositive():
		return &pos.ValidationError{Field: "value", Message: "must be positive"}
	case d.Type == pos.DiscountPercentage && d.Value.GreaterThan(hundred):
		return &pos.ValidationError{Field: "value", Message: "a percentage cannot exceed 100"}
	case d.Scope == pos.ScopeProduct && len(d.ProductIDs) == 0:
		return &pos.ValidationError{Field: "productIds", Message: "a product discount needs products"}
	case d.Scope == pos.ScopeCategory && len(d.CategoryNames) == 0:
		return &pos.ValidationError{Field: "categoryNames", Message: "a category discount needs categories"}
	case d.MinPurchase.IsNegative(), d.MaxDiscount.IsNegative():
		return &pos.ValidationError{Field: "minPurchase", Message: "limits must not be negative"}
	case d.UsageLimit < 0:
		return &pos.ValidationError{Field: "usageLimit", Message: "must not be negative"}
	case d.ValidFrom != nil && d.ValidUntil != nil && d.ValidUntil.Before(*d.ValidFrom):
		return &pos.ValidationError{Field: "validUntil", Message: "ends before it starts"}
	}
	if d.CouponCode != "" {
		for _, other := range b.discounts {
			if other.ID != d.ID && strings.EqualFold(other.CouponCode, d.CouponCode) {
				return &pos.ValidationError{Field: "couponCode", Message: fmt.Sprintf("coupon %s is used by %s", d.CouponCode, other.Name)}
			}
		}
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (b *Book) Get(id pos.DiscountID) (pos.Discount, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	d, ok := b.discounts[id]
	return d.Clone(), ok
}

// Discounts returns every rule, newest first.
func (b *Book) Discounts() []pos.Discount {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filterLocked(func(pos.Discount) bool { return true })
}

// Active returns the rules that apply right now, newest first.
func (b *Book) Active() []pos.Discount {
	b.mu.RLock()
	defer b.mu.RUnlock()
	now := b.now()
	return b.filterLocked(func(d pos.Discount) bool { return isActive(d, now) })
}

// ValidateCoupon returns the active rule carrying the code, matched
// without regard to case.
func (b *Book) ValidateCoupon(code string) (pos.Discount, error) {
	for _, d := range b.Active() {
		if d.CouponCode != "" && strings.EqualFold(d.CouponCode, strings.TrimSpace(code)) {
			return d, nil
		}
	}
	return pos.Discount{}, &pos.NotFoundError{Kind: pos.KindDiscount, ID: code}
}

func isActive(d pos.Discount, now time.Time) bool {
	switch {
	case !d.Active:
		return false
	case d.ValidFrom != nil && now.Before(*d.ValidFrom):
		return false
	case d.ValidUntil != nil && now.After(*d.ValidUntil):
		return false
	case d.UsageLimit > 0 && d.UsageCount >= d.UsageLimit:
		return false
	}
	return true
}

func (b *Book) filterLocked(keep func(pos.Discount) bool) []pos.Discount {
	var out []pos.Discount
	for _, d := range b.discounts {
		if keep(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// PRICING
// =============================================================================

// Calculate returns the discounts the cart earns: every automatic rule
// that yields a positive amount, then the coupon rule when coupon names
// an active one. An unknown coupon is ignored; use ValidateCoupon to
// report it.
func (b *Book) Calculate(cart []pos.SaleItem, coupon string) []pos.AppliedDiscount {
	total := decimal.Zero
	for _, item := range cart {
		total = total.Add(item.LineTotal())
	}

	var applied []pos.AppliedDiscount
	active := b.Active()
	// oldest rule first, so the result does not depend on map order
	slices.Reverse(active)
	for _, d := range active {
		if d.CouponCode != "" {
			continue
		}
		if a, ok := b.apply(d, cart, total); ok {
			applied = append(applied, a)
		}
	}
	if strings.TrimSpace(coupon) != "" {
		if d, err := b.ValidateCoupon(coupon); err == nil {
			if a, ok := b.apply(d, cart, total); ok {
				applied = append(applied, a)
			}
		}
	}
	return applied
}

// Total sums the amounts of applied discounts.
func Total(applied []pos.AppliedDiscount) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range applied {
		sum = sum.Add(a.Amount)
	}
	return sum
}

func (b *Book) apply(d pos.Discount, cart []pos.SaleItem, total decimal.Decimal) (pos.AppliedDiscount, bool) {
	if d.MinPurchase.IsPositive() && total.LessThan(d.MinPurchase) {
		return pos.AppliedDiscount{}, false
	}

	var base decimal.Decimal
	switch d.Scope {
	case pos.ScopeCart:
		base = total
	case pos.ScopeProduct:
		base = sumLines(cart, func(item pos.SaleItem) bool {
			return slices.Contains(d.ProductIDs, item.ProductID)
		})
	case pos.ScopeCategory:
		base = sumLines(cart, func(item pos.SaleItem) bool {
			p, ok := b.catalog.FindProduct(item.ProductID)
			return ok && slices.Contains(d.CategoryNames, p.Category)
		})
	}

	amount := d.Value
	if d.Type == pos.DiscountPercentage {
		amount = base.Mul(d.Value).Div(hundred)
		if d.MaxDiscount.IsPositive() && amount.GreaterThan(d.MaxDiscount) {
			amount = d.MaxDiscount
		}
	}
	amount = decimal.Min(amount, base).Round(2)
	if !amount.IsPositive() {
		return pos.AppliedDiscount{}, false
	}
	return pos.AppliedDiscount{
		DiscountID:   d.ID,
		DiscountName: d.Name,
		Type:         d.Type,
		Value:        d.Value,
		Amount:       amount,
	}, true
}

func sumLines(cart []pos.SaleItem, keep func(pos.SaleItem) bool) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range cart {
		if keep(item) {
			sum = sum.Add(item.LineTotal())
		}
	}
	return sum
}

// =============================================================================
// BULK STATE
// =============================================================================

// Snapshot returns the rules, ordered by id, in an otherwise empty snapshot.
func (b *Book) Snapshot() pos.Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return pos.Snapshot{Discounts: b.sortedLocked()}
}

func (b *Book) sortedLocked() []pos.Discount {
	out := make([]pos.Discount, 0, len(b.discounts))
	for _, d := range b.discounts {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Swap installs the rules of the snapshot install returns, holding the lock
// while install runs. Nothing changes when install reports false.
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

// Restore installs the rules of a snapshot and re-emits every one.
func (b *Book) Restore(s pos.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replaceLocked(s)
	for _, d := range b.sortedLocked() {
		b.emitLocked(pos.Upsert(d))
	}
}

func (b *Book) replaceLocked(s pos.Snapshot) {
	b.discounts = make(map[pos.DiscountID]pos.Discount, len(s.Discounts))
	for _, d := range s.Discounts {
		b.discounts[d.ID] = d.Clone()
	}
}
