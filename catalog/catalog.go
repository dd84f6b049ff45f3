/*
Package catalog owns Product and Variant records and their stock levels.

PURPOSE:
  The Catalog is an in-memory state container. It is authoritative for the
  running session and reports every mutation to its listeners as a
  whole-entity change; replication/ turns those into durable writes.

STOCK:
  AdjustStock is the only stock mutation. The ledger calls it with a
  negative delta when a sale is recorded and a positive delta when a
  return is processed. Stock never goes below zero.

SEE ALSO:
  - ledger/sale.go: Validates stock before decrementing
  - pos/store.go: Change and Snapshot types
*/
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/warp/cashdrawer/pos"
)

type Catalog struct {
	mu        sync.RWMutex
	products  map[pos.ProductID]pos.Product
	variants  map[pos.VariantID]pos.Variant
	listeners []pos.Listener
}

func New() *Catalog {
	return &Catalog{
		products: make(map[pos.ProductID]pos.Product),
		variants: make(map[pos.VariantID]pos.Variant),
	}
}

// Subscribe registers a listener for every later change.
func (c *Catalog) Subscribe(l pos.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *Catalog) emitLocked(changes ...pos.Change) {
	for _, ch := range changes {
		for _, l := range c.listeners {
			l(ch)
		}
	}
}

// =============================================================================
// PRODUCTS
// =============================================================================

// AddProduct adds a product together with its variants.
func (c *Catalog) AddProduct(p pos.Product, variants []pos.Variant) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.products[p.ID]; exists {
		return &pos.ValidationError{Field: "id", Message: fmt.Sprintf("product %s already exists", p.ID)}
	}
	if err := c.validateLocked(p, variants); err != nil {
		return err
	}
	for _, v := range variants {
		if _, exists := c.variants[v.ID]; exists {
			return &pos.ValidationError{Field: "variants", Message: fmt.Sprintf("variant %s already exists", v.ID)}
		}
	}

	c.products[p.ID] = p
	c.emitLocked(pos.Upsert(p))
	for _, v := range variants {
		c.variants[v.ID] = v
		c.emitLocked(pos.Upsert(v))
	}
	return nil
}

// UpdateProduct replaces a product and the full set of its variants.
// Variants of the product that are not in the new set are deleted.
func (c *Catalog) UpdateProduct(p pos.Product, variants []pos.Variant) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.products[p.ID]; !ok {
		return &pos.NotFoundError{Kind: pos.KindProduct, ID: string(p.ID)}
	}
	if err := c.validateLocked(p, variants); err != nil {
		return err
	}
	for _, v := range variants {
		if old, exists := c.variants[v.ID]; exists && old.ProductID != p.ID {
			return &pos.ValidationError{Field: "variants", Message: fmt.Sprintf("variant %s belongs to product %s", v.ID, old.ProductID)}
		}
	}

	keep := make(map[pos.VariantID]bool, len(variants))
	for _, v := range variants {
		keep[v.ID] = true
	}

	c.products[p.ID] = p
	c.emitLocked(pos.Upsert(p))
	for _, id := range c.variantIDsLocked(p.ID) {
		if !keep[id] {
			delete(c.variants, id)
			c.emitLocked(pos.Delete(pos.KindVariant, string(id)))
		}
	}
	for _, v := range variants {
		c.variants[v.ID] = v
		c.emitLocked(pos.Upsert(v))
	}
	return nil
}

// DeleteProduct removes a product and all of its variants.
func (c *Catalog) DeleteProduct(id pos.ProductID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.products[id]; !ok {
		return &pos.NotFoundError{Kind: pos.KindProduct, ID: string(id)}
	}
	for _, vid := range c.variantIDsLocked(id) {
		delete(c.variants, vid)
		c.emitLocked(pos.Delete(pos.KindVariant, string(vid)))
	}
	delete(c.products, id)
	c.emitLocked(pos.Delete(pos.KindProduct, string(id)))
	return nil
}

// DeleteVariant removes a single variant.
func (c *Catalog) DeleteVariant(id pos.VariantID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.variants[id]; !ok {
		return &pos.NotFoundError{Kind: pos.KindVariant, ID: string(id)}
	}
	delete(c.variants, id)
	c.emitLocked(pos.Delete(pos.KindVariant, string(id)))
	return nil
}

func (c *Catalog) validateLocked(p pos.Product, variants []pos.Variant) error {
	if p.ID == "" {
		return &pos.ValidationError{Field: "id", Message: "must not be empty"}
	}
	if strings.TrimSpace(p.Name) == "" {
		return &pos.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if p.BasePrice.IsNegative() {
		return &pos.ValidationError{Field: "basePrice", Message: "must not be negative"}
	}
	seen := make(map[pos.VariantID]bool, len(variants))
	for _, v := range variants {
		switch {
		case v.ID == "":
			return &pos.ValidationError{Field: "variants", Message: "variant id must not be empty"}
		case seen[v.ID]:
			return &pos.ValidationError{Field: "variants", Message: fmt.Sprintf("duplicate variant %s", v.ID)}
		case v.ProductID != p.ID:
			return &pos.ValidationError{Field: "variants", Message: fmt.Sprintf("variant %s does not belong to product %s", v.ID, p.ID)}
		case v.Price.IsNegative():
			return &pos.ValidationError{Field: "price", Message: fmt.Sprintf("variant %s has a negative price", v.ID)}
		case v.Stock < 0:
			return &pos.ValidationError{Field: "stock", Message: fmt.Sprintf("variant %s has negative stock", v.ID)}
		}
		seen[v.ID] = true
	}
	return nil
}

func (c *Catalog) variantIDsLocked(pid pos.ProductID) []pos.VariantID {
	var ids []pos.VariantID
	for id, v := range c.variants {
		if v.ProductID == pid {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// =============================================================================
// STOCK
// =============================================================================

// AdjustStock adds delta to a variant's stock. The result may not be negative.
func (c *Catalog) AdjustStock(id pos.VariantID, delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.variants[id]
	if !ok {
		return &pos.NotFoundError{Kind: pos.KindVariant, ID: string(id)}
	}
	if v.Stock+delta < 0 {
		return &pos.ValidationError{Field: "stock", Message: fmt.Sprintf("variant %s would go to %d", id, v.Stock+delta)}
	}
	if delta == 0 {
		return nil
	}
	v.Stock += delta
	c.variants[id] = v
	c.emitLocked(pos.Upsert(v))
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (c *Catalog) FindVariant(id pos.VariantID) (pos.Variant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.variants[id]
	return v, ok
}

func (c *Catalog) FindProduct(id pos.ProductID) (pos.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok
}

// FindVariantByCode looks a variant up by barcode or SKU, as a scanner would.
func (c *Catalog) FindVariantByCode(code string) (pos.Variant, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return pos.Variant{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, v := range c.sortedVariantsLocked() {
		if v.Barcode == code || strings.EqualFold(v.SKU, code) {
			return v, true
		}
	}
	return pos.Variant{}, false
}

func (c *Catalog) VariantsForProduct(id pos.ProductID) []pos.Variant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []pos.Variant
	for _, vid := range c.variantIDsLocked(id) {
		out = append(out, c.variants[vid])
	}
	return out
}

// LowStock returns variants whose stock is at or below threshold, lowest first.
func (c *Catalog) LowStock(threshold int) []pos.Variant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []pos.Variant
	for _, v := range c.sortedVariantsLocked() {
		if v.Stock <= threshold {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stock < out[j].Stock })
	return out
}

func (c *Catalog) Products() []pos.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]pos.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Catalog) Variants() []pos.Variant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sortedVariantsLocked()
}

func (c *Catalog) sortedVariantsLocked() []pos.Variant {
	out := make([]pos.Variant, 0, len(c.variants))
	for _, v := range c.variants {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// BULK STATE
// =============================================================================

// Replace swaps in the catalog part of a snapshot without emitting changes.
// Used after loading from the durable store.
func (c *Catalog) Replace(s pos.Snapshot) {
	c.Swap(func() (pos.Snapshot, bool) { return s, true })
}

// Swap is Replace with the snapshot produced by install, which runs with
// the catalog locked so no mutation lands between building the snapshot and
// installing it. Nothing changes when install reports false.
func (c *Catalog) Swap(install func() (pos.Snapshot, bool)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := install()
	if !ok {
		return false
	}
	c.replaceLocked(s)
	return true
}

// Restore swaps in the catalog part of a snapshot and re-emits every record.
func (c *Catalog) Restore(s pos.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaceLocked(s)
	for _, p := range s.Products {
		c.emitLocked(pos.Upsert(p))
	}
	for _, v := range s.Variants {
		c.emitLocked(pos.Upsert(v))
	}
}

func (c *Catalog) replaceLocked(s pos.Snapshot) {
	c.products = make(map[pos.ProductID]pos.Product, len(s.Products))
	for _, p := range s.Products {
		c.products[p.ID] = p
	}
	c.variants = make(map[pos.VariantID]pos.Variant, len(s.Variants))
	for _, v := range s.Variants {
		c.variants[v.ID] = v
	}
}
