package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/cashdrawer/pos"
)

// LineRequest is one requested sale (or return) line.
type LineRequest struct {
	VariantID pos.VariantID `json:"variantId"`
	Quantity  int           `json:"quantity"`
}

// RecordSale validates every line against the catalog, records the sale,
// decrements stock and, for cash payments with a shift open, adds the
// total to the shift's expected cash.
//
// Validation is batch, not fail-fast: an InsufficientStockError lists every
// failing line. Nothing is mutated unless every line passes.
func (l *Ledger) RecordSale(lines []LineRequest, method pos.PaymentMethod, actor pos.UserRef) (pos.Sale, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !method.Valid() {
		return pos.Sale{}, &pos.ValidationError{Field: "paymentMethod", Message: fmt.Sprintf("unknown method %q", method)}
	}
	if len(lines) == 0 {
		return pos.Sale{}, &pos.ValidationError{Field: "items", Message: "a sale needs at least one item"}
	}

	// Aggregate per variant so two lines of the same variant are checked
	// against its stock together.
	requested := make(map[pos.VariantID]int, len(lines))
	var order []pos.VariantID
	for _, line := range lines {
		if line.Quantity <= 0 {
			return pos.Sale{}, &pos.ValidationError{Field: "quantity", Message: fmt.Sprintf("variant %s: quantity must be positive", line.VariantID)}
		}
		if _, seen := requested[line.VariantID]; !seen {
			order = append(order, line.VariantID)
		}
		requested[line.VariantID] += line.Quantity
	}

	variants := make(map[pos.VariantID]pos.Variant, len(order))
	var shortages []pos.StockShortage
	for _, id := range order {
		v, ok := l.catalog.FindVariant(id)
		if !ok {
			shortages = append(shortages, pos.StockShortage{VariantID: id, Name: string(id), Requested: requested[id], Missing: true})
			continue
		}
		variants[id] = v
		if v.Stock < requested[id] {
			shortages = append(shortages, pos.StockShortage{
				VariantID: id,
				Name:      l.displayName(v),
				Available: v.Stock,
				Requested: requested[id],
			})
		}
	}
	if len(shortages) > 0 {
		return pos.Sale{}, &pos.InsufficientStockError{Items: shortages}
	}

	items := make([]pos.SaleItem, 0, len(lines))
	total := decimal.Zero
	for _, line := range lines {
		v := variants[line.VariantID]
		item := pos.SaleItem{
			VariantID:        v.ID,
			ProductID:        v.ProductID,
			ProductName:      l.productName(v),
			SKU:              v.SKU,
			UnitPrice:        v.Price,
			Quantity:         line.Quantity,
			AttributeSummary: v.AttributeSummary,
		}
		total = total.Add(item.LineTotal())
		items = append(items, item)
	}

	if err := l.applyStockLocked(order, requested, -1); err != nil {
		return pos.Sale{}, err
	}

	sale := pos.Sale{
		ID:            pos.SaleID(l.newID()),
		Timestamp:     l.now(),
		Total:         total,
		Items:         items,
		PaymentMethod: method,
		User:          actor,
	}
	active, open := l.activeShiftLocked()
	if open {
		sale.ShiftID = active.ID
	}
	l.sales[sale.ID] = sale
	l.emitLocked(pos.Upsert(sale))

	if open && method == pos.PaymentCash {
		l.adjustExpectedLocked(active, total)
	}
	return sale.Clone(), nil
}

// applyStockLocked adjusts every variant by sign*qty. If the catalog refuses
// one adjustment the earlier ones are undone.
func (l *Ledger) applyStockLocked(order []pos.VariantID, qty map[pos.VariantID]int, sign int) error {
	for i, id := range order {
		if err := l.catalog.AdjustStock(id, sign*qty[id]); err != nil {
			for _, done := range order[:i] {
				_ = l.catalog.AdjustStock(done, -sign*qty[done])
			}
			return fmt.Errorf("adjust stock of %s: %w", id, err)
		}
	}
	return nil
}

func (l *Ledger) productName(v pos.Variant) string {
	if p, ok := l.catalog.FindProduct(v.ProductID); ok {
		return p.Name
	}
	return v.SKU
}

func (l *Ledger) displayName(v pos.Variant) string {
	name := l.productName(v)
	if v.AttributeSummary != "" {
		return name + " (" + v.AttributeSummary + ")"
	}
	return name
}
