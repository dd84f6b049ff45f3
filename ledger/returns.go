package ledger

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/warp/cashdrawer/pos"
)

// =============================================================================
// RETURNS - Reversing entities for recorded sales
// =============================================================================
//
// Sales are never edited or deleted. A return references the sale and goes
// PENDING -> COMPLETED (stock restored, cash refunded) or PENDING -> REJECTED.

// CreateReturn opens a pending return for part or all of a sale. Refund
// prices come from the sale's snapshots, not from the current catalog.
func (l *Ledger) CreateReturn(saleID pos.SaleID, lines []LineRequest, reason string, method pos.PaymentMethod, notes string, actor pos.UserRef) (pos.Return, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sale, ok := l.sales[saleID]
	if !ok {
		return pos.Return{}, &pos.NotFoundError{Kind: pos.KindSale, ID: string(saleID)}
	}
	if actor.IsZero() {
		return pos.Return{}, &pos.ValidationError{Field: "user", Message: "an acting user is required"}
	}
	if !method.Valid() {
		return pos.Return{}, &pos.ValidationError{Field: "refundMethod", Message: fmt.Sprintf("unknown method %q", method)}
	}
	if len(lines) == 0 {
		return pos.Return{}, &pos.ValidationError{Field: "items", Message: "a return needs at least one item"}
	}

	returnable := l.returnableLocked(sale)
	wanted := make(map[pos.VariantID]int, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return pos.Return{}, &pos.ValidationError{Field: "quantity", Message: fmt.Sprintf("variant %s: quantity must be positive", line.VariantID)}
		}
		wanted[line.VariantID] += line.Quantity
		if wanted[line.VariantID] > returnable[line.VariantID] {
			return pos.Return{}, &pos.ValidationError{
				Field:   "quantity",
				Message: fmt.Sprintf("variant %s: only %d returnable on sale %s", line.VariantID, returnable[line.VariantID], saleID),
			}
		}
	}

	items := make([]pos.SaleItem, 0, len(lines))
	refund := decimal.Zero
	for _, line := range lines {
		item := saleLine(sale, line.VariantID)
		item.Quantity = line.Quantity
		refund = refund.Add(item.LineTotal())
		items = append(items, item)
	}

	ret := pos.Return{
		ID:           pos.ReturnID(l.newID()),
		SaleID:       saleID,
		Items:        items,
		Reason:       reason,
		RefundAmount: refund,
		RefundMethod: method,
		Status:       pos.ReturnPending,
		Notes:        notes,
		Timestamp:    l.now(),
		User:         actor,
	}
	l.returns[ret.ID] = ret
	l.emitLocked(pos.Upsert(ret))
	return ret.Clone(), nil
}

// ProcessReturn completes a pending return: stock goes back to the catalog
// and a cash refund with a shift open comes out of its expected cash.
func (l *Ledger) ProcessReturn(id pos.ReturnID, actor pos.UserRef) (pos.Return, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ret, ok := l.returns[id]
	if !ok {
		return pos.Return{}, &pos.NotFoundError{Kind: pos.KindReturn, ID: string(id)}
	}
	if ret.Status != pos.ReturnPending {
		return pos.Return{}, &pos.StateError{Op: "process return", Message: fmt.Sprintf("return %s is %s", id, ret.Status)}
	}
	if actor.IsZero() {
		return pos.Return{}, &pos.ValidationError{Field: "user", Message: "an acting user is required"}
	}

	current, open := l.activeShiftLocked()
	chargeShift := open && ret.RefundMethod == pos.PaymentCash
	if chargeShift {
		if err := l.checkFundsLocked(current, ret.RefundAmount); err != nil {
			return pos.Return{}, err
		}
	}

	for _, item := range ret.Items {
		if err := l.catalog.AdjustStock(item.VariantID, item.Quantity); err != nil {
			// The variant may have been deleted since the sale; the refund
			// still goes through.
			log.Printf("[ledger] return %s: could not restock %s: %v", id, item.VariantID, err)
		}
	}

	processor := actor
	ret = ret.Clone()
	ret.Status = pos.ReturnCompleted
	ret.ProcessedBy = &processor
	if chargeShift {
		ret.ShiftID = current.ID
	}
	l.returns[id] = ret
	l.emitLocked(pos.Upsert(ret))

	if chargeShift {
		l.adjustExpectedLocked(current, ret.RefundAmount.Neg())
	}
	return ret.Clone(), nil
}

// RejectReturn closes a pending return without any stock or cash effect.
func (l *Ledger) RejectReturn(id pos.ReturnID, notes string, actor pos.UserRef) (pos.Return, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ret, ok := l.returns[id]
	if !ok {
		return pos.Return{}, &pos.NotFoundError{Kind: pos.KindReturn, ID: string(id)}
	}
	if ret.Status != pos.ReturnPending {
		return pos.Return{}, &pos.StateError{Op: "reject return", Message: fmt.Sprintf("return %s is %s", id, ret.Status)}
	}
	if actor.IsZero() {
		return pos.Return{}, &pos.ValidationError{Field: "user", Message: "an acting user is required"}
	}

	processor := actor
	ret = ret.Clone()
	ret.Status = pos.ReturnRejected
	ret.ProcessedBy = &processor
	if notes != "" {
		ret.Notes = notes
	}
	l.returns[id] = ret
	l.emitLocked(pos.Upsert(ret))
	return ret.Clone(), nil
}

// returnableLocked is the sold quantity per variant minus what pending and
// completed returns already claim.
func (l *Ledger) returnableLocked(sale pos.Sale) map[pos.VariantID]int {
	out := make(map[pos.VariantID]int, len(sale.Items))
	for _, item := range sale.Items {
		out[item.VariantID] += item.Quantity
	}
	for _, r := range l.returns {
		if r.SaleID != sale.ID || r.Status == pos.ReturnRejected {
			continue
		}
		for _, item := range r.Items {
			out[item.VariantID] -= item.Quantity
		}
	}
	return out
}

func saleLine(sale pos.Sale, id pos.VariantID) pos.SaleItem {
	for _, item := range sale.Items {
		if item.VariantID == id {
			return item
		}
	}
	return pos.SaleItem{VariantID: id}
}
