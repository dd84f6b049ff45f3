package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/cashdrawer/pos"
)

// =============================================================================
// READ-ONLY ACCESSORS - For reporting and export
// =============================================================================
// Every accessor returns copies; callers cannot mutate ledger state.

// ShiftSummary is the data a shift report is rendered from.
type ShiftSummary struct {
	Shift        pos.Shift
	SalesCount   int
	CashSales    decimal.Decimal
	CardSales    decimal.Decimal
	OtherSales   decimal.Decimal
	ExpenseCount int
	Expenses     decimal.Decimal
	CashRefunds  decimal.Decimal
	Expected     decimal.Decimal // recomputed from the records
	Difference   decimal.Decimal // counted - expected, zero while open
}

// ProductStat aggregates sold quantity and revenue per product.
type ProductStat struct {
	ProductID   pos.ProductID
	ProductName string
	Quantity    int
	Revenue     decimal.Decimal
}

func (l *Ledger) Shift(id pos.ShiftID) (pos.Shift, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.shifts[id]
	if !ok {
		return pos.Shift{}, &pos.NotFoundError{Kind: pos.KindShift, ID: string(id)}
	}
	return s.Clone(), nil
}

// ShiftsInRange returns shifts opened in [from, to], oldest first.
func (l *Ledger) ShiftsInRange(from, to time.Time) []pos.Shift {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []pos.Shift
	for _, s := range l.sortedShiftsLocked() {
		if !s.OpenedAt.Before(from) && !s.OpenedAt.After(to) {
			out = append(out, s)
		}
	}
	return out
}

// ShiftHistory returns closed shifts, latest close first. limit <= 0 means all.
func (l *Ledger) ShiftHistory(limit int) []pos.Shift {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []pos.Shift
	for _, s := range l.shifts {
		if !s.IsOpen() {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := closedAt(out[i]), closedAt(out[j])
		if !a.Equal(b) {
			return a.After(b)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func closedAt(s pos.Shift) time.Time {
	if s.ClosedAt == nil {
		return time.Time{}
	}
	return *s.ClosedAt
}

func (l *Ledger) ExpensesForShift(id pos.ShiftID) []pos.Expense {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []pos.Expense
	for _, e := range l.sortedExpensesLocked() {
		if e.ShiftID == id {
			out = append(out, e)
		}
	}
	return out
}

func (l *Ledger) TotalExpensesForShift(id pos.ShiftID) decimal.Decimal {
	total := decimal.Zero
	for _, e := range l.ExpensesForShift(id) {
		total = total.Add(e.Amount)
	}
	return total
}

func (l *Ledger) SalesForShift(id pos.ShiftID) []pos.Sale {
	return l.filterSales(func(s pos.Sale) bool { return s.ShiftID == id })
}

// SalesInRange returns sales with a timestamp in [from, to], oldest first.
func (l *Ledger) SalesInRange(from, to time.Time) []pos.Sale {
	return l.filterSales(func(s pos.Sale) bool {
		return !s.Timestamp.Before(from) && !s.Timestamp.After(to)
	})
}

func (l *Ledger) SalesByUser(id pos.UserID) []pos.Sale {
	return l.filterSales(func(s pos.Sale) bool { return s.User.ID == id })
}

func (l *Ledger) Sale(id pos.SaleID) (pos.Sale, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sales[id]
	if !ok {
		return pos.Sale{}, &pos.NotFoundError{Kind: pos.KindSale, ID: string(id)}
	}
	return s.Clone(), nil
}

func (l *Ledger) filterSales(keep func(pos.Sale) bool) []pos.Sale {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []pos.Sale
	for _, s := range l.sortedSalesLocked() {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// TopProducts ranks products by revenue over every recorded sale.
func (l *Ledger) TopProducts(limit int) []ProductStat {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[pos.ProductID]*ProductStat)
	for _, s := range l.sales {
		for _, item := range s.Items {
			st, ok := stats[item.ProductID]
			if !ok {
				st = &ProductStat{ProductID: item.ProductID, ProductName: item.ProductName, Revenue: decimal.Zero}
				stats[item.ProductID] = st
			}
			st.Quantity += item.Quantity
			st.Revenue = st.Revenue.Add(item.LineTotal())
		}
	}
	out := make([]ProductStat, 0, len(stats))
	for _, st := range stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Revenue.Equal(out[j].Revenue) {
			return out[i].Revenue.GreaterThan(out[j].Revenue)
		}
		return out[i].ProductID < out[j].ProductID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (l *Ledger) Return(id pos.ReturnID) (pos.Return, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.returns[id]
	if !ok {
		return pos.Return{}, &pos.NotFoundError{Kind: pos.KindReturn, ID: string(id)}
	}
	return r.Clone(), nil
}

func (l *Ledger) PendingReturns() []pos.Return {
	return l.filterReturns(func(r pos.Return) bool { return r.Status == pos.ReturnPending })
}

func (l *Ledger) ReturnsForSale(id pos.SaleID) []pos.Return {
	return l.filterReturns(func(r pos.Return) bool { return r.SaleID == id })
}

// ReturnsInRange returns returns created in [from, to], whatever their
// status, oldest first.
func (l *Ledger) ReturnsInRange(from, to time.Time) []pos.Return {
	return l.filterReturns(func(r pos.Return) bool {
		return !r.Timestamp.Before(from) && !r.Timestamp.After(to)
	})
}

// TotalRefunds sums the refunds of completed returns created in [from, to].
// A zero from or to leaves that side open.
func (l *Ledger) TotalRefunds(from, to time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, r := range l.filterReturns(func(r pos.Return) bool {
		if r.Status != pos.ReturnCompleted {
			return false
		}
		if !from.IsZero() && r.Timestamp.Before(from) {
			return false
		}
		return to.IsZero() || !r.Timestamp.After(to)
	}) {
		total = total.Add(r.RefundAmount)
	}
	return total
}

func (l *Ledger) filterReturns(keep func(pos.Return) bool) []pos.Return {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []pos.Return
	for _, r := range l.sortedReturnsLocked() {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// ExpectedCash recomputes a shift's expected balance from its records.
// While the shift is open this equals its EndCashExpected.
func (l *Ledger) ExpectedCash(id pos.ShiftID) (decimal.Decimal, error) {
	sum, err := l.Summary(id)
	if err != nil {
		return decimal.Zero, err
	}
	return sum.Expected, nil
}

// Summary aggregates the records of one shift.
func (l *Ledger) Summary(id pos.ShiftID) (ShiftSummary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.shifts[id]
	if !ok {
		return ShiftSummary{}, &pos.NotFoundError{Kind: pos.KindShift, ID: string(id)}
	}
	sum := ShiftSummary{
		Shift:       s.Clone(),
		CashSales:   decimal.Zero,
		CardSales:   decimal.Zero,
		OtherSales:  decimal.Zero,
		Expenses:    decimal.Zero,
		CashRefunds: decimal.Zero,
	}
	for _, sale := range l.sales {
		if sale.ShiftID != id {
			continue
		}
		sum.SalesCount++
		switch sale.PaymentMethod {
		case pos.PaymentCash:
			sum.CashSales = sum.CashSales.Add(sale.Total)
		case pos.PaymentCard:
			sum.CardSales = sum.CardSales.Add(sale.Total)
		default:
			sum.OtherSales = sum.OtherSales.Add(sale.Total)
		}
	}
	for _, e := range l.expenses {
		if e.ShiftID == id {
			sum.ExpenseCount++
			sum.Expenses = sum.Expenses.Add(e.Amount)
		}
	}
	for _, r := range l.returns {
		if r.ShiftID == id && r.Status == pos.ReturnCompleted && r.RefundMethod == pos.PaymentCash {
			sum.CashRefunds = sum.CashRefunds.Add(r.RefundAmount)
		}
	}
	sum.Expected = s.StartCash.Add(sum.CashSales).Sub(sum.Expenses).Sub(sum.CashRefunds)
	if s.EndCashActual != nil {
		sum.Difference = s.EndCashActual.Sub(s.EndCashExpected)
	}
	return sum, nil
}

// =============================================================================
// SORTED COPIES
// =============================================================================

func (l *Ledger) sortedShiftsLocked() []pos.Shift {
	out := make([]pos.Shift, 0, len(l.shifts))
	for _, s := range l.shifts {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *Ledger) sortedSalesLocked() []pos.Sale {
	out := make([]pos.Sale, 0, len(l.sales))
	for _, s := range l.sales {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *Ledger) sortedExpensesLocked() []pos.Expense {
	out := make([]pos.Expense, 0, len(l.expenses))
	for _, e := range l.expenses {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *Ledger) sortedReturnsLocked() []pos.Return {
	out := make([]pos.Return, 0, len(l.returns))
	for _, r := range l.returns {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
