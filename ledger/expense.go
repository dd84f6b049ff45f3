package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/cashdrawer/pos"
)

// AddExpense records a petty-cash withdrawal against the open shift and
// takes it out of the expected cash.
func (l *Ledger) AddExpense(amount decimal.Decimal, category pos.ExpenseCategory, description string, actor pos.UserRef) (pos.Expense, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.activeShiftLocked()
	if !ok {
		return pos.Expense{}, &pos.StateError{Op: "add expense", Message: "no shift is open"}
	}
	if actor.IsZero() {
		return pos.Expense{}, &pos.ValidationError{Field: "user", Message: "an acting user is required"}
	}
	if !amount.IsPositive() {
		return pos.Expense{}, &pos.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if !category.Valid() {
		return pos.Expense{}, &pos.ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", category)}
	}
	if err := l.checkFundsLocked(current, amount); err != nil {
		return pos.Expense{}, err
	}

	expense := pos.Expense{
		ID:          pos.ExpenseID(l.newID()),
		ShiftID:     current.ID,
		Amount:      amount,
		Category:    category,
		Description: description,
		Timestamp:   l.now(),
		User:        actor,
	}
	l.expenses[expense.ID] = expense
	l.emitLocked(pos.Upsert(expense))
	l.adjustExpectedLocked(current, amount.Neg())
	return expense, nil
}

// DeleteExpense removes an expense of the open shift and puts its amount
// back into the expected cash. Expenses of closed shifts are immutable.
func (l *Ledger) DeleteExpense(id pos.ExpenseID) (pos.Expense, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	expense, ok := l.expenses[id]
	if !ok {
		return pos.Expense{}, &pos.NotFoundError{Kind: pos.KindExpense, ID: string(id)}
	}
	current, open := l.activeShiftLocked()
	if !open || current.ID != expense.ShiftID {
		return pos.Expense{}, &pos.StateError{Op: "delete expense", Message: fmt.Sprintf("shift %s is not the open shift", expense.ShiftID)}
	}

	delete(l.expenses, id)
	l.emitLocked(pos.Delete(pos.KindExpense, string(id)))
	l.adjustExpectedLocked(current, expense.Amount)
	return expense, nil
}

// checkFundsLocked enforces the expense policy for cash leaving the drawer.
func (l *Ledger) checkFundsLocked(s pos.Shift, amount decimal.Decimal) error {
	if l.cfg.ExpensePolicy == ExpenseCapAtExpected && amount.GreaterThan(s.EndCashExpected) {
		return &pos.InsufficientFundsError{Available: s.EndCashExpected, Requested: amount}
	}
	return nil
}
