package ledger

import (
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/cashdrawer/pos"
)

// =============================================================================
// SHIFT STATE MACHINE
// =============================================================================
//
//   NONE --open--> OPEN --close--> CLOSED (terminal)
//
// A new open goes NONE -> OPEN again and is unrelated to earlier shifts.

// CloseResult is the closing snapshot, captured with the status flip.
type CloseResult struct {
	Shift      pos.Shift
	Expected   decimal.Decimal
	Counted    decimal.Decimal
	Difference decimal.Decimal // counted - expected
}

// OpenShift starts a shift with startCash in the drawer.
func (l *Ledger) OpenShift(startCash decimal.Decimal, actor pos.UserRef) (pos.Shift, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if active, ok := l.activeShiftLocked(); ok {
		return pos.Shift{}, &pos.ConflictError{OpenShiftID: active.ID}
	}
	if actor.IsZero() {
		return pos.Shift{}, &pos.ValidationError{Field: "user", Message: "an acting user is required"}
	}
	if startCash.IsNegative() {
		return pos.Shift{}, &pos.ValidationError{Field: "startCash", Message: "must not be negative"}
	}

	shift := pos.Shift{
		ID:              pos.ShiftID(l.newID()),
		OpenedAt:        l.now(),
		StartCash:       startCash,
		EndCashExpected: startCash,
		Status:          pos.ShiftOpen,
		OpenedBy:        actor,
	}
	l.shifts[shift.ID] = shift
	l.emitLocked(pos.Upsert(shift))
	return shift.Clone(), nil
}

// ParseCountedCash turns raw operator input into a counted amount under the
// configured close policy.
func (l *Ledger) ParseCountedCash(raw string) (decimal.Decimal, error) {
	d, err := pos.ParseAmount(raw)
	if err != nil {
		if l.cfg.ClosePolicy == CloseStrict {
			return decimal.Zero, &pos.ValidationError{Field: "actualCash", Message: "must be a number"}
		}
		log.Printf("[ledger] counted cash %q is not a number, closing with 0", strings.TrimSpace(raw))
		return decimal.Zero, nil
	}
	return d, nil
}

// CloseShift closes the open shift against the counted cash.
func (l *Ledger) CloseShift(actualCash decimal.Decimal, actor pos.UserRef) (CloseResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked(actualCash, actor)
}

// CloseShiftInput closes the open shift against raw operator input, parsed
// under the close policy. With no shift open it fails with StateError
// whatever the input.
func (l *Ledger) CloseShiftInput(raw string, actor pos.UserRef) (CloseResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.activeShiftLocked(); !ok {
		return CloseResult{}, &pos.StateError{Op: "close shift", Message: "no shift is open"}
	}
	counted, err := l.ParseCountedCash(raw)
	if err != nil {
		return CloseResult{}, err
	}
	return l.closeLocked(counted, actor)
}

func (l *Ledger) closeLocked(actualCash decimal.Decimal, actor pos.UserRef) (CloseResult, error) {
	current, ok := l.activeShiftLocked()
	if !ok {
		return CloseResult{}, &pos.StateError{Op: "close shift", Message: "no shift is open"}
	}
	if actor.IsZero() {
		return CloseResult{}, &pos.ValidationError{Field: "user", Message: "an acting user is required"}
	}
	if actualCash.IsNegative() {
		if l.cfg.ClosePolicy == CloseStrict {
			return CloseResult{}, &pos.ValidationError{Field: "actualCash", Message: "must not be negative"}
		}
		log.Printf("[ledger] counted cash %s is negative, closing shift %s with 0", actualCash, current.ID)
		actualCash = decimal.Zero
	}

	closedAt := l.now()
	closer := actor
	closed := current.Clone()
	closed.Status = pos.ShiftClosed
	closed.ClosedAt = &closedAt
	closed.EndCashActual = &actualCash
	closed.ClosedBy = &closer

	l.shifts[closed.ID] = closed
	l.emitLocked(pos.Upsert(closed))

	return CloseResult{
		Shift:      closed.Clone(),
		Expected:   closed.EndCashExpected,
		Counted:    actualCash,
		Difference: closed.Difference(),
	}, nil
}

// ActiveShift returns the open shift. With a corrupted history holding
// several open shifts it returns the most recently opened one.
func (l *Ledger) ActiveShift() (pos.Shift, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.activeShiftLocked()
	if !ok {
		return pos.Shift{}, false
	}
	return s.Clone(), true
}

func (l *Ledger) IsShiftOpen() bool {
	_, ok := l.ActiveShift()
	return ok
}

func (l *Ledger) activeShiftLocked() (pos.Shift, bool) {
	var (
		best  pos.Shift
		found bool
	)
	for _, s := range l.shifts {
		if !s.IsOpen() {
			continue
		}
		if !found || openedLater(s, best) {
			best, found = s, true
		}
	}
	return best, found
}

// openedLater orders shifts by openedAt, then id so ties are deterministic.
func openedLater(a, b pos.Shift) bool {
	if !a.OpenedAt.Equal(b.OpenedAt) {
		return a.OpenedAt.After(b.OpenedAt)
	}
	return a.ID > b.ID
}

// adjustExpectedLocked applies delta to the open shift's expected cash and
// emits the whole shift.
func (l *Ledger) adjustExpectedLocked(s pos.Shift, delta decimal.Decimal) pos.Shift {
	s = s.Clone()
	s.EndCashExpected = s.EndCashExpected.Add(delta)
	l.shifts[s.ID] = s
	l.emitLocked(pos.Upsert(s))
	return s
}
