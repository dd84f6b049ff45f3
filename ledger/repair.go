package ledger

import (
	"log"
	"sort"

	"github.com/warp/cashdrawer/pos"
)

// =============================================================================
// SHIFT REPAIR
// =============================================================================
//
// Several clients may write full shift snapshots to a shared store with no
// locking, so two concurrent opens can both succeed. After every bulk load
// the repair keeps the most recently opened shift OPEN and force-closes the
// others as no-activity shifts:
//
//   closedAt      = now
//   endCashActual = startCash
//   closedBy      = pos.SystemUser
//
// Running it on an already repaired history changes nothing.

// Repair runs the multi-open repair on the current state and returns how
// many shifts it closed.
func (l *Ledger) Repair() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	changes := l.repairLocked()
	l.emitLocked(changes...)
	return len(changes)
}

// repairLocked applies the repair and returns the changes it made, without
// emitting them. It never fails.
func (l *Ledger) repairLocked() []pos.Change {
	keep, ok := l.activeShiftLocked()
	if !ok {
		return nil
	}

	var extra []pos.Shift
	for _, s := range l.shifts {
		if s.IsOpen() && s.ID != keep.ID {
			extra = append(extra, s)
		}
	}
	if len(extra) == 0 {
		return nil
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].ID < extra[j].ID })

	log.Printf("[ledger] WARN: %d shifts open at once, keeping %s and auto-closing the rest", len(extra)+1, keep.ID)

	now := l.now()
	changes := make([]pos.Change, 0, len(extra))
	for _, s := range extra {
		closedAt := now
		actual := s.StartCash
		closer := pos.SystemUser
		closed := s.Clone()
		closed.Status = pos.ShiftClosed
		closed.ClosedAt = &closedAt
		closed.EndCashActual = &actual
		closed.ClosedBy = &closer
		l.shifts[s.ID] = closed
		changes = append(changes, pos.Upsert(closed))
	}
	return changes
}
