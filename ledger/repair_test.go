package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cashdrawer/ledger"
	"github.com/warp/cashdrawer/pos"
)

// =============================================================================
// MULTI-OPEN REPAIR
// =============================================================================

func openShift(id pos.ShiftID, at time.Time, start string) pos.Shift {
	return pos.Shift{
		ID:              id,
		OpenedAt:        at,
		StartCash:       dec(start),
		EndCashExpected: dec(start),
		Status:          pos.ShiftOpen,
		OpenedBy:        alice,
	}
}

func TestReplace_RepairsConcurrentOpens(t *testing.T) {
	// GIVEN: A loaded history with two OPEN shifts, A at t1 and B at t2 > t1
	// WHEN: Replacing the ledger state with it
	// THEN: B stays OPEN; A is CLOSED with endCashActual = startCash by System
	f := newFixture(t, ledger.DefaultConfig())
	t1 := time.Date(2025, time.March, 9, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(2 * time.Hour)

	repaired := f.ledger.Replace(pos.Snapshot{Shifts: []pos.Shift{
		openShift("shift-a", t1, "75"),
		openShift("shift-b", t2, "30"),
	}})
	assert.Equal(t, 1, repaired)

	active, ok := f.ledger.ActiveShift()
	require.True(t, ok)
	assert.Equal(t, pos.ShiftID("shift-b"), active.ID)

	a, err := f.ledger.Shift("shift-a")
	require.NoError(t, err)
	assert.Equal(t, pos.ShiftClosed, a.Status)
	require.NotNil(t, a.EndCashActual)
	requireDecimal(t, "75", *a.EndCashActual)
	require.NotNil(t, a.ClosedBy)
	assert.Equal(t, pos.SystemUser, *a.ClosedBy)
	require.NotNil(t, a.ClosedAt)

	// Only the repair write is emitted.
	require.Len(t, f.changes, 1)
	assert.Equal(t, "shift-a", f.changes[0].ID)

	// Running it again changes nothing.
	assert.Equal(t, 0, f.ledger.Repair())
	assert.Len(t, f.changes, 1)
}

func TestReplace_TieOnOpenedAtKeepsLargerID(t *testing.T) {
	f := newFixture(t, ledger.DefaultConfig())
	at := time.Date(2025, time.March, 9, 8, 0, 0, 0, time.UTC)

	f.ledger.Replace(pos.Snapshot{Shifts: []pos.Shift{
		openShift("shift-1", at, "0"),
		openShift("shift-3", at, "0"),
		openShift("shift-2", at, "0"),
	}})

	active, ok := f.ledger.ActiveShift()
	require.True(t, ok)
	assert.Equal(t, pos.ShiftID("shift-3"), active.ID)
	assert.Len(t, f.ledger.ShiftHistory(0), 2)
}

func TestReplace_CleanHistoryEmitsNothing(t *testing.T) {
	f := newFixture(t, ledger.DefaultConfig())
	at := time.Date(2025, time.March, 9, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, f.ledger.Replace(pos.Snapshot{Shifts: []pos.Shift{openShift("only", at, "10")}}))
	assert.Empty(t, f.changes)
	assert.True(t, f.ledger.IsShiftOpen())
}

func TestRestore_EmitsEveryRecord(t *testing.T) {
	f := newFixture(t, ledger.DefaultConfig())
	at := time.Date(2025, time.March, 9, 8, 0, 0, 0, time.UTC)
	snap := pos.Snapshot{
		Shifts: []pos.Shift{openShift("s1", at, "10"), openShift("s2", at.Add(time.Hour), "10")},
		Expenses: []pos.Expense{{
			ID: "e1", ShiftID: "s2", Amount: dec("1"), Category: pos.ExpenseOther, Timestamp: at, User: alice,
		}},
	}

	assert.Equal(t, 1, f.ledger.Restore(snap))
	assert.Len(t, f.changes, 3)
	for _, c := range f.changes {
		assert.Equal(t, pos.OpUpsert, c.Op)
	}
}

func TestAfterRepair_ExpenseGoesToSurvivingShift(t *testing.T) {
	f := newFixture(t, ledger.DefaultConfig())
	t1 := time.Date(2025, time.March, 9, 8, 0, 0, 0, time.UTC)
	f.ledger.Replace(pos.Snapshot{Shifts: []pos.Shift{
		openShift("early", t1, "100"),
		openShift("late", t1.Add(time.Minute), "100"),
	}})

	e, err := f.ledger.AddExpense(dec("5"), pos.ExpenseOther, "", alice)
	require.NoError(t, err)
	assert.Equal(t, pos.ShiftID("late"), e.ShiftID)
}
