package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cashdrawer/ledger"
	"github.com/warp/cashdrawer/pos"
)

// =============================================================================
// SHIFT STATE MACHINE
// =============================================================================

func TestOpenShift_SetsExpectedToStartCash(t *testing.T) {
	f := newFixture(t, ledger.DefaultConfig())

	shift, err := f.ledger.OpenShift(dec("100"), alice)
	require.NoError(t, err)

	assert.Equal(t, pos.ShiftOpen, shift.Status)
	requireDecimal(t, "100", shift.EndCashExpected)
	assert.Nil(t, shift.ClosedAt)
	assert.Nil(t, shift.EndCashActual)
	assert.Equal(t, alice, shift.OpenedBy)

	active, ok := f.ledger.ActiveShift()
	require.True(t, ok)
	assert.Equal(t, shift.ID, active.ID)
}

func TestOpenShift_SecondOpenIsConflict(t *testing.T) {
	// GIVEN: A shift is already open
	// WHEN: Opening another one
	// THEN: ConflictError naming the open shift, and nothing changes
	f := newFixture(t, ledger.DefaultConfig())
	first, err := f.ledger.OpenShift(dec("100"), alice)
	require.NoError(t, err)

	_, err = f.ledger.OpenShift(dec("50"), bob)

	var conflict *pos.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first.ID, conflict.OpenShiftID)
	assert.ErrorIs(t, err, pos.ErrConflict)
	assert.Len(t, f.ledger.Snapshot().Shifts, 1)
}

func TestOpenShift_Validation(t *testing.T) {
	f := newFixture(t, ledger.DefaultConfig())

	_, err := f.ledger.OpenShift(dec("-1"), alice)
	assert.ErrorIs(t, err, pos.ErrValidation, "negative start cash")

	_, err = f.ledger.OpenShift(dec("100"), pos.UserRef{})
	assert.ErrorIs(t, err, pos.ErrValidation, "missing acting user")

	assert.False(t, f.ledger.IsShiftOpen())
	assert.Empty(t, f.changes)
}

func TestOpenShift_ZeroStartCashIsAllowed(t *testing.T) {
	f := newFixture(t, ledger.DefaultConfig())
	shift, err := f.ledger.OpenShift(dec("0"), alice)
	require.NoError(t, err)
	requireDecimal(t, "0", shift.EndCashExpected)
}

func TestCloseShift_Reconciliation(t *testing.T) {
	// GIVEN: Shift opened with 100 and one cash sale of 50 (expected 150)
	// WHEN: Closing with 140 counted
	// THEN: Difference is -10, shift CLOSED, endCashActual 140
	f := newFixture(t, ledger.DefaultConfig())
	_, err := f.ledger.OpenShift(dec("100"), alice)
	require.NoError(t, err)

	// 4 x Mug @ 12.5
	_, err = f.ledger.RecordSale([]ledger.LineRequest{{VariantID: "v-mug", Quantity: 4}}, pos.PaymentCash, alice)
	require.NoError(t, err)
	requireDecimal(t, "150", expected(t, f))

	res, err := f.ledger.CloseShift(dec("140"), bob)
	require.NoError(t, err)

	requireDecimal(t, "-10", res.Difference)
	requireDecimal(t, "150", res.Expected)
	requireDecimal(t, "140", res.Counted)
	assert.Equal(t, pos.ShiftClosed, res.Shift.Status)
	require.NotNil(t, res.Shift.EndCashActual)
	requireDecimal(t, "140", *res.Shift.EndCashActual)
	requireDecimal(t, "-10", res.Shift.Difference())
	require.NotNil(t, res.Shift.ClosedAt)
	require.NotNil(t, res.Shift.ClosedBy)
	assert.Equal(t, bob, *res.Shift.ClosedBy)

	assert.False(t, f.ledger.IsShiftOpen())
	stored, err := f.ledger.Shift(res.Shift.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.ShiftClosed, stored.Status)
}

func TestCloseShift_NoOpenShiftIsStateError(t *testing.T) {
	f := newFixture(t, ledger.DefaultConfig())
	_, err := f.ledger.CloseShift(dec("10"), alice)
	assert.ErrorIs(t, err, pos.ErrState)
}

func TestCloseShift_CoercesBadInputToZero(t *testing.T) {
	f := newFixture(t, ledger.DefaultConfig())
	_, err := f.ledger.OpenShift(dec("30"), alice)
	require.NoError(t, err)

	counted, err := f.ledger.ParseCountedCash("not a number")
	require.NoError(t, err)
	requireDecimal(t, "0", counted)

	res, err := f.ledger.CloseShift(dec("-5"), alice)
	require.NoError(t, err)
	requireDecimal(t, "0", *res.Shift.EndCashActual)
	requireDecimal(t, "-30", res.Difference)
}

func TestCloseShift_StrictPolicyRejectsBadInput(t *testing.T) {
	f := newFixture(t, ledger.Config{ClosePolicy: ledger.CloseStrict})
	_, err := f.ledger.OpenShift(dec("30"), alice)
	require.NoError(t, err)

	_, err = f.ledger.ParseCountedCash("abc")
	assert.ErrorIs(t, err, pos.ErrValidation)

	_, err = f.ledger.CloseShift(dec("-1"), alice)
	assert.ErrorIs(t, err, pos.ErrValidation)
	assert.True(t, f.ledger.IsShiftOpen(), "a rejected close leaves the shift open")
}

func TestCloseShiftInput_StateCheckedBeforeInput(t *testing.T) {
	f := newFixture(t, ledger.Config{ClosePolicy: ledger.CloseStrict})

	_, err := f.ledger.CloseShiftInput("abc", alice)
	assert.ErrorIs(t, err, pos.ErrState)

	_, err = f.ledger.OpenShift(dec("30"), alice)
	require.NoError(t, err)
	_, err = f.ledger.CloseShiftInput("abc", alice)
	assert.ErrorIs(t, err, pos.ErrValidation)

	res, err := f.ledger.CloseShiftInput("1,030.00", alice)
	require.NoError(t, err)
	requireDecimal(t, "1000", res.Difference)
}

func TestParseCountedCash_AcceptsCommaDecimal(t *testing.T) {
	f := newFixture(t, ledger.DefaultConfig())
	d, err := f.ledger.ParseCountedCash(" 140,50 ")
	require.NoError(t, err)
	requireDecimal(t, "140.5", d)
}

func TestShift_ClosedIsFollowedByFreshOpen(t *testing.T) {
	// Single-open invariant across a sequence of successful open/close calls.
	f := newFixture(t, ledger.DefaultConfig())
	for i := 0; i < 3; i++ {
		_, err := f.ledger.OpenShift(dec("10"), alice)
		require.NoError(t, err)
		assert.Equal(t, 1, countOpen(f.ledger.Snapshot().Shifts))

		_, err = f.ledger.CloseShift(dec("10"), alice)
		require.NoError(t, err)
		assert.Equal(t, 0, countOpen(f.ledger.Snapshot().Shifts))
	}
	assert.Len(t, f.ledger.ShiftHistory(0), 3)
	assert.Len(t, f.ledger.ShiftHistory(2), 2)
}

func TestCloseShift_EmitsClosingSnapshot(t *testing.T) {
	f := newFixture(t, ledger.DefaultConfig())
	_, err := f.ledger.OpenShift(dec("10"), alice)
	require.NoError(t, err)
	res, err := f.ledger.CloseShift(dec("10"), alice)
	require.NoError(t, err)

	last := f.changes[len(f.changes)-1]
	assert.Equal(t, pos.OpUpsert, last.Op)
	assert.Equal(t, pos.KindShift, last.Kind)
	emitted := last.Entity.(pos.Shift)
	assert.Equal(t, res.Shift.ID, emitted.ID)
	assert.Equal(t, pos.ShiftClosed, emitted.Status)
}

func countOpen(shifts []pos.Shift) int {
	n := 0
	for _, s := range shifts {
		if s.IsOpen() {
			n++
		}
	}
	return n
}
