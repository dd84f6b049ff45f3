package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cashdrawer/pos"
	"github.com/warp/cashdrawer/pos/store"
	"github.com/warp/cashdrawer/pos/store/storetest"
)

func TestMemory_ApplyAndLoad(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	err := m.Apply(ctx,
		pos.Upsert(pos.Product{ID: "p2", Name: "B"}),
		pos.Upsert(pos.Product{ID: "p1", Name: "A"}),
		pos.Upsert(pos.Expense{ID: "e1", Category: pos.ExpenseOther}),
	)
	require.NoError(t, err)
	require.NoError(t, m.Apply(ctx, pos.Delete(pos.KindExpense, "e1")))

	snap, err := m.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Products, 2)
	assert.Equal(t, pos.ProductID("p1"), snap.Products[0].ID)
	assert.Empty(t, snap.Expenses)
	assert.Equal(t, 4, m.Applied())
}

func TestMemory_FailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	m.SetFailure(errors.New("offline"))

	err := m.Apply(ctx, pos.Upsert(pos.Product{ID: "p1"}))
	assert.EqualError(t, err, "offline")
	assert.Equal(t, 0, m.Count(pos.KindProduct))

	m.SetFailure(nil)
	require.NoError(t, m.Apply(ctx, pos.Upsert(pos.Product{ID: "p1"})))
	_, ok := m.Get(pos.KindProduct, "p1")
	assert.True(t, ok)
}

func TestMemory_RejectsUnknownCollection(t *testing.T) {
	m := store.NewMemory()
	err := m.Apply(context.Background(),
		pos.Upsert(pos.Product{ID: "p1"}),
		pos.Change{Op: pos.OpUpsert, Kind: "widgets", ID: "w1"},
	)
	assert.Error(t, err)
	assert.Equal(t, 0, m.Count(pos.KindProduct))
}

func TestMemory_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) pos.Store { return store.NewMemory() })
}
