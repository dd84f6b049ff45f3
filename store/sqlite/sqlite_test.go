package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cashdrawer/pos"
	"github.com/warp/cashdrawer/pos/store/storetest"
	"github.com/warp/cashdrawer/store/sqlite"
)

func newStore(t *testing.T) pos.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, newStore)
}

func TestApply_IsAtomic(t *testing.T) {
	// GIVEN: A batch whose last change is for an unknown collection
	// WHEN: Applying it
	// THEN: Nothing from the batch is written
	ctx := context.Background()
	s := newStore(t)

	err := s.Apply(ctx,
		pos.Upsert(pos.Product{ID: "p1", Name: "Pen"}),
		pos.Change{Op: pos.OpUpsert, Kind: "widgets", ID: "w1"},
	)
	require.Error(t, err)

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Products)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pos.db")

	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.Apply(ctx, storetest.Sample().Changes()...))
	require.NoError(t, s.Close())

	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()
	snap, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Shifts, 2)
	assert.Len(t, snap.Sales, 1)

	require.NoError(t, s.Reset(ctx))
	snap, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Changes())
}
