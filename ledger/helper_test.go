package ledger_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/cashdrawer/catalog"
	"github.com/warp/cashdrawer/ledger"
	"github.com/warp/cashdrawer/pos"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	alice = pos.UserRef{ID: "u-alice", Name: "Alice"}
	bob   = pos.UserRef{ID: "u-bob", Name: "Bob"}
)

// stepClock advances one minute on every read.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

type fixture struct {
	ledger  *ledger.Ledger
	catalog *catalog.Catalog
	clock   *stepClock
	changes []pos.Change
}

func newFixture(t *testing.T, cfg ledger.Config) *fixture {
	t.Helper()
	f := &fixture{
		catalog: catalog.New(),
		clock:   &stepClock{now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)},
	}
	f.ledger = ledger.New(f.catalog, cfg, ledger.WithClock(f.clock.Now), ledger.WithIDs(sequentialIDs()))
	f.ledger.Subscribe(func(c pos.Change) { f.changes = append(f.changes, c) })

	shirt := pos.Product{ID: "p-shirt", Name: "Shirt", Category: "Clothes", BasePrice: dec("20")}
	require.NoError(t, f.catalog.AddProduct(shirt, []pos.Variant{
		{ID: "v-red", ProductID: "p-shirt", SKU: "SH-RED", Barcode: "1001", Price: dec("20"), Stock: 5, AttributeSummary: "Color: Red"},
		{ID: "v-blue", ProductID: "p-shirt", SKU: "SH-BLUE", Barcode: "1002", Price: dec("25"), Stock: 1, AttributeSummary: "Color: Blue"},
	}))
	mug := pos.Product{ID: "p-mug", Name: "Mug", Category: "Home", BasePrice: dec("12.5")}
	require.NoError(t, f.catalog.AddProduct(mug, []pos.Variant{
		{ID: "v-mug", ProductID: "p-mug", SKU: "MUG", Barcode: "2001", Price: dec("12.5"), Stock: 10},
	}))
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func stock(t *testing.T, f *fixture, id pos.VariantID) int {
	t.Helper()
	v, ok := f.catalog.FindVariant(id)
	require.True(t, ok, "variant %s", id)
	return v.Stock
}

func expected(t *testing.T, f *fixture) decimal.Decimal {
	t.Helper()
	s, ok := f.ledger.ActiveShift()
	require.True(t, ok, "a shift should be open")
	return s.EndCashExpected
}

// requireDecimal compares decimals by value, ignoring exponent.
func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}
