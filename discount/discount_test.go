package discount_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cashdrawer/catalog"
	"github.com/warp/cashdrawer/discount"
	"github.com/warp/cashdrawer/pos"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// newBook returns a book over a catalog holding a drinkware mug and an
// apparel tee. Ids are assigned d1, d2 and so on, one second apart.
func newBook(t *testing.T) *discount.Book {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, cat.AddProduct(
		pos.Product{ID: "p-mug", Name: "Mug", Category: "Drinkware", BasePrice: dec("10")},
		[]pos.Variant{{ID: "v-mug", ProductID: "p-mug", SKU: "MUG", Price: dec("10"), Stock: 9}},
	))
	require.NoError(t, cat.AddProduct(
		pos.Product{ID: "p-tee", Name: "Tee", Category: "Apparel", BasePrice: dec("30")},
		[]pos.Variant{{ID: "v-tee", ProductID: "p-tee", SKU: "TEE", Price: dec("30"), Stock: 9}},
	))

	n := 0
	clock := now
	return discount.New(cat,
		discount.WithClock(func() time.Time { clock = clock.Add(time.Second); return clock }),
		discount.WithIDs(func() string { n++; return fmt.Sprintf("d%d", n) }),
	)
}

func cart() []pos.SaleItem {
	return []pos.SaleItem{
		{VariantID: "v-mug", ProductID: "p-mug", UnitPrice: dec("10"), Quantity: 2},
		{VariantID: "v-tee", ProductID: "p-tee", UnitPrice: dec("30"), Quantity: 1},
	}
}

func TestCreate_Validation(t *testing.T) {
	b := newBook(t)
	_, err := b.Create(pos.Discount{Name: "Spring", Type: pos.DiscountFixed, Value: dec("5"), Scope: pos.ScopeCart, CouponCode: "SPRING", Active: true})
	require.NoError(t, err)

	tests := []struct {
		name string
		d    pos.Discount
	}{
		{"empty name", pos.Discount{Type: pos.DiscountFixed, Value: dec("1"), Scope: pos.ScopeCart}},
		{"unknown type", pos.Discount{Name: "X", Type: "BOGO", Value: dec("1"), Scope: pos.ScopeCart}},
		{"unknown scope", pos.Discount{Name: "X", Type: pos.DiscountFixed, Value: dec("1"), Scope: "STORE"}},
		{"zero value", pos.Discount{Name: "X", Type: pos.DiscountFixed, Scope: pos.ScopeCart}},
		{"over 100 percent", pos.Discount{Name: "X", Type: pos.DiscountPercentage, Value: dec("101"), Scope: pos.ScopeCart}},
		{"product scope without products", pos.Discount{Name: "X", Type: pos.DiscountFixed, Value: dec("1"), Scope: pos.ScopeProduct}},
		{"category scope without categories", pos.Discount{Name: "X", Type: pos.DiscountFixed, Value: dec("1"), Scope: pos.ScopeCategory}},
		{"negative cap", pos.Discount{Name: "X", Type: pos.DiscountFixed, Value: dec("1"), Scope: pos.ScopeCart, MaxDiscount: dec("-1")}},
		{"coupon taken in another case", pos.Discount{Name: "X", Type: pos.DiscountFixed, Value: dec("1"), Scope: pos.ScopeCart, CouponCode: "spring"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Create(tt.d)
			assert.ErrorIs(t, err, pos.ErrValidation)
		})
	}
	assert.Len(t, b.Discounts(), 1)
}

func TestCalculate_Scopes(t *testing.T) {
	// GIVEN: A cart of 2 mugs at 10 and 1 tee at 30, total 50
	tests := []struct {
		name string
		d    pos.Discount
		want string
	}{
		{"cart percentage", pos.Discount{Type: pos.DiscountPercentage, Value: dec("10"), Scope: pos.ScopeCart}, "5"},
		{"cart percentage capped", pos.Discount{Type: pos.DiscountPercentage, Value: dec("50"), Scope: pos.ScopeCart, MaxDiscount: dec("8")}, "8"},
		{"product fixed", pos.Discount{Type: pos.DiscountFixed, Value: dec("4"), Scope: pos.ScopeProduct, ProductIDs: []pos.ProductID{"p-mug"}}, "4"},
		{"fixed never exceeds its base", pos.Discount{Type: pos.DiscountFixed, Value: dec("25"), Scope: pos.ScopeProduct, ProductIDs: []pos.ProductID{"p-mug"}}, "20"},
		{"category percentage", pos.Discount{Type: pos.DiscountPercentage, Value: dec("15"), Scope: pos.ScopeCategory, CategoryNames: []string{"Apparel"}}, "4.5"},
		{"percentage rounds to cents", pos.Discount{Type: pos.DiscountPercentage, Value: dec("33.333"), Scope: pos.ScopeCart}, "16.67"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBook(t)
			tt.d.Name, tt.d.Active = tt.name, true
			_, err := b.Create(tt.d)
			require.NoError(t, err)

			// WHEN: Pricing the cart without a coupon
			applied := b.Calculate(cart(), "")

			// THEN: The single automatic rule yields the expected amount
			require.Len(t, applied, 1)
			assert.True(t, applied[0].Amount.Equal(dec(tt.want)), "got %s", applied[0].Amount)
		})
	}
}

func TestCalculate_SkipsRulesThatEarnNothing(t *testing.T) {
	b := newBook(t)
	for _, d := range []pos.Discount{
		{Name: "big spender", Type: pos.DiscountFixed, Value: dec("10"), Scope: pos.ScopeCart, MinPurchase: dec("100"), Active: true},
		{Name: "no shoes here", Type: pos.DiscountFixed, Value: dec("10"), Scope: pos.ScopeCategory, CategoryNames: []string{"Shoes"}, Active: true},
		{Name: "switched off", Type: pos.DiscountFixed, Value: dec("10"), Scope: pos.ScopeCart},
		{Name: "expired", Type: pos.DiscountFixed, Value: dec("10"), Scope: pos.ScopeCart, Active: true, ValidUntil: &now},
	} {
		_, err := b.Create(d)
		require.NoError(t, err)
	}

	assert.Empty(t, b.Calculate(cart(), ""))
}

func TestCalculate_CouponAddsToAutomaticRules(t *testing.T) {
	// GIVEN: An automatic 10% cart rule and a coupon worth 5
	b := newBook(t)
	auto, err := b.Create(pos.Discount{Name: "Everyday", Type: pos.DiscountPercentage, Value: dec("10"), Scope: pos.ScopeCart, Active: true})
	require.NoError(t, err)
	coupon, err := b.Create(pos.Discount{Name: "Hello", Type: pos.DiscountFixed, Value: dec("5"), Scope: pos.ScopeCart, CouponCode: "HELLO", Active: true})
	require.NoError(t, err)

	// WHEN: Pricing without, then with the coupon in lower case
	without := b.Calculate(cart(), "")
	with := b.Calculate(cart(), "hello")
	unknown := b.Calculate(cart(), "NOPE")

	// THEN: The coupon rule only appears when presented
	require.Len(t, without, 1)
	assert.Equal(t, auto.ID, without[0].DiscountID)
	require.Len(t, with, 2)
	assert.Equal(t, coupon.ID, with[1].DiscountID)
	assert.True(t, discount.Total(with).Equal(dec("10")))
	assert.Len(t, unknown, 1)
}

func TestValidateCoupon(t *testing.T) {
	b := newBook(t)
	d, err := b.Create(pos.Discount{Name: "Hello", Type: pos.DiscountFixed, Value: dec("5"), Scope: pos.ScopeCart, CouponCode: "HELLO", Active: true, UsageLimit: 1})
	require.NoError(t, err)

	got, err := b.ValidateCoupon(" Hello ")
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.ID)

	_, err = b.ValidateCoupon("BYE")
	assert.ErrorIs(t, err, pos.ErrNotFound)

	// A used-up coupon is no longer active
	used, err := b.IncrementUsage(d.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, used.UsageCount)
	_, err = b.ValidateCoupon("HELLO")
	assert.ErrorIs(t, err, pos.ErrNotFound)
}

func TestToggleActiveAndUpdate(t *testing.T) {
	b := newBook(t)
	var changes []pos.Change
	b.Subscribe(func(c pos.Change) { changes = append(changes, c) })

	d, err := b.Create(pos.Discount{Name: "Everyday", Type: pos.DiscountFixed, Value: dec("2"), Scope: pos.ScopeCart, Active: true})
	require.NoError(t, err)
	_, err = b.IncrementUsage(d.ID)
	require.NoError(t, err)

	off, err := b.ToggleActive(d.ID)
	require.NoError(t, err)
	assert.False(t, off.Active)
	assert.Empty(t, b.Active())

	// Update keeps the usage count
	d.Value = dec("3")
	updated, err := b.Update(d)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.UsageCount)
	assert.True(t, updated.Active)

	require.NoError(t, b.Delete(d.ID))
	_, err = b.ToggleActive(d.ID)
	assert.ErrorIs(t, err, pos.ErrNotFound)
	assert.Len(t, changes, 5)
	assert.Equal(t, pos.KindDiscount, changes[4].Kind)
}

func TestSnapshotSwapRestore(t *testing.T) {
	b := newBook(t)
	_, err := b.Create(pos.Discount{Name: "Everyday", Type: pos.DiscountFixed, Value: dec("2"), Scope: pos.ScopeCart, Active: true})
	require.NoError(t, err)
	snap := b.Snapshot()
	require.Len(t, snap.Discounts, 1)

	assert.True(t, b.Swap(func() (pos.Snapshot, bool) { return pos.Snapshot{}, true }))
	assert.Empty(t, b.Discounts())

	b.Restore(snap)
	assert.Len(t, b.Discounts(), 1)
}
