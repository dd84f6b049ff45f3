package catalog_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cashdrawer/catalog"
	"github.com/warp/cashdrawer/pos"
)

func seeded(t *testing.T) (*catalog.Catalog, *[]pos.Change) {
	t.Helper()
	c := catalog.New()
	var changes []pos.Change
	c.Subscribe(func(ch pos.Change) { changes = append(changes, ch) })

	require.NoError(t, c.AddProduct(
		pos.Product{ID: "p-cap", Name: "Cap", BasePrice: decimal.NewFromInt(15)},
		[]pos.Variant{
			{ID: "v-cap-s", ProductID: "p-cap", SKU: "CAP-S", Barcode: "7750001", Price: decimal.NewFromInt(15), Stock: 4},
			{ID: "v-cap-l", ProductID: "p-cap", SKU: "CAP-L", Barcode: "7750002", Price: decimal.NewFromInt(16), Stock: 0},
		},
	))
	require.NoError(t, c.AddProduct(
		pos.Product{ID: "p-bag", Name: "Bag", BasePrice: decimal.NewFromInt(30)},
		[]pos.Variant{{ID: "v-bag", ProductID: "p-bag", SKU: "BAG", Price: decimal.NewFromInt(30), Stock: 2}},
	))
	return c, &changes
}

func TestAddProduct_EmitsProductThenVariants(t *testing.T) {
	_, changes := seeded(t)

	require.Len(t, *changes, 5)
	assert.Equal(t, pos.KindProduct, (*changes)[0].Kind)
	assert.Equal(t, pos.KindVariant, (*changes)[1].Kind)
	assert.Equal(t, pos.KindVariant, (*changes)[2].Kind)
}

func TestAddProduct_Validation(t *testing.T) {
	c, _ := seeded(t)

	tests := []struct {
		name     string
		product  pos.Product
		variants []pos.Variant
	}{
		{"duplicate product", pos.Product{ID: "p-cap", Name: "Cap"}, nil},
		{"empty name", pos.Product{ID: "p-x", Name: "  "}, nil},
		{"foreign variant", pos.Product{ID: "p-x", Name: "X"}, []pos.Variant{{ID: "v-x", ProductID: "p-other"}}},
		{"duplicate variant id", pos.Product{ID: "p-x", Name: "X"}, []pos.Variant{{ID: "v-cap-s", ProductID: "p-x"}}},
		{"negative stock", pos.Product{ID: "p-x", Name: "X"}, []pos.Variant{{ID: "v-x", ProductID: "p-x", Stock: -1}}},
		{"negative price", pos.Product{ID: "p-x", Name: "X"}, []pos.Variant{{ID: "v-x", ProductID: "p-x", Price: decimal.NewFromInt(-1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.AddProduct(tt.product, tt.variants)
			assert.ErrorIs(t, err, pos.ErrValidation)
		})
	}
	assert.Len(t, c.Products(), 2)
}

func TestUpdateProduct_DropsMissingVariants(t *testing.T) {
	c, changes := seeded(t)
	*changes = nil

	small, _ := c.FindVariant("v-cap-s")
	small.Price = decimal.NewFromInt(18)
	err := c.UpdateProduct(pos.Product{ID: "p-cap", Name: "Cap", BasePrice: decimal.NewFromInt(18)}, []pos.Variant{small})
	require.NoError(t, err)

	_, ok := c.FindVariant("v-cap-l")
	assert.False(t, ok)
	got, _ := c.FindVariant("v-cap-s")
	assert.True(t, got.Price.Equal(decimal.NewFromInt(18)))
	assert.Contains(t, *changes, pos.Delete(pos.KindVariant, "v-cap-l"))
}

func TestUpdateProduct_UnknownOrStolenVariant(t *testing.T) {
	c, _ := seeded(t)

	err := c.UpdateProduct(pos.Product{ID: "p-none", Name: "None"}, nil)
	assert.ErrorIs(t, err, pos.ErrNotFound)

	err = c.UpdateProduct(pos.Product{ID: "p-cap", Name: "Cap"}, []pos.Variant{{ID: "v-bag", ProductID: "p-cap"}})
	assert.ErrorIs(t, err, pos.ErrValidation)
}

func TestDeleteProduct_Cascades(t *testing.T) {
	c, _ := seeded(t)

	require.NoError(t, c.DeleteProduct("p-cap"))

	assert.Empty(t, c.VariantsForProduct("p-cap"))
	assert.Len(t, c.Variants(), 1)
	assert.ErrorIs(t, c.DeleteProduct("p-cap"), pos.ErrNotFound)
	assert.ErrorIs(t, c.DeleteVariant("v-cap-s"), pos.ErrNotFound)
	assert.NoError(t, c.DeleteVariant("v-bag"))
}

func TestAdjustStock(t *testing.T) {
	c, changes := seeded(t)
	*changes = nil

	require.NoError(t, c.AdjustStock("v-cap-s", -4))
	v, _ := c.FindVariant("v-cap-s")
	assert.Equal(t, 0, v.Stock)

	err := c.AdjustStock("v-cap-s", -1)
	assert.ErrorIs(t, err, pos.ErrValidation, "stock never goes negative")

	require.NoError(t, c.AdjustStock("v-cap-s", 0))
	assert.Len(t, *changes, 1, "zero delta emits nothing")

	assert.ErrorIs(t, c.AdjustStock("v-none", 1), pos.ErrNotFound)
}

func TestFindVariantByCode(t *testing.T) {
	c, _ := seeded(t)

	v, ok := c.FindVariantByCode("7750002")
	require.True(t, ok)
	assert.Equal(t, pos.VariantID("v-cap-l"), v.ID)

	v, ok = c.FindVariantByCode(" bag ")
	require.True(t, ok)
	assert.Equal(t, pos.VariantID("v-bag"), v.ID)

	_, ok = c.FindVariantByCode("")
	assert.False(t, ok)
}

func TestLowStockAndListing(t *testing.T) {
	c, _ := seeded(t)

	low := c.LowStock(2)
	require.Len(t, low, 2)
	assert.Equal(t, pos.VariantID("v-cap-l"), low[0].ID)
	assert.Equal(t, pos.VariantID("v-bag"), low[1].ID)

	products := c.Products()
	require.Len(t, products, 2)
	assert.Equal(t, "Bag", products[0].Name)
}

func TestReplaceIsSilentRestoreIsNot(t *testing.T) {
	c, changes := seeded(t)
	*changes = nil
	snap := pos.Snapshot{
		Products: []pos.Product{{ID: "p-new", Name: "New"}},
		Variants: []pos.Variant{{ID: "v-new", ProductID: "p-new", Stock: 1}},
	}

	c.Replace(snap)
	assert.Empty(t, *changes)
	assert.Len(t, c.Products(), 1)

	c.Restore(snap)
	assert.Len(t, *changes, 2)
}
