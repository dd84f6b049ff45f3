// Package storetest holds the behavior every pos.Store implementation must
// share. Each store package runs it against its own backend.
package storetest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cashdrawer/pos"
)

// Sample returns one record of every collection, each list sorted by id.
func Sample() pos.Snapshot {
	opened := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	closed := opened.Add(8*time.Hour + 30*time.Second)
	actual := decimal.RequireFromString("139.90")
	clerk := pos.UserRef{ID: "u-ana", Name: "Ana"}
	processor := pos.UserRef{ID: "u-boss", Name: "Boss"}
	lastPurchase := opened.Add(time.Hour)

	item := pos.SaleItem{
		VariantID: "v1", ProductID: "p1", ProductName: "Shirt", SKU: "SH-R-M",
		UnitPrice: decimal.RequireFromString("20.50"), Quantity: 2, AttributeSummary: "Color: Red, Size: M",
	}
	return pos.Snapshot{
		Products: []pos.Product{{
			ID: "p1", Name: "Shirt", Description: "Cotton", Category: "Clothes",
			Attributes: []pos.Attribute{{Name: "Color", Values: []string{"Red", "Blue"}}},
			BasePrice:  decimal.RequireFromString("20.50"),
		}},
		Variants: []pos.Variant{{
			ID: "v1", ProductID: "p1", SKU: "SH-R-M", Barcode: "775000001", Price: decimal.RequireFromString("20.50"),
			Stock: 7, AttributeSummary: "Color: Red, Size: M", AttributeValues: map[string]string{"Color": "Red", "Size": "M"},
		}},
		Shifts: []pos.Shift{
			{
				ID: "s1", OpenedAt: opened, ClosedAt: &closed, StartCash: decimal.NewFromInt(100),
				EndCashExpected: decimal.RequireFromString("141"), EndCashActual: &actual,
				Status: pos.ShiftClosed, OpenedBy: clerk, ClosedBy: &processor,
			},
			{
				ID: "s2", OpenedAt: closed.Add(time.Hour), StartCash: decimal.NewFromInt(50),
				EndCashExpected: decimal.NewFromInt(50), Status: pos.ShiftOpen, OpenedBy: clerk,
			},
		},
		Sales: []pos.Sale{{
			ID: "sa1", Timestamp: opened.Add(time.Hour), Total: decimal.NewFromInt(41), Items: []pos.SaleItem{item},
			PaymentMethod: pos.PaymentCash, ShiftID: "s1", User: clerk,
		}},
		Expenses: []pos.Expense{{
			ID: "e1", ShiftID: "s1", Amount: decimal.RequireFromString("0.10"), Category: pos.ExpenseSupplies,
			Description: "tape", Timestamp: opened.Add(2 * time.Hour), User: clerk,
		}},
		Returns: []pos.Return{{
			ID: "r1", SaleID: "sa1", Items: []pos.SaleItem{item}, Reason: "size", RefundAmount: decimal.NewFromInt(41),
			RefundMethod: pos.PaymentCard, Status: pos.ReturnCompleted, Notes: "ok", Timestamp: opened.Add(3 * time.Hour),
			User: clerk, ProcessedBy: &processor,
		}},
		Customers: []pos.Customer{{
			ID: "c1", Name: "Lucia", Email: "lucia@example.com", Phone: "999111222",
			TotalPurchases: 1, TotalSpent: decimal.NewFromInt(41), CreatedAt: opened.Add(-24 * time.Hour),
			LastPurchaseAt: &lastPurchase,
		}},
		Discounts: []pos.Discount{
			{
				ID: "d1", Name: "Summer", Type: pos.DiscountPercentage, Value: decimal.NewFromInt(10),
				Scope: pos.ScopeCategory, CategoryNames: []string{"Clothes"}, MinPurchase: decimal.NewFromInt(20),
				MaxDiscount: decimal.RequireFromString("5.50"), ValidFrom: &opened, ValidUntil: &closed,
				Active: true, CreatedAt: opened,
			},
			{
				ID: "d2", Name: "Welcome", Type: pos.DiscountFixed, Value: decimal.NewFromInt(3),
				Scope: pos.ScopeProduct, ProductIDs: []pos.ProductID{"p1"}, CouponCode: "HELLO",
				MinPurchase: decimal.Zero, MaxDiscount: decimal.Zero, UsageLimit: 100, UsageCount: 4, CreatedAt: opened,
			},
		},
	}
}

// Run exercises the Store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) pos.Store) {
	t.Run("EmptyLoad", func(t *testing.T) {
		s := newStore(t)
		snap, err := s.Load(context.Background())
		require.NoError(t, err)
		assert.Empty(t, snap.Changes())
	})

	t.Run("RoundTrip", func(t *testing.T) {
		// GIVEN: One record of every collection
		// WHEN: Applying and loading them back
		// THEN: The loaded snapshot equals the written one
		ctx := context.Background()
		s := newStore(t)
		want := Sample()

		require.NoError(t, s.Apply(ctx, want.Changes()...))
		got, err := s.Load(ctx)
		require.NoError(t, err)

		assertSameJSON(t, want, got)
	})

	t.Run("UpsertReplacesWholeRecord", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		sample := Sample()
		require.NoError(t, s.Apply(ctx, sample.Changes()...))

		open := sample.Shifts[1]
		open.EndCashExpected = decimal.NewFromInt(75)
		v := sample.Variants[0]
		v.Stock = 3
		v.AttributeValues = nil
		require.NoError(t, s.Apply(ctx, pos.Upsert(open), pos.Upsert(v)))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		require.Len(t, got.Shifts, 2)
		assert.True(t, got.Shifts[1].EndCashExpected.Equal(decimal.NewFromInt(75)))
		require.Len(t, got.Variants, 1)
		assert.Equal(t, 3, got.Variants[0].Stock)
		assert.Empty(t, got.Variants[0].AttributeValues)
	})

	t.Run("Delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Apply(ctx, Sample().Changes()...))

		require.NoError(t, s.Apply(ctx,
			pos.Delete(pos.KindExpense, "e1"),
			pos.Delete(pos.KindVariant, "v1"),
			pos.Delete(pos.KindExpense, "never-existed"),
		))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, got.Expenses)
		assert.Empty(t, got.Variants)
		assert.Len(t, got.Products, 1)
	})

	t.Run("ShiftClosingFieldsAreOptional", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		require.NoError(t, s.Apply(ctx, pos.Upsert(Sample().Shifts[1])))

		got, err := s.Load(ctx)
		require.NoError(t, err)
		require.Len(t, got.Shifts, 1)
		assert.Nil(t, got.Shifts[0].ClosedAt)
		assert.Nil(t, got.Shifts[0].EndCashActual)
		assert.Nil(t, got.Shifts[0].ClosedBy)
		assert.True(t, got.Shifts[0].IsOpen())
	})
}

func assertSameJSON(t *testing.T, want, got any) {
	t.Helper()
	w, err := json.Marshal(want)
	require.NoError(t, err)
	g, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(w), string(g))
}
