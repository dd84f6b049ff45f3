/*
handlers_test.go - HTTP tests for the till API

Tests for:
- Authentication and role checks
- Shift open/sale/expense/close flow and status mapping
- Catalog writes and lookups
- Customers, discount rules and cart quotes
- Backup export/import
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cashdrawer/api"
	"github.com/warp/cashdrawer/catalog"
	"github.com/warp/cashdrawer/identity"
	"github.com/warp/cashdrawer/ledger"
	"github.com/warp/cashdrawer/pos"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	*httptest.Server
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	handler *api.Handler
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

func newServer(t *testing.T, cfg ledger.Config) *testServer {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, cat.AddProduct(
		pos.Product{ID: "p-mug", Name: "Mug", BasePrice: decimal.RequireFromString("12.5")},
		[]pos.Variant{{ID: "v-mug", ProductID: "p-mug", SKU: "MUG", Barcode: "2001", Price: decimal.RequireFromString("12.5"), Stock: 3}},
	))
	led := ledger.New(cat, cfg, ledger.WithIDs(sequentialIDs()))

	users := identity.NewDirectory().WithCost(bcrypt.MinCost)
	require.NoError(t, users.Add(identity.User{ID: "admin", Name: "Admin", Role: identity.RoleAdmin, Active: true}, "secret"))
	require.NoError(t, users.Add(identity.User{ID: "ana", Name: "Ana", Role: identity.RoleSeller, Active: true}, "pw"))

	h := api.NewHandler(cat, led, users)
	h.Currency = "USD"
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, catalog: cat, ledger: led, handler: h}
}

var passwords = map[string]string{"admin": "secret", "ana": "pw"}

// do sends a request as user ("" for anonymous) and returns status and body.
func (s *testServer) do(t *testing.T, user, method, path string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(t, err)
	if user != "" {
		req.SetBasicAuth(user, passwords[user])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got.String())
}

// =============================================================================
// AUTH
// =============================================================================

func TestHealth_IsPublic(t *testing.T) {
	s := newServer(t, ledger.DefaultConfig())
	status, body := s.do(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestAuth_RejectsMissingAndWrongCredentials(t *testing.T) {
	s := newServer(t, ledger.DefaultConfig())

	status, _ := s.do(t, "", http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	passwords["mallory"] = "guess"
	defer delete(passwords, "mallory")
	status, _ = s.do(t, "mallory", http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := s.do(t, "ana", http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, status)
	me := decode[api.UserDTO](t, body)
	assert.Equal(t, identity.RoleSeller, me.Role)
}

// =============================================================================
// SHIFT FLOW
// =============================================================================

func TestShiftFlow_OpenSellSpendClose(t *testing.T) {
	// GIVEN: A till with 3 mugs at 12.50
	s := newServer(t, ledger.DefaultConfig())

	// WHEN: Ana opens with 100, sells 2 mugs for cash, spends 20 and counts 120,50
	status, body := s.do(t, "ana", http.MethodPost, "/api/shifts/open", `{"startCash": 100}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	shift := decode[pos.Shift](t, body)
	assert.Equal(t, pos.UserID("ana"), shift.OpenedBy.ID)

	status, body = s.do(t, "ana", http.MethodPost, "/api/sales", api.SaleRequest{
		Items:         []ledger.LineRequest{{VariantID: "v-mug", Quantity: 2}},
		PaymentMethod: pos.PaymentCash,
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	sale := decode[pos.Sale](t, body)
	assert.Equal(t, shift.ID, sale.ShiftID)
	requireDecimal(t, "25", sale.Total)

	status, body = s.do(t, "ana", http.MethodPost, "/api/expenses", `{"amount": "20", "category": "FOOD", "description": "lunch"}`)
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = s.do(t, "ana", http.MethodGet, "/api/shifts/"+string(shift.ID)+"/summary", nil)
	require.Equal(t, http.StatusOK, status)
	sum := decode[api.SummaryDTO](t, body)
	requireDecimal(t, "105", sum.Expected)
	assert.Equal(t, "$105.00", sum.ExpectedDisplay)

	status, body = s.do(t, "ana", http.MethodPost, "/api/shifts/close", `{"actualCash": "120,50"}`)
	require.Equal(t, http.StatusOK, status, string(body))

	// THEN: The close reports a surplus of 15.50 and no shift is open
	closed := decode[api.CloseShiftResponse](t, body)
	requireDecimal(t, "105", closed.Expected)
	requireDecimal(t, "15.5", closed.Difference)
	assert.Equal(t, "$15.50", closed.DifferenceDisplay)

	status, body = s.do(t, "ana", http.MethodGet, "/api/shifts/active", nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, decode[api.ActiveShiftResponse](t, body).Open)

	status, body = s.do(t, "ana", http.MethodGet, "/api/shifts/history", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]pos.Shift](t, body), 1)
}

func TestOpenShift_ConflictWhenAlreadyOpen(t *testing.T) {
	s := newServer(t, ledger.DefaultConfig())
	status, _ := s.do(t, "ana", http.MethodPost, "/api/shifts/open", `{"startCash": "50"}`)
	require.Equal(t, http.StatusCreated, status)

	status, body := s.do(t, "admin", http.MethodPost, "/api/shifts/open", `{"startCash": "10"}`)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, decode[api.ErrorResponse](t, body).Details, "already open")
}

func TestCloseShift_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		cfg    ledger.Config
		open   bool
		body   string
		status int
	}{
		{"no shift open", ledger.DefaultConfig(), false, `{"actualCash": "10"}`, http.StatusConflict},
		{"coerced garbage", ledger.DefaultConfig(), true, `{"actualCash": "abc"}`, http.StatusOK},
		{"strict garbage", ledger.Config{ClosePolicy: ledger.CloseStrict}, true, `{"actualCash": "abc"}`, http.StatusBadRequest},
		{"strict garbage, no shift open", ledger.Config{ClosePolicy: ledger.CloseStrict}, false, `{"actualCash": "abc"}`, http.StatusConflict},
		{"bad body", ledger.DefaultConfig(), true, `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t, tt.cfg)
			if tt.open {
				status, _ := s.do(t, "ana", http.MethodPost, "/api/shifts/open", `{"startCash": 10}`)
				require.Equal(t, http.StatusCreated, status)
			}
			status, _ := s.do(t, "ana", http.MethodPost, "/api/shifts/close", tt.body)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestRecordSale_InsufficientStockListsShortages(t *testing.T) {
	s := newServer(t, ledger.DefaultConfig())

	status, body := s.do(t, "ana", http.MethodPost, "/api/sales", api.SaleRequest{
		Items:         []ledger.LineRequest{{VariantID: "v-mug", Quantity: 5}, {VariantID: "v-ghost", Quantity: 1}},
		PaymentMethod: pos.PaymentCard,
	})

	assert.Equal(t, http.StatusUnprocessableEntity, status)
	resp := decode[api.ErrorResponse](t, body)
	require.Len(t, resp.Shortages, 2)
	assert.Equal(t, 3, resp.Shortages[0].Available)
	assert.True(t, resp.Shortages[1].Missing)

	v, _ := s.catalog.FindVariant("v-mug")
	assert.Equal(t, 3, v.Stock)
}

func TestExpense_Errors(t *testing.T) {
	s := newServer(t, ledger.DefaultConfig())

	status, _ := s.do(t, "ana", http.MethodPost, "/api/expenses", `{"amount": 5, "category": "FOOD"}`)
	assert.Equal(t, http.StatusConflict, status, "no shift open")

	status, _ = s.do(t, "ana", http.MethodPost, "/api/shifts/open", `{"startCash": 10}`)
	require.Equal(t, http.StatusCreated, status)

	status, _ = s.do(t, "ana", http.MethodPost, "/api/expenses", `{"amount": 50, "category": "FOOD"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, status, "over expected cash")

	status, _ = s.do(t, "ana", http.MethodPost, "/api/expenses", `{"amount": 5, "category": "TOYS"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, "ana", http.MethodDelete, "/api/expenses/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestDeleteExpense_RestoresExpected(t *testing.T) {
	s := newServer(t, ledger.DefaultConfig())
	s.do(t, "ana", http.MethodPost, "/api/shifts/open", `{"startCash": 100}`)
	_, body := s.do(t, "ana", http.MethodPost, "/api/expenses", `{"amount": 20, "category": "OTHER"}`)
	exp := decode[pos.Expense](t, body)

	status, _ := s.do(t, "ana", http.MethodDelete, "/api/expenses/"+string(exp.ID), nil)
	require.Equal(t, http.StatusOK, status)

	active, _ := s.ledger.ActiveShift()
	requireDecimal(t, "100", active.EndCashExpected)
}

// =============================================================================
// RETURNS
// =============================================================================

func TestReturnFlow_ProcessRefundsCash(t *testing.T) {
	s := newServer(t, ledger.DefaultConfig())
	s.do(t, "ana", http.MethodPost, "/api/shifts/open", `{"startCash": 10}`)
	_, body := s.do(t, "ana", http.MethodPost, "/api/sales", api.SaleRequest{
		Items:         []ledger.LineRequest{{VariantID: "v-mug", Quantity: 2}},
		PaymentMethod: pos.PaymentCash,
	})
	sale := decode[pos.Sale](t, body)

	status, body := s.do(t, "ana", http.MethodPost, "/api/returns", api.ReturnRequest{
		SaleID:       sale.ID,
		Items:        []ledger.LineRequest{{VariantID: "v-mug", Quantity: 1}},
		Reason:       "chipped",
		RefundMethod: pos.PaymentCash,
	})
	require.Equal(t, http.StatusCreated, status, string(body))
	ret := decode[pos.Return](t, body)

	_, body = s.do(t, "ana", http.MethodGet, "/api/returns/pending", nil)
	assert.Len(t, decode[[]pos.Return](t, body), 1)

	status, _ = s.do(t, "ana", http.MethodPost, "/api/returns/"+string(ret.ID)+"/process", nil)
	require.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, "ana", http.MethodPost, "/api/returns/"+string(ret.ID)+"/reject", nil)
	assert.Equal(t, http.StatusConflict, status, "already processed")

	v, _ := s.catalog.FindVariant("v-mug")
	assert.Equal(t, 2, v.Stock)
	active, _ := s.ledger.ActiveShift()
	requireDecimal(t, "22.5", active.EndCashExpected)

	status, body = s.do(t, "ana", http.MethodGet, "/api/returns", nil)
	require.Equal(t, http.StatusOK, status)
	listed := decode[api.ReturnsResponse](t, body)
	assert.Len(t, listed.Returns, 1)
	requireDecimal(t, "12.5", listed.TotalRefunds)

	status, _ = s.do(t, "ana", http.MethodGet, "/api/returns?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestCreateProduct_RequiresManager(t *testing.T) {
	s := newServer(t, ledger.DefaultConfig())
	req := api.ProductRequest{
		Product:  pos.Product{Name: "Cap", BasePrice: decimal.NewFromInt(15)},
		Variants: []pos.Variant{{SKU: "CAP-1", Barcode: "3001", Price: decimal.NewFromInt(15), Stock: 4}},
	}

	status, _ := s.do(t, "ana", http.MethodPost, "/api/products", req)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := s.do(t, "admin", http.MethodPost, "/api/products", req)
	require.Equal(t, http.StatusCreated, status, string(body))
	created := decode[api.ProductResponse](t, body)
	assert.NotEmpty(t, created.Product.ID)
	require.Len(t, created.Variants, 1)
	assert.Equal(t, created.Product.ID, created.Variants[0].ProductID)

	status, body = s.do(t, "ana", http.MethodGet, "/api/variants/lookup?code=3001", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "CAP-1", decode[pos.Variant](t, body).SKU)
}

func TestCatalogEndpoints(t *testing.T) {
	s := newServer(t, ledger.DefaultConfig())

	status, _ := s.do(t, "ana", http.MethodGet, "/api/variants/lookup?code=nope", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body := s.do(t, "admin", http.MethodPost, "/api/variants/v-mug/stock", `{"delta": -3}`)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, 0, decode[pos.Variant](t, body).Stock)

	status, _ = s.do(t, "admin", http.MethodPost, "/api/variants/v-mug/stock", `{"delta": -1}`)
	assert.Equal(t, http.StatusBadRequest, status, "stock would go negative")

	_, body = s.do(t, "ana", http.MethodGet, "/api/variants/low-stock?threshold=0", nil)
	assert.Len(t, decode[[]pos.Variant](t, body), 1)

	status, _ = s.do(t, "admin", http.MethodPut, "/api/products/p-other", api.ProductRequest{Product: pos.Product{Name: "X"}})
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = s.do(t, "admin", http.MethodDelete, "/api/products/p-mug", nil)
	assert.Equal(t, http.StatusNoContent, status)
	_, ok := s.catalog.FindVariant("v-mug")
	assert.False(t, ok)
}

// =============================================================================
// BACKUP
// =============================================================================

// =============================================================================
// CUSTOMERS & DISCOUNTS
// =============================================================================

func TestCustomerEndpoints(t *testing.T) {
	s := newServer(t, ledger.DefaultConfig())

	status, body := s.do(t, "ana", http.MethodPost, "/api/customers", `{"name": "Bea", "email": "bea@shop.io"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	bea := decode[pos.Customer](t, body)
	require.NotEmpty(t, bea.ID)

	status, _ = s.do(t, "ana", http.MethodPost, "/api/customers", `{"name": "", "email": "x"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, "ana", http.MethodGet, "/api/customers?q=SHOP", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]pos.Customer](t, body), 1)

	status, body = s.do(t, "ana", http.MethodPut, "/api/customers/"+string(bea.ID), `{"name": "Beatriz"}`)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, "Beatriz", decode[pos.Customer](t, body).Name)

	status, _ = s.do(t, "ana", http.MethodPut, "/api/customers/"+string(bea.ID), `{"id": "other", "name": "X"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, "ana", http.MethodDelete, "/api/customers/"+string(bea.ID), nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = s.do(t, "ana", http.MethodGet, "/api/customers/"+string(bea.ID), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRecordSale_CreditsCustomer(t *testing.T) {
	// GIVEN: An open shift and a known customer
	s := newServer(t, ledger.DefaultConfig())
	s.do(t, "ana", http.MethodPost, "/api/shifts/open", `{"startCash": 10}`)
	bea, err := s.handler.Customers.Add(pos.Customer{Name: "Bea"})
	require.NoError(t, err)

	// WHEN: Selling 2 mugs to her, then trying a sale for an unknown customer
	status, body := s.do(t, "ana", http.MethodPost, "/api/sales", api.SaleRequest{
		Items:         []ledger.LineRequest{{VariantID: "v-mug", Quantity: 2}},
		PaymentMethod: pos.PaymentCash,
		CustomerID:    bea.ID,
	})
	require.Equal(t, http.StatusCreated, status, string(body))

	status, _ = s.do(t, "ana", http.MethodPost, "/api/sales", api.SaleRequest{
		Items:         []ledger.LineRequest{{VariantID: "v-mug", Quantity: 1}},
		PaymentMethod: pos.PaymentCash,
		CustomerID:    "nobody",
	})

	// THEN: She is credited with 25 and the second sale is refused before it touches stock
	assert.Equal(t, http.StatusNotFound, status)
	got, _ := s.handler.Customers.Get(bea.ID)
	assert.Equal(t, 1, got.TotalPurchases)
	requireDecimal(t, "25", got.TotalSpent)
	v, _ := s.catalog.FindVariant("v-mug")
	assert.Equal(t, 1, v.Stock)

	status, body = s.do(t, "ana", http.MethodGet, "/api/customers/top?limit=1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, bea.ID, decode[[]pos.Customer](t, body)[0].ID)
}

func TestDiscountEndpoints_QuoteWithCoupon(t *testing.T) {
	// GIVEN: A manager-created automatic 10% rule and a mug coupon worth 3
	s := newServer(t, ledger.DefaultConfig())
	status, _ := s.do(t, "ana", http.MethodPost, "/api/discounts", `{"name": "Everyday", "type": "PERCENTAGE", "value": 10, "scope": "CART", "active": true}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, body := s.do(t, "admin", http.MethodPost, "/api/discounts", `{"name": "Everyday", "type": "PERCENTAGE", "value": 10, "scope": "CART", "active": true}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	status, body = s.do(t, "admin", http.MethodPost, "/api/discounts", `{"name": "Mug day", "type": "FIXED", "value": "3", "scope": "PRODUCT", "productIds": ["p-mug"], "couponCode": "MUG3", "active": true}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	mugDay := decode[pos.Discount](t, body)

	status, _ = s.do(t, "admin", http.MethodPost, "/api/discounts", `{"name": "Bad", "type": "PERCENTAGE", "value": 150, "scope": "CART"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	// WHEN: Ana checks the coupon and quotes 2 mugs with it
	status, _ = s.do(t, "ana", http.MethodGet, "/api/discounts/coupon/mug3", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(t, "ana", http.MethodGet, "/api/discounts/coupon/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.do(t, "ana", http.MethodPost, "/api/discounts/quote", api.QuoteRequest{
		Items:      []ledger.LineRequest{{VariantID: "v-mug", Quantity: 2}},
		CouponCode: "mug3",
	})
	require.Equal(t, http.StatusOK, status, string(body))

	// THEN: 25 less 2.50 and 3 is 19.50
	q := decode[api.QuoteResponse](t, body)
	requireDecimal(t, "25", q.Subtotal)
	require.Len(t, q.Discounts, 2)
	requireDecimal(t, "5.5", q.DiscountTotal)
	requireDecimal(t, "19.5", q.Total)
	assert.Equal(t, "$19.50", q.TotalDisplay)

	status, _ = s.do(t, "ana", http.MethodPost, "/api/discounts/quote", `{"items": [{"variantId": "v-none", "quantity": 1}]}`)
	assert.Equal(t, http.StatusNotFound, status)

	// Switching the coupon rule off takes it out of the active list
	status, body = s.do(t, "admin", http.MethodPost, "/api/discounts/"+string(mugDay.ID)+"/toggle", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	status, body = s.do(t, "ana", http.MethodGet, "/api/discounts?active=true", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]pos.Discount](t, body), 1)
	status, body = s.do(t, "ana", http.MethodGet, "/api/discounts", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]pos.Discount](t, body), 2)
}

func TestRedeemDiscount_HonorsUsageLimit(t *testing.T) {
	s := newServer(t, ledger.DefaultConfig())
	d, err := s.handler.Discounts.Create(pos.Discount{Name: "Once", Type: pos.DiscountFixed, Value: decimal.NewFromInt(1), Scope: pos.ScopeCart, CouponCode: "ONCE", UsageLimit: 1, Active: true})
	require.NoError(t, err)

	status, body := s.do(t, "ana", http.MethodPost, "/api/discounts/"+string(d.ID)+"/redeem", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, 1, decode[pos.Discount](t, body).UsageCount)

	status, _ = s.do(t, "ana", http.MethodGet, "/api/discounts/coupon/ONCE", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = s.do(t, "ana", http.MethodPost, "/api/discounts/missing/redeem", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestBackup_ExportAndImport(t *testing.T) {
	src := newServer(t, ledger.DefaultConfig())
	src.do(t, "ana", http.MethodPost, "/api/shifts/open", `{"startCash": 40}`)

	status, doc := src.do(t, "admin", http.MethodGet, "/api/backup", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(doc), `"version": "3"`)

	dst := newServer(t, ledger.DefaultConfig())
	status, _ = dst.do(t, "ana", http.MethodPost, "/api/backup", string(doc))
	assert.Equal(t, http.StatusForbidden, status)

	status, body := dst.do(t, "admin", http.MethodPost, "/api/backup", string(doc))
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Contains(t, string(body), `"shifts":1`)
	assert.True(t, dst.ledger.IsShiftOpen())

	status, _ = dst.do(t, "admin", http.MethodPost, "/api/backup", `{"version": "1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}
