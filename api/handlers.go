/*
handlers.go - HTTP API handlers for the till

PURPOSE:
  Exposes the ledger, catalog, customer and discount books and backup
  over a REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Shifts:
    GET    /api/shifts                  Shifts opened in [from, to]
    GET    /api/shifts/active           The open shift, if any
    GET    /api/shifts/history          Closed shifts, latest first
    POST   /api/shifts/open             Open a shift
    POST   /api/shifts/close            Close the open shift
    GET    /api/shifts/{id}/summary     Shift report
    GET    /api/shifts/{id}/expenses    Expenses charged to a shift
    GET    /api/shifts/{id}/sales       Sales recorded in a shift

  Sales, expenses, returns:
    POST   /api/sales                   Record a sale
    GET    /api/sales                   Sales in [from, to] or by user
    GET    /api/sales/top               Best sellers
    POST   /api/expenses                Record an expense
    DELETE /api/expenses/{id}           Delete an expense
    POST   /api/returns                 Create a pending return
    GET    /api/returns                 Returns in [from, to] and refunded total
    GET    /api/returns/pending         Pending returns
    POST   /api/returns/{id}/process    Complete a return
    POST   /api/returns/{id}/reject     Reject a return

  Catalog (ADMIN/MANAGER for writes):
    GET    /api/products                List products
    POST   /api/products                Add a product with variants
    PUT    /api/products/{id}           Replace a product and its variants
    DELETE /api/products/{id}           Delete a product and its variants
    GET    /api/variants/lookup?code=   Find a variant by barcode or SKU
    GET    /api/variants/low-stock      Variants at or below a threshold
    POST   /api/variants/{id}/stock     Adjust stock by a delta

  Customers:
    GET    /api/customers?q=            List or search customers
    GET    /api/customers/top           Customers who spent the most
    POST   /api/customers               Add a customer
    GET    /api/customers/{id}          One customer
    PUT    /api/customers/{id}          Replace contact fields
    DELETE /api/customers/{id}          Delete a customer

  Discounts (ADMIN/MANAGER for rule writes):
    GET    /api/discounts?active=true   List rules, or only those in force
    POST   /api/discounts               Create a rule
    PUT    /api/discounts/{id}          Replace a rule
    DELETE /api/discounts/{id}          Delete a rule
    POST   /api/discounts/{id}/toggle   Switch a rule on or off
    POST   /api/discounts/{id}/redeem   Count one use of a rule
    GET    /api/discounts/coupon/{code} The active rule behind a coupon
    POST   /api/discounts/quote         Price a cart against the rules

  Backup:
    GET    /api/backup                  Export the full document (ADMIN/MANAGER)
    POST   /api/backup                  Import a document (ADMIN)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing or wrong credentials
  - 403: Role not allowed
  - 404: Resource not found
  - 409: Conflict or invalid state (shift already open, no shift open)
  - 422: Insufficient stock or funds
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/cashdrawer/backup"
	"github.com/warp/cashdrawer/catalog"
	"github.com/warp/cashdrawer/customer"
	"github.com/warp/cashdrawer/discount"
	"github.com/warp/cashdrawer/identity"
	"github.com/warp/cashdrawer/ledger"
	"github.com/warp/cashdrawer/pos"
	"github.com/warp/cashdrawer/replication"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Catalog   *catalog.Catalog
	Ledger    *ledger.Ledger
	Customers *customer.Book
	Discounts *discount.Book
	Backup    *backup.Service
	Users     *identity.Directory
	Currency  string

	// Worker is optional; when set, /health reports its counters.
	Worker *replication.Worker
}

// NewHandler creates a handler over the given state with empty customer
// and discount books. Replace both fields, and Backup with them, to share
// books with other components.
func NewHandler(cat *catalog.Catalog, led *ledger.Ledger, users *identity.Directory) *Handler {
	people, rules := customer.New(), discount.New(cat)
	return &Handler{
		Catalog:   cat,
		Ledger:    led,
		Customers: people,
		Discounts: rules,
		Backup:    backup.New(cat, led).WithCustomers(people).WithDiscounts(rules),
		Users:     users,
		Currency:  pos.DefaultCurrency,
	}
}

// actor returns the authenticated user as an attribution snapshot.
func actor(r *http.Request) pos.UserRef {
	u, _ := identity.CurrentUser(r.Context())
	return u.Ref()
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and replication counters.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "shiftOpen": h.Ledger.IsShiftOpen()}
	if h.Worker != nil {
		resp["pending"] = h.Worker.Pending()
		resp["replication"] = h.Worker.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Me returns the authenticated user.
// GET /api/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := identity.CurrentUser(r.Context())
	writeJSON(w, http.StatusOK, UserDTO{ID: u.ID, Name: u.Name, Role: u.Role})
}

// =============================================================================
// SHIFT ENDPOINTS
// =============================================================================

// ListShifts returns shifts opened in the requested range.
// GET /api/shifts?from=2025-03-01&to=2025-03-31
func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.Ledger.ShiftsInRange(from, to)))
}

// GetActiveShift returns the open shift.
// GET /api/shifts/active
func (h *Handler) GetActiveShift(w http.ResponseWriter, r *http.Request) {
	s, ok := h.Ledger.ActiveShift()
	if !ok {
		writeJSON(w, http.StatusOK, ActiveShiftResponse{Open: false})
		return
	}
	writeJSON(w, http.StatusOK, ActiveShiftResponse{Open: true, Shift: &s})
}

// GetShiftHistory returns closed shifts, latest close first.
// GET /api/shifts/history?limit=10
func (h *Handler) GetShiftHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.Ledger.ShiftHistory(limit)))
}

// OpenShift starts a shift.
// POST /api/shifts/open
func (h *Handler) OpenShift(w http.ResponseWriter, r *http.Request) {
	var req OpenShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	startCash, err := pos.ParseAmount(string(req.StartCash))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start cash", err)
		return
	}

	shift, err := h.Ledger.OpenShift(startCash, actor(r))
	if err != nil {
		writeDomainError(w, "Failed to open shift", err)
		return
	}
	writeJSON(w, http.StatusCreated, shift)
}

// CloseShift closes the open shift against the counted cash.
// POST /api/shifts/close
func (h *Handler) CloseShift(w http.ResponseWriter, r *http.Request) {
	var req CloseShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	res, err := h.Ledger.CloseShiftInput(string(req.ActualCash), actor(r))
	if err != nil {
		writeDomainError(w, "Failed to close shift", err)
		return
	}
	writeJSON(w, http.StatusOK, CloseShiftResponse{
		Shift:             res.Shift,
		Expected:          res.Expected,
		Counted:           res.Counted,
		Difference:        res.Difference,
		DifferenceDisplay: pos.FormatAmount(res.Difference, h.Currency),
	})
}

// GetShiftSummary returns the report of one shift.
// GET /api/shifts/{id}/summary
func (h *Handler) GetShiftSummary(w http.ResponseWriter, r *http.Request) {
	id := pos.ShiftID(chi.URLParam(r, "id"))
	sum, err := h.Ledger.Summary(id)
	if err != nil {
		writeDomainError(w, "Failed to get summary", err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(sum, h.Currency))
}

// GET /api/shifts/{id}/expenses
func (h *Handler) GetShiftExpenses(w http.ResponseWriter, r *http.Request) {
	id := pos.ShiftID(chi.URLParam(r, "id"))
	if _, err := h.Ledger.Shift(id); err != nil {
		writeDomainError(w, "Failed to get expenses", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.Ledger.ExpensesForShift(id)))
}

// GET /api/shifts/{id}/sales
func (h *Handler) GetShiftSales(w http.ResponseWriter, r *http.Request) {
	id := pos.ShiftID(chi.URLParam(r, "id"))
	if _, err := h.Ledger.Shift(id); err != nil {
		writeDomainError(w, "Failed to get sales", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.Ledger.SalesForShift(id)))
}

// =============================================================================
// SALE ENDPOINTS
// =============================================================================

// RecordSale records a sale for the authenticated user.
// POST /api/sales
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.CustomerID != "" {
		if _, ok := h.Customers.Get(req.CustomerID); !ok {
			writeDomainError(w, "Failed to record sale", &pos.NotFoundError{Kind: pos.KindCustomer, ID: string(req.CustomerID)})
			return
		}
	}

	sale, err := h.Ledger.RecordSale(req.Items, req.PaymentMethod, actor(r))
	if err != nil {
		writeDomainError(w, "Failed to record sale", err)
		return
	}
	if req.CustomerID != "" {
		// the sale stands even if the customer was deleted meanwhile
		if _, err := h.Customers.RecordPurchase(req.CustomerID, sale.Total); err != nil {
			log.Printf("[api] sale %s not credited to customer %s: %v", sale.ID, req.CustomerID, err)
		}
	}
	writeJSON(w, http.StatusCreated, sale)
}

// ListSales returns sales by user or in a date range.
// GET /api/sales?user=u1  or  GET /api/sales?from=...&to=...
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	if user := r.URL.Query().Get("user"); user != "" {
		writeJSON(w, http.StatusOK, nonNil(h.Ledger.SalesByUser(pos.UserID(user))))
		return
	}
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.Ledger.SalesInRange(from, to)))
}

// GetTopProducts returns best sellers by revenue.
// GET /api/sales/top?limit=5
func (h *Handler) GetTopProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	stats := h.Ledger.TopProducts(limit)
	out := make([]ProductStatDTO, 0, len(stats))
	for _, s := range stats {
		out = append(out, ProductStatDTO{
			ProductID:   s.ProductID,
			ProductName: s.ProductName,
			Quantity:    s.Quantity,
			Revenue:     s.Revenue,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// EXPENSE ENDPOINTS
// =============================================================================

// AddExpense charges an expense to the open shift.
// POST /api/expenses
func (h *Handler) AddExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := pos.ParseAmount(string(req.Amount))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	exp, err := h.Ledger.AddExpense(amount, req.Category, req.Description, actor(r))
	if err != nil {
		writeDomainError(w, "Failed to add expense", err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

// DeleteExpense removes an expense and restores the shift's expected cash.
// DELETE /api/expenses/{id}
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := pos.ExpenseID(chi.URLParam(r, "id"))
	exp, err := h.Ledger.DeleteExpense(id)
	if err != nil {
		writeDomainError(w, "Failed to delete expense", err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// =============================================================================
// RETURN ENDPOINTS
// =============================================================================

// CreateReturn opens a pending return against a sale.
// POST /api/returns
func (h *Handler) CreateReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ret, err := h.Ledger.CreateReturn(req.SaleID, req.Items, req.Reason, req.RefundMethod, req.Notes, actor(r))
	if err != nil {
		writeDomainError(w, "Failed to create return", err)
		return
	}
	writeJSON(w, http.StatusCreated, ret)
}

// ListReturns returns the returns created in a range and the refunds of the
// completed ones.
// GET /api/returns?from=2025-03-01&to=2025-03-31
func (h *Handler) ListReturns(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date range", err)
		return
	}
	total := h.Ledger.TotalRefunds(from, to)
	writeJSON(w, http.StatusOK, ReturnsResponse{
		Returns:             nonNil(h.Ledger.ReturnsInRange(from, to)),
		TotalRefunds:        total,
		TotalRefundsDisplay: pos.FormatAmount(total, h.Currency),
	})
}

// GET /api/returns/pending
func (h *Handler) ListPendingReturns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.Ledger.PendingReturns()))
}

// ProcessReturn restocks the items and pays the refund.
// POST /api/returns/{id}/process
func (h *Handler) ProcessReturn(w http.ResponseWriter, r *http.Request) {
	id := pos.ReturnID(chi.URLParam(r, "id"))
	ret, err := h.Ledger.ProcessReturn(id, actor(r))
	if err != nil {
		writeDomainError(w, "Failed to process return", err)
		return
	}
	writeJSON(w, http.StatusOK, ret)
}

// RejectReturn rejects a pending return.
// POST /api/returns/{id}/reject
func (h *Handler) RejectReturn(w http.ResponseWriter, r *http.Request) {
	id := pos.ReturnID(chi.URLParam(r, "id"))

	var req RejectReturnRequest
	// Body is optional
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	ret, err := h.Ledger.RejectReturn(id, req.Notes, actor(r))
	if err != nil {
		writeDomainError(w, "Failed to reject return", err)
		return
	}
	writeJSON(w, http.StatusOK, ret)
}

// =============================================================================
// CATALOG ENDPOINTS
// =============================================================================

// ListProducts returns every product.
// GET /api/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.Catalog.Products()))
}

// CreateProduct adds a product with its variants. Missing ids are generated.
// POST /api/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Product.ID == "" {
		req.Product.ID = pos.ProductID(uuid.NewString())
	}
	fillVariantIDs(req.Product.ID, req.Variants)

	if err := h.Catalog.AddProduct(req.Product, req.Variants); err != nil {
		writeDomainError(w, "Failed to create product", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.productResponse(req.Product.ID))
}

// UpdateProduct replaces a product and its full variant set.
// PUT /api/products/{id}
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id := pos.ProductID(chi.URLParam(r, "id"))

	var req ProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Product.ID != "" && req.Product.ID != id {
		writeError(w, http.StatusBadRequest, "Product id does not match the URL", nil)
		return
	}
	req.Product.ID = id
	fillVariantIDs(id, req.Variants)

	if err := h.Catalog.UpdateProduct(req.Product, req.Variants); err != nil {
		writeDomainError(w, "Failed to update product", err)
		return
	}
	writeJSON(w, http.StatusOK, h.productResponse(id))
}

// DeleteProduct removes a product and its variants.
// DELETE /api/products/{id}
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id := pos.ProductID(chi.URLParam(r, "id"))
	if err := h.Catalog.DeleteProduct(id); err != nil {
		writeDomainError(w, "Failed to delete product", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LookupVariant finds a variant by barcode or SKU.
// GET /api/variants/lookup?code=1001
func (h *Handler) LookupVariant(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required", nil)
		return
	}
	v, ok := h.Catalog.FindVariantByCode(code)
	if !ok {
		writeError(w, http.StatusNotFound, "Variant not found", fmt.Errorf("no variant with code %q", code))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ListLowStock returns variants at or below the threshold (default 5).
// GET /api/variants/low-stock?threshold=3
func (h *Handler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := 5
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid threshold", err)
			return
		}
		threshold = n
	}
	writeJSON(w, http.StatusOK, nonNil(h.Catalog.LowStock(threshold)))
}

// AdjustStock changes a variant's stock by a signed delta.
// POST /api/variants/{id}/stock
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id := pos.VariantID(chi.URLParam(r, "id"))

	var req StockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Catalog.AdjustStock(id, req.Delta); err != nil {
		writeDomainError(w, "Failed to adjust stock", err)
		return
	}
	v, _ := h.Catalog.FindVariant(id)
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) productResponse(id pos.ProductID) ProductResponse {
	p, _ := h.Catalog.FindProduct(id)
	return ProductResponse{Product: p, Variants: nonNil(h.Catalog.VariantsForProduct(id))}
}

func fillVariantIDs(pid pos.ProductID, variants []pos.Variant) {
	for i := range variants {
		if variants[i].ID == "" {
			variants[i].ID = pos.VariantID(uuid.NewString())
		}
		if variants[i].ProductID == "" {
			variants[i].ProductID = pid
		}
	}
}

// =============================================================================
// CUSTOMER ENDPOINTS
// =============================================================================

// ListCustomers returns every customer, or those matching q.
// GET /api/customers?q=ana
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		writeJSON(w, http.StatusOK, nonNil(h.Customers.Search(q)))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.Customers.Customers()))
}

// GetTopCustomers returns the biggest spenders.
// GET /api/customers/top?limit=10
func (h *Handler) GetTopCustomers(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.Customers.Top(limit)))
}

// GetCustomer returns one customer.
// GET /api/customers/{id}
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id := pos.CustomerID(chi.URLParam(r, "id"))
	c, ok := h.Customers.Get(id)
	if !ok {
		writeDomainError(w, "Customer not found", &pos.NotFoundError{Kind: pos.KindCustomer, ID: string(id)})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CreateCustomer adds a customer.
// POST /api/customers
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req pos.Customer
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	c, err := h.Customers.Add(req)
	if err != nil {
		writeDomainError(w, "Failed to add customer", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateCustomer replaces the contact fields of a customer.
// PUT /api/customers/{id}
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id := pos.CustomerID(chi.URLParam(r, "id"))

	var req pos.Customer
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID != "" && req.ID != id {
		writeError(w, http.StatusBadRequest, "Customer id does not match the URL", nil)
		return
	}
	req.ID = id
	c, err := h.Customers.Update(req)
	if err != nil {
		writeDomainError(w, "Failed to update customer", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteCustomer removes a customer. Recorded sales are kept.
// DELETE /api/customers/{id}
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id := pos.CustomerID(chi.URLParam(r, "id"))
	if err := h.Customers.Delete(id); err != nil {
		writeDomainError(w, "Failed to delete customer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DISCOUNT ENDPOINTS
// =============================================================================

// ListDiscounts returns every rule, or only those in force.
// GET /api/discounts?active=true
func (h *Handler) ListDiscounts(w http.ResponseWriter, r *http.Request) {
	active := false
	if raw := r.URL.Query().Get("active"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid active flag", err)
			return
		}
		active = b
	}
	if active {
		writeJSON(w, http.StatusOK, nonNil(h.Discounts.Active()))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.Discounts.Discounts()))
}

// CreateDiscount adds a rule.
// POST /api/discounts
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	var req pos.Discount
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	d, err := h.Discounts.Create(req)
	if err != nil {
		writeDomainError(w, "Failed to create discount", err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// UpdateDiscount replaces a rule. Its usage count is kept.
// PUT /api/discounts/{id}
func (h *Handler) UpdateDiscount(w http.ResponseWriter, r *http.Request) {
	id := pos.DiscountID(chi.URLParam(r, "id"))

	var req pos.Discount
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID != "" && req.ID != id {
		writeError(w, http.StatusBadRequest, "Discount id does not match the URL", nil)
		return
	}
	req.ID = id
	d, err := h.Discounts.Update(req)
	if err != nil {
		writeDomainError(w, "Failed to update discount", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteDiscount removes a rule.
// DELETE /api/discounts/{id}
func (h *Handler) DeleteDiscount(w http.ResponseWriter, r *http.Request) {
	id := pos.DiscountID(chi.URLParam(r, "id"))
	if err := h.Discounts.Delete(id); err != nil {
		writeDomainError(w, "Failed to delete discount", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ToggleDiscount switches a rule on or off.
// POST /api/discounts/{id}/toggle
func (h *Handler) ToggleDiscount(w http.ResponseWriter, r *http.Request) {
	d, err := h.Discounts.ToggleActive(pos.DiscountID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to toggle discount", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// RedeemDiscount counts one use of a rule against its usage limit.
// POST /api/discounts/{id}/redeem
func (h *Handler) RedeemDiscount(w http.ResponseWriter, r *http.Request) {
	d, err := h.Discounts.IncrementUsage(pos.DiscountID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to redeem discount", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// GetCoupon returns the active rule behind a coupon code.
// GET /api/discounts/coupon/{code}
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	d, err := h.Discounts.ValidateCoupon(chi.URLParam(r, "code"))
	if err != nil {
		writeDomainError(w, "Invalid coupon", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// QuoteCart prices a cart at catalog prices against the discount rules.
// Nothing is recorded and stock is not checked.
// POST /api/discounts/quote
func (h *Handler) QuoteCart(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cart := make([]pos.SaleItem, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			writeDomainError(w, "Failed to quote cart", &pos.ValidationError{Field: "quantity", Message: "must be positive"})
			return
		}
		v, ok := h.Catalog.FindVariant(line.VariantID)
		if !ok {
			writeDomainError(w, "Failed to quote cart", &pos.NotFoundError{Kind: pos.KindVariant, ID: string(line.VariantID)})
			return
		}
		item := pos.SaleItem{VariantID: v.ID, ProductID: v.ProductID, SKU: v.SKU, UnitPrice: v.Price, Quantity: line.Quantity}
		cart = append(cart, item)
		subtotal = subtotal.Add(item.LineTotal())
	}

	applied := h.Discounts.Calculate(cart, req.CouponCode)
	off := discount.Total(applied)
	total := decimal.Max(subtotal.Sub(off), decimal.Zero)
	writeJSON(w, http.StatusOK, QuoteResponse{
		Subtotal:      subtotal,
		Discounts:     nonNil(applied),
		DiscountTotal: off,
		Total:         total,
		TotalDisplay:  pos.FormatAmount(total, h.Currency),
	})
}

// =============================================================================
// BACKUP ENDPOINTS
// =============================================================================

// ExportBackup streams the full document as a download.
// GET /api/backup
func (h *Handler) ExportBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("cashdrawer-backup-%s.json", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := h.Backup.Export(w); err != nil {
		// headers are already sent
		log.Printf("[api] backup export failed: %v", err)
	}
}

// ImportBackup replaces the whole state with the uploaded document.
// POST /api/backup
func (h *Handler) ImportBackup(w http.ResponseWriter, r *http.Request) {
	res, err := h.Backup.Import(r.Body)
	if err != nil {
		writeDomainError(w, "Failed to import backup", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	resp := ErrorResponse{Error: message, Details: err.Error()}

	var stockErr *pos.InsufficientStockError
	if errors.As(err, &stockErr) {
		for _, s := range stockErr.Items {
			resp.Shortages = append(resp.Shortages, ShortageDTO{
				VariantID: s.VariantID,
				Name:      s.Name,
				Available: s.Available,
				Requested: s.Requested,
				Missing:   s.Missing,
			})
		}
	}
	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pos.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, pos.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, pos.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pos.ErrConflict), errors.Is(err, pos.ErrState):
		return http.StatusConflict
	case errors.Is(err, pos.ErrInsufficientStock), errors.Is(err, pos.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// parseRange reads from/to as dates (2006-01-02) or RFC3339 times. A date
// in "to" covers the whole day. Missing bounds are open.
func parseRange(r *http.Request) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

	if raw := r.URL.Query().Get("from"); raw != "" {
		t, _, err := parseTime(raw)
		if err != nil {
			return from, to, fmt.Errorf("from: %w", err)
		}
		from = t
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		t, dateOnly, err := parseTime(raw)
		if err != nil {
			return from, to, fmt.Errorf("to: %w", err)
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		to = t
	}
	return from, to, nil
}

func parseTime(raw string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t, false, err
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("limit must not be negative")
	}
	return n, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
