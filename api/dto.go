/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Entities (shifts,
  sales, expenses, returns, products, variants) are returned as-is since
  they already carry their JSON field names. The types here cover request
  bodies and computed responses.

NAMING CONVENTION:
  - *Request:  Request body types from clients
  - *Response: Computed response wrappers
  - *DTO:      Flattened views of non-entity values

AMOUNTS:
  Money in requests may be sent as a JSON number or a string. Strings
  accept a comma as decimal separator ("12,50"). Responses always carry
  decimal strings, plus a *Display field formatted in the till currency
  where a human reads the value.

SEE ALSO:
  - handlers.go: Uses these types
  - pos/types.go: Entity JSON shapes
*/
package api

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/cashdrawer/identity"
	"github.com/warp/cashdrawer/ledger"
	"github.com/warp/cashdrawer/pos"
)

// =============================================================================
// AMOUNT INPUT
// =============================================================================

// Amount is raw money input, kept unparsed so the handler decides how
// strictly to read it.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a number or a string")
	}
	*a = Amount(n.String())
	return nil
}

// =============================================================================
// SHIFTS
// =============================================================================

type OpenShiftRequest struct {
	StartCash Amount `json:"startCash"`
}

type CloseShiftRequest struct {
	ActualCash Amount `json:"actualCash"`
}

// ActiveShiftResponse reports whether a shift is open.
type ActiveShiftResponse struct {
	Open  bool       `json:"open"`
	Shift *pos.Shift `json:"shift,omitempty"`
}

type CloseShiftResponse struct {
	Shift             pos.Shift       `json:"shift"`
	Expected          decimal.Decimal `json:"expected"`
	Counted           decimal.Decimal `json:"counted"`
	Difference        decimal.Decimal `json:"difference"`
	DifferenceDisplay string          `json:"differenceDisplay"`
}

// SummaryDTO is a shift report.
type SummaryDTO struct {
	Shift           pos.Shift       `json:"shift"`
	SalesCount      int             `json:"salesCount"`
	CashSales       decimal.Decimal `json:"cashSales"`
	CardSales       decimal.Decimal `json:"cardSales"`
	OtherSales      decimal.Decimal `json:"otherSales"`
	ExpenseCount    int             `json:"expenseCount"`
	Expenses        decimal.Decimal `json:"expenses"`
	CashRefunds     decimal.Decimal `json:"cashRefunds"`
	Expected        decimal.Decimal `json:"expected"`
	Difference      decimal.Decimal `json:"difference"`
	ExpectedDisplay string          `json:"expectedDisplay"`
}

func toSummaryDTO(s ledger.ShiftSummary, currency string) SummaryDTO {
	return SummaryDTO{
		Shift:           s.Shift,
		SalesCount:      s.SalesCount,
		CashSales:       s.CashSales,
		CardSales:       s.CardSales,
		OtherSales:      s.OtherSales,
		ExpenseCount:    s.ExpenseCount,
		Expenses:        s.Expenses,
		CashRefunds:     s.CashRefunds,
		Expected:        s.Expected,
		Difference:      s.Difference,
		ExpectedDisplay: pos.FormatAmount(s.Expected, currency),
	}
}

// =============================================================================
// SALES, EXPENSES, RETURNS
// =============================================================================

// SaleRequest records a sale. CustomerID, when set, must name a known
// customer, who is credited with the sale total.
type SaleRequest struct {
	Items         []ledger.LineRequest `json:"items"`
	PaymentMethod pos.PaymentMethod    `json:"paymentMethod"`
	CustomerID    pos.CustomerID       `json:"customerId,omitempty"`
}

type ExpenseRequest struct {
	Amount      Amount              `json:"amount"`
	Category    pos.ExpenseCategory `json:"category"`
	Description string              `json:"description"`
}

type ReturnRequest struct {
	SaleID       pos.SaleID           `json:"saleId"`
	Items        []ledger.LineRequest `json:"items"`
	Reason       string               `json:"reason"`
	RefundMethod pos.PaymentMethod    `json:"refundMethod"`
	Notes        string               `json:"notes"`
}

type RejectReturnRequest struct {
	Notes string `json:"notes"`
}

// ProductStatDTO is one row of the best sellers report.
type ProductStatDTO struct {
	ProductID   pos.ProductID   `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// =============================================================================
// CATALOG
// =============================================================================

// ProductRequest creates or replaces a product with its full variant set.
type ProductRequest struct {
	Product  pos.Product   `json:"product"`
	Variants []pos.Variant `json:"variants"`
}

type ProductResponse struct {
	Product  pos.Product   `json:"product"`
	Variants []pos.Variant `json:"variants"`
}

type StockRequest struct {
	Delta int `json:"delta"`
}

// =============================================================================
// DISCOUNTS
// =============================================================================

// QuoteRequest prices a cart against the discount rules.
type QuoteRequest struct {
	Items      []ledger.LineRequest `json:"items"`
	CouponCode string               `json:"couponCode"`
}

type QuoteResponse struct {
	Subtotal      decimal.Decimal       `json:"subtotal"`
	Discounts     []pos.AppliedDiscount `json:"discounts"`
	DiscountTotal decimal.Decimal       `json:"discountTotal"`
	Total         decimal.Decimal       `json:"total"`
	TotalDisplay  string                `json:"totalDisplay"`
}

// =============================================================================
// USERS & ERRORS
// =============================================================================

type UserDTO struct {
	ID   pos.UserID    `json:"id"`
	Name string        `json:"name"`
	Role identity.Role `json:"role"`
}

// ShortageDTO is one failing line of a rejected sale.
type ShortageDTO struct {
	VariantID pos.VariantID `json:"variantId"`
	Name      string        `json:"name"`
	Available int           `json:"available"`
	Requested int           `json:"requested"`
	Missing   bool          `json:"missing,omitempty"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error     string        `json:"error"`
	Details   string        `json:"details,omitempty"`
	Shortages []ShortageDTO `json:"shortages,omitempty"`
}

// ReturnsResponse lists returns in a date range with the refunded total.
type ReturnsResponse struct {
	Returns             []pos.Return    `json:"returns"`
	TotalRefunds        decimal.Decimal `json:"totalRefunds"`
	TotalRefundsDisplay string          `json:"totalRefundsDisplay"`
}
