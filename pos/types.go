/*
Package pos provides the core types shared by the point-of-sale engine.

PURPOSE:
  This package holds the entities every other package exchanges: catalog
  records (Product, Variant), ledger records (Shift, Sale, Expense, Return)
  and the attribution snapshot (UserRef). Behavior lives elsewhere:
  catalog/ owns stock, ledger/ owns the cash drawer lifecycle.

KEY CONCEPTS IN THIS FILE (types.go):
  - Typed identifiers: prevent mixing a ShiftID with a SaleID
  - UserRef: who did something, captured at the time of the action
  - Shift: one cash drawer session, OPEN then CLOSED
  - Sale / SaleItem: immutable record with price and name snapshots
  - Expense: petty-cash withdrawal against the open shift
  - Return: reversing entity for (part of) a sale
  - Customer: buyer record with running purchase totals
  - Discount: automatic or coupon price reduction rule

DESIGN PRINCIPLES:
  1. Precision: all money is decimal.Decimal, never float64
  2. Snapshots: sale lines copy price/name/attributes, they never follow the catalog
  3. Whole-entity writes: persistence always upserts a complete record

SEE ALSO:
  - errors.go: Error taxonomy
  - store.go: Persistence contract (Store, Change, Snapshot)
  - ledger/ledger.go: Operations over these types
*/
package pos

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProductID string
type VariantID string
type ShiftID string
type SaleID string
type ExpenseID string
type ReturnID string
type CustomerID string
type DiscountID string
type UserID string

// =============================================================================
// ATTRIBUTION
// =============================================================================

// UserRef is an attribution snapshot. It is copied into records at the time
// of the action and is not a live reference to the user directory.
type UserRef struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
}

// SystemUser attributes actions taken by the engine itself, such as the
// auto-close performed by shift repair.
var SystemUser = UserRef{ID: "system", Name: "System"}

func (u UserRef) IsZero() bool { return u.ID == "" }

// =============================================================================
// CATALOG
// =============================================================================

type Attribute struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type Product struct {
	ID          ProductID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Attributes  []Attribute     `json:"attributes"`
	BasePrice   decimal.Decimal `json:"basePrice"`
}

type Variant struct {
	ID               VariantID         `json:"id"`
	ProductID        ProductID         `json:"productId"`
	SKU              string            `json:"sku"`
	Barcode          string            `json:"barcode"`
	Price            decimal.Decimal   `json:"price"`
	Stock            int               `json:"stock"`
	AttributeSummary string            `json:"attributeSummary"` // e.g. "Color: Red, Size: M"
	AttributeValues  map[string]string `json:"attributeValues"`
}

// =============================================================================
// SHIFT
// =============================================================================

type ShiftStatus string

const (
	ShiftOpen   ShiftStatus = "OPEN"
	ShiftClosed ShiftStatus = "CLOSED"
)

type Shift struct {
	ID              ShiftID          `json:"id"`
	OpenedAt        time.Time        `json:"openedAt"`
	ClosedAt        *time.Time       `json:"closedAt"`
	StartCash       decimal.Decimal  `json:"startCash"`
	EndCashExpected decimal.Decimal  `json:"endCashExpected"`
	EndCashActual   *decimal.Decimal `json:"endCashActual"`
	Status          ShiftStatus      `json:"status"`
	OpenedBy        UserRef          `json:"openedBy"`
	ClosedBy        *UserRef         `json:"closedBy"`
}

func (s Shift) IsOpen() bool { return s.Status == ShiftOpen }

// Difference is the counted cash minus the expected cash. Zero while open.
func (s Shift) Difference() decimal.Decimal {
	if s.EndCashActual == nil {
		return decimal.Zero
	}
	return s.EndCashActual.Sub(s.EndCashExpected)
}

// Clone returns a copy that shares no pointers with s.
func (s Shift) Clone() Shift {
	out := s
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		out.ClosedAt = &t
	}
	if s.EndCashActual != nil {
		d := *s.EndCashActual
		out.EndCashActual = &d
	}
	if s.ClosedBy != nil {
		u := *s.ClosedBy
		out.ClosedBy = &u
	}
	return out
}

// =============================================================================
// SALE
// =============================================================================

type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "CASH"
	PaymentCard  PaymentMethod = "CARD"
	PaymentOther PaymentMethod = "OTHER"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentOther:
		return true
	}
	return false
}

// SaleItem is one line of a sale. Name, price and attributes are snapshots.
type SaleItem struct {
	VariantID        VariantID       `json:"variantId"`
	ProductID        ProductID       `json:"productId"`
	ProductName      string          `json:"productName"`
	SKU              string          `json:"sku"`
	UnitPrice        decimal.Decimal `json:"price"`
	Quantity         int             `json:"quantity"`
	AttributeSummary string          `json:"attributeSummary"`
}

func (i SaleItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Sale struct {
	ID            SaleID          `json:"id"`
	Timestamp     time.Time       `json:"timestamp"`
	Total         decimal.Decimal `json:"total"`
	Items         []SaleItem      `json:"items"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	ShiftID       ShiftID         `json:"shiftId,omitempty"` // absent when recorded with no open shift
	User          UserRef         `json:"user"`
}

func (s Sale) Clone() Sale {
	out := s
	out.Items = append([]SaleItem(nil), s.Items...)
	return out
}

// =============================================================================
// EXPENSE
// =============================================================================

type ExpenseCategory string

const (
	ExpenseSupplies  ExpenseCategory = "SUPPLIES"
	ExpenseServices  ExpenseCategory = "SERVICES"
	ExpenseFood      ExpenseCategory = "FOOD"
	ExpenseTransport ExpenseCategory = "TRANSPORT"
	ExpenseSalary    ExpenseCategory = "SALARY"
	ExpenseOther     ExpenseCategory = "OTHER"
)

func (c ExpenseCategory) Valid() bool {
	switch c {
	case ExpenseSupplies, ExpenseServices, ExpenseFood, ExpenseTransport, ExpenseSalary, ExpenseOther:
		return true
	}
	return false
}

type Expense struct {
	ID          ExpenseID       `json:"id"`
	ShiftID     ShiftID         `json:"shiftId"`
	Amount      decimal.Decimal `json:"amount"`
	Category    ExpenseCategory `json:"category"`
	Description string          `json:"description"`
	Timestamp   time.Time       `json:"timestamp"`
	User        UserRef         `json:"user"`
}

// =============================================================================
// RETURN
// =============================================================================

type ReturnStatus string

const (
	ReturnPending   ReturnStatus = "PENDING"
	ReturnCompleted ReturnStatus = "COMPLETED"
	ReturnRejected  ReturnStatus = "REJECTED"
)

type Return struct {
	ID           ReturnID        `json:"id"`
	SaleID       SaleID          `json:"saleId"`
	Items        []SaleItem      `json:"items"`
	Reason       string          `json:"reason"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
	RefundMethod PaymentMethod   `json:"refundMethod"`
	Status       ReturnStatus    `json:"status"`
	Notes        string          `json:"notes,omitempty"`
	ShiftID      ShiftID         `json:"shiftId,omitempty"` // shift charged with a cash refund, set on processing
	Timestamp    time.Time       `json:"timestamp"`
	User         UserRef         `json:"user"`
	ProcessedBy  *UserRef        `json:"processedBy,omitempty"`
}

func (r Return) Clone() Return {
	out := r
	out.Items = append([]SaleItem(nil), r.Items...)
	if r.ProcessedBy != nil {
		u := *r.ProcessedBy
		out.ProcessedBy = &u
	}
	return out
}

// =============================================================================
// CUSTOMERS
// =============================================================================

type Customer struct {
	ID             CustomerID      `json:"id"`
	Name           string          `json:"name"`
	Email          string          `json:"email,omitempty"`
	Phone          string          `json:"phone,omitempty"`
	Address        string          `json:"address,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	TotalPurchases int             `json:"totalPurchases"`
	TotalSpent     decimal.Decimal `json:"totalSpent"`
	CreatedAt      time.Time       `json:"createdAt"`
	LastPurchaseAt *time.Time      `json:"lastPurchaseAt,omitempty"`
}

func (c Customer) Clone() Customer {
	out := c
	if c.LastPurchaseAt != nil {
		t := *c.LastPurchaseAt
		out.LastPurchaseAt = &t
	}
	return out
}

// =============================================================================
// DISCOUNTS
// =============================================================================

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// DiscountScope selects the part of a cart a discount is computed on.
type DiscountScope string

const (
	ScopeCart     DiscountScope = "CART"
	ScopeProduct  DiscountScope = "PRODUCT"
	ScopeCategory DiscountScope = "CATEGORY"
)

func (s DiscountScope) Valid() bool {
	switch s {
	case ScopeCart, ScopeProduct, ScopeCategory:
		return true
	}
	return false
}

// Discount is a price reduction rule. Zero MinPurchase, MaxDiscount and
// UsageLimit mean no limit; nil ValidFrom and ValidUntil leave that side
// of the window open. A discount with a CouponCode only applies when the
// code is presented.
type Discount struct {
	ID            DiscountID      `json:"id"`
	Name          string          `json:"name"`
	Type          DiscountType    `json:"type"`
	Value         decimal.Decimal `json:"value"` // percent for PERCENTAGE, amount for FIXED
	Scope         DiscountScope   `json:"scope"`
	ProductIDs    []ProductID     `json:"productIds,omitempty"`
	CategoryNames []string        `json:"categoryNames,omitempty"`
	CouponCode    string          `json:"couponCode,omitempty"`
	MinPurchase   decimal.Decimal `json:"minPurchase"`
	MaxDiscount   decimal.Decimal `json:"maxDiscount"`
	ValidFrom     *time.Time      `json:"validFrom,omitempty"`
	ValidUntil    *time.Time      `json:"validUntil,omitempty"`
	UsageLimit    int             `json:"usageLimit"`
	UsageCount    int             `json:"usageCount"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func (d Discount) Clone() Discount {
	out := d
	out.ProductIDs = append([]ProductID(nil), d.ProductIDs...)
	out.CategoryNames = append([]string(nil), d.CategoryNames...)
	if d.ValidFrom != nil {
		t := *d.ValidFrom
		out.ValidFrom = &t
	}
	if d.ValidUntil != nil {
		t := *d.ValidUntil
		out.ValidUntil = &t
	}
	return out
}

// AppliedDiscount is one discount computed against a cart.
type AppliedDiscount struct {
	DiscountID   DiscountID      `json:"discountId"`
	DiscountName string          `json:"discountName"`
	Type         DiscountType    `json:"type"`
	Value        decimal.Decimal `json:"value"`
	Amount       decimal.Decimal `json:"amount"`
}
