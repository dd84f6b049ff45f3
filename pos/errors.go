/*
errors.go - Centralized error types for the point-of-sale engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Ledger and catalog operations return these; the HTTP layer maps them
  to status codes.

ERROR CATEGORIES:
  1. Validation - bad input shape or range (negative opening cash)
  2. State      - operation invalid for the lifecycle (close with none open)
  3. Conflict   - would break the single-open-shift invariant
  4. Stock      - sale exceeds available stock (carries every failing line)
  5. Funds      - expense exceeds expected cash
  6. NotFound   - unknown entity id

USAGE:
  Structured errors unwrap to a sentinel:

    var stock *pos.InsufficientStockError
    if errors.As(err, &stock) {
        for _, s := range stock.Items { ... }
    }
    if errors.Is(err, pos.ErrState) { ... }

SEE ALSO:
  - ledger/ledger.go: Raises these errors
  - api/handlers.go: Maps them to HTTP status
*/
package pos

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation        = errors.New("validation failed")
	ErrState             = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports bad input on one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StateError reports an operation that the current lifecycle state forbids.
type StateError struct {
	Op      string
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StateError) Unwrap() error { return ErrState }

// ConflictError is returned when opening a shift while another is open.
type ConflictError struct {
	OpenShiftID ShiftID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("shift %s is already open", e.OpenShiftID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StockShortage describes one failing sale line.
type StockShortage struct {
	VariantID VariantID
	Name      string
	Available int
	Requested int
	Missing   bool // variant does not exist in the catalog
}

// InsufficientStockError lists every failing line, not just the first.
type InsufficientStockError struct {
	Items []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, s := range e.Items {
		if s.Missing {
			parts = append(parts, fmt.Sprintf("%s: not found", s.VariantID))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: available %d, requested %d", s.Name, s.Available, s.Requested))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InsufficientFundsError reports an expense larger than the expected cash.
type InsufficientFundsError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: expected cash %s, requested %s",
		e.Available.StringFixed(2), e.Requested.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// NotFoundError reports an unknown entity id.
type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// or state, as opposed to an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrState) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientFunds)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
