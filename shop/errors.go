/*
errors.go - Centralized error types for the storefront core

PURPOSE:
  All business errors in one place. Every failure in this package aborts the
  enclosing transaction fully; none of these are fatal to the process. The
  API layer maps each kind to an HTTP status, the core never renders text.

ERROR CATEGORIES:
  1. Lookup errors     - an id does not resolve
  2. Validation errors - malformed input (non-positive quantity, bad action)
  3. Business errors   - invariant would be violated (stock, funds, window,
                         duplicate refund)

USAGE:
  Callers match with errors.Is against the sentinels, or errors.As against
  the structured types when they need the details:

    if errors.Is(err, shop.ErrInsufficientFunds) { ... }

    var nf *shop.NotFoundError
    if errors.As(err, &nf) { log.Printf("missing %s %s", nf.Entity, nf.ID) }
*/
package shop

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when an entity id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed input, e.g. a non-positive quantity.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock is returned when a purchase asks for more units
	// than the product has in stock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInsufficientFunds is returned when the total price exceeds the
	// account's wallet balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrRefundWindowExpired is returned when a refund is requested for a
	// purchase older than the refund window.
	ErrRefundWindowExpired = errors.New("refund window expired")

	// ErrDuplicateRefund is returned when a purchase already has an
	// outstanding refund request.
	ErrDuplicateRefund = errors.New("refund already requested")

	// ErrInvalidAction is returned when a refund resolution action is
	// neither confirm nor reject.
	ErrInvalidAction = errors.New("invalid action")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which entity was missing.
type NotFoundError struct {
	Entity string // "account", "product", "purchase", "refund"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError describes a malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InsufficientFundsError provides details about a wallet shortage.
type InsufficientFundsError struct {
	AccountID string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for account %s: required %s, available %s",
		e.AccountID, e.Required, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// RefundWindowExpiredError reports a refund request outside the window.
type RefundWindowExpiredError struct {
	PurchaseID  string
	PurchasedAt time.Time
	Window      time.Duration
}

func (e *RefundWindowExpiredError) Error() string {
	return fmt.Sprintf("purchase %s is no longer refundable: made at %s, window %s",
		e.PurchaseID, e.PurchasedAt.Format(time.RFC3339), e.Window)
}

func (e *RefundWindowExpiredError) Unwrap() error { return ErrRefundWindowExpired }

// DuplicateRefundError reports that a purchase already has a pending request.
type DuplicateRefundError struct {
	PurchaseID string
	ExistingID string
}

func (e *DuplicateRefundError) Error() string {
	return fmt.Sprintf("purchase %s already has refund request %s", e.PurchaseID, e.ExistingID)
}

func (e *DuplicateRefundError) Unwrap() error { return ErrDuplicateRefund }

// InvalidActionError reports an unrecognized resolution action.
type InvalidActionError struct {
	Action string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid refund action %q: must be %q or %q",
		e.Action, ActionConfirm, ActionReject)
}

func (e *InvalidActionError) Unwrap() error { return ErrInvalidAction }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError returns true if the error is due to the caller's input or
// state rather than a storage failure. The API layer uses this to choose
// between 4xx and 500.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrRefundWindowExpired) ||
		errors.Is(err, ErrDuplicateRefund) ||
		errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrNotFound)
}
