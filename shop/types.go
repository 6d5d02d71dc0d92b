/*
Package shop contains the transactional core of the storefront.

PURPOSE:
  This package holds the entities and the two engines that are allowed to
  mutate balances: the purchase engine (debits a wallet and decrements stock)
  and the refund engine (reverses a purchase on staff approval). Everything
  around it - routing, auth, rendering - is plumbing that calls into here.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account:       a user with a money wallet
  - Product:       a sellable item with a price and a stock count
  - Purchase:      an immutable record linking an account to a product
  - RefundRequest: a pending request to reverse exactly one purchase

DESIGN PRINCIPLES:
  1. Precision:   decimal.Decimal for all money, never float64
  2. Immutability: purchases are created once and never mutated
  3. Atomicity:   balance changes only happen inside Store.WithTx batches

SEE ALSO:
  - purchase.go: purchase execution
  - refund.go:   refund request/resolution
  - store.go:    persistence contract
  - errors.go:   error taxonomy
*/
package shop

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundWindow is how long after a purchase a refund may still be requested.
// A purchase made exactly RefundWindow ago is no longer refundable.
const RefundWindow = 3 * time.Minute

// Clock supplies the current time. Engines take one so tests can pin it.
type Clock func() time.Time

// =============================================================================
// ACCOUNT
// =============================================================================

// Account is a registered user with a money wallet. The wallet is mutated
// only by the purchase engine (debit) and the refund engine (credit) and
// never goes negative.
type Account struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	Wallet       decimal.Decimal
	Staff        bool
	CreatedAt    time.Time
}

// =============================================================================
// PRODUCT
// =============================================================================

// Product is a sellable item. Stock never goes negative: the purchase engine
// checks before decrementing and the refund engine only ever increments.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// PURCHASE
// =============================================================================

// Purchase links one account to one product with a quantity. It is created
// atomically with the stock decrement and wallet debit, and never mutated
// afterwards. At most one RefundRequest may reference it at a time.
type Purchase struct {
	ID        string
	AccountID string
	ProductID string
	Quantity  int
	CreatedAt time.Time
}

// RefundableAt reports whether a refund may still be requested at the given
// time. The window is half-open: a purchase made exactly RefundWindow ago is
// not refundable.
func (p *Purchase) RefundableAt(now time.Time) bool {
	return now.Sub(p.CreatedAt) < RefundWindow
}

// =============================================================================
// REFUND REQUEST
// =============================================================================

// RefundRequest is a pending request to reverse one purchase. It is deleted
// when staff resolve it, whichever way; there is no history of resolved
// refunds.
type RefundRequest struct {
	ID         string
	PurchaseID string
	CreatedAt  time.Time
}

// ResolveAction is the staff decision on a pending refund request.
type ResolveAction string

const (
	ActionConfirm ResolveAction = "confirm"
	ActionReject  ResolveAction = "reject"
)
