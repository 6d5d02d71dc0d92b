/*
refund.go - Refund request and resolution

PURPOSE:
  A refund is a two-step workflow. A customer requests one while the
  purchase is still inside the refund window, which only creates a pending
  RefundRequest - no balances move. Staff later resolve the request:
  confirm reverses the purchase's effects atomically, reject just deletes
  the request.

LIFECYCLE:
  No Refund -> (Request, within window) -> Pending
  Pending   -> (Resolve confirm)        -> Reversed  [terminal]
  Pending   -> (Resolve reject)         -> No Refund [terminal, purchase stands]

  A purchase outside the window never leaves No Refund.

CONCURRENCY:
  Two confirmations racing on the same request are mutually exclusive: the
  deletion of the request inside the same transaction as the credit is the
  de-facto lock. The loser observes NotFoundError.
*/
package shop

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundEngine validates refund eligibility and reverses purchases on
// staff approval.
type RefundEngine struct {
	store TxStore
	clock Clock
}

// NewRefundEngine creates a refund engine using the wall clock.
func NewRefundEngine(store TxStore) *RefundEngine {
	return NewRefundEngineWithClock(store, time.Now)
}

// NewRefundEngineWithClock creates a refund engine with an injected clock,
// for tests that need to move time past the refund window.
func NewRefundEngineWithClock(store TxStore, clock Clock) *RefundEngine {
	return &RefundEngine{store: store, clock: clock}
}

// Request creates a pending refund request for a purchase. The eligibility
// check, the duplicate check and the insert all run in one transaction so a
// second concurrent request for the same purchase cannot slip through.
func (e *RefundEngine) Request(ctx context.Context, purchaseID string) (*RefundRequest, error) {
	var request *RefundRequest
	err := e.store.WithTx(ctx, func(s Store) error {
		purchase, err := s.GetPurchase(ctx, purchaseID)
		if err != nil {
			return err
		}

		now := e.clock()
		if !purchase.RefundableAt(now) {
			return &RefundWindowExpiredError{
				PurchaseID:  purchase.ID,
				PurchasedAt: purchase.CreatedAt,
				Window:      RefundWindow,
			}
		}

		existing, err := s.GetRefundByPurchase(ctx, purchaseID)
		if err == nil {
			return &DuplicateRefundError{PurchaseID: purchaseID, ExistingID: existing.ID}
		}
		if !IsNotFound(err) {
			return err
		}

		request = &RefundRequest{
			ID:         uuid.NewString(),
			PurchaseID: purchase.ID,
			CreatedAt:  now.UTC(),
		}
		return s.SaveRefund(ctx, request)
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// Resolve applies a staff decision to a pending refund request.
//
// Reject deletes the request and nothing else. Confirm restores the
// product's stock by the purchased quantity, credits the wallet, and
// deletes the request - all in one transaction, so a crash can never leave
// the balances credited with the request still pending, or vice versa.
//
// The credit uses the product's current price, not the price paid at
// purchase time. Deliberate; see DESIGN.md.
func (e *RefundEngine) Resolve(ctx context.Context, refundID string, action ResolveAction) error {
	switch action {
	case ActionConfirm, ActionReject:
	default:
		return &InvalidActionError{Action: string(action)}
	}

	return e.store.WithTx(ctx, func(s Store) error {
		refund, err := s.GetRefund(ctx, refundID)
		if err != nil {
			return err
		}

		if action == ActionReject {
			return s.DeleteRefund(ctx, refund.ID)
		}

		purchase, err := s.GetPurchase(ctx, refund.PurchaseID)
		if err != nil {
			return err
		}
		product, err := s.GetProduct(ctx, purchase.ProductID)
		if err != nil {
			return err
		}
		account, err := s.GetAccount(ctx, purchase.AccountID)
		if err != nil {
			return err
		}

		credit := product.Price.Mul(decimal.NewFromInt(int64(purchase.Quantity)))
		product.Stock += purchase.Quantity
		account.Wallet = account.Wallet.Add(credit)

		if err := s.SaveProduct(ctx, product); err != nil {
			return err
		}
		if err := s.SaveAccount(ctx, account); err != nil {
			return err
		}
		return s.DeleteRefund(ctx, refund.ID)
	})
}
