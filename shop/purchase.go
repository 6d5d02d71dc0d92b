/*
purchase.go - Purchase execution

PURPOSE:
  Validates and executes a purchase. This is the one place in the system
  where two independent balances - inventory and money - must move in
  lockstep, so the whole operation runs inside a single WithTx batch.

EXECUTION ORDER (inside one transaction):
  1. Product lookup          -> NotFoundError
  2. Stock check             -> InsufficientStockError
  3. total = price * quantity
  4. Wallet check            -> InsufficientFundsError
  5. Create Purchase record
  6. Decrement stock, debit wallet, persist both

  Any failure aborts the batch: stock and wallet are never observed in a
  half-updated state.
*/
package shop

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseEngine validates and executes purchases against a TxStore.
type PurchaseEngine struct {
	store TxStore
	clock Clock
}

// NewPurchaseEngine creates a purchase engine using the wall clock.
func NewPurchaseEngine(store TxStore) *PurchaseEngine {
	return NewPurchaseEngineWithClock(store, time.Now)
}

// NewPurchaseEngineWithClock creates a purchase engine with an injected
// clock, for tests that need to control purchase timestamps.
func NewPurchaseEngineWithClock(store TxStore, clock Clock) *PurchaseEngine {
	return &PurchaseEngine{store: store, clock: clock}
}

// Execute performs a purchase of quantity units of the product for the
// account. On success the created Purchase is returned and the stock
// decrement and wallet debit have committed with it atomically.
func (e *PurchaseEngine) Execute(ctx context.Context, accountID, productID string, quantity int) (*Purchase, error) {
	if quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Message: "must be a positive integer"}
	}

	var purchase *Purchase
	err := e.store.WithTx(ctx, func(s Store) error {
		product, err := s.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product.Stock < quantity {
			return &InsufficientStockError{
				ProductID: product.ID,
				Requested: quantity,
				Available: product.Stock,
			}
		}

		account, err := s.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		total := product.Price.Mul(decimal.NewFromInt(int64(quantity)))
		if account.Wallet.LessThan(total) {
			return &InsufficientFundsError{
				AccountID: account.ID,
				Required:  total,
				Available: account.Wallet,
			}
		}

		purchase = &Purchase{
			ID:        uuid.NewString(),
			AccountID: account.ID,
			ProductID: product.ID,
			Quantity:  quantity,
			CreatedAt: e.clock().UTC(),
		}
		if err := s.SavePurchase(ctx, purchase); err != nil {
			return err
		}

		product.Stock -= quantity
		account.Wallet = account.Wallet.Sub(total)
		if err := s.SaveProduct(ctx, product); err != nil {
			return err
		}
		return s.SaveAccount(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return purchase, nil
}
