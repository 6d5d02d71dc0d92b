/*
store.go - Persistence contract for the ledger

PURPOSE:
  Defines the Store interface the engines run against, and the TxStore
  extension that provides atomic multi-record batches. Persistence is an
  injected capability: the engines never know whether they are talking to
  SQLite or the in-memory store.

ATOMICITY CONTRACT:
  TxStore.WithTx runs the given function against a transactional view of the
  store. If the function returns an error, none of its writes are visible to
  anyone, ever. If it returns nil, all of them become visible at once. This
  is the only mechanism by which two balances (stock and wallet) move in
  lockstep.

IMPLEMENTATIONS:
  store/sqlite: SQLite-backed, WAL mode, database transaction per WithTx
  shop/store:   in-memory, copy-on-write per WithTx (tests/dev)
*/
package shop

import "context"

// Store provides durable CRUD access to the ledger entities. Lookups for
// missing ids return a *NotFoundError.
type Store interface {
	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)
	SaveAccount(ctx context.Context, a *Account) error

	GetProduct(ctx context.Context, id string) (*Product, error)
	SaveProduct(ctx context.Context, p *Product) error
	ListProducts(ctx context.Context) ([]Product, error)

	GetPurchase(ctx context.Context, id string) (*Purchase, error)
	SavePurchase(ctx context.Context, p *Purchase) error
	// ListPurchasesByAccount returns the account's purchases in creation order.
	ListPurchasesByAccount(ctx context.Context, accountID string) ([]Purchase, error)

	GetRefund(ctx context.Context, id string) (*RefundRequest, error)
	// GetRefundByPurchase returns the pending request referencing a purchase,
	// or *NotFoundError if there is none. Backs the one-request-per-purchase
	// invariant.
	GetRefundByPurchase(ctx context.Context, purchaseID string) (*RefundRequest, error)
	SaveRefund(ctx context.Context, r *RefundRequest) error
	DeleteRefund(ctx context.Context, id string) error
	ListPendingRefunds(ctx context.Context) ([]RefundRequest, error)
}

// TxStore is a Store whose writes can be grouped into atomic batches.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional view. All writes made
	// through that view commit together when fn returns nil, and are
	// discarded entirely when it returns an error.
	WithTx(ctx context.Context, fn func(s Store) error) error
}
