/*
Package sqlite provides a SQLite-backed implementation of shop.TxStore.

PURPOSE:
  Implements the ledger store on SQLite. In production the same patterns
  apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  accounts:        registered users with wallet balances
  products:        sellable items with price and stock
  purchases:       immutable purchase records
  refund_requests: pending refunds, at most one per purchase

INVARIANT ENFORCEMENT:
  The unique index on refund_requests.purchase_id backs the
  one-request-per-purchase invariant at the storage level; a constraint
  violation is surfaced as shop.ErrDuplicateRefund. Stock and wallet
  invariants are enforced by the engines inside WithTx batches.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite is opened with WAL
  (Write-Ahead Logging): multiple readers don't block, single writer at
  a time, better crash recovery. With PostgreSQL, database-level
  concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/storefront.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - shop/store.go: interface definitions
  - shop/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/storefront/shop"
)

// Store implements shop.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		wallet TEXT NOT NULL,
		staff BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price TEXT NOT NULL,
		stock INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Hot path: the customer cabinet lists an account's purchases
	CREATE INDEX IF NOT EXISTS idx_purchases_account
		ON purchases(account_id, created_at);

	CREATE TABLE IF NOT EXISTS refund_requests (
		id TEXT PRIMARY KEY,
		purchase_id TEXT NOT NULL REFERENCES purchases(id),
		created_at TEXT NOT NULL
	);

	-- CRITICAL: a purchase can have at most one outstanding refund request
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_refund_purchase
		ON refund_requests(purchase_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the query helpers can
// run inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *Store) GetAccount(ctx context.Context, id string) (*shop.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, "id", id)
}

func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*shop.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, "username", username)
}

func (s *Store) SaveAccount(ctx context.Context, a *shop.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAccount(ctx, s.db, a)
}

func getAccount(ctx context.Context, db dbtx, column, value string) (*shop.Account, error) {
	var (
		a         shop.Account
		wallet    string
		createdAt string
	)

	err := db.QueryRowContext(ctx,
		"SELECT id, username, display_name, password_hash, wallet, staff, created_at FROM accounts WHERE "+column+" = ?",
		value,
	).Scan(&a.ID, &a.Username, &a.DisplayName, &a.PasswordHash, &wallet, &a.Staff, &createdAt)

	if err == sql.ErrNoRows {
		return nil, &shop.NotFoundError{Entity: "account", ID: value}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	a.Wallet = parseDecimal(wallet)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

func saveAccount(ctx context.Context, db dbtx, a *shop.Account) error {
	query := `
		INSERT INTO accounts (id, username, display_name, password_hash, wallet, staff, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			password_hash = excluded.password_hash,
			wallet = excluded.wallet,
			staff = excluded.staff
	`

	_, err := db.ExecContext(ctx, query,
		a.ID, a.Username, a.DisplayName, a.PasswordHash,
		a.Wallet.String(), a.Staff,
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

func (s *Store) GetProduct(ctx context.Context, id string) (*shop.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProduct(ctx, s.db, id)
}

func (s *Store) SaveProduct(ctx context.Context, p *shop.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveProduct(ctx, s.db, p)
}

func (s *Store) ListProducts(ctx context.Context) ([]shop.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listProducts(ctx, s.db)
}

func getProduct(ctx context.Context, db dbtx, id string) (*shop.Product, error) {
	var (
		p                    shop.Product
		price                string
		createdAt, updatedAt string
	)

	err := db.QueryRowContext(ctx,
		"SELECT id, name, description, price, stock, created_at, updated_at FROM products WHERE id = ?",
		id,
	).Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, &shop.NotFoundError{Entity: "product", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	p.Price = parseDecimal(price)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

func saveProduct(ctx context.Context, db dbtx, p *shop.Product) error {
	query := `
		INSERT INTO products (id, name, description, price, stock, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			stock = excluded.stock,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		p.ID, p.Name, p.Description, p.Price.String(), p.Stock,
		p.CreatedAt.UTC().Format(time.RFC3339),
		p.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

func listProducts(ctx context.Context, db dbtx) ([]shop.Product, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, name, description, price, stock, created_at, updated_at FROM products ORDER BY created_at ASC, rowid ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []shop.Product
	for rows.Next() {
		var (
			p                    shop.Product
			price                string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &price, &p.Stock, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		p.Price = parseDecimal(price)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		products = append(products, p)
	}
	return products, rows.Err()
}

// =============================================================================
// PURCHASES
// =============================================================================

func (s *Store) GetPurchase(ctx context.Context, id string) (*shop.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPurchase(ctx, s.db, id)
}

func (s *Store) SavePurchase(ctx context.Context, p *shop.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePurchase(ctx, s.db, p)
}

func (s *Store) ListPurchasesByAccount(ctx context.Context, accountID string) ([]shop.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPurchases(ctx, s.db, accountID)
}

func getPurchase(ctx context.Context, db dbtx, id string) (*shop.Purchase, error) {
	var (
		p         shop.Purchase
		createdAt string
	)

	err := db.QueryRowContext(ctx,
		"SELECT id, account_id, product_id, quantity, created_at FROM purchases WHERE id = ?",
		id,
	).Scan(&p.ID, &p.AccountID, &p.ProductID, &p.Quantity, &createdAt)

	if err == sql.ErrNoRows {
		return nil, &shop.NotFoundError{Entity: "purchase", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}

	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

func savePurchase(ctx context.Context, db dbtx, p *shop.Purchase) error {
	// Purchases are immutable: inserts only, no upsert.
	_, err := db.ExecContext(ctx,
		"INSERT INTO purchases (id, account_id, product_id, quantity, created_at) VALUES (?, ?, ?, ?, ?)",
		p.ID, p.AccountID, p.ProductID, p.Quantity,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save purchase: %w", err)
	}
	return nil
}

func listPurchases(ctx context.Context, db dbtx, accountID string) ([]shop.Purchase, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, account_id, product_id, quantity, created_at FROM purchases WHERE account_id = ? ORDER BY created_at ASC, rowid ASC",
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []shop.Purchase
	for rows.Next() {
		var (
			p         shop.Purchase
			createdAt string
		)
		if err := rows.Scan(&p.ID, &p.AccountID, &p.ProductID, &p.Quantity, &createdAt); err != nil {
			return nil, err
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

// =============================================================================
// REFUND REQUESTS
// =============================================================================

func (s *Store) GetRefund(ctx context.Context, id string) (*shop.RefundRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRefund(ctx, s.db, "id", id)
}

func (s *Store) GetRefundByPurchase(ctx context.Context, purchaseID string) (*shop.RefundRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRefund(ctx, s.db, "purchase_id", purchaseID)
}

func (s *Store) SaveRefund(ctx context.Context, r *shop.RefundRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRefund(ctx, s.db, r)
}

func (s *Store) DeleteRefund(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteRefund(ctx, s.db, id)
}

func (s *Store) ListPendingRefunds(ctx context.Context) ([]shop.RefundRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPendingRefunds(ctx, s.db)
}

func getRefund(ctx context.Context, db dbtx, column, value string) (*shop.RefundRequest, error) {
	var (
		r         shop.RefundRequest
		createdAt string
	)

	err := db.QueryRowContext(ctx,
		"SELECT id, purchase_id, created_at FROM refund_requests WHERE "+column+" = ?",
		value,
	).Scan(&r.ID, &r.PurchaseID, &createdAt)

	if err == sql.ErrNoRows {
		return nil, &shop.NotFoundError{Entity: "refund", ID: value}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refund request: %w", err)
	}

	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

func saveRefund(ctx context.Context, db dbtx, r *shop.RefundRequest) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO refund_requests (id, purchase_id, created_at) VALUES (?, ?, ?)",
		r.ID, r.PurchaseID, r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &shop.DuplicateRefundError{PurchaseID: r.PurchaseID}
		}
		return fmt.Errorf("failed to save refund request: %w", err)
	}
	return nil
}

func deleteRefund(ctx context.Context, db dbtx, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM refund_requests WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete refund request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &shop.NotFoundError{Entity: "refund", ID: id}
	}
	return nil
}

func listPendingRefunds(ctx context.Context, db dbtx) ([]shop.RefundRequest, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, purchase_id, created_at FROM refund_requests ORDER BY created_at ASC, rowid ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list refund requests: %w", err)
	}
	defer rows.Close()

	var refunds []shop.RefundRequest
	for rows.Next() {
		var (
			r         shop.RefundRequest
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.PurchaseID, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		refunds = append(refunds, r)
	}
	return refunds, rows.Err()
}

// =============================================================================
// TRANSACTIONS (shop.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The mutex serializes
// writers; the SQL transaction guarantees all-or-nothing visibility.
func (s *Store) WithTx(ctx context.Context, fn func(store shop.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every Store method against the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetAccount(ctx context.Context, id string) (*shop.Account, error) {
	return getAccount(ctx, ts.tx, "id", id)
}

func (ts *txStore) GetAccountByUsername(ctx context.Context, username string) (*shop.Account, error) {
	return getAccount(ctx, ts.tx, "username", username)
}

func (ts *txStore) SaveAccount(ctx context.Context, a *shop.Account) error {
	return saveAccount(ctx, ts.tx, a)
}

func (ts *txStore) GetProduct(ctx context.Context, id string) (*shop.Product, error) {
	return getProduct(ctx, ts.tx, id)
}

func (ts *txStore) SaveProduct(ctx context.Context, p *shop.Product) error {
	return saveProduct(ctx, ts.tx, p)
}

func (ts *txStore) ListProducts(ctx context.Context) ([]shop.Product, error) {
	return listProducts(ctx, ts.tx)
}

func (ts *txStore) GetPurchase(ctx context.Context, id string) (*shop.Purchase, error) {
	return getPurchase(ctx, ts.tx, id)
}

func (ts *txStore) SavePurchase(ctx context.Context, p *shop.Purchase) error {
	return savePurchase(ctx, ts.tx, p)
}

func (ts *txStore) ListPurchasesByAccount(ctx context.Context, accountID string) ([]shop.Purchase, error) {
	return listPurchases(ctx, ts.tx, accountID)
}

func (ts *txStore) GetRefund(ctx context.Context, id string) (*shop.RefundRequest, error) {
	return getRefund(ctx, ts.tx, "id", id)
}

func (ts *txStore) GetRefundByPurchase(ctx context.Context, purchaseID string) (*shop.RefundRequest, error) {
	return getRefund(ctx, ts.tx, "purchase_id", purchaseID)
}

func (ts *txStore) SaveRefund(ctx context.Context, r *shop.RefundRequest) error {
	return saveRefund(ctx, ts.tx, r)
}

func (ts *txStore) DeleteRefund(ctx context.Context, id string) error {
	return deleteRefund(ctx, ts.tx, id)
}

func (ts *txStore) ListPendingRefunds(ctx context.Context) ([]shop.RefundRequest, error) {
	return listPendingRefunds(ctx, ts.tx)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"refund_requests", "purchases", "products", "accounts"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
