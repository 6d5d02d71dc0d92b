// Package store provides an in-memory shop.TxStore implementation for
// tests and development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/storefront/shop"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is a map-backed TxStore. WithTx is simulated with a snapshot
// taken before the batch and restored if the batch fails, so a failed
// batch leaves no trace - same contract as the SQLite store.
type Memory struct {
	mu sync.RWMutex

	accounts  map[string]shop.Account
	products  map[string]shop.Product
	purchases map[string]shop.Purchase
	refunds   map[string]shop.RefundRequest

	// Insertion counters give List* calls a stable creation order even when
	// timestamps collide (tests pin the clock).
	seq     map[string]int
	nextSeq int
}

func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[string]shop.Account),
		products:  make(map[string]shop.Product),
		purchases: make(map[string]shop.Purchase),
		refunds:   make(map[string]shop.RefundRequest),
		seq:       make(map[string]int),
	}
}

// =============================================================================
// STORE METHODS (locked wrappers)
// =============================================================================

func (m *Memory) GetAccount(_ context.Context, id string) (*shop.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountLocked(id)
}

func (m *Memory) GetAccountByUsername(_ context.Context, username string) (*shop.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountByUsernameLocked(username)
}

func (m *Memory) SaveAccount(_ context.Context, a *shop.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAccountLocked(a)
}

func (m *Memory) GetProduct(_ context.Context, id string) (*shop.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProductLocked(id)
}

func (m *Memory) SaveProduct(_ context.Context, p *shop.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveProductLocked(p)
}

func (m *Memory) ListProducts(_ context.Context) ([]shop.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listProductsLocked()
}

func (m *Memory) GetPurchase(_ context.Context, id string) (*shop.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPurchaseLocked(id)
}

func (m *Memory) SavePurchase(_ context.Context, p *shop.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.savePurchaseLocked(p)
}

func (m *Memory) ListPurchasesByAccount(_ context.Context, accountID string) ([]shop.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPurchasesLocked(accountID)
}

func (m *Memory) GetRefund(_ context.Context, id string) (*shop.RefundRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRefundLocked(id)
}

func (m *Memory) GetRefundByPurchase(_ context.Context, purchaseID string) (*shop.RefundRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRefundByPurchaseLocked(purchaseID)
}

func (m *Memory) SaveRefund(_ context.Context, r *shop.RefundRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveRefundLocked(r)
}

func (m *Memory) DeleteRefund(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteRefundLocked(id)
}

func (m *Memory) ListPendingRefunds(_ context.Context) ([]shop.RefundRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPendingRefundsLocked()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a simulated transaction: snapshot the maps,
// run fn against an unlocked view, restore the snapshot on error.
func (m *Memory) WithTx(_ context.Context, fn func(s shop.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()

	view := &txMemoryView{parent: m}
	if err := fn(view); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	accounts  map[string]shop.Account
	products  map[string]shop.Product
	purchases map[string]shop.Purchase
	refunds   map[string]shop.RefundRequest
	seq       map[string]int
	nextSeq   int
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		accounts:  copyMap(m.accounts),
		products:  copyMap(m.products),
		purchases: copyMap(m.purchases),
		refunds:   copyMap(m.refunds),
		seq:       copyMap(m.seq),
		nextSeq:   m.nextSeq,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.accounts = s.accounts
	m.products = s.products
	m.purchases = s.purchases
	m.refunds = s.refunds
	m.seq = s.seq
	m.nextSeq = s.nextSeq
}

func copyMap[V any](src map[string]V) map[string]V {
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// txMemoryView operates on the parent's maps without locking; the parent
// holds the write lock for the duration of WithTx.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) GetAccount(_ context.Context, id string) (*shop.Account, error) {
	return tv.parent.getAccountLocked(id)
}

func (tv *txMemoryView) GetAccountByUsername(_ context.Context, username string) (*shop.Account, error) {
	return tv.parent.getAccountByUsernameLocked(username)
}

func (tv *txMemoryView) SaveAccount(_ context.Context, a *shop.Account) error {
	return tv.parent.saveAccountLocked(a)
}

func (tv *txMemoryView) GetProduct(_ context.Context, id string) (*shop.Product, error) {
	return tv.parent.getProductLocked(id)
}

func (tv *txMemoryView) SaveProduct(_ context.Context, p *shop.Product) error {
	return tv.parent.saveProductLocked(p)
}

func (tv *txMemoryView) ListProducts(_ context.Context) ([]shop.Product, error) {
	return tv.parent.listProductsLocked()
}

func (tv *txMemoryView) GetPurchase(_ context.Context, id string) (*shop.Purchase, error) {
	return tv.parent.getPurchaseLocked(id)
}

func (tv *txMemoryView) SavePurchase(_ context.Context, p *shop.Purchase) error {
	return tv.parent.savePurchaseLocked(p)
}

func (tv *txMemoryView) ListPurchasesByAccount(_ context.Context, accountID string) ([]shop.Purchase, error) {
	return tv.parent.listPurchasesLocked(accountID)
}

func (tv *txMemoryView) GetRefund(_ context.Context, id string) (*shop.RefundRequest, error) {
	return tv.parent.getRefundLocked(id)
}

func (tv *txMemoryView) GetRefundByPurchase(_ context.Context, purchaseID string) (*shop.RefundRequest, error) {
	return tv.parent.getRefundByPurchaseLocked(purchaseID)
}

func (tv *txMemoryView) SaveRefund(_ context.Context, r *shop.RefundRequest) error {
	return tv.parent.saveRefundLocked(r)
}

func (tv *txMemoryView) DeleteRefund(_ context.Context, id string) error {
	return tv.parent.deleteRefundLocked(id)
}

func (tv *txMemoryView) ListPendingRefunds(_ context.Context) ([]shop.RefundRequest, error) {
	return tv.parent.listPendingRefundsLocked()
}

// =============================================================================
// UNLOCKED IMPLEMENTATIONS
// =============================================================================

func (m *Memory) getAccountLocked(id string) (*shop.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, &shop.NotFoundError{Entity: "account", ID: id}
	}
	return &a, nil
}

func (m *Memory) getAccountByUsernameLocked(username string) (*shop.Account, error) {
	for _, a := range m.accounts {
		if a.Username == username {
			found := a
			return &found, nil
		}
	}
	return nil, &shop.NotFoundError{Entity: "account", ID: username}
}

func (m *Memory) saveAccountLocked(a *shop.Account) error {
	m.accounts[a.ID] = *a
	return nil
}

func (m *Memory) getProductLocked(id string) (*shop.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, &shop.NotFoundError{Entity: "product", ID: id}
	}
	return &p, nil
}

func (m *Memory) saveProductLocked(p *shop.Product) error {
	if _, ok := m.seq[p.ID]; !ok {
		m.seq[p.ID] = m.nextSeq
		m.nextSeq++
	}
	m.products[p.ID] = *p
	return nil
}

func (m *Memory) listProductsLocked() ([]shop.Product, error) {
	result := make([]shop.Product, 0, len(m.products))
	for _, p := range m.products {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return m.seq[result[i].ID] < m.seq[result[j].ID]
	})
	return result, nil
}

func (m *Memory) getPurchaseLocked(id string) (*shop.Purchase, error) {
	p, ok := m.purchases[id]
	if !ok {
		return nil, &shop.NotFoundError{Entity: "purchase", ID: id}
	}
	return &p, nil
}

func (m *Memory) savePurchaseLocked(p *shop.Purchase) error {
	if _, ok := m.seq[p.ID]; !ok {
		m.seq[p.ID] = m.nextSeq
		m.nextSeq++
	}
	m.purchases[p.ID] = *p
	return nil
}

func (m *Memory) listPurchasesLocked(accountID string) ([]shop.Purchase, error) {
	var result []shop.Purchase
	for _, p := range m.purchases {
		if p.AccountID == accountID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return m.seq[result[i].ID] < m.seq[result[j].ID]
	})
	return result, nil
}

func (m *Memory) getRefundLocked(id string) (*shop.RefundRequest, error) {
	r, ok := m.refunds[id]
	if !ok {
		return nil, &shop.NotFoundError{Entity: "refund", ID: id}
	}
	return &r, nil
}

func (m *Memory) getRefundByPurchaseLocked(purchaseID string) (*shop.RefundRequest, error) {
	for _, r := range m.refunds {
		if r.PurchaseID == purchaseID {
			found := r
			return &found, nil
		}
	}
	return nil, &shop.NotFoundError{Entity: "refund", ID: purchaseID}
}

func (m *Memory) saveRefundLocked(r *shop.RefundRequest) error {
	if existing, err := m.getRefundByPurchaseLocked(r.PurchaseID); err == nil && existing.ID != r.ID {
		return &shop.DuplicateRefundError{PurchaseID: r.PurchaseID, ExistingID: existing.ID}
	}
	if _, ok := m.seq[r.ID]; !ok {
		m.seq[r.ID] = m.nextSeq
		m.nextSeq++
	}
	m.refunds[r.ID] = *r
	return nil
}

func (m *Memory) deleteRefundLocked(id string) error {
	if _, ok := m.refunds[id]; !ok {
		return &shop.NotFoundError{Entity: "refund", ID: id}
	}
	delete(m.refunds, id)
	return nil
}

func (m *Memory) listPendingRefundsLocked() ([]shop.RefundRequest, error) {
	result := make([]shop.RefundRequest, 0, len(m.refunds))
	for _, r := range m.refunds {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return m.seq[result[i].ID] < m.seq[result[j].ID]
	})
	return result, nil
}
