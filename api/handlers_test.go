package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/storefront/auth"
	"github.com/warp/storefront/shop"
	"github.com/warp/storefront/shop/store"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type testAPI struct {
	router  http.Handler
	store   *store.Memory
	clock   *testClock
	handler *Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	memory := store.NewMemory()
	clock := &testClock{now: time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)}

	authService := auth.NewService(memory, "test-secret", time.Hour, decimal.NewFromInt(10000)).
		WithClock(clock.Now)
	purchases := shop.NewPurchaseEngineWithClock(memory, clock.Now)
	refunds := shop.NewRefundEngineWithClock(memory, clock.Now)

	h := NewHandler(memory, authService, purchases, refunds)
	h.clock = clock.Now

	return &testAPI{
		router:  NewRouter(h, []string{"*"}),
		store:   memory,
		clock:   clock,
		handler: h,
	}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

// register creates an account through the API and returns its token.
func (a *testAPI) register(t *testing.T, username string) (string, AccountDTO) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: username,
		Password: "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	resp := decodeBody[AuthResponse](t, rec)
	return resp.Token, resp.Account
}

// registerStaff creates an account and flips its staff flag directly in
// the store. Token role is re-read per request, so no re-login is needed.
func (a *testAPI) registerStaff(t *testing.T, username string) string {
	t.Helper()
	token, dto := a.register(t, username)

	account, err := a.store.GetAccount(context.Background(), dto.ID)
	require.NoError(t, err)
	account.Staff = true
	require.NoError(t, a.store.SaveAccount(context.Background(), account))

	return token
}

func (a *testAPI) createProduct(t *testing.T, staffToken, name, price string, stock int) ProductDTO {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/products", staffToken, SaveProductRequest{
		Name:  name,
		Price: price,
		Stock: stock,
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	return decodeBody[ProductDTO](t, rec)
}

func (a *testAPI) wallet(t *testing.T, token string) string {
	t.Helper()
	rec := a.do(t, http.MethodGet, "/api/accounts/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeBody[AccountDTO](t, rec).Wallet
}

// =============================================================================
// AUTH
// =============================================================================

func TestAPI_Register(t *testing.T) {
	a := newTestAPI(t)

	token, account := a.register(t, "alice")
	assert.NotEmpty(t, token)
	assert.Equal(t, "alice", account.Username)
	assert.Equal(t, "10000.00", account.Wallet)
	assert.False(t, account.Staff)
}

func TestAPI_Register_DuplicateUsername_Conflict(t *testing.T) {
	a := newTestAPI(t)
	a.register(t, "alice")

	rec := a.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "alice",
		Password: "password123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_Register_ShortPassword_Rejected(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Username: "alice",
		Password: "short",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_Login(t *testing.T) {
	a := newTestAPI(t)
	a.register(t, "alice")

	rec := a.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Username: "alice",
		Password: "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[AuthResponse](t, rec)
	assert.NotEmpty(t, resp.Token)

	rec = a.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Username: "alice",
		Password: "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_Me_RequiresToken(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/accounts/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/accounts/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =============================================================================
// CATALOG
// =============================================================================

func TestAPI_Products_PublicRead(t *testing.T) {
	a := newTestAPI(t)
	staff := a.registerStaff(t, "admin")
	product := a.createProduct(t, staff, "Widget", "10.00", 5)

	rec := a.do(t, http.MethodGet, "/api/products", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]ProductDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "Widget", list[0].Name)

	rec = a.do(t, http.MethodGet, "/api/products/"+product.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10.00", decodeBody[ProductDTO](t, rec).Price)

	rec = a.do(t, http.MethodGet, "/api/products/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_CreateProduct_RequiresStaff(t *testing.T) {
	a := newTestAPI(t)
	customer, _ := a.register(t, "alice")

	rec := a.do(t, http.MethodPost, "/api/products", customer, SaveProductRequest{
		Name:  "Widget",
		Price: "10.00",
		Stock: 5,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPI_CreateProduct_InvalidPrice_Rejected(t *testing.T) {
	a := newTestAPI(t)
	staff := a.registerStaff(t, "admin")

	for _, price := range []string{"abc", "-1.00"} {
		rec := a.do(t, http.MethodPost, "/api/products", staff, SaveProductRequest{
			Name:  "Widget",
			Price: price,
			Stock: 5,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "price %q", price)
	}
}

func TestAPI_UpdateProduct(t *testing.T) {
	a := newTestAPI(t)
	staff := a.registerStaff(t, "admin")
	product := a.createProduct(t, staff, "Widget", "10.00", 5)

	rec := a.do(t, http.MethodPut, "/api/products/"+product.ID, staff, SaveProductRequest{
		Name:  "Widget v2",
		Price: "12.00",
		Stock: 7,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[ProductDTO](t, rec)
	assert.Equal(t, "Widget v2", updated.Name)
	assert.Equal(t, "12.00", updated.Price)
	assert.Equal(t, 7, updated.Stock)
}

// =============================================================================
// PURCHASES
// =============================================================================

func TestAPI_PurchaseFlow(t *testing.T) {
	a := newTestAPI(t)
	staff := a.registerStaff(t, "admin")
	product := a.createProduct(t, staff, "Widget", "10.00", 5)
	customer, _ := a.register(t, "alice")

	// Buy 3: wallet and stock move together.
	rec := a.do(t, http.MethodPost, "/api/purchases", customer, PurchaseRequest{
		ProductID: product.ID,
		Quantity:  3,
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	purchase := decodeBody[PurchaseDTO](t, rec)
	assert.Equal(t, 3, purchase.Quantity)
	assert.True(t, purchase.Refundable)

	assert.Equal(t, "9970.00", a.wallet(t, customer))

	rec = a.do(t, http.MethodGet, "/api/products/"+product.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeBody[ProductDTO](t, rec).Stock)

	// History lists it.
	rec = a.do(t, http.MethodGet, "/api/purchases", customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]PurchaseDTO](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, purchase.ID, history[0].ID)
}

func TestAPI_Purchase_ErrorStatuses(t *testing.T) {
	a := newTestAPI(t)
	staff := a.registerStaff(t, "admin")
	cheap := a.createProduct(t, staff, "Widget", "10.00", 5)
	pricey := a.createProduct(t, staff, "Gold Widget", "99999.00", 5)
	customer, _ := a.register(t, "alice")

	cases := []struct {
		name     string
		req      PurchaseRequest
		expected int
	}{
		{"unknown product", PurchaseRequest{ProductID: "missing", Quantity: 1}, http.StatusNotFound},
		{"zero quantity", PurchaseRequest{ProductID: cheap.ID, Quantity: 0}, http.StatusBadRequest},
		{"negative quantity", PurchaseRequest{ProductID: cheap.ID, Quantity: -1}, http.StatusBadRequest},
		{"insufficient stock", PurchaseRequest{ProductID: cheap.ID, Quantity: 10}, http.StatusConflict},
		{"insufficient funds", PurchaseRequest{ProductID: pricey.ID, Quantity: 1}, http.StatusPaymentRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, "/api/purchases", customer, tc.req)
			assert.Equal(t, tc.expected, rec.Code, "body: %s", rec.Body.String())
		})
	}

	// Nothing moved.
	assert.Equal(t, "10000.00", a.wallet(t, customer))
}

func TestAPI_Purchase_RefundableFlagExpires(t *testing.T) {
	a := newTestAPI(t)
	staff := a.registerStaff(t, "admin")
	product := a.createProduct(t, staff, "Widget", "10.00", 5)
	customer, _ := a.register(t, "alice")

	rec := a.do(t, http.MethodPost, "/api/purchases", customer, PurchaseRequest{
		ProductID: product.ID,
		Quantity:  1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	a.clock.Advance(shop.RefundWindow)

	rec = a.do(t, http.MethodGet, "/api/purchases", customer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]PurchaseDTO](t, rec)
	require.Len(t, history, 1)
	assert.False(t, history[0].Refundable)
}

// =============================================================================
// REFUNDS
// =============================================================================

func TestAPI_RefundFlow_Confirm(t *testing.T) {
	a := newTestAPI(t)
	staff := a.registerStaff(t, "admin")
	product := a.createProduct(t, staff, "Widget", "10.00", 5)
	customer, _ := a.register(t, "alice")

	rec := a.do(t, http.MethodPost, "/api/purchases", customer, PurchaseRequest{
		ProductID: product.ID,
		Quantity:  3,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	purchase := decodeBody[PurchaseDTO](t, rec)

	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/purchases/%s/refund", purchase.ID), customer, nil)
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	refund := decodeBody[RefundDTO](t, rec)
	assert.Equal(t, purchase.ID, refund.PurchaseID)

	// It shows up in the staff queue.
	rec = a.do(t, http.MethodGet, "/api/refunds/pending", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decodeBody[[]RefundDTO](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, refund.ID, pending[0].ID)

	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/refunds/%s/resolve", refund.ID), staff, ResolveRefundRequest{
		Action: "confirm",
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	assert.Equal(t, "10000.00", a.wallet(t, customer))

	rec = a.do(t, http.MethodGet, "/api/products/"+product.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decodeBody[ProductDTO](t, rec).Stock)

	// The queue is empty and re-resolving is a 404.
	rec = a.do(t, http.MethodGet, "/api/refunds/pending", staff, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]RefundDTO](t, rec))

	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/refunds/%s/resolve", refund.ID), staff, ResolveRefundRequest{
		Action: "confirm",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_RefundFlow_Reject(t *testing.T) {
	a := newTestAPI(t)
	staff := a.registerStaff(t, "admin")
	product := a.createProduct(t, staff, "Widget", "10.00", 5)
	customer, _ := a.register(t, "alice")

	rec := a.do(t, http.MethodPost, "/api/purchases", customer, PurchaseRequest{
		ProductID: product.ID,
		Quantity:  3,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	purchase := decodeBody[PurchaseDTO](t, rec)

	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/purchases/%s/refund", purchase.ID), customer, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	refund := decodeBody[RefundDTO](t, rec)

	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/refunds/%s/resolve", refund.ID), staff, ResolveRefundRequest{
		Action: "reject",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// Money stays spent, stock stays sold.
	assert.Equal(t, "9970.00", a.wallet(t, customer))
}

func TestAPI_Refund_ErrorStatuses(t *testing.T) {
	a := newTestAPI(t)
	staff := a.registerStaff(t, "admin")
	product := a.createProduct(t, staff, "Widget", "10.00", 5)
	customer, _ := a.register(t, "alice")

	buy := func() PurchaseDTO {
		rec := a.do(t, http.MethodPost, "/api/purchases", customer, PurchaseRequest{
			ProductID: product.ID,
			Quantity:  1,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		return decodeBody[PurchaseDTO](t, rec)
	}

	// Unknown purchase.
	rec := a.do(t, http.MethodPost, "/api/purchases/missing/refund", customer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Duplicate request for the same purchase.
	purchase := buy()
	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/purchases/%s/refund", purchase.ID), customer, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/purchases/%s/refund", purchase.ID), customer, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Window expired.
	stale := buy()
	a.clock.Advance(shop.RefundWindow)
	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/purchases/%s/refund", stale.ID), customer, nil)
	assert.Equal(t, http.StatusGone, rec.Code)

	// Invalid resolve action.
	fresh := buy()
	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/purchases/%s/refund", fresh.ID), customer, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	refund := decodeBody[RefundDTO](t, rec)
	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/refunds/%s/resolve", refund.ID), staff, ResolveRefundRequest{
		Action: "approve",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_RefundQueue_RequiresStaff(t *testing.T) {
	a := newTestAPI(t)
	customer, _ := a.register(t, "alice")

	rec := a.do(t, http.MethodGet, "/api/refunds/pending", customer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/refunds/some-id/resolve", customer, ResolveRefundRequest{
		Action: "confirm",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
