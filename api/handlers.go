/*
handlers.go - HTTP API handlers for the storefront

PURPOSE:
  Exposes the purchase/refund core via REST. Handles HTTP request/response,
  JSON serialization and input validation, and delegates every mutation to
  the engines.

ENDPOINTS:
  Auth:
    POST   /api/auth/register           Create an account
    POST   /api/auth/login              Get a token

  Catalog:
    GET    /api/products                List products
    GET    /api/products/{id}           Product detail
    POST   /api/products                Create product (staff)
    PUT    /api/products/{id}           Update product (staff)

  Purchases:
    POST   /api/purchases               Buy a product
    GET    /api/purchases               Own purchase history
    POST   /api/purchases/{id}/refund   Request a refund

  Refunds (staff):
    GET    /api/refunds/pending         Pending refund queue
    POST   /api/refunds/{id}/resolve    Confirm or reject

  Account:
    GET    /api/accounts/me             Current account and wallet

ERROR HANDLING:
  Domain errors map to HTTP statuses in errorStatus:
  - 400: validation, invalid action
  - 402: insufficient funds
  - 404: not found
  - 409: insufficient stock, duplicate refund
  - 410: refund window expired
  - 500: everything else

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/storefront/auth"
	"github.com/warp/storefront/shop"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     shop.TxStore
	Auth      *auth.Service
	Purchases *shop.PurchaseEngine
	Refunds   *shop.RefundEngine

	validate *validator.Validate
	clock    shop.Clock
}

// NewHandler creates a handler wired to the given store and services.
func NewHandler(store shop.TxStore, authService *auth.Service, purchases *shop.PurchaseEngine, refunds *shop.RefundEngine) *Handler {
	return &Handler{
		Store:     store,
		Auth:      authService,
		Purchases: purchases,
		Refunds:   refunds,
		validate:  validator.New(),
		clock:     time.Now,
	}
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Register creates an account with the starting wallet grant and returns
// a token for it.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	account, err := h.Auth.Register(r.Context(), req.Username, req.DisplayName, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUsernameTaken) {
			writeError(w, http.StatusConflict, "Username already taken", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to register", err)
		return
	}

	token, err := h.Auth.IssueToken(account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, Account: toAccountDTO(account)})
}

// Login verifies credentials and returns a token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	token, account, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to log in", err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, Account: toAccountDTO(account)})
}

// Me returns the current account, wallet included.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i := range products {
		dtos[i] = toProductDTO(&products[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProduct returns a single product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.Store.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(product))
}

// CreateProduct creates a catalog entry. Staff only.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req SaveProductRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid price: must be a non-negative decimal", nil)
		return
	}

	now := h.clock().UTC()
	product := &shop.Product{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		Stock:       req.Stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.Store.SaveProduct(r.Context(), product); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create product", err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductDTO(product))
}

// UpdateProduct updates name, description, price and stock. Staff only.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req SaveProductRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invalid price: must be a non-negative decimal", nil)
		return
	}

	product, err := h.Store.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	product.Name = req.Name
	product.Description = req.Description
	product.Price = price
	product.Stock = req.Stock
	product.UpdatedAt = h.clock().UTC()

	if err := h.Store.SaveProduct(r.Context(), product); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update product", err)
		return
	}

	writeJSON(w, http.StatusOK, toProductDTO(product))
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

// CreatePurchase executes a purchase for the current account.
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())

	var req PurchaseRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	purchase, err := h.Purchases.Execute(r.Context(), account.ID, req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPurchaseDTO(purchase, h.clock()))
}

// ListPurchases returns the current account's purchase history in
// creation order.
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())

	purchases, err := h.Store.ListPurchasesByAccount(r.Context(), account.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list purchases", err)
		return
	}

	now := h.clock()
	dtos := make([]PurchaseDTO, len(purchases))
	for i := range purchases {
		dtos[i] = toPurchaseDTO(&purchases[i], now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RequestRefund creates a pending refund request for a purchase.
func (h *Handler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	request, err := h.Refunds.Request(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRefundDTO(request))
}

// =============================================================================
// REFUND HANDLERS (staff)
// =============================================================================

// ListPendingRefunds returns the staff refund queue.
func (h *Handler) ListPendingRefunds(w http.ResponseWriter, r *http.Request) {
	refunds, err := h.Store.ListPendingRefunds(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list refund requests", err)
		return
	}

	dtos := make([]RefundDTO, len(refunds))
	for i := range refunds {
		dtos[i] = toRefundDTO(&refunds[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResolveRefund applies a staff decision to a pending refund request.
func (h *Handler) ResolveRefund(w http.ResponseWriter, r *http.Request) {
	var req ResolveRefundRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	err := h.Refunds.Resolve(r.Context(), chi.URLParam(r, "id"), shop.ResolveAction(req.Action))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"resolved": true})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a core error to an HTTP status and body.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, errorStatus(err), err.Error(), nil)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, shop.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shop.ErrValidation), errors.Is(err, shop.ErrInvalidAction):
		return http.StatusBadRequest
	case errors.Is(err, shop.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, shop.ErrInsufficientStock), errors.Is(err, shop.ErrDuplicateRefund):
		return http.StatusConflict
	case errors.Is(err, shop.ErrRefundWindowExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
