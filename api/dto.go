/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry validator struct tags; handlers run them through a
  single validator.Validate instance before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/storefront/shop"
)

// =============================================================================
// AUTH
// =============================================================================

type RegisterRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=64"`
	DisplayName string `json:"display_name" validate:"max=128"`
	Password    string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	Token   string     `json:"token"`
	Account AccountDTO `json:"account"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountDTO struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Wallet      string `json:"wallet"`
	Staff       bool   `json:"staff"`
	CreatedAt   string `json:"created_at"`
}

func toAccountDTO(a *shop.Account) AccountDTO {
	return AccountDTO{
		ID:          a.ID,
		Username:    a.Username,
		DisplayName: a.DisplayName,
		Wallet:      a.Wallet.StringFixed(2),
		Staff:       a.Staff,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// PRODUCTS
// =============================================================================

type ProductDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Stock       int    `json:"stock"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type SaveProductRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=1000"`
	Price       string `json:"price" validate:"required"`
	Stock       int    `json:"stock" validate:"gte=0"`
}

func toProductDTO(p *shop.Product) ProductDTO {
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		Stock:       p.Stock,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// PURCHASES
// =============================================================================

type PurchaseRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity"`
}

type PurchaseDTO struct {
	ID         string `json:"id"`
	AccountID  string `json:"account_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	CreatedAt  string `json:"created_at"`
	Refundable bool   `json:"refundable"`
}

func toPurchaseDTO(p *shop.Purchase, now time.Time) PurchaseDTO {
	return PurchaseDTO{
		ID:         p.ID,
		AccountID:  p.AccountID,
		ProductID:  p.ProductID,
		Quantity:   p.Quantity,
		CreatedAt:  p.CreatedAt.Format(time.RFC3339),
		Refundable: p.RefundableAt(now),
	}
}

// =============================================================================
// REFUNDS
// =============================================================================

type RefundDTO struct {
	ID         string `json:"id"`
	PurchaseID string `json:"purchase_id"`
	CreatedAt  string `json:"created_at"`
}

type ResolveRefundRequest struct {
	Action string `json:"action" validate:"required"`
}

func toRefundDTO(r *shop.RefundRequest) RefundDTO {
	return RefundDTO{
		ID:         r.ID,
		PurchaseID: r.PurchaseID,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// ERRORS
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
