/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: Structured request logging (zerolog)
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. CORS:          Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/auth/*       Register and login (public)
  /api/products     Catalog (reads public, writes staff)
  /api/purchases/*  Purchases and refund requests (authenticated)
  /api/refunds/*    Refund queue and resolution (staff)
  /api/accounts/me  Current account (authenticated)

SEE ALSO:
  - handlers.go: handler implementations
  - middleware.go: identity extraction and staff gate
  - cmd/server/main.go: server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	authenticated := Authenticator(h.Auth, h.Store)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
		})

		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Get("/accounts/me", h.Me)

			r.Route("/purchases", func(r chi.Router) {
				r.Post("/", h.CreatePurchase)
				r.Get("/", h.ListPurchases)
				r.Post("/{id}/refund", h.RequestRefund)
			})

			// Staff routes
			r.Group(func(r chi.Router) {
				r.Use(RequireStaff)

				r.Post("/products", h.CreateProduct)
				r.Put("/products/{id}", h.UpdateProduct)

				r.Route("/refunds", func(r chi.Router) {
					r.Get("/pending", h.ListPendingRefunds)
					r.Post("/{id}/resolve", h.ResolveRefund)
				})
			})
		})
	})

	return r
}
