/*
middleware.go - Request logging and identity extraction

PURPOSE:
  The boundary layer's capability checks live here: Authenticator turns a
  bearer token into the current account, RequireStaff gates the staff-only
  routes. The core engines never see tokens or roles.
*/
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/warp/storefront/auth"
	"github.com/warp/storefront/shop"
)

type contextKey string

const accountKey contextKey = "account"

// RequestLogger logs each request with zerolog.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// Authenticator validates the bearer token and loads the current account
// into the request context. The account is re-read from the store so a
// staff flag change takes effect without re-login.
func Authenticator(authService *auth.Service, store shop.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, "Missing authorization header", nil)
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "Invalid authorization header format", nil)
				return
			}

			claims, err := authService.VerifyToken(parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token", nil)
				return
			}

			account, err := store.GetAccount(r.Context(), claims.Subject)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unknown account", nil)
				return
			}

			ctx := context.WithValue(r.Context(), accountKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireStaff rejects requests from non-staff accounts.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := accountFromContext(r.Context())
		if account == nil || !account.Staff {
			writeError(w, http.StatusForbidden, "Staff access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func accountFromContext(ctx context.Context) *shop.Account {
	account, _ := ctx.Value(accountKey).(*shop.Account)
	return account
}
