/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the storefront server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env / environment)
  2. Configure zerolog
  3. Initialize SQLite store
  4. Wire engines, auth service and API handler
  5. Seed the staff account if configured
  6. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

ENVIRONMENT:
  PORT, DB_PATH, JWT_SECRET, TOKEN_TTL, STARTING_WALLET,
  ADMIN_USERNAME, ADMIN_PASSWORD, ALLOWED_ORIGINS, LOG_LEVEL, ENV

SEE ALSO:
  - api/server.go: router configuration
  - store/sqlite/sqlite.go: database implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/warp/storefront/api"
	"github.com/warp/storefront/auth"
	"github.com/warp/storefront/config"
	"github.com/warp/storefront/shop"
	"github.com/warp/storefront/store/sqlite"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Wire services
	authService := auth.NewService(store, cfg.JWTSecret, cfg.TokenTTL, cfg.StartingWallet)
	purchases := shop.NewPurchaseEngine(store)
	refunds := shop.NewRefundEngine(store)
	handler := api.NewHandler(store, authService, purchases, refunds)

	if err := seedStaffAccount(store, authService, cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to seed staff account")
	}

	router := api.NewRouter(handler, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// seedStaffAccount creates the configured admin account on first boot.
func seedStaffAccount(store shop.TxStore, authService *auth.Service, cfg *config.Config) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}

	ctx := context.Background()
	if _, err := store.GetAccountByUsername(ctx, cfg.AdminUsername); err == nil {
		return nil
	} else if !shop.IsNotFound(err) {
		return err
	}

	account, err := authService.Register(ctx, cfg.AdminUsername, "Staff", cfg.AdminPassword)
	if err != nil {
		return err
	}
	account.Staff = true
	if err := store.SaveAccount(ctx, account); err != nil {
		return err
	}

	log.Info().Str("username", cfg.AdminUsername).Msg("seeded staff account")
	return nil
}
