package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/coin-ledger/internal/api_gateway"
	"github.com/coin-ledger/internal/api_gateway/service"
	"github.com/coin-ledger/internal/coin_ledger/components"
	"github.com/coin-ledger/internal/config"
	"github.com/coin-ledger/internal/data/cache"
	"github.com/coin-ledger/internal/logger"
	"github.com/coin-ledger/internal/observability"
	"github.com/coin-ledger/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting coin ledger API gateway",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Migrations run inside NewPostgresDB before the pool opens
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	// The balance cache is advisory; the gateway keeps serving from PostgreSQL without it
	redisClient, err := persistence.NewRedisClient(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, balance cache disabled", "error", err)
	}
	balanceCache := cache.NewBalanceCache(redisClient, cfg.Ledger.BalanceCacheTTL, log.With("component", "balance_cache"))

	metrics := observability.NewMetrics()

	// Wire the ledger services; committed entries refresh the cache and the coin counters
	ledger := components.CreateLedger(postgresDB, metrics, log, &cfg.Ledger, balanceCache, metrics)

	accountService := service.NewAccountService(
		ledger.Accounts,
		ledger.Bonus,
		balanceCache,
		cfg.Ledger.RegistrationBonus,
		log.With("component", "account_service"),
	)

	// Initialize REST server
	server, err := api_gateway.NewServer(log, cfg, accountService, ledger, metrics, postgresDB)
	if err != nil {
		log.Error("Failed to initialize REST server", "error", err)
		os.Exit(1)
	}
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence: stop accepting requests, drain, then close stores
	log.Info("Starting graceful shutdown...")

	var shutdownErr error
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
		shutdownErr = err
	}

	// Cancel the application context once in-flight requests are done
	cancelAppCtx()

	closeRedis(log, redisClient)

	// Shutdown postgres connection pool
	postgresDB.Close()

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if shutdownErr != nil {
		log.Error("Server shutdown completed with errors")
		os.Exit(1)
	}
	log.Info("Server shutdown completed successfully")
}

func closeRedis(log *slog.Logger, client *redis.Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Error("Error closing Redis client", "error", err)
	}
}
