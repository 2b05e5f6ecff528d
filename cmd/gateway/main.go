package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/application/services"
	"github.com/DanielPopoola/x402-gateway/internal/config"
	"github.com/DanielPopoola/x402-gateway/internal/infrastructure/ledger"
	"github.com/DanielPopoola/x402-gateway/internal/infrastructure/payload"
	"github.com/DanielPopoola/x402-gateway/internal/infrastructure/persistence/memory"
	"github.com/DanielPopoola/x402-gateway/internal/infrastructure/persistence/postgres"
	"github.com/DanielPopoola/x402-gateway/internal/interfaces/rest/handlers"
	"github.com/DanielPopoola/x402-gateway/internal/interfaces/rest/middleware"
	"github.com/DanielPopoola/x402-gateway/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting x402 gateway",
		"port", cfg.Server.Port,
		"env", cfg.Primary.Env,
		"registry_backend", cfg.Registry.Backend,
		"network", cfg.Ledger.Network,
		"contract", cfg.Ledger.ContractAddress,
	)

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open request store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	contract, rpcClient, err := ledger.Dial(ctx, cfg.Ledger)
	if err != nil {
		logger.Error("failed to connect to ledger", "rpc_url", cfg.Ledger.RPCURL, "error", err)
		os.Exit(1)
	}
	defer rpcClient.Close()

	paymentLedger := ledger.NewRetryLedger(contract, cfg.Retry)

	registry := services.NewRequestRegistry(store, cfg.Registry, logger)
	verifier := services.NewPaymentVerifier(registry, paymentLedger, cfg.Ledger.CallTimeout, logger)
	issuer := services.NewResourceIssuer(registry, payload.NewMarketDataProvider(), logger)
	challenges, err := services.NewChallengeResponder(registry, paymentLedger, cfg.Ledger, cfg.Server.ResourceName, logger)
	if err != nil {
		logger.Error("invalid ledger configuration", "error", err)
		os.Exit(1)
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter, err = middleware.NewRateLimiter(cfg.RateLimit, cfg.Server.TrustedProxies, logger)
		if err != nil {
			logger.Error("invalid rate limit configuration", "error", err)
			os.Exit(1)
		}
	}

	h := handlers.NewHandlers(registry, challenges, verifier, issuer, paymentLedger, cfg.Ledger, limiter, logger)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      handlers.NewRouter(h, cfg.Server, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	expirationWorker := worker.NewExpirationWorker(registry, cfg.Worker.Interval, logger)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		expirationWorker.Start(workerCtx)
	}()

	go func() {
		logger.Info("server starting", "addr", server.Addr, "resource_path", cfg.Server.ResourcePath)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	cancelWorkers()
	<-workerDone

	logger.Info("server exited")
}

// openStore returns the configured RequestStore and a func releasing it.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (application.RequestStore, func(), error) {
	if cfg.Registry.Backend != config.BackendPostgres {
		logger.Info("using in-memory request registry; requests do not survive restarts")
		return memory.NewRequestStore(), func() {}, nil
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.MigrationURL(), logger); err != nil {
			return nil, nil, err
		}
	}

	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}

	return postgres.NewRequestRepository(db), db.Close, nil
}
