package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	rewardmarket "github.com/set-night/rewardmarket"
	"github.com/set-night/rewardmarket/internal/api"
	"github.com/set-night/rewardmarket/internal/config"
	"github.com/set-night/rewardmarket/internal/domain"
	"github.com/set-night/rewardmarket/internal/ledger"
	"github.com/set-night/rewardmarket/internal/metrics"
	"github.com/set-night/rewardmarket/internal/notify"
	"github.com/set-night/rewardmarket/internal/repository"
	"github.com/set-night/rewardmarket/internal/repository/postgres"
	"github.com/set-night/rewardmarket/internal/service"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(rewardmarket.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	metrics.RegisterMetrics(cfg.MetricsNamespace)

	store := postgres.New(pool)
	ledgerClient := ledger.NewHTTPClient(cfg.LedgerURL, cfg.LedgerSecret)

	var notifier notify.Dispatcher = notify.Noop{}
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken)
		if err != nil {
			slog.Error("failed to create telegram notifier", "error", err)
			os.Exit(1)
		}
		notifier = tg
	}

	asset := ledger.Asset{Code: cfg.AssetCode, Issuer: cfg.AssetIssuer}

	// Initialize services
	userService := service.NewUserService(store)
	inventoryService := service.NewInventoryService(store)
	orderService := service.NewOrderService(store, inventoryService)
	schedulerService := service.NewSchedulerService(store, notifier, domain.SchedulerPolicy{})
	redeemService := service.NewRedeemService(store, ledgerClient, asset)
	disburseService := service.NewDisburseService(store, ledgerClient, notifier)
	sweepService := service.NewSweepService(store)

	var adminCreds *api.Credentials
	if cfg.AdminAuthEnabled() {
		adminCreds = &api.Credentials{Login: cfg.AdminLogin, Password: cfg.AdminPassword}
	}

	server := api.NewServer(cfg.ListenAddr, api.Deps{
		Store:     store,
		Users:     userService,
		Scheduler: schedulerService,
		Orders:    orderService,
		Inventory: inventoryService,
		Redeemer:  redeemService,
		Disburser: disburseService,
	}, adminCreds)

	// Start expired-order sweep goroutine
	go func() {
		ticker := time.NewTicker(config.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepService.Run(context.Background())
			}
		}
	}()

	// Start metrics refresh goroutine
	go func() {
		ticker := time.NewTicker(config.MetricsRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweepService.RefreshMetrics(context.Background())
			}
		}
	}()

	go func() {
		slog.Info("starting server", "addr", cfg.ListenAddr)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown: stop accepting requests, then wait for in-flight
	// reward payments to record their outcome.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	disburseService.Wait()

	slog.Info("server stopped gracefully")
}
