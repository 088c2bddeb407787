package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tradewind-commerce/tradewind/internal/app"
	"github.com/tradewind-commerce/tradewind/internal/catalog"
	"github.com/tradewind-commerce/tradewind/internal/inventory"
	"github.com/tradewind-commerce/tradewind/internal/orders"
	"github.com/tradewind-commerce/tradewind/internal/platform/cache"
	"github.com/tradewind-commerce/tradewind/internal/platform/db"
	"github.com/tradewind-commerce/tradewind/internal/shared"
	"github.com/tradewind-commerce/tradewind/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// The client stays nil when redis is unreachable; the levels cache no-ops
	// on a nil client, so the platform serves uncached reads until it returns.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, levels cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	catalogRepo := catalog.NewRepository(dbpool)
	catalogHandler := catalog.NewHandler(logger, catalogRepo)

	inventoryRepo := inventory.NewRepository(dbpool)
	levelsCache := inventory.NewLevelsCache(redisClient, cfg.LevelsCacheTTL)
	alertDispatcher := jobs.NewAlertDispatcher(asynqClient)
	inventoryService := inventory.NewService(logger, inventoryRepo, catalogRepo, auditLogger, idempotencyStore, alertDispatcher, levelsCache, inventory.ServiceConfig{
		AdjustTimeout: cfg.InventoryAdjustTimeout,
		BulkLimit:     cfg.InventoryBulkLimit,
	})
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	ordersRepo := orders.NewRepository(dbpool)
	ordersService := orders.NewService(logger, ordersRepo, inventoryService)
	ordersHandler := orders.NewHandler(logger, ordersService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   catalogHandler,
		InventoryHandler: inventoryHandler,
		OrdersHandler:    ordersHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
