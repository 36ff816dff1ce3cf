package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sales-engine/internal/api"
	"sales-engine/internal/cache"
	"sales-engine/internal/config"
	"sales-engine/internal/mirror"
	"sales-engine/internal/notify"
	"sales-engine/internal/sale"
	"sales-engine/internal/store"
	"sales-engine/internal/syncclient"
	"sales-engine/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	appLogger := logger.New(cfg.Environment)
	defer appLogger.Sync()

	appLogger.Info("🚀 Starting sales engine",
		zap.String("environment", cfg.Environment),
		zap.String("sqlite_path", cfg.SQLitePath),
		zap.String("seller_id", cfg.SellerID),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
	)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize local store (Single Writer)
	appLogger.Info("🔧 Initializing local store...")
	st, err := store.New(cfg.SQLitePath, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize local store", zap.Error(err))
	}
	defer st.Close()
	appLogger.Info("✅ Local store initialized successfully")

	// Initialize product read cache (Redis or in-memory fallback)
	productCache := cache.New(cfg, appLogger)

	// Initialize inventory mirror service
	mirrorService := mirror.NewService(st, productCache, appLogger)

	// Initialize remote adapters
	ledger := syncclient.NewClient(cfg.SaleEndpoint, cfg.RequestTimeout, appLogger)
	dispatcher := notify.NewDispatcher(cfg.PushEndpoint, st, cfg.RequestTimeout, appLogger)

	// Initialize sale transaction coordinator
	coordinator := sale.NewCoordinator(st, mirrorService, ledger, dispatcher, nil, nil, cfg.SyncConcurrency, appLogger)

	session := sale.Session{
		SellerID:   cfg.SellerID,
		SellerName: cfg.SellerName,
	}
	if route, err := st.RouteForSeller(context.Background(), cfg.SellerID); err == nil {
		session.RouteName = route.Name
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start mirroring the assigned warehouse, if one resolves. A seller
	// with no warehouse still commits sales; they just stay pending.
	var subscription *mirror.Subscription
	warehouse, err := mirrorService.ResolveAssignedWarehouse(ctx, cfg.SellerID)
	if err != nil {
		appLogger.Fatal("Failed to resolve assigned warehouse", zap.Error(err))
	}
	if warehouse != nil {
		appLogger.Info("🔧 Starting stock feed mirroring...",
			zap.String("warehouse_id", warehouse.ID),
			zap.String("warehouse_name", warehouse.Name),
		)
		subscription, err = mirrorService.StartMirroring(ctx, cfg, warehouse)
		if err != nil {
			appLogger.Fatal("Failed to start mirroring", zap.Error(err))
		}
		defer subscription.Stop()
	} else {
		appLogger.Warn("No warehouse assigned to seller, inventory unavailable",
			zap.String("seller_id", cfg.SellerID),
		)
	}

	// Initialize HTTP adapter
	handler := api.NewHandler(coordinator, st, productCache, mirrorService, api.StaticProbe(true), session,
		time.Duration(cfg.CacheTTL)*time.Second, appLogger)
	router := api.NewRouter(handler, appLogger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		appLogger.Info("📨 HTTP adapter listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	appLogger.Info("Shutting down sales engine", zap.String("signal", sig.String()))

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server shutdown error", zap.Error(err))
	}

	appLogger.Info("Sales engine exited")
}
