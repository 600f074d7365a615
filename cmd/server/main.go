package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/openpantry/listings/internal/cache"
	"github.com/openpantry/listings/internal/client"
	"github.com/openpantry/listings/internal/config"
	"github.com/openpantry/listings/internal/limiter"
	"github.com/openpantry/listings/internal/metrics"
	"github.com/openpantry/listings/internal/middleware"
	"github.com/openpantry/listings/internal/repository"
	"github.com/openpantry/listings/internal/retry"
	"github.com/openpantry/listings/internal/service"
	"github.com/openpantry/listings/internal/storage"
	"github.com/openpantry/listings/internal/transport"
)

func main() {
	config.LoadDotEnv()

	cfg := config.Load()

	// Initialize logger
	logger, err := config.InitLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting listings gateway",
		zap.String("address", cfg.ServerAddr()),
		zap.String("storage", cfg.Storage.Backend),
	)

	// Initialize shared state store
	store, err := newStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}
	defer store.Close()

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Upstream clients
	primary := client.NewPrimaryAPI(cfg.Upstream.PrimaryURL, cfg.Upstream.PrimaryKey, cfg.Upstream.Timeout, logger)
	readView := client.NewReadView(cfg.Upstream.ReadViewURL, cfg.Upstream.ReadViewKey, cfg.Upstream.Timeout, logger)

	// Shared outbound request budget
	budget := limiter.NewFixedWindow(store, cfg.Budget.Limit, cfg.Budget.Window, logger)
	defer budget.Close()

	repo := repository.NewListingRepository(repository.Config{
		Primary:  primary,
		Fallback: readView,
		Budget:   budget,
		Retry: retry.Policy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			Multiplier:  cfg.Retry.Multiplier,
		},
		Logger:   logger,
		Metrics:  m,
		FailFast: cfg.Budget.FailFast,
	})

	svc := service.NewListingService(repo, cache.New(store), cfg.Cache.TTL, logger, m)

	// Inbound per-client rate limiting
	inbound := limiter.NewSlidingWindow(store, cfg.Inbound.Limit, cfg.Inbound.Window, logger)
	defer inbound.Close()

	httpServer := transport.NewHTTPServer(transport.ServerConfig{
		Address:      cfg.ServerAddr(),
		Store:        store,
		Logger:       logger,
		ReadTimeout:  int(cfg.Server.ReadTimeout.Seconds()),
		WriteTimeout: int(cfg.Server.WriteTimeout.Seconds()),
		IdleTimeout:  int(cfg.Server.IdleTimeout.Seconds()),
		Service:      svc,
		Registry:     registry,
		Middleware: []func(http.Handler) http.Handler{
			middleware.RateLimit(inbound, middleware.IPKeyExtractor, cfg.Inbound.Window, m, logger),
		},
	})

	servers := []transport.Server{httpServer}
	if cfg.GRPC.Address != "" {
		servers = append(servers, transport.NewGRPCServer(transport.ServerConfig{
			Address: cfg.GRPC.Address,
			Store:   store,
			Logger:  logger,
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, srv := range servers {
		if err := srv.Start(ctx); err != nil {
			logger.Fatal("Failed to start server", zap.String("address", srv.Addr()), zap.Error(err))
		}
	}

	// Background cache warmer
	if cfg.Cache.WarmInterval > 0 && cfg.Cache.TTL > 0 {
		go warmCache(ctx, svc, cfg.Cache, logger)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	for _, srv := range servers {
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.String("address", srv.Addr()), zap.Error(err))
		}
	}

	logger.Info("Server stopped")
}

func newStore(cfg config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "redis":
		rdb, err := config.NewRedisClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr(), err)
		}
		return storage.NewRedisStoreWithClient(rdb), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func warmCache(ctx context.Context, svc *service.ListingService, cfg config.CacheConfig, logger *zap.Logger) {
	ticker := time.NewTicker(cfg.WarmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.WarmRecent(ctx, cfg.WarmLimit); err != nil {
				logger.Warn("cache warm failed", zap.Error(err))
			}
		}
	}
}
