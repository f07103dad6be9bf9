// Package main is the entry point for the gatehoused approval server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gatehouse-io/gatehouse/definition"
	"github.com/gatehouse-io/gatehouse/engine"
	"github.com/gatehouse-io/gatehouse/hook"
	"github.com/gatehouse-io/gatehouse/internal/config"
	"github.com/gatehouse-io/gatehouse/internal/idempotency"
	"github.com/gatehouse-io/gatehouse/internal/transport"
	"github.com/gatehouse-io/gatehouse/observability"
	"github.com/gatehouse-io/gatehouse/store"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	logger, err := observability.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:      cfg.Observability.Tracing.Enabled,
		Exporter:     cfg.Observability.Tracing.Exporter,
		Endpoint:     cfg.Observability.Tracing.Endpoint,
		SamplingRate: cfg.Observability.Tracing.SamplingRate,
	}, "gatehoused", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	promRegistry := prometheus.NewRegistry()
	metrics := observability.InitMetrics(promRegistry)

	// Step 4: Load definitions and build the engine registry.
	loader := definition.NewLoader()
	defs, err := loader.LoadAll(cfg.Definitions.Directories)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}
	if len(defs) == 0 {
		logger.Error("no definitions found",
			zap.Strings("directories", cfg.Definitions.Directories))
		return 1
	}

	supervisor := hook.NewSupervisor(logger, hook.WithSupervisorMetrics(metrics))
	dispatcher := hook.NewDispatcher(logger, supervisor, hook.WithMetrics(metrics))

	engines := make([]*engine.Engine, 0, len(defs))
	for _, def := range defs {
		eng, err := engine.New(def, dispatcher,
			engine.WithLogger(logger),
			engine.WithMetrics(metrics),
			engine.WithCascadeLimit(cfg.Engine.CascadeLimit),
		)
		if err != nil {
			logger.Error("definition rejected",
				zap.String("definition_id", def.ID),
				zap.String("source", def.SourceFile),
				zap.Error(err))
			return 1
		}
		engines = append(engines, eng)
	}
	registry := engine.NewRegistry(engines...)

	// Step 5: Initialize the request store.
	requestStore, storeCloser, err := buildRequestStore(ctx, cfg.Store)
	if err != nil {
		logger.Error("store initialization failed", zap.Error(err))
		return 1
	}

	// Step 6: Initialize the idempotency store (optional).
	idemStore, idemCloser := buildIdempotencyStore(cfg.Idempotency, logger)

	// Step 7: Build HTTP router.
	var metricsHandler http.Handler
	if cfg.Observability.Metrics.Enabled {
		metricsHandler = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Registry:    registry,
		Store:       requestStore,
		Idempotency: idemStore,
		Metrics:     metricsHandler,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 8: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("definitions", len(defs)),
		zap.String("checksum", registry.Checksum()),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Drain async hooks still running in the background.
	if err := supervisor.Drain(shutdownCtx); err != nil {
		logger.Error("hook supervisor drain error", zap.Error(err))
	}

	// Close stores.
	if storeCloser != nil {
		storeCloser()
	}
	if idemCloser != nil {
		idemCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildRequestStore creates the configured request store. The returned closer
// releases the connection pool for the postgres driver; it is nil for memory.
func buildRequestStore(ctx context.Context, cfg config.StoreConfig) (store.RequestStore, func(), error) {
	switch cfg.Driver {
	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("parse store dsn: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect store: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping store: %w", err)
		}
		return store.NewPgRequestStore(pool), pool.Close, nil
	default:
		return store.NewMemoryRequestStore(), nil, nil
	}
}

// buildIdempotencyStore creates the configured idempotency store, or nil when
// disabled.
func buildIdempotencyStore(cfg config.IdempotencyConfig, logger *zap.Logger) (idempotency.Store, func()) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Driver {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Addr(),
			DB:   cfg.DB,
		})
		logger.Info("idempotency store ready",
			zap.String("driver", "redis"),
			zap.String("addr", cfg.Addr()))
		return idempotency.NewRedisStore(client), func() { client.Close() }
	default:
		logger.Info("idempotency store ready", zap.String("driver", "memory"))
		return idempotency.NewMemoryStore(), nil
	}
}
