// Package main is the entrypoint for the demolens API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/demolens/internal/analysis"
	"github.com/kiranshivaraju/demolens/internal/api"
	"github.com/kiranshivaraju/demolens/internal/api/handler"
	mw "github.com/kiranshivaraju/demolens/internal/api/middleware"
	"github.com/kiranshivaraju/demolens/internal/cache"
	"github.com/kiranshivaraju/demolens/internal/config"
	"github.com/kiranshivaraju/demolens/internal/metrics"
	"github.com/kiranshivaraju/demolens/internal/store"
	"github.com/kiranshivaraju/demolens/internal/wiring"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config; fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"database_driver", cfg.Database.Driver,
		"queue_driver", cfg.Queue.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Job store (postgres migrations run here)
	st, closeStore, err := wiring.OpenStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer closeStore()

	// 3. Optional Redis cache
	c, closeCache, err := wiring.OpenCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	// 4. Event queue
	q, err := wiring.OpenQueue(cfg.Queue, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer q.Close()
	slog.Info("queue ready", "driver", cfg.Queue.Driver)

	// 5. Build router with dependencies
	svc := analysis.NewService(st, q, analysis.WithCache(c))

	deps := api.Dependencies{
		RateLimit:   mw.NewRateLimit(c, cfg.Server.RequestsPerMinute),
		CORSOrigins: cfg.Server.CORSOrigins,

		HealthHandler:    healthHandler(st, c),
		CreateJobHandler: handler.NewCreateJobHandler(svc),
		GetJobHandler:    handler.NewGetJobHandler(svc),
		GetStatusHandler: handler.NewGetStatusHandler(svc),
		MetricsHandler:   metrics.Handler(),
	}

	router := api.NewRouter(deps)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler reports the job store and, when configured, the cache.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	deps := map[string]handler.Pinger{"database": s}
	if c != nil {
		deps["cache"] = c
	}
	return handler.NewHealthHandler(deps)
}
