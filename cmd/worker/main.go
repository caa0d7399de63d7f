// Package main is the entrypoint for the demolens queue worker.
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

	"github.com/kiranshivaraju/demolens/internal/capture"
	"github.com/kiranshivaraju/demolens/internal/config"
	"github.com/kiranshivaraju/demolens/internal/consumer"
	"github.com/kiranshivaraju/demolens/internal/metrics"
	"github.com/kiranshivaraju/demolens/internal/wiring"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"database_driver", cfg.Database.Driver,
		"queue_driver", cfg.Queue.Driver,
		"source_mode", cfg.Source.Mode,
		"archive_driver", cfg.Archive.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := wiring.OpenStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer closeStore()

	c, closeCache, err := wiring.OpenCache(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeCache()

	q, err := wiring.OpenQueue(cfg.Queue, cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer q.Close()

	ar, err := wiring.OpenArchive(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	proc := wiring.NewProcessor(cfg, st, wiring.NewSource(cfg.Source), ar, c)

	opts := []consumer.Option{consumer.WithAttemptCounter(wiring.NewAttemptCounter(c))}
	if cfg.Capture.Enabled {
		w, err := capture.NewWriter(cfg.Capture.Dir)
		if err != nil {
			return err
		}
		opts = append(opts, consumer.WithCapture(w))
		slog.Info("capture mode enabled", "dir", cfg.Capture.Dir)
	}

	poller := consumer.NewPoller(q, proc, ar, consumer.Config{
		Interval:       cfg.Worker.PollInterval,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		BackoffInitial: cfg.Worker.BackoffInitial,
		BackoffMax:     cfg.Worker.BackoffMax,
	}, opts...)

	metricsSrv := startMetricsServer(cfg.Worker.MetricsPort)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown", "error", err)
		}
	}()

	return poller.Run(ctx)
}

func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("metrics listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()
	return srv
}
