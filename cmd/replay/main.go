// Package main replays one persisted AnalysisRequested event through the job
// processor, bypassing the queue. Use it on a file from the capture directory
// or the queue directory to reproduce a failure locally.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/demolens/internal/config"
	"github.com/kiranshivaraju/demolens/internal/processor"
	"github.com/kiranshivaraju/demolens/internal/queue"
	"github.com/kiranshivaraju/demolens/internal/wiring"
	"github.com/kiranshivaraju/demolens/pkg/models"
)

type handler interface {
	Process(ctx context.Context, ev models.AnalysisRequestedEvent) (processor.Outcome, error)
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	file := flag.String("file", "", "path to an AnalysisRequested event JSON file")
	flag.Parse()

	if err := run(*file); err != nil {
		slog.Error("replay failed", "error", err)
		os.Exit(1)
	}
}

func run(path string) error {
	ev, err := readEvent(path)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := wiring.OpenStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer closeStore()

	ar, err := wiring.OpenArchive(ctx, cfg.Archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	proc := wiring.NewProcessor(cfg, st, wiring.NewSource(cfg.Source), ar, nil)
	return replay(ctx, ev, proc, os.Stdout)
}

// readEvent loads and decodes an event file with the same checks the
// consumer applies to queue messages.
func readEvent(path string) (models.AnalysisRequestedEvent, error) {
	if path == "" {
		return models.AnalysisRequestedEvent{}, errors.New("--file is required")
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return models.AnalysisRequestedEvent{}, fmt.Errorf("read event file: %w", err)
	}
	ev, err := queue.DecodeEvent(body)
	if err != nil {
		return models.AnalysisRequestedEvent{}, fmt.Errorf("parse event file %s: %w", path, err)
	}
	return ev, nil
}

func replay(ctx context.Context, ev models.AnalysisRequestedEvent, h handler, out io.Writer) error {
	slog.Info("replaying event", "job_id", ev.JobID, "trace_id", ev.TraceID)

	outcome, err := h.Process(ctx, ev)
	if err != nil {
		return fmt.Errorf("process job %s: %w", ev.JobID, err)
	}
	fmt.Fprintf(out, "job %s: %s\n", ev.JobID, outcome)
	return nil
}
