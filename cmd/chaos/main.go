// Package main validates a file of raw third-party payloads offline and
// archives every rejected sample as one batch record. It never touches the
// job store or the queue.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/kiranshivaraju/demolens/internal/archive"
	"github.com/kiranshivaraju/demolens/internal/validate"
	"github.com/kiranshivaraju/demolens/pkg/models"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	file := flag.String("file", "", "JSON array of raw payloads or {success,data} responses")
	dir := flag.String("archive-dir", envOr("ARCHIVE_DIR", "failed-records"), "directory for the batch record")
	flag.Parse()

	if err := run(context.Background(), *file, *dir, os.Stdout); err != nil {
		slog.Error("chaos run failed", "error", err)
		os.Exit(1)
	}
}

type summary struct {
	Processed int
	Skipped   int
	Batch     string
}

func run(ctx context.Context, path, archiveDir string, out io.Writer) error {
	samples, err := readSamples(path)
	if err != nil {
		return err
	}
	ar, err := archive.NewDirArchive(archiveDir)
	if err != nil {
		return err
	}

	s, err := check(ctx, samples, ar, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "processed=%d skipped=%d\n", s.Processed, s.Skipped)
	if s.Batch != "" {
		fmt.Fprintf(out, "rejects archived to %s\n", s.Batch)
	}
	return nil
}

func readSamples(path string) ([]json.RawMessage, error) {
	if path == "" {
		return nil, errors.New("--file is required")
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}
	var samples []json.RawMessage
	if err := json.Unmarshal(body, &samples); err != nil {
		return nil, fmt.Errorf("parse samples %s: expected a JSON array: %w", path, err)
	}
	return samples, nil
}

// check validates every sample and saves the rejects in one batch record.
func check(ctx context.Context, samples []json.RawMessage, ar archive.Archive, now time.Time) (summary, error) {
	var s summary
	var rejects []models.FailedRecord

	for i, raw := range samples {
		reason, issues := inspect(raw)
		if len(issues) == 0 {
			s.Processed++
			continue
		}
		s.Skipped++
		for _, is := range issues {
			slog.Warn("sample rejected", "index", i, "path", is.Path, "raw_value", string(is.RawValue), "message", is.Message)
		}
		rejects = append(rejects, models.FailedRecord{
			JobID:    fmt.Sprintf("sample-%d", i),
			FailedAt: now,
			Reason:   reason,
			Issues:   issues,
			Payload:  raw,
		})
	}

	if len(rejects) > 0 {
		name, err := ar.SaveBatch(ctx, rejects)
		if err != nil {
			return s, fmt.Errorf("archive rejects: %w", err)
		}
		s.Batch = name
	}
	return s, nil
}

// inspect accepts either a bare payload or a {success,data} response envelope.
func inspect(raw json.RawMessage) (string, []models.ValidationIssue) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.FailureValidation, []models.ValidationIssue{{
			Path: "data", RawValue: raw, Message: "must be an object",
		}}
	}

	if _, ok := fields["success"]; ok {
		resp, err := validate.DecodeResponse(raw)
		if err != nil {
			return models.FailureValidation, []models.ValidationIssue{{
				Path: "response", RawValue: raw, Message: err.Error(),
			}}
		}
		if len(resp.Issues) > 0 {
			return models.FailureValidation, resp.Issues
		}
		if !resp.Success {
			return models.FailureSourceRejected, []models.ValidationIssue{{
				Path: "success", RawValue: json.RawMessage("false"), Message: "source reported failure: " + resp.Error,
			}}
		}
		_, issues := validate.Validate(resp.Data)
		return models.FailureValidation, issues
	}

	var p models.RawPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return models.FailureValidation, []models.ValidationIssue{{
			Path: "data", RawValue: raw, Message: err.Error(),
		}}
	}
	_, issues := validate.Validate(&p)
	return models.FailureValidation, issues
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
