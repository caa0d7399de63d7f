// Package processor drives one analysis job through its state machine:
// PENDING -> PROCESSING -> COMPLETED | FAILED. Every write is a conditional
// update against the (status, version) the processor last observed, so
// duplicate deliveries and concurrent writers converge on one outcome.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/demolens/internal/archive"
	"github.com/kiranshivaraju/demolens/internal/cache"
	"github.com/kiranshivaraju/demolens/internal/config"
	"github.com/kiranshivaraju/demolens/internal/metrics"
	"github.com/kiranshivaraju/demolens/internal/source"
	"github.com/kiranshivaraju/demolens/internal/store"
	"github.com/kiranshivaraju/demolens/internal/validate"
	"github.com/kiranshivaraju/demolens/pkg/models"
)

// ErrJobNotFound is returned for a missing job under the retry policy.
var ErrJobNotFound = errors.New("job not found")

// Outcome is the handled result of one Process call.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeNotFound  Outcome = "not_found"
)

const statusHintTTL = 24 * time.Hour

// Processor is safe for concurrent use; all coordination happens in the store.
type Processor struct {
	store          store.Store
	source         source.Source
	archive        archive.Archive
	cache          cache.Cache
	notFoundPolicy string
	sourceTimeout  time.Duration
	now            func() time.Time
}

type Option func(*Processor)

// WithCache enables best-effort status hints. The store stays authoritative.
func WithCache(c cache.Cache) Option {
	return func(p *Processor) { p.cache = c }
}

// WithNotFoundPolicy selects config.NotFoundDrop or config.NotFoundRetry.
func WithNotFoundPolicy(policy string) Option {
	return func(p *Processor) { p.notFoundPolicy = policy }
}

// WithSourceTimeout bounds each data source call. Zero disables the bound.
func WithSourceTimeout(d time.Duration) Option {
	return func(p *Processor) { p.sourceTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func New(st store.Store, src source.Source, ar archive.Archive, opts ...Option) *Processor {
	p := &Processor{
		store:          st,
		source:         src,
		archive:        ar,
		notFoundPolicy: config.NotFoundDrop,
		sourceTimeout:  10 * time.Second,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one delivery of ev. A nil error means the message may be
// acknowledged: the outcome is terminal or someone else already owns the job.
// A non-nil error means the message should stay queued for redelivery.
func (p *Processor) Process(ctx context.Context, ev models.AnalysisRequestedEvent) (Outcome, error) {
	log := slog.With("job_id", ev.JobID, "trace_id", ev.TraceID)

	job, err := p.store.GetJob(ctx, ev.JobID)
	if errors.Is(err, store.ErrNotFound) {
		metrics.JobsProcessed.WithLabelValues(string(OutcomeNotFound)).Inc()
		if p.notFoundPolicy == config.NotFoundRetry {
			log.Warn("job not found, leaving message for retry")
			return OutcomeNotFound, fmt.Errorf("%w: %s", ErrJobNotFound, ev.JobID)
		}
		log.Warn("job not found, dropping message")
		return OutcomeNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("get job: %w", err)
	}

	claimed, err := p.store.ConditionalUpdate(ctx, ev.JobID,
		store.Expected{Status: models.JobStatusPending, Version: job.Version},
		store.Mutation{Status: models.JobStatusProcessing})
	if err != nil {
		return "", fmt.Errorf("claim job: %w", err)
	}
	if !claimed {
		metrics.CASConflicts.WithLabelValues(models.JobStatusProcessing).Inc()
		metrics.JobsProcessed.WithLabelValues(string(OutcomeSkipped)).Inc()
		log.Warn("job already claimed or finished, skipping",
			"status", job.Status, "version", job.Version)
		return OutcomeSkipped, nil
	}
	p.hint(ctx, ev.JobID, models.JobStatusProcessing)

	outcome, err := p.analyze(ctx, log, ev, job.Version+1)
	if err != nil {
		metrics.JobsProcessed.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.JobsProcessed.WithLabelValues(string(outcome)).Inc()
	return outcome, nil
}

// analyze runs the fetch, validate and commit steps for a job this processor
// moved to PROCESSING at version. Any error or panic triggers a best-effort
// move to FAILED before it is returned.
func (p *Processor) analyze(ctx context.Context, log *slog.Logger, ev models.AnalysisRequestedEvent, version int64) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing job: %v", r)
		}
		if err != nil {
			log.Error("processing job failed", "error", err)
			p.failBestEffort(ctx, log, ev.JobID, err)
			outcome = ""
		}
	}()

	resp, err := p.fetch(ctx, ev.DataURL)
	if err != nil {
		return "", err
	}

	if len(resp.Issues) > 0 {
		payload := resp.Raw
		if len(payload) == 0 {
			payload = marshalPayload(resp)
		}
		return p.reject(ctx, log, ev, version, models.FailureValidation, resp.Issues, payload)
	}

	if !resp.Success {
		raw, _ := json.Marshal(resp.Error)
		issues := []validate.Issue{{
			Path:     "success",
			RawValue: raw,
			Message:  "source reported failure: " + resp.Error,
		}}
		return p.reject(ctx, log, ev, version, models.FailureSourceRejected, issues, marshalPayload(resp))
	}

	in, issues := validate.Validate(resp.Data)
	if len(issues) > 0 {
		return p.reject(ctx, log, ev, version, models.FailureValidation, issues, marshalPayload(resp.Data))
	}

	completedAt := p.now()
	committed, err := p.store.ConditionalUpdate(ctx, ev.JobID,
		store.Expected{Status: models.JobStatusProcessing, Version: version},
		store.Mutation{
			Status:       models.JobStatusCompleted,
			Demographics: validate.ToDemographics(in),
			CompletedAt:  &completedAt,
		})
	if err != nil {
		return "", fmt.Errorf("commit completed job: %w", err)
	}
	if !committed {
		metrics.CASConflicts.WithLabelValues(models.JobStatusCompleted).Inc()
		log.Warn("job moved while processing, result discarded", "expected_version", version)
		return OutcomeSkipped, nil
	}

	p.hint(ctx, ev.JobID, models.JobStatusCompleted)
	log.Info("job completed", "version", version+1)
	return OutcomeCompleted, nil
}

func (p *Processor) fetch(ctx context.Context, dataURL string) (*models.ThirdPartyResponse, error) {
	if p.sourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.sourceTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.source.Fetch(ctx, dataURL)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.SourceLatency.WithLabelValues(result).Observe(time.Since(start).Seconds())

	if err != nil {
		return nil, fmt.Errorf("fetch demographics: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("fetch demographics: %w: empty response", source.ErrBadResponse)
	}
	return resp, nil
}

// reject commits FAILED and archives the record whether or not the commit wins.
func (p *Processor) reject(ctx context.Context, log *slog.Logger, ev models.AnalysisRequestedEvent, version int64,
	reason string, issues []validate.Issue, payload json.RawMessage) (Outcome, error) {
	for _, is := range issues {
		metrics.ValidationFailures.WithLabelValues(is.Path).Inc()
		log.Warn("payload rejected", "path", is.Path, "raw_value", string(is.RawValue), "message", is.Message)
	}

	note := validate.Summary(issues)
	if reason == models.FailureSourceRejected {
		note = issues[0].Message
	}

	failed, casErr := p.store.ConditionalUpdate(ctx, ev.JobID,
		store.Expected{Status: models.JobStatusProcessing, Version: version},
		store.Mutation{Status: models.JobStatusFailed, Error: &note})

	rec := models.FailedRecord{
		JobID:    ev.JobID,
		TraceID:  ev.TraceID,
		FailedAt: p.now(),
		Reason:   reason,
		Issues:   issues,
		Payload:  payload,
	}
	if name, err := p.archive.Save(ctx, rec); err != nil {
		log.Error("archive failed record", "error", err)
	} else {
		log.Info("failed record archived", "record", name)
	}

	if casErr != nil {
		return "", fmt.Errorf("commit failed job: %w", casErr)
	}
	if !failed {
		metrics.CASConflicts.WithLabelValues(models.JobStatusFailed).Inc()
		log.Warn("job moved while processing, rejection not recorded on job", "expected_version", version)
		return OutcomeFailed, nil
	}

	p.hint(ctx, ev.JobID, models.JobStatusFailed)
	return OutcomeFailed, nil
}

// failBestEffort moves the job to FAILED from whatever state it is observed in,
// unless that state is already terminal. Losing the race is acceptable.
func (p *Processor) failBestEffort(ctx context.Context, log *slog.Logger, jobID string, cause error) {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		log.Error("re-read job after failure", "error", err)
		return
	}
	if models.IsTerminal(job.Status) {
		return
	}

	note := cause.Error()
	ok, err := p.store.ConditionalUpdate(ctx, jobID,
		store.Expected{Status: job.Status, Version: job.Version},
		store.Mutation{Status: models.JobStatusFailed, Error: &note})
	switch {
	case err != nil:
		log.Error("mark job failed", "error", err)
	case !ok:
		metrics.CASConflicts.WithLabelValues(models.JobStatusFailed).Inc()
		log.Warn("job moved before it could be marked failed", "observed_status", job.Status, "observed_version", job.Version)
	default:
		p.hint(ctx, jobID, models.JobStatusFailed)
	}
}

func (p *Processor) hint(ctx context.Context, jobID, status string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.SetJobStatus(ctx, jobID, status, statusHintTTL); err != nil {
		slog.Warn("cache job status", "job_id", jobID, "error", err)
	}
}

func marshalPayload(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
