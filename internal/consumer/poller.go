// Package consumer drives queue delivery: poll, hand each message to the
// processor, acknowledge on success, and leave it queued otherwise.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/demolens/internal/archive"
	"github.com/kiranshivaraju/demolens/internal/capture"
	"github.com/kiranshivaraju/demolens/internal/metrics"
	"github.com/kiranshivaraju/demolens/internal/processor"
	"github.com/kiranshivaraju/demolens/internal/queue"
	"github.com/kiranshivaraju/demolens/pkg/models"
)

// Handler processes one event; a nil error means the message may be acknowledged.
type Handler interface {
	Process(ctx context.Context, ev models.AnalysisRequestedEvent) (processor.Outcome, error)
}

type Config struct {
	Interval       time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Poller is a single sequential loop; it is not safe to call Run concurrently.
type Poller struct {
	queue    queue.Queue
	handler  Handler
	archive  archive.Archive
	attempts AttemptCounter
	capture  *capture.Writer
	cfg      Config
	now      func() time.Time

	// retryAt holds the earliest time a failed handle may be tried again.
	retryAt map[string]time.Time
}

type Option func(*Poller)

func WithAttemptCounter(c AttemptCounter) Option {
	return func(p *Poller) { p.attempts = c }
}

// WithCapture writes every consumed message to w before it is processed.
func WithCapture(w *capture.Writer) Option {
	return func(p *Poller) { p.capture = w }
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

func NewPoller(q queue.Queue, h Handler, ar archive.Archive, cfg Config, opts ...Option) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	p := &Poller{
		queue:    q,
		handler:  h,
		archive:  ar,
		attempts: NewMemoryAttempts(),
		cfg:      cfg,
		now:      time.Now,
		retryAt:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until ctx is cancelled. A cancellation never interrupts a message
// mid-flight: the current message finishes, then Run returns.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("consumer started", "interval", p.cfg.Interval, "max_attempts", p.cfg.MaxAttempts)
	for {
		if err := p.RunOnce(ctx); err != nil {
			slog.Error("poll failed", "error", err)
		}

		timer := time.NewTimer(p.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("consumer stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce polls once and handles every returned message in order. It stops
// early, between messages, when ctx is cancelled. Handles still waiting out a
// retry backoff are skipped by the queue and do not take up batch slots.
func (p *Poller) RunOnce(ctx context.Context) error {
	now := p.now()
	msgs, err := p.queue.Poll(ctx, queue.SkipHandles(func(handle string) bool {
		if p.deferred(handle, now) {
			metrics.MessagesConsumed.WithLabelValues("deferred").Inc()
			return true
		}
		return false
	}))
	if err != nil {
		return fmt.Errorf("poll queue: %w", err)
	}

	seen := make(map[string]bool, len(msgs))
	for _, msg := range msgs {
		seen[msg.Handle] = true
	}
	for h, at := range p.retryAt {
		if !seen[h] && !now.Before(at) {
			delete(p.retryAt, h)
		}
	}

	work := context.WithoutCancel(ctx)
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return nil
		}
		p.handle(work, msg)
	}
	return nil
}

func (p *Poller) deferred(handle string, now time.Time) bool {
	at, ok := p.retryAt[handle]
	return ok && now.Before(at)
}

func (p *Poller) handle(ctx context.Context, msg queue.Message) {
	log := slog.With("handle", msg.Handle, "job_id", msg.Event.JobID, "trace_id", msg.Event.TraceID)

	if p.deferred(msg.Handle, p.now()) {
		metrics.MessagesConsumed.WithLabelValues("deferred").Inc()
		return
	}

	if p.capture != nil {
		if path, err := p.capture.Write(msg.Event.JobID, msg.Body); err != nil {
			log.Warn("capture message", "error", err)
		} else {
			log.Debug("message captured", "path", path)
		}
	}

	if msg.DecodeErr != nil {
		log.Error("undecodable message", "error", msg.DecodeErr)
		p.deadLetter(ctx, log, msg, models.FailureUndecodable, []models.ValidationIssue{{
			Path:     "body",
			RawValue: rawJSON(msg.Body),
			Message:  msg.DecodeErr.Error(),
		}})
		return
	}

	outcome, err := p.process(ctx, msg.Event)
	if err == nil {
		if ackErr := p.queue.Acknowledge(ctx, msg.Handle); ackErr != nil {
			log.Error("acknowledge message", "error", ackErr)
			return
		}
		delete(p.retryAt, msg.Handle)
		if resetErr := p.attempts.Reset(ctx, msg.Handle); resetErr != nil {
			log.Warn("reset attempt counter", "error", resetErr)
		}
		metrics.MessagesConsumed.WithLabelValues("acked").Inc()
		log.Info("message handled", "outcome", outcome)
		return
	}

	n, cerr := p.attempts.Incr(ctx, msg.Handle)
	if cerr != nil {
		log.Warn("count attempt", "error", cerr)
		n = 1
	}

	if n >= int64(p.cfg.MaxAttempts) {
		log.Error("giving up on message", "attempts", n, "error", err)
		p.deadLetter(ctx, log, msg, models.FailureMaxAttempts, []models.ValidationIssue{{
			Path:     "processing",
			RawValue: json.RawMessage(mustJSON(err.Error())),
			Message:  fmt.Sprintf("gave up after %d attempts: %v", n, err),
		}})
		return
	}

	delay := retryBackoff(p.cfg.BackoffInitial, p.cfg.BackoffMax, n)
	p.retryAt[msg.Handle] = p.now().Add(delay)
	metrics.MessagesConsumed.WithLabelValues("retry").Inc()
	log.Warn("message left for retry", "attempt", n, "retry_in", delay, "error", err)
}

// process runs the handler and turns a panic into an error so one message
// cannot take the loop down.
func (p *Poller) process(ctx context.Context, ev models.AnalysisRequestedEvent) (outcome processor.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler: %v", r)
		}
	}()
	return p.handler.Process(ctx, ev)
}

// deadLetter archives the message and then acknowledges it. If archiving fails
// the message stays queued so nothing is lost.
func (p *Poller) deadLetter(ctx context.Context, log *slog.Logger, msg queue.Message, reason string, issues []models.ValidationIssue) {
	rec := models.FailedRecord{
		JobID:    msg.Event.JobID,
		TraceID:  msg.Event.TraceID,
		FailedAt: p.now().UTC(),
		Reason:   reason,
		Issues:   issues,
		Payload:  rawJSON(msg.Body),
	}
	name, err := p.archive.Save(ctx, rec)
	if err != nil {
		log.Error("dead-letter archive failed, leaving message queued", "error", err)
		return
	}
	if err := p.queue.Acknowledge(ctx, msg.Handle); err != nil {
		log.Error("acknowledge dead-lettered message", "error", err)
		return
	}
	delete(p.retryAt, msg.Handle)
	if err := p.attempts.Reset(ctx, msg.Handle); err != nil {
		log.Warn("reset attempt counter", "error", err)
	}
	metrics.MessagesConsumed.WithLabelValues("dead_lettered").Inc()
	log.Warn("message dead-lettered", "reason", reason, "record", name)
}

// rawJSON returns b when it is valid JSON and b as a JSON string otherwise.
func rawJSON(b []byte) json.RawMessage {
	if len(b) > 0 && json.Valid(b) {
		return b
	}
	return json.RawMessage(mustJSON(string(b)))
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
