// Package analysis is the producer side of the pipeline: it creates jobs,
// publishes their events, and answers reads.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/demolens/internal/cache"
	"github.com/kiranshivaraju/demolens/internal/config"
	"github.com/kiranshivaraju/demolens/internal/metrics"
	"github.com/kiranshivaraju/demolens/internal/queue"
	"github.com/kiranshivaraju/demolens/internal/store"
	"github.com/kiranshivaraju/demolens/pkg/models"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrJobNotFound    = errors.New("job not found")
)

const statusHintTTL = 24 * time.Hour

type Service struct {
	store store.Store
	queue queue.Queue
	cache cache.Cache
	now   func() time.Time
	newID func() string
}

type Option func(*Service)

// WithCache enables status hints for GetStatus. Nil is ignored.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, q queue.Queue, opts ...Option) *Service {
	s := &Service{
		store: st,
		queue: q,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob stores a PENDING job and publishes its AnalysisRequested event.
// If the publish fails the job is moved to FAILED so it is not left pending
// with nothing queued for it.
func (s *Service) CreateJob(ctx context.Context, userID, dataURL string) (*models.AnalysisJob, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	if err := config.ValidateDataURL(dataURL); err != nil {
		return nil, fmt.Errorf("%w: dataUrl %v", ErrInvalidRequest, err)
	}

	job := &models.AnalysisJob{
		JobID:   s.newID(),
		UserID:  userID,
		DataURL: dataURL,
		Status:  models.JobStatusPending,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	traceID := s.newID()
	log := slog.With("job_id", job.JobID, "trace_id", traceID)

	err := s.queue.Publish(ctx, models.AnalysisRequestedEvent{
		EventType: models.EventTypeAnalysisRequested,
		JobID:     job.JobID,
		UserID:    job.UserID,
		DataURL:   job.DataURL,
		Timestamp: s.now(),
		TraceID:   traceID,
	})
	if err != nil {
		log.Error("publish event failed", "error", err)
		note := "event publish failed: " + err.Error()
		if _, casErr := s.store.ConditionalUpdate(ctx, job.JobID,
			store.Expected{Status: models.JobStatusPending, Version: job.Version},
			store.Mutation{Status: models.JobStatusFailed, Error: &note}); casErr != nil {
			log.Error("mark unpublished job failed", "error", casErr)
		}
		return nil, fmt.Errorf("publish event: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJobStatus(ctx, job.JobID, job.Status, statusHintTTL); err != nil {
			log.Warn("cache job status", "error", err)
		}
	}
	metrics.JobsCreated.Inc()
	log.Info("analysis job created", "user_id", job.UserID)
	return job, nil
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// GetStatus answers from the cache when it has a hint and from the store
// otherwise. A cache error is not fatal.
func (s *Service) GetStatus(ctx context.Context, jobID string) (string, error) {
	if s.cache != nil {
		status, ok, err := s.cache.GetJobStatus(ctx, jobID)
		if err != nil {
			slog.Warn("read cached job status", "job_id", jobID, "error", err)
		} else if ok {
			return status, nil
		}
	}

	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}
