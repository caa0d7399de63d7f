package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/demolens/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrIllegalMutation is returned when a mutation would set demographics outside
// the PROCESSING -> COMPLETED transition. Nothing is written.
var ErrIllegalMutation = errors.New("illegal job mutation")

// Store is the data access interface for analysis jobs. After creation a job is
// only ever written through ConditionalUpdate. There is no unconditional update.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.AnalysisJob) error
	GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error)

	// ConditionalUpdate applies m and advances the version by one, atomically, only
	// if the stored job matches expected. It returns false with a nil error when
	// the precondition does not hold, including when the job does not exist.
	ConditionalUpdate(ctx context.Context, jobID string, expected Expected, m Mutation) (bool, error)
}

// Expected is the (status, version) precondition of a conditional update.
type Expected struct {
	Status  string
	Version int64
}

// Mutation is the set of field assignments applied by a conditional update.
// Nil pointers leave the stored field untouched.
type Mutation struct {
	Status       string
	Demographics *models.Demographics
	CompletedAt  *time.Time
	Error        *string
}

func (m Mutation) check(expected Expected) error {
	if !models.ValidStatus(m.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrIllegalMutation, m.Status)
	}
	if m.Demographics != nil &&
		(m.Status != models.JobStatusCompleted || expected.Status != models.JobStatusProcessing) {
		return fmt.Errorf("%w: demographics may only be set on %s -> %s",
			ErrIllegalMutation, models.JobStatusProcessing, models.JobStatusCompleted)
	}
	return nil
}

// prepareNewJob fills the creation-time fields shared by every backend.
func prepareNewJob(job *models.AnalysisJob, now time.Time) {
	job.Version = 0
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt
}
