package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/demolens/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.AnalysisJob) error {
	prepareNewJob(job, time.Now().UTC())

	demographics, err := marshalDemographics(job.Demographics)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (job_id, user_id, data_url, status, version, demographics, error, created_at, updated_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.JobID, job.UserID, job.DataURL, job.Status, job.Version, demographics, job.Error,
		job.CreatedAt, job.UpdatedAt, job.CompletedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	var demographics []byte
	err := s.pool.QueryRow(ctx,
		`SELECT job_id, user_id, data_url, status, version, demographics, error, created_at, updated_at, completed_at
		 FROM analysis_jobs WHERE job_id = $1`, jobID,
	).Scan(&j.JobID, &j.UserID, &j.DataURL, &j.Status, &j.Version, &demographics, &j.Error,
		&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if len(demographics) > 0 {
		j.Demographics = &models.Demographics{}
		if err := json.Unmarshal(demographics, j.Demographics); err != nil {
			return nil, fmt.Errorf("decode demographics: %w", err)
		}
	}
	return &j, nil
}

// ConditionalUpdate is a single UPDATE filtered on job_id, status and version.
// Unset mutation fields are passed as NULL and COALESCEd onto the current value.
func (s *PostgresStore) ConditionalUpdate(ctx context.Context, jobID string, expected Expected, m Mutation) (bool, error) {
	if err := m.check(expected); err != nil {
		return false, err
	}

	demographics, err := marshalDemographics(m.Demographics)
	if err != nil {
		return false, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_jobs
		 SET status = $4,
		     version = version + 1,
		     updated_at = $5,
		     demographics = COALESCE($6::jsonb, demographics),
		     completed_at = COALESCE($7, completed_at),
		     error = COALESCE($8, error)
		 WHERE job_id = $1 AND status = $2 AND version = $3`,
		jobID, expected.Status, expected.Version,
		m.Status, time.Now().UTC(), demographics, m.CompletedAt, m.Error)
	if err != nil {
		return false, fmt.Errorf("conditional update job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// marshalDemographics returns nil for a nil result so the column is written as NULL.
func marshalDemographics(d *models.Demographics) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode demographics: %w", err)
	}
	return b, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
