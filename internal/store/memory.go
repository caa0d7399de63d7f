package store

import (
	"context"
	"sync"
	"time"

	"github.com/kiranshivaraju/demolens/pkg/models"
)

// MemoryStore keeps jobs in a mutex-guarded map. Used for local runs and tests;
// the mutex gives ConditionalUpdate the same atomicity a database filter does.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]models.AnalysisJob
	now  func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]models.AnalysisJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) CreateJob(_ context.Context, job *models.AnalysisJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.JobID]; ok {
		return ErrDuplicateKey
	}
	prepareNewJob(job, s.now())
	s.jobs[job.JobID] = cloneJob(*job)
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*models.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneJob(j)
	return &out, nil
}

func (s *MemoryStore) ConditionalUpdate(_ context.Context, jobID string, expected Expected, m Mutation) (bool, error) {
	if err := m.check(expected); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok || j.Status != expected.Status || j.Version != expected.Version {
		return false, nil
	}

	j.Status = m.Status
	j.Version++
	j.UpdatedAt = s.now()
	if m.Demographics != nil {
		d := cloneDemographics(m.Demographics)
		j.Demographics = d
	}
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		j.CompletedAt = &t
	}
	if m.Error != nil {
		e := *m.Error
		j.Error = &e
	}
	s.jobs[jobID] = j
	return true, nil
}

func cloneJob(j models.AnalysisJob) models.AnalysisJob {
	j.Demographics = cloneDemographics(j.Demographics)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		j.CompletedAt = &t
	}
	if j.Error != nil {
		e := *j.Error
		j.Error = &e
	}
	return j
}

func cloneDemographics(d *models.Demographics) *models.Demographics {
	if d == nil {
		return nil
	}
	out := *d
	out.Interests = append([]string{}, d.Interests...)
	return &out
}
