package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/demolens/internal/store"
	"github.com/kiranshivaraju/demolens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingJob() *models.AnalysisJob {
	return &models.AnalysisJob{
		JobID:   uuid.NewString(),
		UserID:  "user-42",
		DataURL: "https://vendor.example.com/users/42",
	}
}

func sampleDemographics() *models.Demographics {
	return &models.Demographics{
		AgeRange:   "25-34",
		Gender:     "female",
		Location:   "US",
		Interests:  []string{"fashion", "travel"},
		Confidence: 0.85,
	}
}

// runStoreContract exercises the behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := newPendingJob()

		require.NoError(t, s.CreateJob(ctx, job))
		assert.Equal(t, models.JobStatusPending, job.Status)
		assert.Equal(t, int64(0), job.Version)

		got, err := s.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, job.JobID, got.JobID)
		assert.Equal(t, "user-42", got.UserID)
		assert.Equal(t, job.DataURL, got.DataURL)
		assert.Equal(t, models.JobStatusPending, got.Status)
		assert.Equal(t, int64(0), got.Version)
		assert.Nil(t, got.Demographics)
		assert.Nil(t, got.CompletedAt)
		assert.Nil(t, got.Error)
		assert.WithinDuration(t, job.CreatedAt, got.CreatedAt, time.Millisecond)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := newPendingJob()

		require.NoError(t, s.CreateJob(ctx, job))
		dup := *job
		err := s.CreateJob(ctx, &dup)
		assert.ErrorIs(t, err, store.ErrDuplicateKey)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetJob(context.Background(), uuid.NewString())
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("ConditionalUpdateAdvancesVersion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := newPendingJob()
		require.NoError(t, s.CreateJob(ctx, job))

		ok, err := s.ConditionalUpdate(ctx, job.JobID,
			store.Expected{Status: models.JobStatusPending, Version: 0},
			store.Mutation{Status: models.JobStatusProcessing})
		require.NoError(t, err)
		require.True(t, ok)

		completedAt := time.Now().UTC().Truncate(time.Millisecond)
		ok, err = s.ConditionalUpdate(ctx, job.JobID,
			store.Expected{Status: models.JobStatusProcessing, Version: 1},
			store.Mutation{Status: models.JobStatusCompleted, Demographics: sampleDemographics(), CompletedAt: &completedAt})
		require.NoError(t, err)
		require.True(t, ok)

		got, err := s.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
		assert.Equal(t, int64(2), got.Version)
		assert.Equal(t, sampleDemographics(), got.Demographics)
		require.NotNil(t, got.CompletedAt)
		assert.WithinDuration(t, completedAt, *got.CompletedAt, time.Millisecond)
	})

	t.Run("ConditionalUpdateStalePrecondition", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := newPendingJob()
		require.NoError(t, s.CreateJob(ctx, job))

		ok, err := s.ConditionalUpdate(ctx, job.JobID,
			store.Expected{Status: models.JobStatusPending, Version: 3},
			store.Mutation{Status: models.JobStatusProcessing})
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.ConditionalUpdate(ctx, job.JobID,
			store.Expected{Status: models.JobStatusProcessing, Version: 0},
			store.Mutation{Status: models.JobStatusFailed})
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusPending, got.Status)
		assert.Equal(t, int64(0), got.Version)
	})

	t.Run("ConditionalUpdateMissingJob", func(t *testing.T) {
		s := newStore(t)
		ok, err := s.ConditionalUpdate(context.Background(), uuid.NewString(),
			store.Expected{Status: models.JobStatusPending, Version: 0},
			store.Mutation{Status: models.JobStatusProcessing})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("DemographicsOnlyWithCompletion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := newPendingJob()
		require.NoError(t, s.CreateJob(ctx, job))

		ok, err := s.ConditionalUpdate(ctx, job.JobID,
			store.Expected{Status: models.JobStatusPending, Version: 0},
			store.Mutation{Status: models.JobStatusProcessing, Demographics: sampleDemographics()})
		assert.ErrorIs(t, err, store.ErrIllegalMutation)
		assert.False(t, ok)

		got, err := s.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.Version)
		assert.Nil(t, got.Demographics)
	})

	t.Run("FailedKeepsErrorNote", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := newPendingJob()
		require.NoError(t, s.CreateJob(ctx, job))

		msg := "validation failed: age: expected integer"
		ok, err := s.ConditionalUpdate(ctx, job.JobID,
			store.Expected{Status: models.JobStatusPending, Version: 0},
			store.Mutation{Status: models.JobStatusFailed, Error: &msg})
		require.NoError(t, err)
		require.True(t, ok)

		got, err := s.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusFailed, got.Status)
		require.NotNil(t, got.Error)
		assert.Equal(t, msg, *got.Error)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("ConcurrentCommitOnlyOneWins", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := newPendingJob()
		require.NoError(t, s.CreateJob(ctx, job))

		ok, err := s.ConditionalUpdate(ctx, job.JobID,
			store.Expected{Status: models.JobStatusPending, Version: 0},
			store.Mutation{Status: models.JobStatusProcessing})
		require.NoError(t, err)
		require.True(t, ok)

		const writers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				now := time.Now().UTC()
				applied, err := s.ConditionalUpdate(ctx, job.JobID,
					store.Expected{Status: models.JobStatusProcessing, Version: 1},
					store.Mutation{Status: models.JobStatusCompleted, Demographics: sampleDemographics(), CompletedAt: &now})
				assert.NoError(t, err)
				if applied {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		got, err := s.GetJob(ctx, job.JobID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, got.Status)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("TerminalStateIsFinal", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		job := newPendingJob()
		require.NoError(t, s.CreateJob(ctx, job))

		msg := "boom"
		ok, err := s.ConditionalUpdate(ctx, job.JobID,
			store.Expected{Status: models.JobStatusPending, Version: 0},
			store.Mutation{Status: models.JobStatusFailed, Error: &msg})
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.ConditionalUpdate(ctx, job.JobID,
			store.Expected{Status: models.JobStatusPending, Version: 0},
			store.Mutation{Status: models.JobStatusProcessing})
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
