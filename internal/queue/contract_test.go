package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/demolens/internal/queue"
	"github.com/kiranshivaraju/demolens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvent() models.AnalysisRequestedEvent {
	return models.AnalysisRequestedEvent{
		EventType: models.EventTypeAnalysisRequested,
		JobID:     uuid.NewString(),
		UserID:    "user-1",
		DataURL:   "https://vendor.example.com/users/1",
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		TraceID:   uuid.NewString(),
	}
}

// runQueueContract checks the at-least-once behaviour every backend shares.
func runQueueContract(t *testing.T, newQueue func(t *testing.T) queue.Queue) {
	t.Run("PublishPollAcknowledge", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()
		ev := newEvent()

		require.NoError(t, q.Publish(ctx, ev))

		msgs, err := q.Poll(ctx)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.NoError(t, msgs[0].DecodeErr)
		assert.Equal(t, ev.JobID, msgs[0].Event.JobID)
		assert.Equal(t, ev.TraceID, msgs[0].Event.TraceID)
		assert.True(t, ev.Timestamp.Equal(msgs[0].Event.Timestamp))
		assert.NotEmpty(t, msgs[0].Handle)

		require.NoError(t, q.Acknowledge(ctx, msgs[0].Handle))

		msgs, err = q.Poll(ctx)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("UnacknowledgedIsRedelivered", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()
		ev := newEvent()
		require.NoError(t, q.Publish(ctx, ev))

		first, err := q.Poll(ctx)
		require.NoError(t, err)
		require.Len(t, first, 1)

		second, err := q.Poll(ctx)
		require.NoError(t, err)
		require.Len(t, second, 1)
		assert.Equal(t, first[0].Handle, second[0].Handle)
		assert.Equal(t, ev.JobID, second[0].Event.JobID)

		require.NoError(t, q.Acknowledge(ctx, second[0].Handle))
	})

	t.Run("IndependentMessages", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()
		a, b := newEvent(), newEvent()
		require.NoError(t, q.Publish(ctx, a))
		require.NoError(t, q.Publish(ctx, b))

		msgs, err := q.Poll(ctx)
		require.NoError(t, err)
		require.Len(t, msgs, 2)

		var ackedJob string
		for _, m := range msgs {
			if m.Event.JobID == a.JobID {
				require.NoError(t, q.Acknowledge(ctx, m.Handle))
				ackedJob = m.Event.JobID
			}
		}
		require.Equal(t, a.JobID, ackedJob)

		msgs, err = q.Poll(ctx)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, b.JobID, msgs[0].Event.JobID)
		require.NoError(t, q.Acknowledge(ctx, msgs[0].Handle))
	})
	t.Run("SkippedHandlesStayQueued", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()
		a, b := newEvent(), newEvent()
		require.NoError(t, q.Publish(ctx, a))
		require.NoError(t, q.Publish(ctx, b))

		msgs, err := q.Poll(ctx)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		var skipped string
		for _, m := range msgs {
			if m.Event.JobID == a.JobID {
				skipped = m.Handle
			}
		}
		require.NotEmpty(t, skipped)

		msgs, err = q.Poll(ctx, queue.SkipHandles(func(h string) bool { return h == skipped }))
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, b.JobID, msgs[0].Event.JobID)

		msgs, err = q.Poll(ctx)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		for _, m := range msgs {
			require.NoError(t, q.Acknowledge(ctx, m.Handle))
		}
	})
}
