package queue_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kiranshivaraju/demolens/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirQueue(t *testing.T) {
	runQueueContract(t, func(t *testing.T) queue.Queue {
		q, err := queue.NewDirQueue(t.TempDir(), 0)
		require.NoError(t, err)
		return q
	})
}

func TestDirQueue_FileNameEmbedsJobID(t *testing.T) {
	dir := t.TempDir()
	q, err := queue.NewDirQueue(dir, 0)
	require.NoError(t, err)
	ev := newEvent()

	require.NoError(t, q.Publish(context.Background(), ev))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	name := entries[0].Name()
	assert.True(t, strings.HasPrefix(name, ev.JobID+"-"), name)
	assert.True(t, strings.HasSuffix(name, ".json"), name)
}

func TestDirQueue_SameJobPublishedTwice(t *testing.T) {
	q, err := queue.NewDirQueue(t.TempDir(), 0)
	require.NoError(t, err)
	ctx := context.Background()
	ev := newEvent()

	require.NoError(t, q.Publish(ctx, ev))
	require.NoError(t, q.Publish(ctx, ev))

	msgs, err := q.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.NotEqual(t, msgs[0].Handle, msgs[1].Handle)
}

func TestDirQueue_UndecodableMessage(t *testing.T) {
	dir := t.TempDir()
	q, err := queue.NewDirQueue(dir, 0)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken-1.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong-2.json"), []byte(`{"eventType":"Other","jobId":"x"}`), 0o644))

	msgs, err := q.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Error(t, msgs[0].DecodeErr)
	assert.Equal(t, "broken-1.json", msgs[0].Handle)
	assert.Equal(t, []byte("{not json"), msgs[0].Body)
	assert.Error(t, msgs[1].DecodeErr)
}

func TestDirQueue_IgnoresTempAndForeignFiles(t *testing.T) {
	dir := t.TempDir()
	q, err := queue.NewDirQueue(dir, 0)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".publish-123"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	msgs, err := q.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestDirQueue_BatchLimit(t *testing.T) {
	q, err := queue.NewDirQueue(t.TempDir(), 2)
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Publish(ctx, newEvent()))
	}

	msgs, err := q.Poll(ctx)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestDirQueue_SkippedHandlesDoNotFillBatch(t *testing.T) {
	dir := t.TempDir()
	q, err := queue.NewDirQueue(dir, 2)
	require.NoError(t, err)
	for _, name := range []string{"a-1.json", "b-2.json", "c-3.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}

	msgs, err := q.Poll(context.Background(), queue.SkipHandles(func(h string) bool { return h == "a-1.json" }))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b-2.json", msgs[0].Handle)
	assert.Equal(t, "c-3.json", msgs[1].Handle)
}

func TestDirQueue_AcknowledgeMissingIsNotAnError(t *testing.T) {
	q, err := queue.NewDirQueue(t.TempDir(), 0)
	require.NoError(t, err)

	assert.NoError(t, q.Acknowledge(context.Background(), "gone-1.json"))
}

func TestDirQueue_AcknowledgeRejectsPaths(t *testing.T) {
	q, err := queue.NewDirQueue(t.TempDir(), 0)
	require.NoError(t, err)

	err = q.Acknowledge(context.Background(), "../escape.json")
	assert.ErrorIs(t, err, queue.ErrUnknownHandle)
}
