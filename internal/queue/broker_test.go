package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/demolens/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startContainer(t *testing.T, image, port string, waitFor wait.Strategy) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        image,
			ExposedPorts: []string{port + "/tcp"},
			WaitingFor:   waitFor,
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, port)
	require.NoError(t, err)
	return host + ":" + mapped.Port()
}

func TestRedisQueue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	addr := startContainer(t, "redis:7-alpine", "6379",
		wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second))

	runQueueContract(t, func(t *testing.T) queue.Queue {
		q, err := queue.NewRedisQueue("redis://"+addr, "test:"+uuid.NewString()[:8], 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = q.Close() })
		return q
	})
}

func TestRabbitQueue(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	addr := startContainer(t, "rabbitmq:3-alpine", "5672",
		wait.ForLog("Server startup complete").WithStartupTimeout(90*time.Second))
	url := "amqp://guest:guest@" + addr + "/"

	runQueueContract(t, func(t *testing.T) queue.Queue {
		q, err := queue.NewRabbitQueue(url, "analysis-"+uuid.NewString()[:8], 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = q.Close() })
		return q
	})

	t.Run("StaleHandleAfterRequeue", func(t *testing.T) {
		q, err := queue.NewRabbitQueue(url, "analysis-"+uuid.NewString()[:8], 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = q.Close() })
		ctx := context.Background()

		err = q.Acknowledge(ctx, "never-delivered.json")
		assert.ErrorIs(t, err, queue.ErrUnknownHandle)
	})
}
