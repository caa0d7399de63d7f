package archive_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/demolens/internal/archive"
	"github.com/kiranshivaraju/demolens/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMinioArchive_Save(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Cmd:          []string{"server", "/data"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     "minioadmin",
				"MINIO_ROOT_PASSWORD": "minioadmin",
			},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	cfg := config.MinioConfig{
		Endpoint:  host + ":" + port.Port(),
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "failed-records",
		Region:    "us-east-1",
		Prefix:    "worker",
	}
	a, err := archive.NewMinioArchive(ctx, cfg)
	require.NoError(t, err)

	key, err := a.Save(ctx, sampleRecord())
	require.NoError(t, err)
	assert.Equal(t, "worker/"+archive.RecordName(sampleRecord()), key)

	cli, err := minio.New(cfg.Endpoint, &minio.Options{Creds: credentials.NewStaticV4("minioadmin", "minioadmin", "")})
	require.NoError(t, err)
	obj, err := cli.GetObject(ctx, cfg.Bucket, key, minio.GetObjectOptions{})
	require.NoError(t, err)
	body, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"jobId": "job-123"`)

	// Saving the same record again keeps the first object.
	again, err := a.Save(ctx, sampleRecord())
	require.NoError(t, err)
	assert.NotEqual(t, key, again)
	assert.Equal(t, "worker/"+strings.TrimSuffix(archive.RecordName(sampleRecord()), ".json")+"-1.json", again)
	_, err = cli.StatObject(ctx, cfg.Bucket, key, minio.StatObjectOptions{})
	require.NoError(t, err)

	// A second archive on an existing bucket must not fail.
	_, err = archive.NewMinioArchive(ctx, cfg)
	require.NoError(t, err)
}
