package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/kiranshivaraju/demolens/internal/config"
	"github.com/kiranshivaraju/demolens/pkg/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioArchive stores records as objects in an S3-compatible bucket.
type MinioArchive struct {
	client *minio.Client
	bucket string
	prefix string
	now    func() time.Time
}

var _ Archive = (*MinioArchive)(nil)

// NewMinioArchive connects and creates the bucket when it does not exist yet.
func NewMinioArchive(ctx context.Context, cfg config.MinioConfig) (*MinioArchive, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioArchive{
		client: cli,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (a *MinioArchive) Save(ctx context.Context, rec models.FailedRecord) (string, error) {
	rec = normalize(rec, a.now())
	body, err := encode(rec)
	if err != nil {
		return "", err
	}
	return a.put(ctx, RecordName(rec), body)
}

func (a *MinioArchive) SaveBatch(ctx context.Context, recs []models.FailedRecord) (string, error) {
	now := a.now()
	out := make([]models.FailedRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, normalize(r, now))
	}
	body, err := encode(out)
	if err != nil {
		return "", err
	}
	return a.put(ctx, BatchName(now), body)
}

// put never overwrites: when key is taken a numeric suffix is added, the same
// way DirArchive names its files.
func (a *MinioArchive) put(ctx context.Context, name string, body []byte) (string, error) {
	key, err := a.freeKey(ctx, name)
	if err != nil {
		return "", err
	}
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

func (a *MinioArchive) freeKey(ctx context.Context, name string) (string, error) {
	base := strings.TrimSuffix(name, ".json")
	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d.json", base, i)
		}
		key := path.Join(a.prefix, candidate)
		_, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
		if err == nil {
			continue
		}
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return key, nil
		}
		return "", fmt.Errorf("stat %s: %w", key, err)
	}
}
