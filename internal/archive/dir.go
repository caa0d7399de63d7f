package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiranshivaraju/demolens/pkg/models"
)

// DirArchive writes one pretty-printed JSON file per record.
type DirArchive struct {
	dir string
	now func() time.Time
}

var _ Archive = (*DirArchive)(nil)

func NewDirArchive(dir string) (*DirArchive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &DirArchive{dir: dir, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (a *DirArchive) Save(_ context.Context, rec models.FailedRecord) (string, error) {
	rec = normalize(rec, a.now())
	body, err := encode(rec)
	if err != nil {
		return "", err
	}
	return a.write(RecordName(rec), body)
}

func (a *DirArchive) SaveBatch(_ context.Context, recs []models.FailedRecord) (string, error) {
	now := a.now()
	out := make([]models.FailedRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, normalize(r, now))
	}
	body, err := encode(out)
	if err != nil {
		return "", err
	}
	return a.write(BatchName(now), body)
}

// write never overwrites: a taken name gets a numeric suffix.
func (a *DirArchive) write(name string, body []byte) (string, error) {
	tmp, err := os.CreateTemp(a.dir, ".archive-*")
	if err != nil {
		return "", fmt.Errorf("create temp record: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close record: %w", err)
	}

	base := strings.TrimSuffix(name, ".json")
	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d.json", base, i)
		}
		target := filepath.Join(a.dir, candidate)
		if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
			if err := os.Rename(tmpName, target); err != nil {
				return "", fmt.Errorf("store record: %w", err)
			}
			return candidate, nil
		}
	}
}
