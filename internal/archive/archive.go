// Package archive is the append-only sink for rejected payloads and dead-lettered
// messages.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kiranshivaraju/demolens/pkg/models"
)

// Archive stores FailedRecords under generated names and returns the name used.
type Archive interface {
	Save(ctx context.Context, rec models.FailedRecord) (string, error)
	SaveBatch(ctx context.Context, recs []models.FailedRecord) (string, error)
}

// RecordName is job-<jobId>-<unixMillis>.json.
func RecordName(rec models.FailedRecord) string {
	return fmt.Sprintf("job-%s-%d.json", rec.JobID, rec.FailedAt.UnixMilli())
}

// BatchName is batch-<unixMillis>.json.
func BatchName(t time.Time) string {
	return fmt.Sprintf("batch-%d.json", t.UnixMilli())
}

func encode(v any) ([]byte, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode failed record: %w", err)
	}
	return append(b, '\n'), nil
}

// normalize fills the fields every stored record must carry.
func normalize(rec models.FailedRecord, now time.Time) models.FailedRecord {
	if rec.FailedAt.IsZero() {
		rec.FailedAt = now
	}
	if rec.Issues == nil {
		rec.Issues = []models.ValidationIssue{}
	}
	if len(rec.Payload) == 0 {
		rec.Payload = json.RawMessage("null")
	}
	return rec
}
