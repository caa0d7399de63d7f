// Package capture writes every consumed message to a debug directory so a
// failing payload can be fed back through cmd/replay.
package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Writer stores raw message bodies. It has no effect on job state.
type Writer struct {
	dir string
	now func() time.Time
}

func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	return &Writer{dir: dir, now: time.Now}, nil
}

// Write saves body as <jobId>-<unixMillis>.json and returns the path.
// An empty jobID is recorded as "undecodable".
func (w *Writer) Write(jobID string, body []byte) (string, error) {
	if jobID == "" {
		jobID = "undecodable"
	}
	p := filepath.Join(w.dir, fmt.Sprintf("%s-%d.json", filepath.Base(jobID), w.now().UnixMilli()))
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return "", fmt.Errorf("write capture: %w", err)
	}
	return p, nil
}
