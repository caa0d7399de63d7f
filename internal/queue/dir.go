package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kiranshivaraju/demolens/pkg/models"
)

// DirQueue stores one JSON file per event in a directory. Publish writes a
// temp file, fsyncs it and renames it into place, so a message is either
// fully visible or absent.
type DirQueue struct {
	dir   string
	batch int
	now   func() time.Time
}

var _ Queue = (*DirQueue)(nil)

// NewDirQueue creates dir if needed. batch caps how many messages one Poll
// returns; zero means no cap.
func NewDirQueue(dir string, batch int) (*DirQueue, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}
	return &DirQueue{dir: dir, batch: batch, now: time.Now}, nil
}

func (q *DirQueue) Publish(_ context.Context, event models.AnalysisRequestedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	tmp, err := os.CreateTemp(q.dir, ".publish-*")
	if err != nil {
		return fmt.Errorf("create temp message: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync message: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close message: %w", err)
	}

	ts := q.now()
	for {
		target := filepath.Join(q.dir, HandleName(event.JobID, ts))
		if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
			if err := os.Rename(tmpName, target); err != nil {
				return fmt.Errorf("publish message: %w", err)
			}
			return nil
		}
		ts = ts.Add(time.Millisecond)
	}
}

// Poll returns visible messages in name order, up to the batch size.
func (q *DirQueue) Poll(ctx context.Context, opts ...PollOption) ([]Message, error) {
	o := collectPollOptions(opts)
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("list queue dir: %w", err)
	}

	var msgs []Message
	for _, e := range entries {
		if ctx.Err() != nil {
			return msgs, ctx.Err()
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}
		if o.skip(name) {
			continue
		}
		body, err := os.ReadFile(filepath.Join(q.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue // acknowledged between ReadDir and ReadFile
		}
		if err != nil {
			return msgs, fmt.Errorf("read message %s: %w", name, err)
		}
		msgs = append(msgs, newMessage(name, body))
		if q.batch > 0 && len(msgs) == q.batch {
			break
		}
	}
	return msgs, nil
}

// Acknowledge removes the message file. A file that is already gone counts as
// acknowledged.
func (q *DirQueue) Acknowledge(_ context.Context, handle string) error {
	if handle == "" || filepath.Base(handle) != handle {
		return fmt.Errorf("%w: %q", ErrUnknownHandle, handle)
	}
	err := os.Remove(filepath.Join(q.dir, handle))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("acknowledge %s: %w", handle, err)
	}
	return nil
}

func (q *DirQueue) Close() error { return nil }
