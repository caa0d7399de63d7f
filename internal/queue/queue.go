// Package queue carries AnalysisRequested events from the producer to the
// worker with at-least-once delivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/demolens/pkg/models"
)

// ErrUnknownHandle is returned when acknowledging a handle the queue no longer tracks.
var ErrUnknownHandle = errors.New("unknown message handle")

// Queue is a durable at-least-once channel.
//
// Poll is re-entrant: messages returned by a previous Poll that were not
// acknowledged may be returned again. Once Acknowledge succeeds the message
// is never redelivered. Messages excluded with SkipHandles are left queued and
// do not count against the batch size.
type Queue interface {
	Publish(ctx context.Context, event models.AnalysisRequestedEvent) error
	Poll(ctx context.Context, opts ...PollOption) ([]Message, error)
	Acknowledge(ctx context.Context, handle string) error
	Close() error
}

// Message is one delivery. Handle is stable across redeliveries of the same
// message. DecodeErr is set when Body could not be decoded into Event.
type Message struct {
	Handle    string
	Event     models.AnalysisRequestedEvent
	Body      []byte
	DecodeErr error
}

// PollOption tunes a single Poll.
type PollOption func(*pollOptions)

type pollOptions struct {
	skip func(handle string) bool
}

// SkipHandles leaves every message for which skip returns true in the queue.
func SkipHandles(skip func(handle string) bool) PollOption {
	return func(o *pollOptions) { o.skip = skip }
}

func collectPollOptions(opts []PollOption) pollOptions {
	var o pollOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.skip == nil {
		o.skip = func(string) bool { return false }
	}
	return o
}

// HandleName derives the message name used by the directory and Redis queues.
func HandleName(jobID string, t time.Time) string {
	return fmt.Sprintf("%s-%d.json", jobID, t.UnixMilli())
}

// DecodeEvent parses a message body and checks the fields the worker relies on.
func DecodeEvent(body []byte) (models.AnalysisRequestedEvent, error) {
	var ev models.AnalysisRequestedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	if ev.EventType != models.EventTypeAnalysisRequested {
		return ev, fmt.Errorf("unexpected event type %q", ev.EventType)
	}
	if ev.JobID == "" {
		return ev, errors.New("event has no jobId")
	}
	return ev, nil
}

func newMessage(handle string, body []byte) Message {
	ev, err := DecodeEvent(body)
	return Message{Handle: handle, Event: ev, Body: body, DecodeErr: err}
}
