package models

import "time"

const EventTypeAnalysisRequested = "AnalysisRequested"

// AnalysisRequestedEvent is the queue message published once per job.
// It may be delivered more than once.
type AnalysisRequestedEvent struct {
	EventType string    `json:"eventType"`
	JobID     string    `json:"jobId"`
	UserID    string    `json:"userId"`
	DataURL   string    `json:"dataUrl"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"traceId,omitempty"`
}
