package models

import (
	"encoding/json"
	"time"
)

const (
	FailureValidation     = "ValidationFailed"
	FailureMaxAttempts    = "MaxAttemptsExceeded"
	FailureUndecodable    = "UndecodableMessage"
	FailureSourceRejected = "SourceRejected"
)

// ValidationIssue describes one offending field of a raw payload.
type ValidationIssue struct {
	Path     string          `json:"path"`
	RawValue json.RawMessage `json:"rawValue"`
	Message  string          `json:"message"`
}

// FailedRecord is an archived rejection. It carries enough context to replay
// offline without querying the job store.
type FailedRecord struct {
	JobID    string            `json:"jobId"`
	TraceID  string            `json:"traceId,omitempty"`
	FailedAt time.Time         `json:"failedAt"`
	Reason   string            `json:"reason"`
	Issues   []ValidationIssue `json:"issues"`
	Payload  json.RawMessage   `json:"payload"`
}
