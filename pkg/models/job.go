// Package models contains shared data models used across the demolens codebase.
package models

import "time"

const (
	JobStatusPending    = "PENDING"
	JobStatusProcessing = "PROCESSING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
)

// AnalysisJob tracks one request to analyze a user's data. The API returns it on
// POST /api/v1/analysis with status PENDING; the worker moves it to a terminal state.
//
// Version is the optimistic-concurrency token: every successful conditional write
// advances it by exactly one.
type AnalysisJob struct {
	JobID        string        `db:"job_id"       json:"jobId"                  bson:"jobId"`
	UserID       string        `db:"user_id"      json:"userId"                 bson:"userId"`
	DataURL      string        `db:"data_url"     json:"dataUrl"                bson:"dataUrl"`
	Status       string        `db:"status"       json:"status"                 bson:"status"`
	Version      int64         `db:"version"      json:"version"                bson:"version"`
	Demographics *Demographics `db:"demographics" json:"demographics,omitempty" bson:"demographics,omitempty"`
	CreatedAt    time.Time     `db:"created_at"   json:"createdAt"              bson:"createdAt"`
	UpdatedAt    time.Time     `db:"updated_at"   json:"updatedAt"              bson:"updatedAt"`
	CompletedAt  *time.Time    `db:"completed_at" json:"completedAt,omitempty"  bson:"completedAt,omitempty"`
	Error        *string       `db:"error"        json:"error,omitempty"        bson:"error,omitempty"`
}

// IsTerminal reports whether no further transition may leave status.
func IsTerminal(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// ValidStatus reports whether status is one of the four job states.
func ValidStatus(status string) bool {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}
