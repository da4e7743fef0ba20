package domain

import (
	"encoding/json"
	"time"
)

// JobStatus mirrors the status column of scraper_jobs
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// ScraperJob is a durable, retryable unit of work representing one adapter call.
// Retry state lives on the row itself so a crashed worker loses nothing.
type ScraperJob struct {
	ID              string
	UserID          string
	Platform        Platform
	IsAutoApply     bool
	Status          JobStatus
	RetryCount      int
	NextRetryAt     *time.Time
	Parameters      json.RawMessage
	Result          json.RawMessage
	ErrorMessage    string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	LastHeartbeatAt *time.Time
	UpdatedAt       time.Time
}

// Action decodes the job parameters
func (j *ScraperJob) Action() (Action, error) {
	return DecodeAction(j.Parameters)
}

// IsClaimable reports whether the job may be handed to a worker at now
func (j *ScraperJob) IsClaimable(now time.Time, maxRetries int) bool {
	switch j.Status {
	case JobStatusPending:
		return true
	case JobStatusFailed:
		if j.RetryCount >= maxRetries {
			return false
		}
		return j.NextRetryAt != nil && !j.NextRetryAt.After(now)
	default:
		return false
	}
}

// IsTerminal reports whether no further automatic transition will happen
func (j *ScraperJob) IsTerminal(maxRetries int) bool {
	return j.Status == JobStatusCompleted || (j.Status == JobStatusFailed && j.RetryCount >= maxRetries)
}

// JobFailure is the state written when an attempt fails
type JobFailure struct {
	RetryCount  int
	NextRetryAt *time.Time
	Message     string
	FailedAt    time.Time
}
