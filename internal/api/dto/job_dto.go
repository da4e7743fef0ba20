package dto

import (
	"encoding/json"
	"time"
)

type CreateJobRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Platform string `json:"platform" binding:"required"`
	// Action is the job parameters envelope, e.g. {"action":"DETAIL","detail":{"listing_id":"123"}}
	Action json.RawMessage `json:"action" binding:"required"`
}

type JobDTO struct {
	JobID        string          `json:"job_id"`
	UserID       string          `json:"user_id"`
	Platform     string          `json:"platform"`
	IsAutoApply  bool            `json:"is_auto_apply"`
	Status       string          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	NextRetryAt  *time.Time      `json:"next_retry_at,omitempty"`
	Parameters   json.RawMessage `json:"parameters"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    string          `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}
