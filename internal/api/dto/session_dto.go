package dto

import "time"

type LoginRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Platform string `json:"platform" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ImportSessionRequest carries credentials captured by the browser extension
type ImportSessionRequest struct {
	UserID    string            `json:"user_id" binding:"required"`
	Platform  string            `json:"platform" binding:"required"`
	Cookies   string            `json:"cookies" binding:"required"`
	Headers   map[string]string `json:"headers"`
	UserAgent string            `json:"user_agent"`
}

// SessionDTO never exposes the credential bundle
type SessionDTO struct {
	SessionID     string     `json:"session_id"`
	UserID        string     `json:"user_id"`
	Platform      string     `json:"platform"`
	Status        string     `json:"status"`
	Proxied       bool       `json:"proxied"`
	RequestCount  int        `json:"request_count"`
	LastRequestAt *time.Time `json:"last_request_at,omitempty"`
	ExpiresAt     string     `json:"expires_at"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     string     `json:"created_at"`
	UpdatedAt     string     `json:"updated_at"`
}
