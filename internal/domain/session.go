package domain

import "time"

// SessionStatus mirrors the status column of scraper_sessions
type SessionStatus string

const (
	SessionStatusActive      SessionStatus = "ACTIVE"
	SessionStatusExpired     SessionStatus = "EXPIRED"
	SessionStatusInvalid     SessionStatus = "INVALID"
	SessionStatusRateLimited SessionStatus = "RATE_LIMITED"
)

// CredentialBundle is the reusable output of an interactive login.
// Cookies is an opaque Cookie header value; Headers are replayed verbatim.
type CredentialBundle struct {
	Cookies   string            `json:"cookies"`
	Headers   map[string]string `json:"headers,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
}

// Session is an authenticated credential bundle scoped to one user and one platform
type Session struct {
	ID            string
	UserID        string
	Platform      Platform
	Status        SessionStatus
	Cookies       string
	Headers       map[string]string
	UserAgent     string
	ProxyURL      string
	RequestCount  int
	LastRequestAt *time.Time
	ExpiresAt     time.Time
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsUsable reports whether the session can still be sent to a platform at the given instant
func (s *Session) IsUsable(now time.Time) bool {
	return s != nil && s.Status == SessionStatusActive && now.Before(s.ExpiresAt)
}

// Credentials returns the replayable part of the session
func (s *Session) Credentials() CredentialBundle {
	return CredentialBundle{
		Cookies:   s.Cookies,
		Headers:   s.Headers,
		UserAgent: s.UserAgent,
	}
}

// LoginCredentials are the user-supplied secrets for an interactive login.
// They are never persisted.
type LoginCredentials struct {
	Username string
	Password string
}
