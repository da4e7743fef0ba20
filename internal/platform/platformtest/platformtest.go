// Package platformtest provides fakes for exercising adapters against httptest servers.
package platformtest

import (
	"context"
	"sync"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/platform"
)

// Sessions records the health signals an adapter reports
type Sessions struct {
	mu          sync.Mutex
	Invalidated []string
	RateLimited []string
	Requests    map[string]int
}

func NewSessions() *Sessions {
	return &Sessions{Requests: make(map[string]int)}
}

func (s *Sessions) Invalidate(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Invalidated = append(s.Invalidated, id)
	return nil
}

func (s *Sessions) MarkRateLimited(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RateLimited = append(s.RateLimited, id)
	return nil
}

func (s *Sessions) RecordRequest(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests[id]++
	return nil
}

// Authenticator returns a canned login result
type Authenticator struct {
	Result *platform.LoginResult
	Err    error
	Last   platform.LoginRequest
}

func (a *Authenticator) Authenticate(ctx context.Context, req platform.LoginRequest) (*platform.LoginResult, error) {
	a.Last = req
	return a.Result, a.Err
}

// Session builds an ACTIVE session carrying the given cookies
func Session(p domain.Platform, cookies string) *domain.Session {
	return &domain.Session{
		ID:        "sess-" + string(p),
		UserID:    "user-1",
		Platform:  p,
		Status:    domain.SessionStatusActive,
		Cookies:   cookies,
		Headers:   map[string]string{},
		UserAgent: "test-agent",
	}
}
