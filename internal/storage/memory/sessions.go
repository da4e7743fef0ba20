package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

// SessionStore is an in-memory scraper session repository
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.Session)}
}

func cloneSession(s *domain.Session) *domain.Session {
	c := *s
	c.Headers = maps.Clone(s.Headers)
	return &c
}

func (s *SessionStore) findActive(userID string, platform domain.Platform) *domain.Session {
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Platform == platform && sess.Status == domain.SessionStatusActive {
			return sess
		}
	}
	return nil
}

func (s *SessionStore) FindActive(ctx context.Context, userID string, platform domain.Platform) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.findActive(userID, platform); sess != nil {
		return cloneSession(sess), nil
	}
	return nil, domain.ErrSessionNotFound
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(sess), nil
}

// Upsert overwrites the credentials of the ACTIVE session for the pair, or inserts sess
func (s *SessionStore) Upsert(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing := s.findActive(sess.UserID, sess.Platform); existing != nil {
		existing.Cookies = sess.Cookies
		existing.Headers = maps.Clone(sess.Headers)
		existing.UserAgent = sess.UserAgent
		if sess.ProxyURL != "" {
			existing.ProxyURL = sess.ProxyURL
		}
		existing.ExpiresAt = sess.ExpiresAt
		existing.ErrorMessage = ""
		existing.UpdatedAt = sess.UpdatedAt
		return cloneSession(existing), nil
	}

	s.sessions[sess.ID] = cloneSession(sess)
	return cloneSession(sess), nil
}

func (s *SessionStore) UpdateStatus(ctx context.Context, id string, status domain.SessionStatus, message string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.Status = status
	sess.ErrorMessage = message
	sess.UpdatedAt = now
	return nil
}

func (s *SessionStore) IncrementRequests(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.RequestCount++
	sess.LastRequestAt = &now
	return nil
}

func (s *SessionStore) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, sess := range s.sessions {
		if sess.Status == domain.SessionStatusActive && !sess.ExpiresAt.After(now) {
			sess.Status = domain.SessionStatusExpired
			sess.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) DeleteInactiveBefore(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.Status != domain.SessionStatusActive && sess.UpdatedAt.Before(before) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsUsable(now) {
			out = append(out, cloneSession(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

// All returns every stored session, for assertions
func (s *SessionStore) All() []*domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, cloneSession(sess))
	}
	return out
}
