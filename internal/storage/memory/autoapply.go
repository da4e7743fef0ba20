package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

// ConfigStore keeps auto-apply configs; quota slots are reserved under the lock
type ConfigStore struct {
	mu      sync.Mutex
	configs map[string]*domain.AutoApplyConfig
}

func NewConfigStore(configs ...*domain.AutoApplyConfig) *ConfigStore {
	s := &ConfigStore{configs: make(map[string]*domain.AutoApplyConfig)}
	for _, c := range configs {
		s.Put(c)
	}
	return s
}

func (s *ConfigStore) Put(cfg *domain.AutoApplyConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cfg
	s.configs[cfg.UserID] = &c
}

func (s *ConfigStore) Get(ctx context.Context, userID string) (*domain.AutoApplyConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[userID]
	if !ok {
		return nil, domain.ErrConfigNotFound
	}
	c := *cfg
	return &c, nil
}

func (s *ConfigStore) ListEnabledUserIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, cfg := range s.configs {
		if cfg.IsEnabled {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *ConfigStore) ReserveApplication(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[userID]
	if !ok {
		return false, domain.ErrConfigNotFound
	}
	if cfg.QuotaReached() {
		return false, nil
	}
	cfg.ApplicationsToday++
	cfg.ApplicationsThisMonth++
	return true, nil
}

func (s *ConfigStore) ReleaseApplication(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[userID]
	if !ok {
		return domain.ErrConfigNotFound
	}
	cfg.ApplicationsToday = max(cfg.ApplicationsToday-1, 0)
	cfg.ApplicationsThisMonth = max(cfg.ApplicationsThisMonth-1, 0)
	return nil
}

func (s *ConfigStore) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[userID]
	if !ok {
		return domain.ErrConfigNotFound
	}
	cfg.IsEnabled = enabled
	return nil
}

func (s *ConfigStore) ResetDaily(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, cfg := range s.configs {
		if cfg.ApplicationsToday != 0 {
			cfg.ApplicationsToday = 0
			n++
		}
	}
	return n, nil
}

func (s *ConfigStore) ResetMonthly(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, cfg := range s.configs {
		if cfg.ApplicationsThisMonth != 0 {
			cfg.ApplicationsThisMonth = 0
			n++
		}
	}
	return n, nil
}

// HistoryStore is an append-only in-memory history log
type HistoryStore struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{}
}

func (s *HistoryStore) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

// ListByUser returns entries newest first, strictly after the cursor position
func (s *HistoryStore) ListByUser(ctx context.Context, userID string, after *domain.PageCursor, limit int) ([]*domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.HistoryEntry
	for i := range s.entries {
		e := s.entries[i]
		if e.UserID != userID {
			continue
		}
		if after != nil && !olderThanCursor(e.CreatedAt, e.ID, after) {
			continue
		}
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func olderThanCursor(createdAt time.Time, id string, c *domain.PageCursor) bool {
	if createdAt.Equal(c.CreatedAt) {
		return id < c.ID
	}
	return createdAt.Before(c.CreatedAt)
}

// Entries returns the log in insertion order
func (s *HistoryStore) Entries() []domain.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}
