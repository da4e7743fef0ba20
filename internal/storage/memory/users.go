package memory

import (
	"context"
	"sync"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

type UserStore struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

func NewUserStore(users ...*domain.User) *UserStore {
	s := &UserStore{users: make(map[string]*domain.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	c := *u
	return &c, nil
}
