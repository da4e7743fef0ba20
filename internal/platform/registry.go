package platform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cuongbtq/autoapply-be/internal/domain"
)

// Registry resolves adapters by platform
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.Platform]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.Platform]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

func (r *Registry) Get(p domain.Platform) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoAdapter, p)
	}
	return a, nil
}

// Platforms lists registered platforms in a stable order
func (r *Registry) Platforms() []domain.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Platform, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Login dispatches an interactive login to the platform's adapter
func (r *Registry) Login(ctx context.Context, p domain.Platform, creds domain.LoginCredentials, userID string) (*domain.CredentialBundle, error) {
	a, err := r.Get(p)
	if err != nil {
		return nil, err
	}
	return a.Login(ctx, creds, userID)
}
