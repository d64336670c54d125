package featureflags

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository keeps overrides in process memory. It backs tests and
// single-instance deployments without Postgres or Redis.
type InMemoryRepository struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

// NewInMemoryRepository returns a repository seeded with the given flags.
func NewInMemoryRepository(seed ...*Flag) *InMemoryRepository {
	repo := &InMemoryRepository{flags: make(map[string]Flag, len(seed))}
	for _, f := range seed {
		repo.flags[f.Key] = *f
	}
	return repo
}

func (r *InMemoryRepository) Get(_ context.Context, key string) (*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flags[key]
	if !ok {
		return nil, ErrFlagNotFound
	}
	return &f, nil
}

func (r *InMemoryRepository) List(_ context.Context) ([]*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byKey := make(map[string]*Flag, len(r.flags))
	for k, f := range r.flags {
		f := f
		byKey[k] = &f
	}
	return sortedByKey(byKey), nil
}

func (r *InMemoryRepository) Put(_ context.Context, flags ...*Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, f := range flags {
		stored := *f
		if stored.UpdatedAt.IsZero() {
			stored.UpdatedAt = now
		}
		r.flags[f.Key] = stored
	}
	return nil
}

func (r *InMemoryRepository) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flags[key]; !ok {
		return ErrFlagNotFound
	}
	delete(r.flags, key)
	return nil
}

var _ Repository = (*InMemoryRepository)(nil)
