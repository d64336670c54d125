package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/daytrip/daytrip/internal/place"
)

// InMemoryRepository is an in-memory implementation of Repository.
// It backs tests and the API when no database is configured.
type InMemoryRepository struct {
	mu     sync.RWMutex
	places map[string]*Place
}

// NewInMemoryRepository creates a new in-memory catalog repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		places: make(map[string]*Place),
	}
}

// Get retrieves a place by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Place, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.places[id]
	if !ok {
		return nil, ErrPlaceNotFound
	}
	return clonePlace(p), nil
}

// GetMany retrieves the places with the given IDs.
func (r *InMemoryRepository) GetMany(_ context.Context, ids []string) ([]*Place, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Place, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.places[id]; ok {
			out = append(out, clonePlace(p))
		}
	}
	return out, nil
}

// List retrieves places ordered by ID.
func (r *InMemoryRepository) List(_ context.Context, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var matched []*Place
	for _, p := range r.places {
		if opts.Region != "" && p.Region != opts.Region {
			continue
		}
		if opts.DayPart != "" && !strings.EqualFold(p.Record.DayPart, opts.DayPart) {
			continue
		}
		if opts.Cursor != "" && p.ID <= opts.Cursor {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	result := &ListResult{}
	if len(matched) > limit {
		matched = matched[:limit]
		result.NextCursor = matched[limit-1].ID
	}
	for _, p := range matched {
		result.Items = append(result.Items, clonePlace(p))
	}
	return result, nil
}

// Upsert creates or replaces a place.
func (r *InMemoryRepository) Upsert(_ context.Context, p *Place) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := clonePlace(p)
	if existing, ok := r.places[p.ID]; ok {
		cpy.CreatedAt = existing.CreatedAt
	}
	r.places[p.ID] = cpy
	return nil
}

// Delete deletes a place by ID.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.places[id]; !ok {
		return ErrPlaceNotFound
	}
	delete(r.places, id)
	return nil
}

// clonePlace deep-copies the pointer and map fields of the record so callers
// cannot mutate stored state.
func clonePlace(p *Place) *Place {
	cpy := *p
	rec := p.Record
	if rec.Rating != nil {
		v := *rec.Rating
		rec.Rating = &v
	}
	if rec.DurationMinutes != nil {
		v := *rec.DurationMinutes
		rec.DurationMinutes = &v
	}
	if rec.Hours != nil {
		hours := make(map[int][]place.TimeRange, len(rec.Hours))
		for day, ranges := range rec.Hours {
			hours[day] = append([]place.TimeRange(nil), ranges...)
		}
		rec.Hours = hours
	}
	cpy.Record = rec
	return &cpy
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
