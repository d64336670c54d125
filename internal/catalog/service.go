package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/daytrip/daytrip/internal/place"
)

// Resolution limits.
const (
	// MaxResolvedPlaces caps how many places a region query feeds into one plan.
	MaxResolvedPlaces = 500

	resolvePageSize = 100
	maxIDLength     = 64
)

var placeIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Service provides catalog operations.
type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a new catalog service.
func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Get retrieves a place by ID.
func (s *Service) Get(ctx context.Context, id string) (*Place, error) {
	return s.repo.Get(ctx, id)
}

// List retrieves a page of places.
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	return s.repo.List(ctx, opts)
}

// Put validates and stores a place under id. The stored record is the
// normalized form, with defaults applied.
func (s *Service) Put(ctx context.Context, id, region string, rec place.Record) (*Place, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	rec.ID = id
	validated, err := place.NewPlace(rec)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &Place{
		ID:        id,
		Region:    strings.TrimSpace(region),
		Record:    validated.Record(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, err := s.repo.Get(ctx, id); err == nil {
		p.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, ErrPlaceNotFound) {
		return nil, err
	}

	if err := s.repo.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("store place %s: %w", id, err)
	}

	s.logger.Info().
		Str("place_id", id).
		Str("region", p.Region).
		Msg("catalog place stored")
	return p, nil
}

// Delete removes a place.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Resolve turns catalog references into planner input. Places named by ids
// come first, in the order given, followed by the places of region. Every id
// must exist.
func (s *Service) Resolve(ctx context.Context, ids []string, region string) ([]place.Record, error) {
	var (
		records []place.Record
		seen    = make(map[string]bool)
	)

	if len(ids) > 0 {
		found, err := s.repo.GetMany(ctx, ids)
		if err != nil {
			return nil, err
		}
		byID := make(map[string]*Place, len(found))
		for _, p := range found {
			byID[p.ID] = p
		}

		var missing []string
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			p, ok := byID[id]
			if !ok {
				missing = append(missing, id)
				continue
			}
			records = append(records, p.Record)
		}
		if len(missing) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrPlaceNotFound, strings.Join(missing, ", "))
		}
	}

	if region = strings.TrimSpace(region); region != "" {
		cursor := ""
		for len(records) < MaxResolvedPlaces {
			page, err := s.repo.List(ctx, ListOptions{Region: region, Limit: resolvePageSize, Cursor: cursor})
			if err != nil {
				return nil, err
			}
			for _, p := range page.Items {
				if seen[p.ID] || len(records) >= MaxResolvedPlaces {
					continue
				}
				seen[p.ID] = true
				records = append(records, p.Record)
			}
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
	}

	s.logger.Debug().
		Int("ids", len(ids)).
		Str("region", region).
		Int("resolved", len(records)).
		Msg("catalog places resolved")
	return records, nil
}

func validateID(id string) error {
	switch {
	case id == "":
		return &place.ValidationError{Field: "placeId", Reason: "must not be empty"}
	case len(id) > maxIDLength:
		return &place.ValidationError{Field: "placeId", Reason: fmt.Sprintf("must be at most %d characters", maxIDLength)}
	case !placeIDRegex.MatchString(id):
		return &place.ValidationError{Field: "placeId", Reason: "may only contain letters, digits, '-' and '_'"}
	}
	return nil
}
