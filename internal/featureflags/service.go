package featureflags

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/daytrip/daytrip/internal/planner"
)

// ServiceConfig configures a Service. A zero CacheTTL means one minute and
// nil DefaultFlags means DefaultFlags().
type ServiceConfig struct {
	Repository   Repository
	Logger       zerolog.Logger
	CacheTTL     time.Duration
	DefaultFlags map[string]*Flag
}

// Service resolves flags from a short-lived cache, then the repository,
// then the built-in defaults. Repository failures are logged and the
// defaults served, so a flag store outage never fails a plan.
type Service struct {
	repo     Repository
	logger   zerolog.Logger
	ttl      time.Duration
	defaults map[string]*Flag

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// cacheEntry remembers a lookup. A nil flag records that no override is
// stored, which spares the repository a round trip per plan.
type cacheEntry struct {
	flag    *Flag
	expires time.Time
}

// NewService builds a Service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:     cfg.Repository,
		logger:   cfg.Logger,
		ttl:      cfg.CacheTTL,
		defaults: cfg.DefaultFlags,
		cache:    make(map[string]cacheEntry),
	}
	if s.ttl <= 0 {
		s.ttl = time.Minute
	}
	if s.defaults == nil {
		s.defaults = DefaultFlags()
	}
	return s
}

// GetFlag returns the effective flag for key, or nil if key is unknown.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	if entry, ok := s.cached(key); ok {
		return s.orDefault(key, entry.flag)
	}

	flag, err := s.repo.Get(ctx, key)
	switch {
	case err == nil:
		s.remember(time.Now(), flag)
	case errors.Is(err, ErrFlagNotFound):
		s.rememberAbsent(time.Now(), key)
	default:
		// Not cached, so the next call retries the store.
		s.logger.Warn().Err(err).Str("flag", key).Msg("feature flag store unavailable, serving default")
	}
	return s.orDefault(key, flag)
}

// GetAllFlags returns every known flag with stored overrides applied, and
// refreshes the whole cache from the same read.
func (s *Service) GetAllFlags(ctx context.Context) map[string]*Flag {
	result := make(map[string]*Flag, len(s.defaults))
	for k, v := range s.defaults {
		result[k] = v
	}

	stored, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("feature flag store unavailable, serving defaults")
		return result
	}

	now := time.Now()
	fresh := make(map[string]cacheEntry, len(result))
	for k := range result {
		fresh[k] = cacheEntry{expires: now.Add(s.ttl)}
	}
	for _, f := range stored {
		result[f.Key] = f
		fresh[f.Key] = cacheEntry{flag: f, expires: now.Add(s.ttl)}
	}

	s.mu.Lock()
	s.cache = fresh
	s.mu.Unlock()
	return result
}

// SetFlags validates and stores flags atomically. Values are normalized to
// their declared kind; an unknown key or a bad value rejects the whole update.
func (s *Service) SetFlags(ctx context.Context, flags []*Flag) error {
	now := time.Now()
	normalized := make([]*Flag, 0, len(flags))
	for _, f := range flags {
		v, err := Normalize(f.Key, f.Value)
		if err != nil {
			return err
		}
		normalized = append(normalized, &Flag{Key: f.Key, Value: v, UpdatedAt: now})
	}

	if err := s.repo.Put(ctx, normalized...); err != nil {
		return err
	}

	for _, f := range normalized {
		s.remember(now, f)
		s.logger.Info().Str("flag", f.Key).Interface("value", f.Value).Msg("feature flag updated")
	}
	return nil
}

// SetFlag validates and stores a single flag.
func (s *Service) SetFlag(ctx context.Context, flag *Flag) error {
	return s.SetFlags(ctx, []*Flag{flag})
}

// ResetFlag drops the stored override for key so the default applies again.
// Resetting a flag that has no override is not an error.
func (s *Service) ResetFlag(ctx context.Context, key string) error {
	if _, ok := Lookup(key); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFlag, key)
	}
	if err := s.repo.Delete(ctx, key); err != nil && !errors.Is(err, ErrFlagNotFound) {
		return err
	}

	s.rememberAbsent(time.Now(), key)
	s.logger.Info().Str("flag", key).Msg("feature flag reset to default")
	return nil
}

// InvalidateCache drops every cached lookup so the next read goes to the
// repository. Used after flags are edited outside this process.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	s.cache = make(map[string]cacheEntry)
	s.mu.Unlock()
}

// IsEnabled returns true if the flag with the given key is truthy.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	return s.GetFlag(ctx, key).BoolValue(false)
}

// PlannerOptions maps the planner flags to selection options.
// A nil service yields the planner defaults.
func (s *Service) PlannerOptions(ctx context.Context) planner.Options {
	if s == nil || s.repo == nil {
		return planner.Options{TopK: planner.DefaultTopK}
	}
	return planner.Options{
		TopK:               s.GetFlag(ctx, FlagPlannerTopCandidates).IntValue(planner.DefaultTopK),
		RetryNextCandidate: s.IsEnabled(ctx, FlagPlannerRetryNextCandidate),
		DisableGeocoding:   s.IsEnabled(ctx, FlagGeocodingDisabled),
	}
}

var _ planner.OptionsSource = (*Service)(nil)

func (s *Service) cached(key string) (cacheEntry, bool) {
	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.expires) {
		return cacheEntry{}, false
	}
	return entry, true
}

func (s *Service) remember(now time.Time, flag *Flag) {
	s.mu.Lock()
	s.cache[flag.Key] = cacheEntry{flag: flag, expires: now.Add(s.ttl)}
	s.mu.Unlock()
}

func (s *Service) rememberAbsent(now time.Time, key string) {
	s.mu.Lock()
	s.cache[key] = cacheEntry{expires: now.Add(s.ttl)}
	s.mu.Unlock()
}

func (s *Service) orDefault(key string, flag *Flag) *Flag {
	if flag != nil {
		return flag
	}
	return s.defaults[key]
}
