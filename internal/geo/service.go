package geo

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/daytrip/daytrip/internal/telemetry"
)

// ServiceConfig configures a Service. Zero values take the defaults noted.
type ServiceConfig struct {
	Provider Provider
	Logger   zerolog.Logger

	// GeocodeCache holds resolved place names. Defaults to in-memory.
	GeocodeCache GeocodeCache
	Metrics      *telemetry.ProviderMetrics

	// CacheTTL is how long a route estimate is served without asking the
	// provider again. Default 10m.
	CacheTTL time.Duration

	// CacheGridSize snaps endpoints to a grid of this many degrees so
	// nearby requests share an estimate. Default 0.001, about 110m.
	CacheGridSize float64

	// StaleIfErrorTTL is how long an expired estimate may still be served
	// when the provider fails. Default 30m.
	StaleIfErrorTTL time.Duration

	// CleanupInterval throttles eviction of entries past StaleIfErrorTTL.
	// Default 5m.
	CleanupInterval time.Duration
}

// Service answers distance, route and geocode queries in front of a
// Provider, with a grid-snapped route cache and a geocode cache. Concurrent
// requests for the same cache key share one provider call. It is safe for
// concurrent use.
type Service struct {
	provider        Provider
	logger          zerolog.Logger
	geocodeCache    GeocodeCache
	metrics         *telemetry.ProviderMetrics
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration

	inflight singleflight.Group

	mu          sync.RWMutex
	cache       map[string]cachedRoute
	lastCleanup time.Time
}

type cachedRoute struct {
	estimate  *RouteEstimate
	fetchedAt time.Time
}

func (c cachedRoute) freshAt(now time.Time, ttl time.Duration) bool {
	return now.Before(c.fetchedAt.Add(ttl))
}

// NewService builds a Service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		provider:        cfg.Provider,
		logger:          cfg.Logger,
		geocodeCache:    cfg.GeocodeCache,
		metrics:         cfg.Metrics,
		cacheTTL:        cmp.Or(cfg.CacheTTL, 10*time.Minute),
		cacheGridSize:   cmp.Or(cfg.CacheGridSize, 0.001),
		staleIfErrorTTL: cmp.Or(cfg.StaleIfErrorTTL, 30*time.Minute),
		cleanupInterval: cmp.Or(cfg.CleanupInterval, 5*time.Minute),
		cache:           make(map[string]cachedRoute),
	}
	if s.geocodeCache == nil {
		s.geocodeCache = NewMemoryGeocodeCache()
	}
	return s
}

// Distance returns the straight-line distance between two points in kilometres.
func (s *Service) Distance(a, b Coordinate) float64 {
	return HaversineKm(a, b)
}

// Route returns the travel estimate from origin to destination.
// Identical points yield a zero estimate without contacting the provider.
func (s *Service) Route(ctx context.Context, origin, destination Coordinate, mode TravelMode, departAt time.Time) (*RouteEstimate, error) {
	if err := origin.Validate(); err != nil {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_ORIGIN",
			Message:  "invalid origin coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}
	if err := destination.Validate(); err != nil {
		return nil, &Error{
			Provider: s.provider.Name(),
			Code:     "INVALID_DESTINATION",
			Message:  "invalid destination coordinates",
			Err:      ErrInvalidCoordinates,
		}
	}

	if origin == destination {
		return &RouteEstimate{Mode: mode}, nil
	}

	req := DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Mode:        mode,
		DepartAt:    departAt,
	}
	key := s.cacheKey(req)

	if cached, ok := s.lookup(key); ok && cached.freshAt(time.Now(), s.cacheTTL) {
		s.metrics.RecordCacheLookup(s.provider.Name(), "directions", true)
		return cached.estimate, nil
	}
	s.metrics.RecordCacheLookup(s.provider.Name(), "directions", false)

	v, err, shared := s.inflight.Do(key, func() (interface{}, error) {
		return s.fetchRoute(ctx, req, key)
	})
	if shared {
		s.logger.Debug().Str("cache_key", key).Msg("joined in-flight route request")
	}
	if err != nil {
		return nil, err
	}
	return v.(*RouteEstimate), nil
}

func (s *Service) lookup(key string) (cachedRoute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cached, ok := s.cache[key]
	return cached, ok
}

// fetchRoute asks the provider and caches the answer. On failure an
// expired estimate younger than StaleIfErrorTTL is served instead.
func (s *Service) fetchRoute(ctx context.Context, req DirectionsRequest, key string) (*RouteEstimate, error) {
	started := time.Now()
	estimate, err := s.provider.Directions(ctx, req)
	s.metrics.RecordRequest(s.provider.Name(), "directions", time.Since(started), err)

	if err != nil {
		log := s.logger.With().Err(err).
			Str("mode", string(req.Mode)).
			Str("cache_key", key).
			Logger()
		if cached, ok := s.lookup(key); ok && cached.freshAt(time.Now(), s.staleIfErrorTTL) {
			log.Warn().Time("fetched_at", cached.fetchedAt).Msg("provider failed, serving stale route")
			return cached.estimate, nil
		}
		log.Error().Msg("route lookup failed")
		return nil, err
	}

	now := time.Now()
	s.mu.Lock()
	s.cache[key] = cachedRoute{estimate: estimate, fetchedAt: now}
	s.evictExpiredLocked(now)
	s.mu.Unlock()

	return estimate, nil
}

// Geocode resolves a place name to a coordinate, consulting the geocode cache first.
func (s *Service) Geocode(ctx context.Context, name string) (Coordinate, error) {
	key := normalizeQuery(name)
	if key == "" {
		return Coordinate{}, &Error{
			Provider: s.provider.Name(),
			Code:     "EMPTY_QUERY",
			Message:  "empty geocode query",
			Err:      ErrGeocodeNotFound,
		}
	}

	coord, ok, err := s.geocodeCache.Get(ctx, key)
	if err != nil {
		// A broken cache must not block planning
		s.logger.Warn().Err(err).Str("query", key).Msg("geocode cache read failed")
	}
	if ok {
		s.metrics.RecordCacheLookup(s.provider.Name(), "geocode", true)
		return coord, nil
	}
	s.metrics.RecordCacheLookup(s.provider.Name(), "geocode", false)

	start := time.Now()
	coord, err = s.provider.Geocode(ctx, name)
	s.metrics.RecordRequest(s.provider.Name(), "geocode", time.Since(start), err)
	if err != nil {
		return Coordinate{}, err
	}

	if err := s.geocodeCache.Set(ctx, key, coord); err != nil {
		s.logger.Warn().Err(err).Str("query", key).Msg("geocode cache write failed")
	}

	return coord, nil
}

// cacheKey generates a cache key for a route request.
// Format: {mode}:{gridOriginLat},{gridOriginLon}:{gridDestLat},{gridDestLon}[@{slot}].
// Transit keys also carry a 15-minute departure slot since timetables vary.
func (s *Service) cacheKey(req DirectionsRequest) string {
	gridOriginLat := math.Floor(req.Origin.Lat/s.cacheGridSize) * s.cacheGridSize
	gridOriginLon := math.Floor(req.Origin.Lon/s.cacheGridSize) * s.cacheGridSize
	gridDestLat := math.Floor(req.Destination.Lat/s.cacheGridSize) * s.cacheGridSize
	gridDestLon := math.Floor(req.Destination.Lon/s.cacheGridSize) * s.cacheGridSize

	key := fmt.Sprintf("%s:%.4f,%.4f:%.4f,%.4f",
		req.Mode,
		gridOriginLat, gridOriginLon,
		gridDestLat, gridDestLon,
	)
	if req.Mode == ModeTransit && !req.DepartAt.IsZero() {
		key += "@" + req.DepartAt.Truncate(15*time.Minute).UTC().Format("200601021504")
	}
	return key
}

// evictExpiredLocked drops entries too old to serve even as stale, at
// most once per CleanupInterval. s.mu must be held.
func (s *Service) evictExpiredLocked(now time.Time) {
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now

	before := len(s.cache)
	for key, cached := range s.cache {
		if !cached.freshAt(now, s.staleIfErrorTTL) {
			delete(s.cache, key)
		}
	}
	if evicted := before - len(s.cache); evicted > 0 {
		s.logger.Debug().Int("evicted", evicted).Msg("route cache cleanup")
	}
}

// InvalidateCache clears all cached routes.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]cachedRoute)
}

// CacheStats returns route cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var fresh, stale int
	for _, c := range s.cache {
		switch {
		case c.freshAt(now, s.cacheTTL):
			fresh++
		case c.freshAt(now, s.staleIfErrorTTL):
			stale++
		}
	}

	return CacheStats{
		TotalEntries: len(s.cache),
		FreshEntries: fresh,
		StaleEntries: stale,
		Provider:     s.provider.Name(),
	}
}

// CacheStats contains route cache statistics.
type CacheStats struct {
	TotalEntries int    `json:"totalEntries"`
	FreshEntries int    `json:"freshEntries"`
	StaleEntries int    `json:"staleEntries"`
	Provider     string `json:"provider"`
}

// ProviderName returns the name of the underlying provider.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
