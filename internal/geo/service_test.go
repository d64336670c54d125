package geo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	taipeiMain = Coordinate{Lat: 25.0478, Lon: 121.5170}
	taipei101  = Coordinate{Lat: 25.0340, Lon: 121.5645}
)

// mockProvider is a mock geo provider for testing.
type mockProvider struct {
	name         string
	estimate     *RouteEstimate
	err          error
	geocode      map[string]Coordinate
	callCount    atomic.Int32
	geocodeCalls atomic.Int32
	delay        time.Duration
}

func (m *mockProvider) Directions(_ context.Context, req DirectionsRequest) (*RouteEstimate, error) {
	m.callCount.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}
	est := *m.estimate
	est.Mode = req.Mode
	return &est, nil
}

func (m *mockProvider) Geocode(_ context.Context, query string) (Coordinate, error) {
	m.geocodeCalls.Add(1)
	if c, ok := m.geocode[query]; ok {
		return c, nil
	}
	return Coordinate{}, &Error{Provider: m.name, Code: "NOT_FOUND", Message: "not found", Err: ErrGeocodeNotFound}
}

func (m *mockProvider) Name() string {
	return m.name
}

func (m *mockProvider) SupportedModes() []TravelMode {
	return TravelModes
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		name:     "test-provider",
		estimate: &RouteEstimate{Minutes: 14.5, DistanceKm: 6.2},
	}
}

func TestService_Route_CacheMissThenHit(t *testing.T) {
	provider := newMockProvider()
	svc := NewService(ServiceConfig{Provider: provider, Logger: zerolog.Nop()})
	ctx := context.Background()

	est, err := svc.Route(ctx, taipeiMain, taipei101, ModeDriving, time.Now())
	require.NoError(t, err)
	assert.InDelta(t, 14.5, est.Minutes, 1e-9)
	assert.Equal(t, ModeDriving, est.Mode)

	_, err = svc.Route(ctx, taipeiMain, taipei101, ModeDriving, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int32(1), provider.callCount.Load())
}

func TestService_Route_IdenticalPointsSkipsProvider(t *testing.T) {
	provider := newMockProvider()
	svc := NewService(ServiceConfig{Provider: provider})

	est, err := svc.Route(context.Background(), taipeiMain, taipeiMain, ModeWalking, time.Now())
	require.NoError(t, err)
	assert.Zero(t, est.Minutes)
	assert.Zero(t, est.DistanceKm)
	assert.Equal(t, ModeWalking, est.Mode)
	assert.Zero(t, provider.callCount.Load())
}

func TestService_Route_DifferentModesNotShared(t *testing.T) {
	provider := newMockProvider()
	svc := NewService(ServiceConfig{Provider: provider})
	ctx := context.Background()

	_, err := svc.Route(ctx, taipeiMain, taipei101, ModeDriving, time.Now())
	require.NoError(t, err)
	_, err = svc.Route(ctx, taipeiMain, taipei101, ModeWalking, time.Now())
	require.NoError(t, err)

	assert.Equal(t, int32(2), provider.callCount.Load())
}

func TestService_Route_StaleIfError(t *testing.T) {
	provider := newMockProvider()
	svc := NewService(ServiceConfig{
		Provider:        provider,
		CacheTTL:        50 * time.Millisecond,
		StaleIfErrorTTL: time.Second,
	})
	ctx := context.Background()

	_, err := svc.Route(ctx, taipeiMain, taipei101, ModeDriving, time.Now())
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	provider.err = errors.New("provider error")

	est, err := svc.Route(ctx, taipeiMain, taipei101, ModeDriving, time.Now())
	require.NoError(t, err, "stale route should be served")
	assert.InDelta(t, 6.2, est.DistanceKm, 1e-9)
}

func TestService_Route_ErrorWithoutCache(t *testing.T) {
	provider := newMockProvider()
	provider.err = &Error{Provider: "test-provider", Code: "NO_ROUTE", Message: "no route", Err: ErrNoRouteFound}
	svc := NewService(ServiceConfig{Provider: provider})

	_, err := svc.Route(context.Background(), taipeiMain, taipei101, ModeDriving, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRouteFound)
}

func TestService_Route_InvalidCoordinates(t *testing.T) {
	svc := NewService(ServiceConfig{Provider: newMockProvider()})

	tests := []struct {
		name        string
		origin      Coordinate
		destination Coordinate
	}{
		{"invalid origin latitude", Coordinate{Lat: 91}, taipei101},
		{"invalid destination longitude", taipeiMain, Coordinate{Lon: 181}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Route(context.Background(), tt.origin, tt.destination, ModeDriving, time.Now())
			var geoErr *Error
			require.ErrorAs(t, err, &geoErr)
			assert.ErrorIs(t, geoErr.Err, ErrInvalidCoordinates)
		})
	}
}

func TestService_Route_ConcurrentRequests(t *testing.T) {
	provider := newMockProvider()
	provider.delay = 50 * time.Millisecond
	svc := NewService(ServiceConfig{Provider: provider})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Route(context.Background(), taipeiMain, taipei101, ModeDriving, time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), provider.callCount.Load(), "concurrent misses share one provider call")
}

func TestService_Route_DistinctRoutesFetchInParallel(t *testing.T) {
	provider := newMockProvider()
	provider.delay = 150 * time.Millisecond
	svc := NewService(ServiceConfig{Provider: provider})

	destinations := []Coordinate{taipei101, {Lat: 25.1024, Lon: 121.5485}, {Lat: 25.0375, Lon: 121.4999}}

	started := time.Now()
	var wg sync.WaitGroup
	for _, dest := range destinations {
		wg.Add(1)
		go func(dest Coordinate) {
			defer wg.Done()
			_, err := svc.Route(context.Background(), taipeiMain, dest, ModeDriving, time.Now())
			assert.NoError(t, err)
		}(dest)
	}
	wg.Wait()

	assert.Equal(t, int32(len(destinations)), provider.callCount.Load())
	assert.Less(t, time.Since(started), 400*time.Millisecond, "provider calls must not be serialized")
}

func TestService_CacheStatsAndInvalidate(t *testing.T) {
	provider := newMockProvider()
	svc := NewService(ServiceConfig{Provider: provider})

	stats := svc.CacheStats()
	assert.Zero(t, stats.TotalEntries)
	assert.Equal(t, "test-provider", stats.Provider)

	_, err := svc.Route(context.Background(), taipeiMain, taipei101, ModeDriving, time.Now())
	require.NoError(t, err)

	stats = svc.CacheStats()
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 1, stats.FreshEntries)

	svc.InvalidateCache()
	assert.Zero(t, svc.CacheStats().TotalEntries)
	assert.Equal(t, "test-provider", svc.ProviderName())
}

func TestService_CacheKey(t *testing.T) {
	svc := &Service{cacheGridSize: 0.001}

	key := svc.cacheKey(DirectionsRequest{Origin: taipeiMain, Destination: taipei101, Mode: ModeDriving})
	assert.True(t, strings.HasPrefix(key, "driving:"), key)
	assert.NotContains(t, key, "@")

	departAt := time.Date(2026, 3, 2, 9, 7, 0, 0, time.UTC)
	transit := svc.cacheKey(DirectionsRequest{Origin: taipeiMain, Destination: taipei101, Mode: ModeTransit, DepartAt: departAt})
	assert.True(t, strings.HasSuffix(transit, "@202603020900"), transit)
}

func TestService_Distance(t *testing.T) {
	svc := NewService(ServiceConfig{Provider: newMockProvider()})
	assert.InDelta(t, 5.0, svc.Distance(taipeiMain, taipei101), 0.3)
	assert.Zero(t, svc.Distance(taipeiMain, taipeiMain))
}

func TestService_Geocode_UsesCache(t *testing.T) {
	provider := newMockProvider()
	provider.geocode = map[string]Coordinate{"Taipei 101": taipei101}
	svc := NewService(ServiceConfig{Provider: provider})
	ctx := context.Background()

	c, err := svc.Geocode(ctx, "Taipei 101")
	require.NoError(t, err)
	assert.Equal(t, taipei101, c)

	c, err = svc.Geocode(ctx, "  taipei   101 ")
	require.NoError(t, err)
	assert.Equal(t, taipei101, c)
	assert.Equal(t, int32(1), provider.geocodeCalls.Load())
}

func TestService_Geocode_Errors(t *testing.T) {
	svc := NewService(ServiceConfig{Provider: newMockProvider()})

	_, err := svc.Geocode(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrGeocodeNotFound)

	_, err = svc.Geocode(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, ErrGeocodeNotFound)
}

func TestService_Geocode_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	provider := newMockProvider()
	provider.geocode = map[string]Coordinate{"西門町": {Lat: 25.0421, Lon: 121.5081}}
	cache := NewRedisGeocodeCache(client, RedisGeocodeCacheConfig{TTL: time.Hour})
	svc := NewService(ServiceConfig{Provider: provider, GeocodeCache: cache})
	ctx := context.Background()

	_, err := svc.Geocode(ctx, "西門町")
	require.NoError(t, err)
	assert.True(t, mr.Exists("daytrip:geocode:西門町"))

	// A second service sharing the same Redis never reaches the provider
	other := NewService(ServiceConfig{Provider: provider, GeocodeCache: NewRedisGeocodeCache(client, RedisGeocodeCacheConfig{})})
	c, err := other.Geocode(ctx, "西門町")
	require.NoError(t, err)
	assert.InDelta(t, 25.0421, c.Lat, 1e-9)
	assert.Equal(t, int32(1), provider.geocodeCalls.Load())

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("daytrip:geocode:西門町"))
}

func TestRedisGeocodeCache_Miss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewRedisGeocodeCache(client, RedisGeocodeCacheConfig{KeyPrefix: "test:"})
	_, ok, err := cache.Get(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mr.Set("test:broken", "not-json"))
	_, _, err = cache.Get(context.Background(), "broken")
	assert.Error(t, err)
}

func TestStraightLineProvider(t *testing.T) {
	p := NewStraightLineProvider(nil)
	ctx := context.Background()

	est, err := p.Directions(ctx, DirectionsRequest{Origin: taipeiMain, Destination: taipei101, Mode: ModeDriving})
	require.NoError(t, err)
	km := HaversineKm(taipeiMain, taipei101) * DetourFactor
	assert.InDelta(t, km, est.DistanceKm, 1e-9)
	assert.InDelta(t, km/30*60, est.Minutes, 1e-9)
	require.NotNil(t, est.Info)
	assert.Len(t, est.Info.Path(), 2)

	walk, err := p.Directions(ctx, DirectionsRequest{Origin: taipeiMain, Destination: taipei101, Mode: ModeWalking})
	require.NoError(t, err)
	assert.Greater(t, walk.Minutes, est.Minutes)

	_, err = p.Directions(ctx, DirectionsRequest{Origin: taipeiMain, Destination: taipei101, Mode: "teleport"})
	assert.ErrorIs(t, err, ErrUnsupportedMode)

	c, err := p.Geocode(ctx, "台北101")
	require.NoError(t, err)
	assert.Equal(t, taipei101, c)

	_, err = p.Geocode(ctx, "Atlantis")
	assert.ErrorIs(t, err, ErrGeocodeNotFound)
}

func TestParseTravelMode(t *testing.T) {
	m, err := ParseTravelMode(" Transit ")
	require.NoError(t, err)
	assert.Equal(t, ModeTransit, m)
	assert.Equal(t, "大眾運輸", m.Label())

	_, err = ParseTravelMode("boat")
	assert.Error(t, err)
}
