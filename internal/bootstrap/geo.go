package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/daytrip/daytrip/internal/geo"
	"github.com/daytrip/daytrip/internal/geo/googlemaps"
	"github.com/daytrip/daytrip/internal/geo/openrouteservice"
	"github.com/daytrip/daytrip/internal/provider/resilience"
	"github.com/daytrip/daytrip/internal/telemetry"
)

// Supported GEO_PROVIDER values.
const (
	ProviderStraightLine     = "straightline"
	ProviderOpenRouteService = "openrouteservice"
	ProviderGoogleMaps       = "googlemaps"
)

// ErrMissingAPIKey is returned when a hosted provider is selected without a key.
var ErrMissingAPIKey = errors.New("provider api key is required")

// GeoConfig selects and configures the routing provider and geocode cache.
type GeoConfig struct {
	Provider         string
	ORSAPIKey        string
	GoogleMapsAPIKey string

	// RedisAddr enables the shared geocode cache. Empty keeps it in memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RouteCacheTTL   time.Duration
	GeocodeCacheTTL time.Duration
}

// GeoConfigFromEnv creates a GeoConfig from environment variables.
func GeoConfigFromEnv() GeoConfig {
	return GeoConfig{
		Provider:         strings.ToLower(getEnvOrDefault("GEO_PROVIDER", ProviderStraightLine)),
		ORSAPIKey:        os.Getenv("ORS_API_KEY"),
		GoogleMapsAPIKey: os.Getenv("GOOGLE_MAPS_API_KEY"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		RouteCacheTTL:    getEnvDuration("ROUTE_CACHE_TTL", 10*time.Minute),
		GeocodeCacheTTL:  getEnvDuration("GEOCODE_CACHE_TTL", 30*24*time.Hour),
	}
}

// Geo bundles the geo service with the infrastructure behind it.
type Geo struct {
	Service  *geo.Service
	Registry *resilience.Registry

	// Redis is nil when the geocode cache is in memory.
	Redis *redis.Client
}

// NewGeo builds the configured provider, wraps it in the caching geo service
// and registers hosted providers for health reporting.
func NewGeo(ctx context.Context, cfg GeoConfig, logger zerolog.Logger) (*Geo, error) {
	registry := resilience.NewRegistry()

	provider, err := newProvider(cfg, registry, logger)
	if err != nil {
		return nil, err
	}

	out := &Geo{Registry: registry}

	var cache geo.GeocodeCache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		out.Redis = client
		cache = geo.NewRedisGeocodeCache(client, geo.RedisGeocodeCacheConfig{TTL: cfg.GeocodeCacheTTL})
		logger.Info().Str("addr", cfg.RedisAddr).Msg("redis geocode cache connected")
	}

	metrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		logger.Warn().Err(err).Msg("provider metrics disabled")
	}

	out.Service = geo.NewService(geo.ServiceConfig{
		Provider:     provider,
		Logger:       logger,
		GeocodeCache: cache,
		Metrics:      metrics,
		CacheTTL:     cfg.RouteCacheTTL,
	})

	logger.Info().Str("provider", provider.Name()).Msg("geo service initialized")
	return out, nil
}

// PingRedis checks the geocode cache connection. It is a no-op without Redis.
func (g *Geo) PingRedis(ctx context.Context) error {
	if g.Redis == nil {
		return nil
	}
	return g.Redis.Ping(ctx).Err()
}

// Close releases the Redis connection, if any.
func (g *Geo) Close() error {
	if g.Redis == nil {
		return nil
	}
	return g.Redis.Close()
}

func newProvider(cfg GeoConfig, registry *resilience.Registry, logger zerolog.Logger) (geo.Provider, error) {
	switch cfg.Provider {
	case "", ProviderStraightLine:
		return geo.NewStraightLineProvider(nil), nil

	case ProviderOpenRouteService:
		if cfg.ORSAPIKey == "" {
			return nil, fmt.Errorf("%s: %w", ProviderOpenRouteService, ErrMissingAPIKey)
		}
		return openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:   cfg.ORSAPIKey,
			Registry: registry,
			Logger:   logger,
		}), nil

	case ProviderGoogleMaps:
		if cfg.GoogleMapsAPIKey == "" {
			return nil, fmt.Errorf("%s: %w", ProviderGoogleMaps, ErrMissingAPIKey)
		}
		return googlemaps.NewClient(googlemaps.ClientConfig{
			APIKey:   cfg.GoogleMapsAPIKey,
			Registry: registry,
			Logger:   logger,
		})

	default:
		return nil, fmt.Errorf("unknown geo provider %q", cfg.Provider)
	}
}
