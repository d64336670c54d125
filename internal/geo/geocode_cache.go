package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// GeocodeCache stores resolved place names. Keys are normalised queries.
type GeocodeCache interface {
	// Get returns the cached coordinate and whether it was present.
	Get(ctx context.Context, key string) (Coordinate, bool, error)
	// Set stores a coordinate for the key.
	Set(ctx context.Context, key string, coord Coordinate) error
}

// MemoryGeocodeCache is an in-process GeocodeCache without expiry.
type MemoryGeocodeCache struct {
	mu      sync.RWMutex
	entries map[string]Coordinate
}

// NewMemoryGeocodeCache creates an empty in-memory geocode cache.
func NewMemoryGeocodeCache() *MemoryGeocodeCache {
	return &MemoryGeocodeCache{entries: make(map[string]Coordinate)}
}

// Get implements GeocodeCache.
func (c *MemoryGeocodeCache) Get(_ context.Context, key string) (Coordinate, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	coord, ok := c.entries[key]
	return coord, ok, nil
}

// Set implements GeocodeCache.
func (c *MemoryGeocodeCache) Set(_ context.Context, key string, coord Coordinate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = coord
	return nil
}

// RedisGeocodeCacheConfig holds configuration for the Redis geocode cache.
type RedisGeocodeCacheConfig struct {
	// KeyPrefix is prepended to every key (default: "daytrip:geocode:").
	KeyPrefix string

	// TTL is how long resolved names are kept (default: 30 days).
	TTL time.Duration
}

// RedisGeocodeCache is a GeocodeCache shared across instances through Redis.
type RedisGeocodeCache struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisGeocodeCache creates a Redis-backed geocode cache.
func NewRedisGeocodeCache(client redis.UniversalClient, cfg RedisGeocodeCacheConfig) *RedisGeocodeCache {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "daytrip:geocode:"
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 30 * 24 * time.Hour
	}

	return &RedisGeocodeCache{
		client:    client,
		keyPrefix: prefix,
		ttl:       ttl,
	}
}

// Get implements GeocodeCache.
func (c *RedisGeocodeCache) Get(ctx context.Context, key string) (Coordinate, bool, error) {
	raw, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Coordinate{}, false, nil
	}
	if err != nil {
		return Coordinate{}, false, fmt.Errorf("redis get: %w", err)
	}

	var coord Coordinate
	if err := json.Unmarshal(raw, &coord); err != nil {
		return Coordinate{}, false, fmt.Errorf("decode cached coordinate: %w", err)
	}
	return coord, true, nil
}

// Set implements GeocodeCache.
func (c *RedisGeocodeCache) Set(ctx context.Context, key string, coord Coordinate) error {
	raw, err := json.Marshal(coord)
	if err != nil {
		return fmt.Errorf("encode coordinate: %w", err)
	}
	if err := c.client.Set(ctx, c.keyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
