package featureflags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the hash holding flag overrides, one field per flag.
const DefaultRedisKey = "daytrip:feature-flags"

// RedisRepository stores overrides in a single Redis hash so every API
// instance sharing the Redis sees the same flags.
type RedisRepository struct {
	client redis.UniversalClient
	key    string
}

// NewRedisRepository returns a repository on the given hash key. An empty
// key uses DefaultRedisKey.
func NewRedisRepository(client redis.UniversalClient, key string) *RedisRepository {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisRepository{client: client, key: key}
}

type redisFlag struct {
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

func (r *RedisRepository) Get(ctx context.Context, key string) (*Flag, error) {
	raw, err := r.client.HGet(ctx, r.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrFlagNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget: %w", err)
	}
	return decodeRedisFlag(key, raw)
}

func (r *RedisRepository) List(ctx context.Context) ([]*Flag, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}

	byKey := make(map[string]*Flag, len(fields))
	for k, raw := range fields {
		f, err := decodeRedisFlag(k, raw)
		if err != nil {
			return nil, err
		}
		byKey[k] = f
	}
	return sortedByKey(byKey), nil
}

// Put writes all fields with one HSET, which Redis applies atomically.
func (r *RedisRepository) Put(ctx context.Context, flags ...*Flag) error {
	if len(flags) == 0 {
		return nil
	}

	values := make([]interface{}, 0, 2*len(flags))
	for _, f := range flags {
		raw, err := json.Marshal(redisFlag{Value: f.Value, UpdatedAt: updatedAt(f)})
		if err != nil {
			return fmt.Errorf("encode flag %s: %w", f.Key, err)
		}
		values = append(values, f.Key, raw)
	}

	if err := r.client.HSet(ctx, r.key, values...).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, key string) error {
	n, err := r.client.HDel(ctx, r.key, key).Result()
	if err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	if n == 0 {
		return ErrFlagNotFound
	}
	return nil
}

func decodeRedisFlag(key, raw string) (*Flag, error) {
	var stored redisFlag
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("decode flag %s: %w", key, err)
	}
	return &Flag{Key: key, Value: stored.Value, UpdatedAt: stored.UpdatedAt}, nil
}

var _ Repository = (*RedisRepository)(nil)
