package featureflags_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daytrip/daytrip/internal/featureflags"
	"github.com/daytrip/daytrip/internal/planner"
)

func newRedisRepository(t *testing.T) (*featureflags.RedisRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return featureflags.NewRedisRepository(client, ""), mr
}

func TestRedisRepository_RoundTrip(t *testing.T) {
	repo, mr := newRedisRepository(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Put(ctx,
		&featureflags.Flag{Key: featureflags.FlagPlannerTopCandidates, Value: 3, UpdatedAt: at},
		&featureflags.Flag{Key: featureflags.FlagPlannerRetryNextCandidate, Value: true, UpdatedAt: at},
	))
	assert.True(t, mr.Exists(featureflags.DefaultRedisKey))

	f, err := repo.Get(ctx, featureflags.FlagPlannerTopCandidates)
	require.NoError(t, err)
	assert.Equal(t, 3, f.IntValue(0))
	assert.True(t, f.UpdatedAt.Equal(at))

	flags, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, featureflags.FlagPlannerRetryNextCandidate, flags[0].Key)
	assert.Equal(t, featureflags.FlagPlannerTopCandidates, flags[1].Key)

	require.NoError(t, repo.Delete(ctx, featureflags.FlagPlannerTopCandidates))
	_, err = repo.Get(ctx, featureflags.FlagPlannerTopCandidates)
	assert.ErrorIs(t, err, featureflags.ErrFlagNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, featureflags.FlagPlannerTopCandidates), featureflags.ErrFlagNotFound)
}

func TestRedisRepository_CorruptValue(t *testing.T) {
	repo, mr := newRedisRepository(t)
	mr.HSet(featureflags.DefaultRedisKey, featureflags.FlagGeocodingDisabled, "{not json")

	_, err := repo.Get(context.Background(), featureflags.FlagGeocodingDisabled)
	assert.ErrorContains(t, err, "decode flag")
}

func TestRedisRepository_ServiceFallsBackWhenDown(t *testing.T) {
	repo, mr := newRedisRepository(t)
	service := featureflags.NewService(featureflags.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		CacheTTL:   time.Minute,
	})
	ctx := context.Background()

	mr.Close()

	assert.Equal(t, planner.Options{TopK: planner.DefaultTopK}, service.PlannerOptions(ctx))
	assert.Len(t, service.GetAllFlags(ctx), len(featureflags.Definitions()))
	assert.Error(t, service.SetFlag(ctx, &featureflags.Flag{Key: featureflags.FlagGeocodingDisabled, Value: true}))
}
