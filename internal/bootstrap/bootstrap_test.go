package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeoConfigFromEnv(t *testing.T) {
	t.Setenv("GEO_PROVIDER", "GoogleMaps")
	t.Setenv("GOOGLE_MAPS_API_KEY", "key")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("ROUTE_CACHE_TTL", "bogus")

	cfg := GeoConfigFromEnv()

	assert.Equal(t, ProviderGoogleMaps, cfg.Provider)
	assert.Equal(t, "key", cfg.GoogleMapsAPIKey)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 10*time.Minute, cfg.RouteCacheTTL)
}

func TestNewGeo_StraightLine(t *testing.T) {
	g, err := NewGeo(context.Background(), GeoConfig{}, zerolog.Nop())
	require.NoError(t, err)
	defer g.Close()

	assert.Equal(t, ProviderStraightLine, g.Service.ProviderName())
	assert.Nil(t, g.Redis)
	assert.NoError(t, g.PingRedis(context.Background()))
}

func TestNewGeo_HostedProviders(t *testing.T) {
	tests := []struct {
		name    string
		cfg     GeoConfig
		want    string
		wantErr error
	}{
		{"ors without key", GeoConfig{Provider: ProviderOpenRouteService}, "", ErrMissingAPIKey},
		{"google without key", GeoConfig{Provider: ProviderGoogleMaps}, "", ErrMissingAPIKey},
		{"ors", GeoConfig{Provider: ProviderOpenRouteService, ORSAPIKey: "k"}, ProviderOpenRouteService, nil},
		{"google", GeoConfig{Provider: ProviderGoogleMaps, GoogleMapsAPIKey: "AIza-test"}, ProviderGoogleMaps, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGeo(context.Background(), tt.cfg, zerolog.Nop())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.Service.ProviderName())
		})
	}
}

func TestNewGeo_UnknownProvider(t *testing.T) {
	_, err := NewGeo(context.Background(), GeoConfig{Provider: "carrier-pigeon"}, zerolog.Nop())
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestNewGeo_Redis(t *testing.T) {
	mr := miniredis.RunT(t)

	g, err := NewGeo(context.Background(), GeoConfig{RedisAddr: mr.Addr()}, zerolog.Nop())
	require.NoError(t, err)
	defer g.Close()

	require.NotNil(t, g.Redis)
	assert.NoError(t, g.PingRedis(context.Background()))

	// Gazetteer hits are written through to Redis.
	_, err = g.Service.Geocode(context.Background(), "台北101")
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())
}

func TestNewGeo_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewGeo(context.Background(), GeoConfig{RedisAddr: addr}, zerolog.Nop())
	assert.ErrorContains(t, err, "connect redis")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("DAYTRIP_TEST_FROM_FILE=yes\nDAYTRIP_TEST_PRESET=file\n"), 0o600))

	t.Setenv("DAYTRIP_TEST_PRESET", "env")
	t.Cleanup(func() { os.Unsetenv("DAYTRIP_TEST_FROM_FILE") })

	LoadDotEnv(zerolog.Nop(), path, filepath.Join(dir, "missing.env"))

	assert.Equal(t, "yes", os.Getenv("DAYTRIP_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("DAYTRIP_TEST_PRESET"))
}

func TestJWTConfigFromEnv(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "k")
	t.Setenv("JWT_ISSUER", "")

	cfg := JWTConfigFromEnv()

	assert.Equal(t, "k", cfg.SigningKey)
	assert.Equal(t, DefaultIssuer, cfg.Issuer)
	assert.Equal(t, DefaultAudience, cfg.Audience)
}
