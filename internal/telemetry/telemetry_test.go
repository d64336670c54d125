package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/daytrip/daytrip/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "daytrip-test",
		ServiceVersion: "0.0.1",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})
	require.NoError(t, err)

	// Disabled telemetry never builds SDK providers.
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)
	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)
	assert.NoError(t, provider.Shutdown(ctx))
}

func TestConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		for _, k := range []string{"APP_ENV", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE", "OTEL_TRACES_SAMPLER_ARG"} {
			t.Setenv(k, "")
		}
		cfg := telemetry.ConfigFromEnv("daytrip-api", "1.2.0")

		assert.Equal(t, "daytrip-api", cfg.ServiceName)
		assert.Equal(t, "1.2.0", cfg.ServiceVersion)
		assert.Equal(t, "development", cfg.Environment)
		assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
		assert.False(t, cfg.Enabled)
		assert.True(t, cfg.Insecure)
		assert.Equal(t, 1.0, cfg.SampleRatio)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		t.Setenv("OTEL_ENABLED", "true")
		t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
		t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")
		cfg := telemetry.ConfigFromEnv("daytrip-worker", "dev")

		assert.Equal(t, "production", cfg.Environment)
		assert.Equal(t, "collector:4317", cfg.OTLPEndpoint)
		assert.True(t, cfg.Enabled)
		assert.False(t, cfg.Insecure)
		assert.Equal(t, 0.25, cfg.SampleRatio)
	})

	t.Run("out of range ratio ignored", func(t *testing.T) {
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", "7")
		assert.Equal(t, 1.0, telemetry.ConfigFromEnv("x", "y").SampleRatio)
	})
}

func TestProvider_ShutdownZeroValue(t *testing.T) {
	assert.NoError(t, (&telemetry.Provider{}).Shutdown(context.Background()))
}

func TestGlobalAccessors(t *testing.T) {
	assert.NotNil(t, telemetry.Tracer("planner"))
	assert.NotNil(t, telemetry.Meter("planner"))
}

func TestNilMetrics_AreNoops(t *testing.T) {
	var pm *telemetry.PlannerMetrics
	var gm *telemetry.ProviderMetrics

	assert.NotPanics(t, func() {
		pm.RecordPlan(context.Background(), "driving", 3, time.Second, nil)
		gm.RecordRequest("googlemaps", "route", time.Second, nil)
		gm.RecordCacheLookup("googlemaps", "geocode", true)
	})
}

func installReader(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })
	return reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestPlannerMetrics_RecordPlan(t *testing.T) {
	reader := installReader(t)
	m, err := telemetry.NewPlannerMetrics()
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordPlan(ctx, "driving", 4, 120*time.Millisecond, nil)
	m.RecordPlan(ctx, "walking", 0, 10*time.Millisecond, errors.New("no candidates"))

	got := collect(t, reader)

	total, ok := got["planner.plan.total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var sum int64
	for _, dp := range total.DataPoints {
		sum += dp.Value
	}
	assert.Equal(t, int64(2), sum)

	// Failed runs do not record a stop count.
	stops, ok := got["planner.plan.stops"].Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, stops.DataPoints, 1)
	assert.Equal(t, uint64(1), stops.DataPoints[0].Count)
	assert.Equal(t, int64(4), stops.DataPoints[0].Sum)
}

func TestProviderMetrics_Cache(t *testing.T) {
	reader := installReader(t)
	m, err := telemetry.NewProviderMetrics()
	require.NoError(t, err)

	m.RecordCacheLookup("googlemaps", "geocode", true)
	m.RecordCacheLookup("googlemaps", "geocode", true)
	m.RecordCacheLookup("googlemaps", "geocode", false)
	m.RecordRequest("googlemaps", "route", 50*time.Millisecond, nil)
	m.RecordRequest("googlemaps", "route", time.Second, context.DeadlineExceeded)

	got := collect(t, reader)

	lookups, ok := got["geo.cache.lookups"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byHit := map[bool]int64{}
	for _, dp := range lookups.DataPoints {
		hit, _ := dp.Attributes.Value("cache.hit")
		byHit[hit.AsBool()] += dp.Value
	}
	assert.Equal(t, map[bool]int64{true: 2, false: 1}, byHit)

	calls, ok := got["geo.provider.calls"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	outcomes := map[string]int64{}
	for _, dp := range calls.DataPoints {
		o, _ := dp.Attributes.Value("outcome")
		outcomes[o.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{"ok": 1, "timeout": 1}, outcomes)

	assert.Contains(t, got, "geo.provider.duration")
}
