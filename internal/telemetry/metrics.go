package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/daytrip/daytrip/internal/telemetry"

// ProviderMetrics instruments geo provider calls and the route and
// geocode caches in front of them. A nil *ProviderMetrics records nothing.
type ProviderMetrics struct {
	latency metric.Float64Histogram
	calls   metric.Int64Counter
	lookups metric.Int64Counter
}

// NewProviderMetrics registers the geo instruments on the global meter.
func NewProviderMetrics() (*ProviderMetrics, error) {
	meter := otel.Meter(meterName)

	var (
		m    ProviderMetrics
		errs [3]error
	)
	m.latency, errs[0] = meter.Float64Histogram("geo.provider.duration",
		metric.WithDescription("Latency of geo provider calls"),
		metric.WithUnit("s"))
	m.calls, errs[1] = meter.Int64Counter("geo.provider.calls",
		metric.WithDescription("Geo provider calls by outcome"),
		metric.WithUnit("{call}"))
	m.lookups, errs[2] = meter.Int64Counter("geo.cache.lookups",
		metric.WithDescription("Geo cache lookups, split by hit"),
		metric.WithUnit("{lookup}"))

	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordRequest records one provider call. Calls are recorded against a
// background context so that cancelled requests still count.
func (m *ProviderMetrics) RecordRequest(provider, operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("geo.provider", provider),
		attribute.String("geo.operation", operation),
		attribute.String("outcome", outcome(err)),
	)
	m.latency.Record(context.Background(), elapsed.Seconds(), attrs)
	m.calls.Add(context.Background(), 1, attrs)
}

// RecordCacheLookup records whether a cached answer was found.
func (m *ProviderMetrics) RecordCacheLookup(provider, operation string, hit bool) {
	if m == nil {
		return
	}
	m.lookups.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("geo.provider", provider),
		attribute.String("geo.operation", operation),
		attribute.Bool("cache.hit", hit),
	))
}

// PlannerMetrics instruments planning runs. A nil *PlannerMetrics records
// nothing.
type PlannerMetrics struct {
	latency metric.Float64Histogram
	runs    metric.Int64Counter
	stops   metric.Int64Histogram
}

// NewPlannerMetrics registers the planner instruments on the global meter.
func NewPlannerMetrics() (*PlannerMetrics, error) {
	meter := otel.Meter(meterName)

	var (
		m    PlannerMetrics
		errs [3]error
	)
	m.latency, errs[0] = meter.Float64Histogram("planner.plan.duration",
		metric.WithDescription("Time to build one itinerary"),
		metric.WithUnit("s"))
	m.runs, errs[1] = meter.Int64Counter("planner.plan.total",
		metric.WithDescription("Planning runs by outcome"),
		metric.WithUnit("{plan}"))
	m.stops, errs[2] = meter.Int64Histogram("planner.plan.stops",
		metric.WithDescription("Stops in each successful itinerary"),
		metric.WithUnit("{stop}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20))

	if err := errors.Join(errs[:]...); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordPlan records one planning run. Stop counts are only recorded for
// runs that produced an itinerary.
func (m *PlannerMetrics) RecordPlan(ctx context.Context, mode string, stops int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("travel.mode", mode),
		attribute.String("outcome", outcome(err)),
	)
	m.latency.Record(ctx, elapsed.Seconds(), attrs)
	m.runs.Add(ctx, 1, attrs)
	if err == nil {
		m.stops.Record(ctx, int64(stops), attrs)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
