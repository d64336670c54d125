package planner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/daytrip/daytrip/internal/geo"
	"github.com/daytrip/daytrip/internal/place"
	"github.com/daytrip/daytrip/internal/scoring"
	"github.com/daytrip/daytrip/internal/telemetry"
	"github.com/daytrip/daytrip/internal/timeperiod"
)

const tracerName = "github.com/daytrip/daytrip/internal/planner"

// Requirement defaults.
const (
	DefaultLandmark            = "台北車站"
	DefaultStartTime           = "09:00"
	DefaultEndTime             = "21:00"
	DefaultTravelMode          = geo.ModeDriving
	DefaultDistanceThresholdKm = 30.0
	DefaultTimeZone            = "Asia/Taipei"
)

// DefaultLandmarkCoordinate is where trips start when no start point resolves.
var DefaultLandmarkCoordinate = geo.Coordinate{Lat: 25.0478, Lon: 121.5170}

// Geo is the geo capability the planning system consumes.
type Geo interface {
	Router
	Geocode(ctx context.Context, name string) (geo.Coordinate, error)
}

// OptionsSource supplies selection options per call, typically from feature flags.
type OptionsSource interface {
	PlannerOptions(ctx context.Context) Options
}

// Requirement is the caller's trip request. Every field is optional.
type Requirement struct {
	// Date of the trip as YYYY-MM-DD (default: today in the system time zone).
	Date string `json:"date,omitempty" yaml:"date,omitempty"`

	StartTime string `json:"startTime,omitempty" yaml:"start_time,omitempty"`
	EndTime   string `json:"endTime,omitempty" yaml:"end_time,omitempty"`

	// StartPoint and EndPoint are place names resolved by geocoding.
	// An empty EndPoint returns to the start.
	StartPoint string `json:"startPoint,omitempty" yaml:"start_point,omitempty"`
	EndPoint   string `json:"endPoint,omitempty" yaml:"end_point,omitempty"`

	TravelMode          string  `json:"travelMode,omitempty" yaml:"travel_mode,omitempty"`
	DistanceThresholdKm float64 `json:"distanceThresholdKm,omitempty" yaml:"distance_threshold_km,omitempty"`

	LunchTime  string `json:"lunchTime,omitempty" yaml:"lunch_time,omitempty"`
	DinnerTime string `json:"dinnerTime,omitempty" yaml:"dinner_time,omitempty"`

	// Weights override the default score weights.
	Weights *scoring.Weights `json:"weights,omitempty" yaml:"weights,omitempty"`

	// Seed makes candidate selection reproducible.
	Seed *int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Previous is an itinerary to extend rather than starting fresh.
	Previous []Entry `json:"previous,omitempty" yaml:"-"`
}

// Summary holds statistics of a planned itinerary.
type Summary struct {
	Stops              int     `json:"stops"`
	TotalDistanceKm    float64 `json:"totalDistanceKm"`
	TotalTravelMinutes float64 `json:"totalTravelMinutes"`
	TotalStayMinutes   int     `json:"totalStayMinutes"`

	// ElapsedMs is how long planning took, in milliseconds.
	ElapsedMs float64 `json:"elapsedMs"`
}

// Result is the output of one planning call.
type Result struct {
	PlanID    string  `json:"planId"`
	Itinerary []Entry `json:"itinerary"`
	Summary   Summary `json:"summary"`
}

// SystemConfig holds configuration for the planning system.
type SystemConfig struct {
	// Geo resolves places and routes (required).
	Geo Geo

	// Options supplies selection options per call (optional).
	Options OptionsSource

	// Location is the time zone trips are planned in (optional, defaults to Asia/Taipei).
	Location *time.Location

	// Metrics records planning outcomes (optional).
	Metrics *telemetry.PlannerMetrics

	// Logger for planning operations.
	Logger zerolog.Logger

	// Now returns the current time (optional, for tests).
	Now func() time.Time
}

// System is the entry point for itinerary planning. It is safe for
// concurrent use; each call gets its own strategy and run-scoped state.
type System struct {
	geo      Geo
	options  OptionsSource
	location *time.Location
	metrics  *telemetry.PlannerMetrics
	logger   zerolog.Logger
	now      func() time.Time
	tracer   trace.Tracer
}

// NewSystem creates a planning system.
func NewSystem(cfg SystemConfig) (*System, error) {
	if cfg.Geo == nil {
		return nil, errors.New("planner: geo service is required")
	}

	loc := cfg.Location
	if loc == nil {
		loc = taipei()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &System{
		geo:      cfg.Geo,
		options:  cfg.Options,
		location: loc,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		now:      now,
		tracer:   telemetry.Tracer(tracerName),
	}, nil
}

func taipei() *time.Location {
	loc, err := time.LoadLocation(DefaultTimeZone)
	if err != nil {
		return time.FixedZone(DefaultTimeZone, 8*60*60)
	}
	return loc
}

// effectiveRequirement is a Requirement with defaults applied and values parsed.
type effectiveRequirement struct {
	start, end    time.Time
	mode          geo.TravelMode
	thresholdKm   float64
	lunch, dinner timeperiod.Clock
	startPoint    string
	endPoint      string
	weights       *scoring.Weights
	seed          int64
	seeded        bool
	previous      []Entry
}

// PlanTrip plans a day from raw place records.
func (s *System) PlanTrip(ctx context.Context, records []place.Record, req Requirement) (result *Result, err error) {
	started := time.Now()

	ctx, span := s.tracer.Start(ctx, "planner.PlanTrip")
	defer span.End()

	mode := req.TravelMode
	defer func() {
		stops := 0
		if result != nil {
			stops = result.Summary.Stops
		}
		s.metrics.RecordPlan(ctx, mode, stops, time.Since(started), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if len(records) == 0 {
		return nil, &place.ValidationError{Field: "places", Reason: "must not be empty"}
	}

	eff, err := s.resolveRequirement(req)
	if err != nil {
		return nil, err
	}
	mode = string(eff.mode)

	places, err := place.NewPlaces(records)
	if err != nil {
		return nil, err
	}

	opts := Options{}
	if s.options != nil {
		opts = s.options.PlannerOptions(ctx)
	}

	start := s.resolvePoint(ctx, eff.startPoint, opts)
	end := start
	if eff.endPoint != "" {
		end = s.resolvePoint(ctx, eff.endPoint, opts)
	}

	pc, err := NewPlanContext(PlanContext{
		StartTime:           eff.start,
		EndTime:             eff.end,
		TravelMode:          eff.mode,
		DistanceThresholdKm: eff.thresholdKm,
		StartLocation:       start,
		EndLocation:         end,
	})
	if err != nil {
		return nil, err
	}

	dayParts := timeperiod.NewService(timeperiod.Config{Lunch: &eff.lunch, Dinner: &eff.dinner})
	evaluator, err := scoring.NewEvaluator(scoring.Config{
		Weights:  eff.weights,
		DayParts: dayParts,
	})
	if err != nil {
		return nil, err
	}

	seed := eff.seed
	if !eff.seeded {
		seed = time.Now().UnixNano()
	}

	planID := uuid.New().String()
	logger := s.logger.With().Str("plan_id", planID).Logger()

	strategy, err := NewStrategy(StrategyConfig{
		Context:  pc,
		Router:   s.geo,
		Scorer:   evaluator,
		DayParts: dayParts,
		Random:   rand.New(rand.NewSource(seed)), //nolint:gosec // selection diversity, not security
		Options:  opts,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("plan.id", planID),
		attribute.String("travel.mode", string(eff.mode)),
		attribute.Int("plan.candidates", len(places)),
	)

	entries, err := strategy.Run(ctx, places, eff.previous)
	if err != nil {
		return nil, err
	}

	totals := TotalsOf(entries)
	elapsed := time.Since(started)
	span.SetAttributes(attribute.Int("plan.stops", totals.Stops))

	logger.Info().
		Int("candidates", len(places)).
		Int("stops", totals.Stops).
		Float64("distance_km", totals.DistanceKm).
		Dur("elapsed", elapsed).
		Msg("trip planned")

	return &Result{
		PlanID:    planID,
		Itinerary: entries,
		Summary: Summary{
			Stops:              totals.Stops,
			TotalDistanceKm:    totals.DistanceKm,
			TotalTravelMinutes: totals.TravelMinutes,
			TotalStayMinutes:   totals.StayMinutes,
			ElapsedMs:          float64(elapsed.Microseconds()) / 1000,
		},
	}, nil
}

// resolveRequirement applies defaults and parses every field.
func (s *System) resolveRequirement(req Requirement) (*effectiveRequirement, error) {
	eff := &effectiveRequirement{
		startPoint: strings.TrimSpace(req.StartPoint),
		endPoint:   strings.TrimSpace(req.EndPoint),
		weights:    req.Weights,
		previous:   req.Previous,
	}
	if req.Seed != nil {
		eff.seed = *req.Seed
		eff.seeded = true
	}

	day := s.now().In(s.location)
	if req.Date != "" {
		d, err := time.ParseInLocation("2006-01-02", req.Date, s.location)
		if err != nil {
			return nil, &place.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
		}
		day = d
	}

	clocks := []struct {
		field string
		value string
		def   string
		out   *timeperiod.Clock
	}{
		{"startTime", req.StartTime, DefaultStartTime, new(timeperiod.Clock)},
		{"endTime", req.EndTime, DefaultEndTime, new(timeperiod.Clock)},
		{"lunchTime", req.LunchTime, timeperiod.DefaultLunch.String(), &eff.lunch},
		{"dinnerTime", req.DinnerTime, timeperiod.DefaultDinner.String(), &eff.dinner},
	}
	for _, c := range clocks {
		v := c.value
		if v == "" {
			v = c.def
		}
		parsed, err := timeperiod.ParseClock(v)
		if err != nil {
			return nil, &place.ValidationError{Field: c.field, Reason: err.Error()}
		}
		*c.out = parsed
	}
	if eff.dinner <= eff.lunch {
		return nil, &place.ValidationError{Field: "dinnerTime", Reason: "must be after lunchTime"}
	}
	eff.start = clocks[0].out.On(day)
	eff.end = clocks[1].out.On(day)

	eff.mode = DefaultTravelMode
	if req.TravelMode != "" {
		m, err := geo.ParseTravelMode(req.TravelMode)
		if err != nil {
			return nil, &place.ValidationError{Field: "travelMode", Reason: err.Error()}
		}
		eff.mode = m
	}

	eff.thresholdKm = DefaultDistanceThresholdKm
	if req.DistanceThresholdKm != 0 {
		eff.thresholdKm = req.DistanceThresholdKm
	}

	if eff.weights != nil {
		if err := eff.weights.Validate(); err != nil {
			return nil, err
		}
	}

	return eff, nil
}

// resolvePoint turns a place name into an anchor. Anything that cannot be
// resolved falls back to the default landmark.
func (s *System) resolvePoint(ctx context.Context, name string, opts Options) *place.Place {
	fallback := place.NewAnchor(DefaultLandmark, DefaultLandmarkCoordinate)
	if name == "" || name == DefaultLandmark {
		return fallback
	}
	if opts.DisableGeocoding {
		s.logger.Info().
			Str("point", name).
			Msg("geocoding disabled, using default landmark")
		return fallback
	}

	c, err := s.geo.Geocode(ctx, name)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("point", name).
			Str("fallback", DefaultLandmark).
			Msg("failed to resolve point, using default landmark")
		return fallback
	}
	return place.NewAnchor(name, c)
}

// String renders the summary for logs and the CLI.
func (r *Result) String() string {
	return fmt.Sprintf("plan %s: %d stops, %.1f km, %.0f min travel, %d min stay",
		r.PlanID, r.Summary.Stops, r.Summary.TotalDistanceKm, r.Summary.TotalTravelMinutes, r.Summary.TotalStayMinutes)
}
