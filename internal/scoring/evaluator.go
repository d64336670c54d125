package scoring

import (
	"errors"
	"math"
	"time"

	"github.com/daytrip/daytrip/internal/geo"
	"github.com/daytrip/daytrip/internal/place"
	"github.com/daytrip/daytrip/internal/timeperiod"
)

// Config holds configuration for the evaluator.
type Config struct {
	// Weights override DefaultWeights (optional).
	Weights *Weights

	// MaxDistanceKm is the distance at which a general place scores zero
	// for distance. Default: 30.
	MaxDistanceKm float64

	// EfficiencyBase is the stay/travel ratio a general place is expected
	// to reach. Default: 1.5.
	EfficiencyBase float64

	// DayParts resolves the current day-part (required).
	DayParts DayPartResolver
}

// Evaluator scores candidate places. It holds no per-call state beyond what
// DayParts tracks.
type Evaluator struct {
	weights        Weights
	maxDistanceKm  float64
	efficiencyBase float64
	dayParts       DayPartResolver
}

// NewEvaluator creates an evaluator.
func NewEvaluator(cfg Config) (*Evaluator, error) {
	if cfg.DayParts == nil {
		return nil, errors.New("scoring: day-part resolver is required")
	}

	weights := DefaultWeights()
	if cfg.Weights != nil {
		weights = *cfg.Weights
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	maxDistance := cfg.MaxDistanceKm
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistanceKm
	}

	base := cfg.EfficiencyBase
	if base <= 0 {
		base = DefaultEfficiencyBase
	}

	return &Evaluator{
		weights:        weights,
		maxDistanceKm:  maxDistance,
		efficiencyBase: base,
		dayParts:       cfg.DayParts,
	}, nil
}

// Weights returns the active weights.
func (e *Evaluator) Weights() Weights {
	return e.weights
}

// Score returns the desirability of visiting p from the given location at
// time at, in [0,1], or -Inf when p is closed at that time.
func (e *Evaluator) Score(p *place.Place, from geo.Coordinate, at time.Time, travelMinutes float64) float64 {
	return e.Explain(p, from, at, travelMinutes).Total
}

// Explain computes the score and returns every component.
func (e *Evaluator) Explain(p *place.Place, from geo.Coordinate, at time.Time, travelMinutes float64) Breakdown {
	if !p.IsOpenAt(at) {
		return Breakdown{Vetoed: true, Total: math.Inf(-1)}
	}

	tuning := p.Tuning()
	b := Breakdown{
		Rating:     ratingScore(p.Rating),
		Efficiency: e.efficiencyScore(p.DurationMinutes, travelMinutes, tuning),
		DistanceKm: geo.HaversineKm(from, p.Coordinate()),
		DayPart:    e.dayParts.DayPartAt(at),
	}
	b.Distance = clip(1 - b.DistanceKm/(e.maxDistanceKm*tuning.DistanceFactor))
	b.HoursFit = hoursFit(p, at)
	b.DayPartFit = clip(dayPartBase(p.DayPart, b.DayPart) * b.HoursFit)

	b.Total = clip(b.Rating*e.weights.Rating +
		b.Efficiency*e.weights.Efficiency +
		b.DayPartFit*e.weights.DayPartFit +
		b.Distance*e.weights.Distance)
	return b
}

func ratingScore(rating float64) float64 {
	if rating <= 0 {
		return UnratedScore
	}
	score := math.Min(1, rating/5)
	if rating >= 4.5 {
		score = math.Min(1, score+(rating-4.5)*0.1)
	}
	return score
}

func (e *Evaluator) efficiencyScore(stayMinutes int, travelMinutes float64, tuning place.Tuning) float64 {
	if travelMinutes <= 0 {
		return 1
	}
	ratio := float64(stayMinutes) / travelMinutes
	return clip(ratio / (e.efficiencyBase * tuning.EfficiencyFactor))
}

// dayPartBase decays by 0.2 per step between the preferred and current
// day-part, floored at 0.3.
func dayPartBase(preferred, current timeperiod.DayPart) float64 {
	if preferred == current {
		return 1
	}
	diff := math.Abs(float64(preferred.Ordinal() - current.Ordinal()))
	return math.Max(0.3, 1-diff*0.2)
}

// hoursFit rates how much of the stay fits before the open slot closes.
// Only slots containing at are considered; the best one wins.
func hoursFit(p *place.Place, at time.Time) float64 {
	stay := float64(p.DurationMinutes)
	now := timeperiod.ClockOf(at)

	best := 0.0
	for _, slot := range p.SlotsAt(at) {
		remaining := float64(slot.RemainingMinutes(now))
		var fit float64
		switch {
		case remaining < stay:
			fit = 0
		case remaining < 1.5*stay:
			fit = 0.5
		default:
			fit = 1
		}
		best = math.Max(best, fit)
	}
	return best
}

func clip(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
