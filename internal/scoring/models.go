// Package scoring rates candidate places for the next itinerary step.
package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/daytrip/daytrip/internal/place"
	"github.com/daytrip/daytrip/internal/timeperiod"
)

// Defaults for the evaluator.
const (
	DefaultMaxDistanceKm  = 30.0
	DefaultEfficiencyBase = 1.5

	// UnratedScore is the rating component for places without a rating.
	UnratedScore = 0.5

	weightSumTolerance = 1e-6
)

// Weights define the relative importance of the score components.
// All values must be non-negative and sum to 1.
type Weights struct {
	Rating     float64 `json:"rating" yaml:"rating"`
	Efficiency float64 `json:"efficiency" yaml:"efficiency"`
	DayPartFit float64 `json:"dayPartFit" yaml:"day_part_fit"`
	Distance   float64 `json:"distance" yaml:"distance"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{
		Rating:     0.3,
		Efficiency: 0.3,
		DayPartFit: 0.2,
		Distance:   0.2,
	}
}

// Validate checks that all weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"weights.rating", w.Rating},
		{"weights.efficiency", w.Efficiency},
		{"weights.dayPartFit", w.DayPartFit},
		{"weights.distance", w.Distance},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || f.value < 0 {
			return &place.ValidationError{Field: f.name, Reason: "must be a non-negative number"}
		}
	}

	sum := w.Rating + w.Efficiency + w.DayPartFit + w.Distance
	if math.Abs(sum-1) > weightSumTolerance {
		return &place.ValidationError{Field: "weights", Reason: fmt.Sprintf("must sum to 1, got %.6f", sum)}
	}
	return nil
}

// DayPartResolver maps a timestamp to the day-part in effect for the current run.
type DayPartResolver interface {
	DayPartAt(t time.Time) timeperiod.DayPart
}

// Breakdown is the per-component view of a single score.
type Breakdown struct {
	Vetoed bool

	Rating     float64
	Efficiency float64
	Distance   float64

	// DayPartFit already includes HoursFit.
	DayPartFit float64
	HoursFit   float64

	DistanceKm float64
	DayPart    timeperiod.DayPart

	// Total is the weighted score in [0,1], or -Inf when vetoed.
	Total float64
}
