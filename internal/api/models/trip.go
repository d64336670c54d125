package models

import (
	"github.com/daytrip/daytrip/internal/planner"
	"github.com/daytrip/daytrip/internal/scoring"
)

// MaxInlinePlaces bounds the places a single trip request may carry.
const MaxInlinePlaces = 500

// PlanTripRequest is the body of POST /v1/trips:plan. Candidates come from
// exactly one of Places, PlaceIDs or Region.
type PlanTripRequest struct {
	Places   []PlaceInput `json:"places,omitempty" validate:"omitempty,max=500,dive"`
	PlaceIDs []string     `json:"placeIds,omitempty" validate:"omitempty,max=500,dive,required,max=64"`
	Region   string       `json:"region,omitempty" validate:"omitempty,max=64"`

	Requirement TripRequirement `json:"requirement"`

	// Seed makes the plan reproducible. It overrides requirement.seed.
	Seed *int64 `json:"seed,omitempty"`
}

// TripRequirement mirrors planner.Requirement with request validation rules.
type TripRequirement struct {
	Date                string           `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartTime           string           `json:"startTime,omitempty" validate:"omitempty,max=5"`
	EndTime             string           `json:"endTime,omitempty" validate:"omitempty,max=5"`
	StartPoint          string           `json:"startPoint,omitempty" validate:"omitempty,max=100"`
	EndPoint            string           `json:"endPoint,omitempty" validate:"omitempty,max=100"`
	TravelMode          string           `json:"travelMode,omitempty" validate:"omitempty,max=20"`
	DistanceThresholdKm float64          `json:"distanceThresholdKm,omitempty" validate:"gte=0,lte=1000"`
	LunchTime           string           `json:"lunchTime,omitempty" validate:"omitempty,max=5"`
	DinnerTime          string           `json:"dinnerTime,omitempty" validate:"omitempty,max=5"`
	Weights             *scoring.Weights `json:"weights,omitempty"`
	Seed                *int64           `json:"seed,omitempty"`
	Previous            []planner.Entry  `json:"previous,omitempty" validate:"omitempty,max=100"`
}

// PlannerRequirement converts the request to a planner requirement.
func (r *PlanTripRequest) PlannerRequirement() planner.Requirement {
	req := r.Requirement
	seed := req.Seed
	if r.Seed != nil {
		seed = r.Seed
	}
	return planner.Requirement{
		Date:                req.Date,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		StartPoint:          req.StartPoint,
		EndPoint:            req.EndPoint,
		TravelMode:          req.TravelMode,
		DistanceThresholdKm: req.DistanceThresholdKm,
		LunchTime:           req.LunchTime,
		DinnerTime:          req.DinnerTime,
		Weights:             req.Weights,
		Seed:                seed,
		Previous:            req.Previous,
	}
}

// PlanTripResponse is the result of a planning request.
type PlanTripResponse struct {
	PlanID    string          `json:"planId"`
	Itinerary []planner.Entry `json:"itinerary"`
	Summary   planner.Summary `json:"summary"`

	// Candidates is how many places were considered.
	Candidates int `json:"candidates"`
}

// NewPlanTripResponse builds the response from a planner result.
func NewPlanTripResponse(res *planner.Result, candidates int) PlanTripResponse {
	return PlanTripResponse{
		PlanID:     res.PlanID,
		Itinerary:  res.Itinerary,
		Summary:    res.Summary,
		Candidates: candidates,
	}
}
