package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daytrip/daytrip/internal/api/models"
	"github.com/daytrip/daytrip/internal/place"
)

func validPlace() models.PlaceInput {
	rating := 4.5
	return models.PlaceInput{
		Name:    "鼎泰豐",
		Rating:  &rating,
		Lat:     25.033,
		Lon:     121.53,
		DayPart: "lunch",
		Hours:   map[int][]place.TimeRange{1: {{Start: "10:00", End: "21:00"}}},
	}
}

func TestValidate_PlanTripRequest(t *testing.T) {
	ok := models.PlanTripRequest{Places: []models.PlaceInput{validPlace()}}
	assert.Empty(t, models.Validate(&ok))

	badLat := validPlace()
	badLat.Lat = 91
	noName := validPlace()
	noName.Name = ""
	badRating := validPlace()
	badRating.Rating = new(float64)
	*badRating.Rating = 6
	badWeekday := validPlace()
	badWeekday.Hours = map[int][]place.TimeRange{8: {{Start: "10:00", End: "11:00"}}}

	tests := []struct {
		name  string
		req   models.PlanTripRequest
		field string
		code  string
	}{
		{"lat out of range", models.PlanTripRequest{Places: []models.PlaceInput{badLat}}, "places[0].lat", "OUT_OF_RANGE"},
		{"missing name", models.PlanTripRequest{Places: []models.PlaceInput{validPlace(), noName}}, "places[1].name", "REQUIRED"},
		{"rating above five", models.PlanTripRequest{Places: []models.PlaceInput{badRating}}, "places[0].rating", "OUT_OF_RANGE"},
		{"weekday eight", models.PlanTripRequest{Places: []models.PlaceInput{badWeekday}}, "places[0].hours[8]", "OUT_OF_RANGE"},
		{"empty place id", models.PlanTripRequest{PlaceIDs: []string{"a", ""}}, "placeIds[1]", "REQUIRED"},
		{"bad date", models.PlanTripRequest{Region: "taipei", Requirement: models.TripRequirement{Date: "2026/03/02"}}, "requirement.date", "INVALID_FORMAT"},
		{"negative threshold", models.PlanTripRequest{Region: "taipei", Requirement: models.TripRequirement{DistanceThresholdKm: -1}}, "requirement.distanceThresholdKm", "OUT_OF_RANGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := models.Validate(&tt.req)
			require.Len(t, errs, 1)
			assert.Equal(t, tt.field, errs[0].Field)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.NotEmpty(t, errs[0].Message)
		})
	}
}

func TestPlanTripRequest_PlannerRequirement(t *testing.T) {
	inner, outer := int64(1), int64(2)
	req := models.PlanTripRequest{
		Requirement: models.TripRequirement{
			StartPoint: "台北101",
			TravelMode: "walking",
			Seed:       &inner,
		},
	}

	r := req.PlannerRequirement()
	assert.Equal(t, "台北101", r.StartPoint)
	assert.Equal(t, "walking", r.TravelMode)
	require.NotNil(t, r.Seed)
	assert.Equal(t, int64(1), *r.Seed)

	req.Seed = &outer
	assert.Equal(t, int64(2), *req.PlannerRequirement().Seed)
}

func TestPlaceInput_Record(t *testing.T) {
	in := validPlace()
	in.ID = "dtf"
	rec := in.Record()

	assert.Equal(t, "dtf", rec.ID)
	assert.Equal(t, "鼎泰豐", rec.Name)
	assert.Equal(t, in.Hours, rec.Hours)
	_, err := place.NewPlace(rec)
	assert.NoError(t, err)
}
