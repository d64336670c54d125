// Package planner builds single-day itineraries from a pool of candidate places.
package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/daytrip/daytrip/internal/geo"
	"github.com/daytrip/daytrip/internal/place"
	"github.com/daytrip/daytrip/internal/timeperiod"
)

// Display labels of the synthetic entries.
const (
	LabelStart = "起點"
	LabelEnd   = "終點"
)

// EntryKind distinguishes synthetic anchors from real stops.
type EntryKind string

const (
	KindStart EntryKind = "start"
	KindStop  EntryKind = "stop"
	KindEnd   EntryKind = "end"
)

// Entry is one committed itinerary item. Entries are never modified after
// they are appended to an itinerary.
type Entry struct {
	Step        int                `json:"step"`
	Kind        EntryKind          `json:"kind"`
	PlaceID     string             `json:"placeId,omitempty"`
	Name        string             `json:"name"`
	Label       string             `json:"label"`
	Hours       *place.Slot        `json:"hours,omitempty"`
	Lat         float64            `json:"lat"`
	Lon         float64            `json:"lon"`
	StartTime   time.Time          `json:"startTime"`
	EndTime     time.Time          `json:"endTime"`
	StayMinutes int                `json:"stayMinutes"`
	Travel      Leg                `json:"travel"`
	RouteInfo   *geo.RouteInfo     `json:"routeInfo,omitempty"`
	RouteURL    string             `json:"routeUrl,omitempty"`
	DayPart     timeperiod.DayPart `json:"dayPart"`
}

// Coordinate returns the entry location.
func (e *Entry) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: e.Lat, Lon: e.Lon}
}

// Leg describes the travel that arrives at an entry.
type Leg struct {
	Mode       geo.TravelMode `json:"mode"`
	ModeLabel  string         `json:"modeLabel"`
	DistanceKm float64        `json:"distanceKm"`
	Minutes    float64        `json:"minutes"`
	Window     TimeWindow     `json:"window"`

	// Estimated is set when the leg was derived from straight-line distance
	// because routing failed.
	Estimated bool `json:"estimated,omitempty"`
}

// TimeWindow is a wall-clock interval rendered as "HH:MM-HH:MM".
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

func (w TimeWindow) String() string {
	return w.Start.Format("15:04") + "-" + w.End.Format("15:04")
}

// MarshalText implements encoding.TextMarshaler.
func (w TimeWindow) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Only the wall-clock
// part survives a round trip.
func (w *TimeWindow) UnmarshalText(b []byte) error {
	start, end, ok := strings.Cut(string(b), "-")
	if !ok {
		return fmt.Errorf("invalid time window %q", b)
	}
	s, err := timeperiod.ParseClock(start)
	if err != nil {
		return err
	}
	e, err := timeperiod.ParseClock(end)
	if err != nil {
		return err
	}
	var day time.Time
	w.Start = s.On(day)
	w.End = e.On(day)
	return nil
}

// Totals accumulates run statistics.
type Totals struct {
	Stops         int
	DistanceKm    float64
	TravelMinutes float64
	StayMinutes   int
}

// TotalsOf computes the statistics of an itinerary. Stops counts distinct
// interior places.
func TotalsOf(entries []Entry) Totals {
	var t Totals
	seen := make(map[string]bool)
	for i := range entries {
		e := &entries[i]
		t.DistanceKm += e.Travel.DistanceKm
		t.TravelMinutes += e.Travel.Minutes
		t.StayMinutes += e.StayMinutes
		if e.Kind == KindStop && !seen[e.Name] {
			seen[e.Name] = true
			t.Stops++
		}
	}
	return t
}

// PlanContext is the read-only configuration of one planning run.
type PlanContext struct {
	StartTime           time.Time
	EndTime             time.Time
	TravelMode          geo.TravelMode
	DistanceThresholdKm float64
	StartLocation       *place.Place
	EndLocation         *place.Place
}

// MaxSpan is the longest day a single run may plan.
const MaxSpan = 24 * time.Hour

// NewPlanContext validates a context and defaults the end location to the start.
func NewPlanContext(c PlanContext) (*PlanContext, error) {
	if c.StartLocation == nil {
		return nil, &place.ValidationError{Field: "startLocation", Reason: "is required"}
	}
	if !c.EndTime.After(c.StartTime) {
		return nil, &place.ValidationError{Field: "endTime", Reason: "must be after startTime"}
	}
	if c.EndTime.Sub(c.StartTime) > MaxSpan {
		return nil, &place.ValidationError{Field: "endTime", Reason: "must be within 24 hours of startTime"}
	}
	if !(c.DistanceThresholdKm > 0) {
		return nil, &place.ValidationError{Field: "distanceThresholdKm", Reason: "must be positive"}
	}
	if _, err := geo.ParseTravelMode(string(c.TravelMode)); err != nil {
		return nil, &place.ValidationError{Field: "travelMode", Reason: err.Error()}
	}
	if c.EndLocation == nil {
		c.EndLocation = c.StartLocation
	}
	return &c, nil
}
