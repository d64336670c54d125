// Package place defines candidate places for itinerary planning and their
// validation rules.
package place

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/daytrip/daytrip/internal/geo"
	"github.com/daytrip/daytrip/internal/timeperiod"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports which field of an input was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap returns ErrValidation.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// AnchorCategory is the category given to synthetic start and end places.
const AnchorCategory = "交通樞紐"

// DefaultDurationMinutes is the stay length for categories without a specific default.
const DefaultDurationMinutes = 60

var defaultDurations = map[string]int{
	"中菜館":        90,
	"壽司店":        90,
	"餐廳":         90,
	"restaurant": 90,
	"快餐店":        45,
	"麵店":         45,
	"fast_food":  45,
	"景點":         120,
	"旅遊景點":       120,
	"attraction": 120,
}

// DefaultDuration returns the suggested stay in minutes for a category.
func DefaultDuration(category string) int {
	if d, ok := defaultDurations[strings.ToLower(strings.TrimSpace(category))]; ok {
		return d
	}
	return DefaultDurationMinutes
}

// Place is a validated candidate stop.
type Place struct {
	ID              string
	Name            string
	Rating          float64
	Lat             float64
	Lon             float64
	DurationMinutes int
	Category        string
	Class           CategoryClass
	DayPart         timeperiod.DayPart
	Hours           OpeningHours
	RouteURL        string
}

// Record is the raw shape of a place as supplied by callers, files and the
// catalog. Optional fields are pointers so absence can be told from zero.
type Record struct {
	ID              string              `json:"id,omitempty" yaml:"id,omitempty"`
	Name            string              `json:"name" yaml:"name"`
	Rating          *float64            `json:"rating,omitempty" yaml:"rating,omitempty"`
	Lat             float64             `json:"lat" yaml:"lat"`
	Lon             float64             `json:"lon" yaml:"lon"`
	DurationMinutes *int                `json:"durationMinutes,omitempty" yaml:"duration_minutes,omitempty"`
	Category        string              `json:"category,omitempty" yaml:"category,omitempty"`
	DayPart         string              `json:"dayPart" yaml:"day_part"`
	Hours           map[int][]TimeRange `json:"hours" yaml:"hours"`
	RouteURL        string              `json:"routeUrl,omitempty" yaml:"route_url,omitempty"`
}

// NewPlace validates a record and applies defaults.
func NewPlace(r Record) (*Place, error) {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}

	var rating float64
	if r.Rating != nil {
		rating = *r.Rating
		if math.IsNaN(rating) || rating < 0 || rating > 5 {
			return nil, &ValidationError{Field: "rating", Reason: fmt.Sprintf("%v out of range [0,5]", rating)}
		}
	}

	if math.IsNaN(r.Lat) || r.Lat < -90 || r.Lat > 90 {
		return nil, &ValidationError{Field: "lat", Reason: fmt.Sprintf("%v out of range [-90,90]", r.Lat)}
	}
	if math.IsNaN(r.Lon) || r.Lon < -180 || r.Lon > 180 {
		return nil, &ValidationError{Field: "lon", Reason: fmt.Sprintf("%v out of range [-180,180]", r.Lon)}
	}

	duration := DefaultDuration(r.Category)
	if r.DurationMinutes != nil {
		if *r.DurationMinutes < 0 {
			return nil, &ValidationError{Field: "durationMinutes", Reason: "must not be negative"}
		}
		duration = *r.DurationMinutes
	}

	part, err := timeperiod.ParseDayPart(r.DayPart)
	if err != nil {
		return nil, &ValidationError{Field: "dayPart", Reason: err.Error()}
	}

	hours, err := parseHours(r.Hours)
	if err != nil {
		return nil, err
	}

	return &Place{
		ID:              r.ID,
		Name:            name,
		Rating:          rating,
		Lat:             r.Lat,
		Lon:             r.Lon,
		DurationMinutes: duration,
		Category:        r.Category,
		Class:           Classify(r.Category),
		DayPart:         part,
		Hours:           hours,
		RouteURL:        r.RouteURL,
	}, nil
}

// NewPlaces validates a batch of records, failing on the first invalid one.
func NewPlaces(records []Record) ([]*Place, error) {
	places := make([]*Place, 0, len(records))
	for i := range records {
		p, err := NewPlace(records[i])
		if err != nil {
			var vErr *ValidationError
			if errors.As(err, &vErr) {
				return nil, &ValidationError{
					Field:  fmt.Sprintf("places[%d].%s", i, vErr.Field),
					Reason: vErr.Reason,
				}
			}
			return nil, err
		}
		places = append(places, p)
	}
	return places, nil
}

// NewAnchor builds a synthetic place for a trip's start or end point.
// Anchors are always open and take no time to visit.
func NewAnchor(name string, c geo.Coordinate) *Place {
	return &Place{
		Name:     name,
		Lat:      c.Lat,
		Lon:      c.Lon,
		Category: AnchorCategory,
		Class:    ClassGeneral,
		DayPart:  timeperiod.Morning,
		Hours: EveryDay(Slot{
			Start: timeperiod.MustParseClock("00:00"),
			End:   timeperiod.MustParseClock("23:59"),
		}),
	}
}

// Record converts the place back into its raw form.
func (p *Place) Record() Record {
	rating := p.Rating
	duration := p.DurationMinutes
	return Record{
		ID:              p.ID,
		Name:            p.Name,
		Rating:          &rating,
		Lat:             p.Lat,
		Lon:             p.Lon,
		DurationMinutes: &duration,
		Category:        p.Category,
		DayPart:         string(p.DayPart),
		Hours:           p.Hours.ranges(),
		RouteURL:        p.RouteURL,
	}
}

// Coordinate returns the place location.
func (p *Place) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: p.Lat, Lon: p.Lon}
}

// Stay returns the suggested stay as a duration.
func (p *Place) Stay() time.Duration {
	return time.Duration(p.DurationMinutes) * time.Minute
}

// Tuning returns the scoring multipliers for the place's category class.
func (p *Place) Tuning() Tuning {
	return p.Class.Tuning()
}

// SlotsOn returns the opening slots for an ISO weekday.
func (p *Place) SlotsOn(weekday int) []Slot {
	return p.Hours[weekday]
}

// SlotAt returns the first slot on t's weekday that contains t's wall-clock time.
// Overnight slots are matched on the weekday they start.
func (p *Place) SlotAt(t time.Time) (Slot, bool) {
	c := timeperiod.ClockOf(t)
	for _, s := range p.SlotsOn(ISOWeekday(t)) {
		if s.Contains(c) {
			return s, true
		}
	}
	return Slot{}, false
}

// SlotsAt returns every slot on t's weekday that contains t's wall-clock time.
func (p *Place) SlotsAt(t time.Time) []Slot {
	c := timeperiod.ClockOf(t)
	var out []Slot
	for _, s := range p.SlotsOn(ISOWeekday(t)) {
		if s.Contains(c) {
			out = append(out, s)
		}
	}
	return out
}

// IsOpenAt reports whether the place is open at t.
func (p *Place) IsOpenAt(t time.Time) bool {
	_, ok := p.SlotAt(t)
	return ok
}

// NextOpening finds the next slot that starts strictly after t, looking up to
// a week ahead. It returns the ISO weekday of that slot.
func (p *Place) NextOpening(t time.Time) (int, Slot, bool) {
	today := ISOWeekday(t)
	now := timeperiod.ClockOf(t)
	for offset := 0; offset < 7; offset++ {
		day := (today-1+offset)%7 + 1
		for _, s := range p.SlotsOn(day) {
			if offset == 0 && s.Start <= now {
				continue
			}
			return day, s, true
		}
	}
	return 0, Slot{}, false
}
