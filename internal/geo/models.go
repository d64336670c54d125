// Package geo provides distance, routing and geocoding for itinerary planning.
package geo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/daytrip/daytrip/pkg/polyline"
)

// Sentinel errors for geo operations.
var (
	// ErrProviderUnavailable indicates the geo provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("geo provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrUnsupportedMode indicates the provider cannot route the requested travel mode.
	ErrUnsupportedMode = errors.New("unsupported travel mode")
	// ErrGeocodeNotFound indicates a place name could not be resolved.
	ErrGeocodeNotFound = errors.New("location not found")
)

// Provider defines the interface for routing and geocoding providers.
type Provider interface {
	// Directions computes a single route between two points.
	Directions(ctx context.Context, req DirectionsRequest) (*RouteEstimate, error)
	// Geocode resolves a free-text place name to a coordinate.
	Geocode(ctx context.Context, query string) (Coordinate, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
	// SupportedModes returns the travel modes this provider can route.
	SupportedModes() []TravelMode
}

// TravelMode is the means of transport between two stops.
type TravelMode string

const (
	ModeDriving   TravelMode = "driving"
	ModeTransit   TravelMode = "transit"
	ModeWalking   TravelMode = "walking"
	ModeBicycling TravelMode = "bicycling"
)

// TravelModes lists every supported travel mode.
var TravelModes = []TravelMode{ModeDriving, ModeTransit, ModeWalking, ModeBicycling}

var modeLabels = map[TravelMode]string{
	ModeTransit:   "大眾運輸",
	ModeDriving:   "開車",
	ModeWalking:   "步行",
	ModeBicycling: "騎車",
}

// ParseTravelMode parses a travel mode name, case-insensitively.
func ParseTravelMode(s string) (TravelMode, error) {
	m := TravelMode(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := modeLabels[m]; !ok {
		return "", fmt.Errorf("unknown travel mode %q", s)
	}
	return m, nil
}

// Label returns the display name of the travel mode.
func (m TravelMode) Label() string {
	if l, ok := modeLabels[m]; ok {
		return l
	}
	return string(m)
}

// Coordinate represents a geographic point.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Validate checks if the coordinate is within valid ranges.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", c.Lon)
	}
	return nil
}

// DirectionsRequest is the request for computing a route.
type DirectionsRequest struct {
	Origin      Coordinate
	Destination Coordinate
	Mode        TravelMode
	DepartAt    time.Time
}

// RouteEstimate is the travel estimate for a single leg.
type RouteEstimate struct {
	Minutes    float64    `json:"minutes"`
	DistanceKm float64    `json:"distanceKm"`
	Mode       TravelMode `json:"mode"`
	Info       *RouteInfo `json:"routeInfo,omitempty"`
}

// RouteInfo carries provider route details. The planner passes it through untouched.
type RouteInfo struct {
	Provider string `json:"provider"`
	Polyline string `json:"polyline,omitempty"` // Encoded polyline (precision 5)
	Summary  string `json:"summary,omitempty"`
	Steps    []Step `json:"steps,omitempty"`
}

// Path decodes the route polyline. A malformed polyline yields no path.
func (r *RouteInfo) Path() []Coordinate {
	if r == nil || r.Polyline == "" {
		return nil
	}
	points, err := polyline.Decode(r.Polyline)
	if err != nil {
		return nil
	}
	path := make([]Coordinate, len(points))
	for i, p := range points {
		path[i] = Coordinate{Lat: p.Lat, Lon: p.Lon}
	}
	return path
}

// Step represents a turn-by-turn instruction.
type Step struct {
	Text           string  `json:"text"`
	DistanceMeters int     `json:"distanceMeters"`
	DurationSecs   int     `json:"durationSeconds"`
	Mode           string  `json:"mode,omitempty"`
	Line           *string `json:"line,omitempty"` // Transit line name, when applicable
}

// Error provides detailed error information from a geo provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
