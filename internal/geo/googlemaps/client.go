// Package googlemaps provides a geo provider backed by the Google Maps Directions
// and Geocoding APIs.
package googlemaps

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"

	"github.com/daytrip/daytrip/internal/geo"
	"github.com/daytrip/daytrip/internal/provider/resilience"
)

const (
	// ProviderName identifies this geo provider.
	ProviderName = "googlemaps"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

var travelModes = map[geo.TravelMode]maps.Mode{
	geo.ModeDriving:   maps.TravelModeDriving,
	geo.ModeTransit:   maps.TravelModeTransit,
	geo.ModeWalking:   maps.TravelModeWalking,
	geo.ModeBicycling: maps.TravelModeBicycling,
}

// ClientConfig holds configuration for the Google Maps client.
type ClientConfig struct {
	// APIKey is the Google Maps API key (required).
	APIKey string

	// BaseURL overrides the API base URL (optional, used in tests).
	BaseURL string

	// Language for results (optional, defaults to zh-TW).
	Language string

	// Region biases results to a country (optional, defaults to TW).
	Region string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *http.Client

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger

	// Now returns the current time (optional, for tests).
	Now func() time.Time
}

// Client is a Google Maps geo provider.
type Client struct {
	maps     *maps.Client
	language string
	region   string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewClient creates a new Google Maps client.
func NewClient(cfg ClientConfig) (*Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	language := cfg.Language
	if language == "" {
		language = "zh-TW"
	}

	region := cfg.Region
	if region == "" {
		region = "TW"
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.CircuitBreaker.OnStateChange = resilience.LogStateChanges(cfg.Logger)
		httpClient = &http.Client{Transport: resilience.NewClient(clientCfg)}
	}

	opts := []maps.ClientOption{
		maps.WithAPIKey(cfg.APIKey),
		maps.WithHTTPClient(httpClient),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, maps.WithBaseURL(cfg.BaseURL))
	}

	mc, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}

	return &Client{
		maps:     mc,
		language: language,
		region:   region,
		logger:   cfg.Logger,
		now:      now,
	}, nil
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// SupportedModes returns all travel modes; Google routes each of them.
func (c *Client) SupportedModes() []geo.TravelMode {
	return geo.TravelModes
}

// Directions retrieves a route between two points.
func (c *Client) Directions(ctx context.Context, req geo.DirectionsRequest) (*geo.RouteEstimate, error) {
	mode, ok := travelModes[req.Mode]
	if !ok {
		return nil, &geo.Error{
			Provider: ProviderName,
			Code:     "UNSUPPORTED_MODE",
			Message:  fmt.Sprintf("travel mode %q is not supported", req.Mode),
			Err:      geo.ErrUnsupportedMode,
		}
	}

	r := &maps.DirectionsRequest{
		Origin:      latLng(req.Origin),
		Destination: latLng(req.Destination),
		Mode:        mode,
		Language:    c.language,
		Region:      c.region,
	}
	// Google rejects departure times in the past
	if req.DepartAt.After(c.now()) {
		r.DepartureTime = strconv.FormatInt(req.DepartAt.Unix(), 10)
	}

	c.logger.Debug().
		Str("mode", string(mode)).
		Str("origin", r.Origin).
		Str("destination", r.Destination).
		Msg("requesting directions from Google Maps")

	routes, _, err := c.maps.Directions(ctx, r)
	if err != nil {
		return nil, mapError(err, geo.ErrNoRouteFound)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, &geo.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "no route found",
			Err:      geo.ErrNoRouteFound,
		}
	}

	route := routes[0]
	leg := route.Legs[0]

	info := &geo.RouteInfo{
		Provider: ProviderName,
		Polyline: route.OverviewPolyline.Points,
		Summary:  route.Summary,
	}
	for _, step := range leg.Steps {
		s := geo.Step{
			Text:           stripTags(step.HTMLInstructions),
			DistanceMeters: step.Distance.Meters,
			DurationSecs:   int(step.Duration.Seconds()),
			Mode:           strings.ToLower(step.TravelMode),
		}
		if step.TransitDetails != nil {
			line := step.TransitDetails.Line.ShortName
			if line == "" {
				line = step.TransitDetails.Line.Name
			}
			s.Line = &line
		}
		info.Steps = append(info.Steps, s)
	}

	return &geo.RouteEstimate{
		Minutes:    leg.Duration.Minutes(),
		DistanceKm: float64(leg.Distance.Meters) / 1000,
		Mode:       req.Mode,
		Info:       info,
	}, nil
}

// Geocode resolves a free-text place name to a coordinate.
func (c *Client) Geocode(ctx context.Context, query string) (geo.Coordinate, error) {
	results, err := c.maps.Geocode(ctx, &maps.GeocodingRequest{
		Address:  query,
		Language: c.language,
		Region:   c.region,
	})
	if err != nil {
		return geo.Coordinate{}, mapError(err, geo.ErrGeocodeNotFound)
	}
	if len(results) == 0 {
		return geo.Coordinate{}, &geo.Error{
			Provider: ProviderName,
			Code:     "NOT_FOUND",
			Message:  fmt.Sprintf("no geocode results for %q", query),
			Err:      geo.ErrGeocodeNotFound,
		}
	}

	loc := results[0].Geometry.Location
	c.logger.Debug().
		Str("query", query).
		Str("address", results[0].FormattedAddress).
		Msg("geocoded place via Google Maps")

	return geo.Coordinate{Lat: loc.Lat, Lon: loc.Lng}, nil
}

func latLng(c geo.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lon, 'f', 6, 64)
}

// mapError converts Google API status errors to domain errors.
// Google reports failures as "maps: STATUS - message".
func mapError(err error, notFound error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "ZERO_RESULTS"), strings.Contains(msg, "NOT_FOUND"):
		return &geo.Error{Provider: ProviderName, Code: "NOT_FOUND", Message: msg, Err: notFound}
	case strings.Contains(msg, "OVER_QUERY_LIMIT"), strings.Contains(msg, "OVER_DAILY_LIMIT"):
		return &geo.Error{Provider: ProviderName, Code: "RATE_LIMIT", Message: msg, Err: geo.ErrRateLimitExceeded}
	case strings.Contains(msg, "INVALID_REQUEST"):
		return &geo.Error{Provider: ProviderName, Code: "INVALID_REQUEST", Message: msg, Err: geo.ErrInvalidCoordinates}
	case strings.Contains(msg, "REQUEST_DENIED"):
		return &geo.Error{Provider: ProviderName, Code: "FORBIDDEN", Message: msg, Err: geo.ErrProviderUnavailable}
	default:
		return &geo.Error{Provider: ProviderName, Code: "REQUEST_FAILED", Message: msg, Err: geo.ErrProviderUnavailable}
	}
}

// stripTags removes HTML markup from Google's step instructions.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}
