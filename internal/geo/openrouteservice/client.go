// Package openrouteservice provides a geo provider backed by the OpenRouteService
// directions and geocoding APIs.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/daytrip/daytrip/internal/geo"
	"github.com/daytrip/daytrip/internal/provider/resilience"
)

const (
	// ProviderName identifies this geo provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	// DefaultCountry restricts geocoding results (ISO 3166 alpha-2).
	DefaultCountry = "TW"
)

// ORS has no public transit routing.
var profiles = map[geo.TravelMode]string{
	geo.ModeDriving:   "driving-car",
	geo.ModeWalking:   "foot-walking",
	geo.ModeBicycling: "cycling-regular",
}

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// Country restricts geocoding to one country (optional, defaults to TW).
	Country string

	// Language for instructions (optional, defaults to zh).
	Language string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	country    string
	language   string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	country := cfg.Country
	if country == "" {
		country = DefaultCountry
	}

	language := cfg.Language
	if language == "" {
		language = "zh"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.CircuitBreaker.OnStateChange = resilience.LogStateChanges(cfg.Logger)
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		country:    country,
		language:   language,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// SupportedModes returns the travel modes ORS can route.
func (c *Client) SupportedModes() []geo.TravelMode {
	return []geo.TravelMode{geo.ModeDriving, geo.ModeWalking, geo.ModeBicycling}
}

// Directions retrieves a route between two points.
func (c *Client) Directions(ctx context.Context, req geo.DirectionsRequest) (*geo.RouteEstimate, error) {
	profile, ok := profiles[req.Mode]
	if !ok {
		return nil, &geo.Error{
			Provider: ProviderName,
			Code:     "UNSUPPORTED_MODE",
			Message:  fmt.Sprintf("travel mode %q is not supported", req.Mode),
			Err:      geo.ErrUnsupportedMode,
		}
	}

	orsReq := orsRequest{
		// ORS uses [lon, lat] order (GeoJSON)
		Coordinates: [][]float64{
			{req.Origin.Lon, req.Origin.Lat},
			{req.Destination.Lon, req.Destination.Lat},
		},
		Instructions: true,
		Geometry:     true,
		Units:        "m",
		Language:     c.language,
	}

	body, err := json.Marshal(orsReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, profile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	c.logger.Debug().
		Str("profile", profile).
		Float64("origin_lat", req.Origin.Lat).
		Float64("origin_lon", req.Origin.Lon).
		Float64("dest_lat", req.Destination.Lat).
		Float64("dest_lon", req.Destination.Lon).
		Msg("requesting directions from ORS")

	respBody, status, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.handleErrorResponse(status, respBody)
	}

	var orsResp orsResponse
	if err := json.Unmarshal(respBody, &orsResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(orsResp.Routes) == 0 {
		return nil, &geo.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "provider returned no routes",
			Err:      geo.ErrNoRouteFound,
		}
	}

	return toRouteEstimate(&orsResp.Routes[0], req.Mode), nil
}

// Geocode resolves a free-text place name using /geocode/search.
func (c *Client) Geocode(ctx context.Context, query string) (geo.Coordinate, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("text", query)
	q.Set("size", "1")
	q.Set("boundary.country", c.country)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/geocode/search?"+q.Encode(), nil)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json, application/geo+json")

	respBody, status, err := c.do(httpReq)
	if err != nil {
		return geo.Coordinate{}, err
	}
	if status != http.StatusOK {
		return geo.Coordinate{}, c.handleErrorResponse(status, respBody)
	}

	var decoded geocodeResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return geo.Coordinate{}, fmt.Errorf("decoding geocode response: %w", err)
	}

	if len(decoded.Features) == 0 || len(decoded.Features[0].Geometry.Coordinates) != 2 {
		return geo.Coordinate{}, &geo.Error{
			Provider: ProviderName,
			Code:     "NOT_FOUND",
			Message:  fmt.Sprintf("no geocode results for %q", query),
			Err:      geo.ErrGeocodeNotFound,
		}
	}

	coords := decoded.Features[0].Geometry.Coordinates
	c.logger.Debug().
		Str("query", query).
		Str("label", decoded.Features[0].Properties.Label).
		Msg("geocoded place via ORS")

	return geo.Coordinate{Lat: coords[1], Lon: coords[0]}, nil
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &geo.Error{
			Provider: ProviderName,
			Code:     "REQUEST_FAILED",
			Message:  "failed to reach geo provider",
			Err:      geo.ErrProviderUnavailable,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// handleErrorResponse maps ORS error responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var orsErr orsErrorResponse
	if err := json.Unmarshal(body, &orsErr); err != nil {
		return &geo.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  fmt.Sprintf("geo provider returned status %d", statusCode),
			Err:      geo.ErrProviderUnavailable,
		}
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return &geo.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      geo.ErrRateLimitExceeded,
		}
	case http.StatusForbidden, http.StatusUnauthorized:
		return &geo.Error{
			Provider: ProviderName,
			Code:     "FORBIDDEN",
			Message:  "API access denied - check API key configuration",
			Err:      geo.ErrProviderUnavailable,
		}
	case http.StatusNotFound:
		return &geo.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  "no route found between the given points",
			Err:      geo.ErrNoRouteFound,
		}
	case http.StatusBadRequest:
		switch orsErr.Error.Code {
		case orsErrorCodeNotFound, orsErrorCodePointTooFar:
			return &geo.Error{
				Provider: ProviderName,
				Code:     "NO_ROUTE",
				Message:  orsErr.Error.Message,
				Err:      geo.ErrNoRouteFound,
			}
		case orsErrorCodeInvalidParam:
			return &geo.Error{
				Provider: ProviderName,
				Code:     "INVALID_PARAMETER",
				Message:  orsErr.Error.Message,
				Err:      geo.ErrInvalidCoordinates,
			}
		}
		return &geo.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  orsErr.Error.Message,
			Err:      geo.ErrInvalidCoordinates,
		}
	default:
		if statusCode >= 500 {
			return &geo.Error{
				Provider: ProviderName,
				Code:     fmt.Sprintf("SERVER_%d", statusCode),
				Message:  "geo provider is temporarily unavailable",
				Err:      geo.ErrProviderUnavailable,
			}
		}
		return &geo.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  orsErr.Error.Message,
			Err:      geo.ErrProviderUnavailable,
		}
	}
}

// toRouteEstimate converts an ORS route to a travel estimate.
func toRouteEstimate(r *orsRoute, mode geo.TravelMode) *geo.RouteEstimate {
	info := &geo.RouteInfo{
		Provider: ProviderName,
		Polyline: r.Geometry,
	}

	for i := range r.Segments {
		for j := range r.Segments[i].Steps {
			step := &r.Segments[i].Steps[j]
			info.Steps = append(info.Steps, geo.Step{
				Text:           step.Instruction,
				DistanceMeters: int(step.Distance),
				DurationSecs:   int(step.Duration),
				Mode:           string(mode),
			})
		}
	}
	info.Summary = summarize(r.Segments)

	return &geo.RouteEstimate{
		Minutes:    r.Summary.Duration / 60,
		DistanceKm: r.Summary.Distance / 1000,
		Mode:       mode,
		Info:       info,
	}
}

// summarize names the longest street on the route.
func summarize(segments []routeSegment) string {
	var (
		best     string
		bestDist float64
	)
	for i := range segments {
		for _, step := range segments[i].Steps {
			if step.Name != "" && step.Name != "-" && step.Distance > bestDist {
				best = step.Name
				bestDist = step.Distance
			}
		}
	}
	return best
}
