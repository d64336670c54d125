package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/daytrip/daytrip/internal/api/models"
)

// RateLimitConfig is a fixed budget of requests per sliding window.
type RateLimitConfig struct {
	RequestLimit int
	WindowLength time.Duration
}

var (
	// PlanRateLimit guards trip planning, which fans out to the geo
	// providers on every call.
	PlanRateLimit = RateLimitConfig{RequestLimit: 20, WindowLength: time.Minute}

	// AdminRateLimit guards catalog writes and flag changes.
	AdminRateLimit = RateLimitConfig{RequestLimit: 30, WindowLength: time.Minute}

	// StandardRateLimit guards catalog reads.
	StandardRateLimit = RateLimitConfig{RequestLimit: 100, WindowLength: time.Minute}
)

// RateLimitByIP limits per client address as resolved by chi's RealIP.
func RateLimitByIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return cfg.limiter(httprate.KeyByRealIP)
}

// RateLimitByClient limits per authenticated API client, so one client
// calling from many addresses shares a single budget. Anonymous requests
// are keyed by address.
func RateLimitByClient(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return cfg.limiter(func(r *http.Request) (string, error) {
		if clientID := GetClientID(r.Context()); clientID != "" {
			return "client:" + clientID, nil
		}
		return httprate.KeyByRealIP(r)
	})
}

func (cfg RateLimitConfig) limiter(key httprate.KeyFunc) func(http.Handler) http.Handler {
	// httprate does not expose when the window resets, so clients are told
	// to wait a full window.
	retryAfter := strconv.Itoa(int(cfg.WindowLength / time.Second))

	return httprate.Limit(cfg.RequestLimit, cfg.WindowLength,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			detail := "at most " + strconv.Itoa(cfg.RequestLimit) + " requests per " + cfg.WindowLength.String()
			models.ProblemTooManyRequests.New(GetRequestID(r.Context()), detail).Write(w, r)
		}),
	)
}
