package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daytrip/daytrip/internal/api/middleware"
	"github.com/daytrip/daytrip/internal/auth"
)

func serveFrom(handler http.Handler, remoteAddr, token string) int {
	req := httptest.NewRequest(http.MethodPost, "/v1/trips:plan", http.NoBody)
	req.RemoteAddr = remoteAddr
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 3, WindowLength: time.Minute}
	handler := middleware.RateLimitByIP(cfg)(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serveFrom(handler, "192.0.2.1:1234", ""))
	}
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(handler, "192.0.2.1:1234", ""))
	assert.Equal(t, http.StatusOK, serveFrom(handler, "192.0.2.2:1234", ""), "other IPs have their own budget")
}

func TestRateLimitByClient_SharesBudgetAcrossIPs(t *testing.T) {
	jwtService := createTestJWTService(t)
	alice, _, err := jwtService.IssueToken("cli_alice", []string{auth.ScopePlan}, time.Hour)
	require.NoError(t, err)
	bob, _, err := jwtService.IssueToken("cli_bob", []string{auth.ScopePlan}, time.Hour)
	require.NoError(t, err)

	cfg := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute}
	handler := middleware.Auth(jwtService)(middleware.RateLimitByClient(cfg)(okHandler()))

	assert.Equal(t, http.StatusOK, serveFrom(handler, "192.0.2.1:1234", alice))
	assert.Equal(t, http.StatusOK, serveFrom(handler, "192.0.2.2:1234", alice))
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(handler, "192.0.2.3:1234", alice))

	assert.Equal(t, http.StatusOK, serveFrom(handler, "192.0.2.1:1234", bob))
}

func TestRateLimitByClient_FallsBackToIP(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute}
	handler := middleware.RateLimitByClient(cfg)(okHandler())

	assert.Equal(t, http.StatusOK, serveFrom(handler, "192.0.2.1:1234", ""))
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(handler, "192.0.2.1:1234", ""))
	assert.Equal(t, http.StatusOK, serveFrom(handler, "192.0.2.9:1234", ""))
}

func TestRateLimitExceededResponse_Format(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 1, WindowLength: 30 * time.Second}
	handler := middleware.RequestID(middleware.RateLimitByIP(cfg)(okHandler()))

	serveFrom(handler, "203.0.113.1:1234", "")

	req := httptest.NewRequest(http.MethodPost, "/v1/trips:plan", http.NoBody)
	req.RemoteAddr = "203.0.113.1:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	body := rec.Body.String()
	assert.Contains(t, body, "too-many-requests")
	assert.Contains(t, body, "at most 1 requests per 30s")
	assert.Contains(t, body, "/v1/trips:plan")
	assert.Contains(t, body, rec.Header().Get("X-Request-Id"))
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Less(t, middleware.PlanRateLimit.RequestLimit, middleware.StandardRateLimit.RequestLimit)
	assert.Less(t, middleware.AdminRateLimit.RequestLimit, middleware.StandardRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.PlanRateLimit.WindowLength)
}
