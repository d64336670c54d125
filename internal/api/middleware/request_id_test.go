package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daytrip/daytrip/internal/api/middleware"
)

func captureRequestID(header string) (ctxID, respID string) {
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = middleware.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	if header != "" {
		req.Header.Set("X-Request-Id", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return ctxID, rec.Header().Get("X-Request-Id")
}

func TestRequestID_GeneratesNewID(t *testing.T) {
	ctxID, respID := captureRequestID("")

	assert.True(t, strings.HasPrefix(ctxID, "req_"))
	assert.Equal(t, ctxID, respID)
}

func TestRequestID_PreservesValidID(t *testing.T) {
	ctxID, respID := captureRequestID("upstream-123.abc")

	assert.Equal(t, "upstream-123.abc", ctxID)
	assert.Equal(t, "upstream-123.abc", respID)
}

func TestRequestID_ReplacesMalformedID(t *testing.T) {
	for _, bad := range []string{"has space", "new\nline", strings.Repeat("x", 129)} {
		ctxID, _ := captureRequestID(bad)
		assert.NotEqual(t, bad, ctxID)
		assert.True(t, strings.HasPrefix(ctxID, "req_"))
	}
}

func TestRequestID_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, _ := captureRequestID("")
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestGetRequestID_ReturnsEmptyStringForMissingContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	assert.Empty(t, middleware.GetRequestID(req.Context()))
}

func TestRequestID_TimeOrdered(t *testing.T) {
	first, _ := captureRequestID("")
	second, _ := captureRequestID("")

	parsed, err := uuid.Parse(strings.TrimPrefix(first, "req_"))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, first, second)
}
