package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daytrip/daytrip/internal/api"
	"github.com/daytrip/daytrip/internal/api/handler"
	"github.com/daytrip/daytrip/internal/api/models"
	"github.com/daytrip/daytrip/internal/auth"
	"github.com/daytrip/daytrip/internal/catalog"
	"github.com/daytrip/daytrip/internal/featureflags"
	"github.com/daytrip/daytrip/internal/geo"
	"github.com/daytrip/daytrip/internal/place"
	"github.com/daytrip/daytrip/internal/planner"
	"github.com/daytrip/daytrip/internal/provider/resilience"
)

const testSigningKey = "router-test-signing-key-0123456789abcdef"

type testEnv struct {
	router  http.Handler
	jwt     *auth.JWTService
	catalog *catalog.Service
	flags   *featureflags.Service
}

func newTestEnv(t *testing.T, checks ...handler.DependencyCheck) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		SigningKey: testSigningKey,
		Issuer:     "https://api.daytrip.tw",
		Audience:   "daytrip-api",
	})
	require.NoError(t, err)

	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: featureflags.NewInMemoryRepository(),
		Logger:     logger,
	})
	places := catalog.NewService(catalog.NewInMemoryRepository(), logger)

	geoService := geo.NewService(geo.ServiceConfig{
		Provider: geo.NewStraightLineProvider(nil),
		Logger:   logger,
	})
	system, err := planner.NewSystem(planner.SystemConfig{
		Geo:     geoService,
		Options: flags,
		Logger:  logger,
	})
	require.NoError(t, err)

	router := api.NewRouter(api.RouterConfig{
		Version:            "test",
		BuildTime:          "2026-01-01T00:00:00Z",
		Logger:             logger,
		JWTService:         jwtService,
		Planner:            system,
		PlanTimeout:        5 * time.Second,
		CatalogService:     places,
		FeatureFlagService: flags,
		ReadinessChecks:    checks,
		Providers:          resilience.NewRegistry(),
		RouteCache:         geoService,
	})

	return &testEnv{router: router, jwt: jwtService, catalog: places, flags: flags}
}

func (e *testEnv) token(t *testing.T, scopes ...string) string {
	t.Helper()
	token, _, err := e.jwt.IssueToken("cli_test", scopes, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func everyDay(start, end string) map[int][]place.TimeRange {
	hours := make(map[int][]place.TimeRange, 7)
	for d := 1; d <= 7; d++ {
		hours[d] = []place.TimeRange{{Start: start, End: end}}
	}
	return hours
}

func rating(r float64) *float64 { return &r }

func taipeiInputs() []models.PlaceInput {
	return []models.PlaceInput{
		{Name: "中正紀念堂", Rating: rating(4.6), Lat: 25.0350, Lon: 121.5200, Category: "景點", DayPart: "morning", Hours: everyDay("09:00", "18:00")},
		{Name: "鼎泰豐", Rating: rating(4.7), Lat: 25.0330, Lon: 121.5300, Category: "餐廳", DayPart: "lunch", Hours: everyDay("10:00", "21:00")},
		{Name: "國立台灣博物館", Rating: rating(4.5), Lat: 25.0429, Lon: 121.5149, Category: "museum", DayPart: "afternoon", Hours: everyDay("09:30", "17:00")},
		{Name: "寧夏夜市", Rating: rating(4.4), Lat: 25.0560, Lon: 121.5153, Category: "小吃", DayPart: "dinner", Hours: everyDay("17:00", "23:59")},
		{Name: "饒河夜市", Rating: rating(4.3), Lat: 25.0509, Lon: 121.5775, Category: "小吃", DayPart: "night", Hours: everyDay("17:00", "23:59")},
	}
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/ops/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Version)
	assert.GreaterOrEqual(t, health.UptimeSeconds, int64(0))
}

func TestRouter_ReadinessCheck(t *testing.T) {
	env := newTestEnv(t, handler.DependencyCheck{
		Name:  "postgres",
		Check: func(context.Context) error { return nil },
	})
	rec := env.do(t, http.MethodGet, "/v1/ops/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestEnv(t, handler.DependencyCheck{
		Name:  "postgres",
		Check: func(context.Context) error { return errors.New("connection refused") },
	})
	rec = down.do(t, http.MethodGet, "/v1/ops/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var health models.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusFail, health.Status)
	assert.Equal(t, models.HealthStatusFail, health.Checks["postgres"])
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/ops/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	require.NoError(t, env.flags.SetFlag(context.Background(), &featureflags.Flag{
		Key:   featureflags.FlagPlannerRetryNextCandidate,
		Value: true,
	}))

	rec = env.do(t, http.MethodGet, "/v1/ops/status", env.token(t), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.NotNil(t, status.RouteCache)
	assert.Equal(t, "straightline", status.RouteCache.Provider)
	assert.Equal(t, []string{featureflags.FlagPlannerRetryNextCandidate}, status.ActiveFlags)
}

func TestRouter_PlanTrip_InlinePlaces(t *testing.T) {
	env := newTestEnv(t)
	seed := int64(7)

	rec := env.do(t, http.MethodPost, "/v1/trips:plan", env.token(t, auth.ScopePlan), models.PlanTripRequest{
		Places:      taipeiInputs(),
		Requirement: models.TripRequirement{Date: "2026-03-02"},
		Seed:        &seed,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res models.PlanTripResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.PlanID)
	assert.Equal(t, 5, res.Candidates)
	require.GreaterOrEqual(t, len(res.Itinerary), 2)
	assert.Equal(t, planner.DefaultLandmark, res.Itinerary[0].Name)
	assert.Equal(t, planner.KindStart, res.Itinerary[0].Kind)
	assert.Equal(t, planner.KindEnd, res.Itinerary[len(res.Itinerary)-1].Kind)
	assert.Equal(t, res.Summary.Stops, len(res.Itinerary)-2)
}

func TestRouter_PlanTrip_FromCatalog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i, in := range taipeiInputs() {
		_, err := env.catalog.Put(ctx, "tpe-"+string(rune('a'+i)), "taipei", in.Record())
		require.NoError(t, err)
	}
	token := env.token(t, auth.ScopePlan)

	rec := env.do(t, http.MethodPost, "/v1/trips:plan", token, models.PlanTripRequest{
		Region:      "taipei",
		Requirement: models.TripRequirement{Date: "2026-03-02"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res models.PlanTripResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 5, res.Candidates)

	rec = env.do(t, http.MethodPost, "/v1/trips:plan", token, models.PlanTripRequest{
		PlaceIDs: []string{"tpe-a", "tpe-b"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 2, res.Candidates)

	rec = env.do(t, http.MethodPost, "/v1/trips:plan", token, models.PlanTripRequest{
		PlaceIDs: []string{"tpe-a", "missing"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/trips:plan", token, models.PlanTripRequest{Region: "kaohsiung"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_PlanTrip_Validation(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, auth.ScopePlan)

	badLat := taipeiInputs()
	badLat[1].Lat = 120

	tests := []struct {
		name  string
		body  interface{}
		field string
	}{
		{"no source", models.PlanTripRequest{}, "places"},
		{"two sources", models.PlanTripRequest{Places: taipeiInputs(), Region: "taipei"}, "places"},
		{"struct validation", models.PlanTripRequest{Places: badLat}, "places[1].lat"},
		{"planner validation", models.PlanTripRequest{
			Places:      taipeiInputs(),
			Requirement: models.TripRequirement{StartTime: "18:00", EndTime: "10:00"},
		}, "endTime"},
		{"unknown mode", models.PlanTripRequest{
			Places:      taipeiInputs(),
			Requirement: models.TripRequirement{TravelMode: "teleport"},
		}, "travelMode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/trips:plan", token, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			p := decodeProblem(t, rec)
			assert.Equal(t, models.ProblemTypeValidation, p.Type)
			require.NotEmpty(t, p.Errors)
			assert.Equal(t, tt.field, p.Errors[0].Field)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/trips:plan", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_PlanTrip_RequiresScope(t *testing.T) {
	env := newTestEnv(t)
	body := models.PlanTripRequest{Places: taipeiInputs()}

	rec := env.do(t, http.MethodPost, "/v1/trips:plan", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/trips:plan", env.token(t, auth.ScopeCatalogWrite), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_PlacesCRUD(t *testing.T) {
	env := newTestEnv(t)
	reader := env.token(t)
	writer := env.token(t, auth.ScopeCatalogWrite)
	in := taipeiInputs()[1]

	rec := env.do(t, http.MethodPut, "/v1/places/din-tai-fung", reader, models.PlaceUpsertRequest{Region: "taipei", Place: in})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/places/din-tai-fung", writer, models.PlaceUpsertRequest{Region: "taipei", Place: in})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stored models.CatalogPlace
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, "din-tai-fung", stored.ID)
	assert.Equal(t, "din-tai-fung", stored.Place.ID)
	assert.Equal(t, "鼎泰豐", stored.Place.Name)

	rec = env.do(t, http.MethodGet, "/v1/places/din-tai-fung", reader, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/places?region=taipei&dayPart=lunch", reader, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.PagedPlaces
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Nil(t, page.Meta.NextCursor)

	rec = env.do(t, http.MethodGet, "/v1/places?limit=0", reader, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/places/bad%20id", writer, models.PlaceUpsertRequest{Region: "taipei", Place: in})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/v1/places/din-tai-fung", writer, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/places/din-tai-fung", reader, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_FeatureFlags(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token(t, auth.ScopeAdmin)

	rec := env.do(t, http.MethodGet, "/v1/admin/feature-flags", env.token(t, auth.ScopePlan), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/admin/feature-flags", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list models.FeatureFlagList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Flags, len(featureflags.Definitions()))

	rec = env.do(t, http.MethodPut, "/v1/admin/feature-flags", admin, models.FeatureFlagUpsertRequest{
		Flags: map[string]interface{}{featureflags.FlagPlannerTopCandidates: 3},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 3, env.flags.PlannerOptions(context.Background()).TopK)

	rec = env.do(t, http.MethodPut, "/v1/admin/feature-flags", admin, models.FeatureFlagUpsertRequest{
		Flags: map[string]interface{}{featureflags.FlagPlannerTopCandidates: 50},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/v1/admin/feature-flags", admin, models.FeatureFlagUpsertRequest{
		Flags: map[string]interface{}{"no_such_flag": true},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/v1/admin/feature-flags/"+featureflags.FlagPlannerTopCandidates, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, planner.DefaultTopK, env.flags.PlannerOptions(context.Background()).TopK)

	rec = env.do(t, http.MethodDelete, "/v1/admin/feature-flags/no_such_flag", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/v1/admin/feature-flags/invalidate", admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/nonexistent", "", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_SecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/v1/ops/health", "", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRouter_AuthDisabled(t *testing.T) {
	logger := zerolog.Nop()
	geoService := geo.NewService(geo.ServiceConfig{Provider: geo.NewStraightLineProvider(nil), Logger: logger})
	system, err := planner.NewSystem(planner.SystemConfig{Geo: geoService, Logger: logger})
	require.NoError(t, err)

	router := api.NewRouter(api.RouterConfig{Logger: logger, Planner: system})

	body, err := json.Marshal(models.PlanTripRequest{Places: taipeiInputs()})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/trips:plan", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Catalog routes are not mounted without a catalog.
	req = httptest.NewRequest(http.MethodGet, "/v1/places", http.NoBody)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
