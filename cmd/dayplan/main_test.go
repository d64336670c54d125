package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daytrip/daytrip/internal/auth"
	"github.com/daytrip/daytrip/internal/bootstrap"
	"github.com/daytrip/daytrip/internal/planner"
)

const poolYAML = `
requirement:
  date: "2026-03-02"
  seed: 11
places:
  - name: 中正紀念堂
    rating: 4.6
    lat: 25.0350
    lon: 121.5200
    day_part: morning
    hours:
      1: [{start: "09:00", end: "18:00"}]
  - name: 鼎泰豐
    rating: 4.7
    lat: 25.0330
    lon: 121.5300
    day_part: lunch
    hours:
      1: [{start: "10:00", end: "21:00"}]
  - name: 寧夏夜市
    rating: 4.4
    lat: 25.0560
    lon: 121.5153
    day_part: dinner
    hours:
      1: [{start: "17:00", end: "23:59"}]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestLoadPool_YAMLMapping(t *testing.T) {
	pool, err := loadPool(writeFile(t, "pool.yaml", poolYAML))
	require.NoError(t, err)

	require.Len(t, pool.Places, 3)
	assert.Equal(t, "2026-03-02", pool.Requirement.Date)
	require.NotNil(t, pool.Requirement.Seed)
	assert.Equal(t, int64(11), *pool.Requirement.Seed)
	assert.Equal(t, "lunch", pool.Places[1].DayPart)
	assert.Equal(t, "10:00", pool.Places[1].Hours[1][0].Start)
}

func TestLoadPool_JSONList(t *testing.T) {
	path := writeFile(t, "pool.json", `[
		{"name": "國立台灣博物館", "lat": 25.0429, "lon": 121.5149, "dayPart": "afternoon",
		 "hours": {"1": [{"start": "09:30", "end": "17:00"}]}}
	]`)

	pool, err := loadPool(path)
	require.NoError(t, err)

	require.Len(t, pool.Places, 1)
	assert.Equal(t, "09:30", pool.Places[0].Hours[1][0].Start)
}

func TestLoadPool_Errors(t *testing.T) {
	_, err := loadPool(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = loadPool(writeFile(t, "empty.yaml", "  \n"))
	assert.ErrorContains(t, err, "empty")

	_, err = loadPool(writeFile(t, "none.yaml", "places: []\n"))
	assert.ErrorContains(t, err, "no places")
}

func TestPlanCommand(t *testing.T) {
	t.Setenv("GEO_PROVIDER", "")
	t.Setenv("REDIS_ADDR", "")
	path := writeFile(t, "pool.yaml", poolYAML)

	stdout, _, err := execute(t, "plan", "--places", path, "--start-time", "10:00", "--compact")
	require.NoError(t, err)

	var res planner.Result
	require.NoError(t, json.Unmarshal([]byte(stdout), &res))
	require.GreaterOrEqual(t, len(res.Itinerary), 2)
	first := res.Itinerary[0]
	assert.Equal(t, planner.KindStart, first.Kind)
	assert.Equal(t, "2026-03-02 10:00", first.StartTime.Format("2006-01-02 15:04"))
	assert.NotContains(t, strings.TrimSpace(stdout), "\n")
}

func TestPlanCommand_SeedIsReproducible(t *testing.T) {
	t.Setenv("GEO_PROVIDER", "")
	t.Setenv("REDIS_ADDR", "")
	path := writeFile(t, "pool.yaml", poolYAML)

	a, _, err := execute(t, "plan", "-p", path, "--seed", "3")
	require.NoError(t, err)
	b, _, err := execute(t, "plan", "-p", path, "--seed", "3")
	require.NoError(t, err)

	var ra, rb planner.Result
	require.NoError(t, json.Unmarshal([]byte(a), &ra))
	require.NoError(t, json.Unmarshal([]byte(b), &rb))
	assert.Equal(t, ra.Itinerary, rb.Itinerary)
}

func TestPlanCommand_Errors(t *testing.T) {
	t.Setenv("GEO_PROVIDER", "")
	t.Setenv("REDIS_ADDR", "")
	path := writeFile(t, "pool.yaml", poolYAML)

	_, _, err := execute(t, "plan")
	assert.ErrorContains(t, err, "places")

	t.Setenv("GOOGLE_MAPS_API_KEY", "")
	_, _, err = execute(t, "plan", "-p", path, "--provider", "googlemaps")
	assert.ErrorIs(t, err, bootstrap.ErrMissingAPIKey)

	_, _, err = execute(t, "plan", "-p", path, "--mode", "teleport")
	assert.ErrorContains(t, err, "travelMode")
}

func TestPlanCommand_DistanceThresholdHelp(t *testing.T) {
	flag := newPlanCmd(new(bool)).Flags().Lookup("distance-threshold")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Usage, "excluded")
}

func TestTokenCommand(t *testing.T) {
	key := "cli-test-signing-key-0123456789abcdef"
	t.Setenv("JWT_SIGNING_KEY", key)
	t.Setenv("JWT_ISSUER", "")
	t.Setenv("JWT_AUDIENCE", "")

	stdout, stderr, err := execute(t, "token", "--client", "cli_batch", "--scope", "trips:plan,catalog:write")
	require.NoError(t, err)
	assert.Contains(t, stderr, "expires")

	svc, err := auth.NewJWTService(bootstrap.JWTConfigFromEnv())
	require.NoError(t, err)
	claims, err := svc.ValidateToken(strings.TrimSpace(stdout))
	require.NoError(t, err)
	assert.Equal(t, "cli_batch", claims.ClientID())
	assert.Equal(t, []string{auth.ScopePlan, auth.ScopeCatalogWrite}, claims.Scopes)
}

func TestTokenCommand_Errors(t *testing.T) {
	t.Setenv("JWT_SIGNING_KEY", "")
	_, _, err := execute(t, "token", "--client", "x")
	assert.ErrorContains(t, err, "JWT_SIGNING_KEY")

	t.Setenv("JWT_SIGNING_KEY", "cli-test-signing-key-0123456789abcdef")
	_, _, err = execute(t, "token", "--client", "x", "--scope", "root")
	assert.ErrorIs(t, err, auth.ErrUnknownScope)

	_, _, err = execute(t, "token")
	assert.ErrorContains(t, err, "client")
}
