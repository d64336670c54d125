package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daytrip/daytrip/internal/api/models"
)

func TestHealthStatus_Worse(t *testing.T) {
	ok, degraded, fail := models.HealthStatusOK, models.HealthStatusDegraded, models.HealthStatusFail

	assert.Equal(t, ok, ok.Worse(ok))
	assert.Equal(t, degraded, ok.Worse(degraded))
	assert.Equal(t, degraded, degraded.Worse(ok))
	assert.Equal(t, fail, degraded.Worse(fail))
	assert.Equal(t, fail, fail.Worse(degraded))
}

func TestTimestamp_JSON(t *testing.T) {
	taipei := time.FixedZone("CST", 8*60*60)
	ts := models.Timestamp(time.Date(2024, 5, 1, 9, 30, 15, 500_000_000, taipei))

	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.JSONEq(t, `"2024-05-01T01:30:15Z"`, string(data))

	var decoded models.Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-05-01T09:30:15.5+08:00"`), &decoded))
	assert.True(t, decoded.Time().Equal(ts.Time()))

	data, err = json.Marshal(models.Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	require.NoError(t, json.Unmarshal([]byte("null"), &decoded))
	assert.True(t, decoded.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`42`), &decoded))
}
