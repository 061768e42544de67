package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONParser_ParsesValidPayload(t *testing.T) {
	payload := []byte(`{"metric":"temperature","value":85.5,"ts":"2026-01-01T00:00:00Z","attrs":{"unit":"C"}}`)

	metric, value, ts, attrs, err := JSONParser{}.Parse(payload)

	require.NoError(t, err)
	assert.Equal(t, "temperature", metric)
	assert.Equal(t, 85.5, value)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), ts)
	assert.Equal(t, "C", attrs["unit"])
}

func TestJSONParser_MissingMetricIsError(t *testing.T) {
	payload := []byte(`{"value":85.5,"ts":"2026-01-01T00:00:00Z"}`)

	_, _, _, _, err := JSONParser{}.Parse(payload)

	assert.Error(t, err)
}

func TestJSONParser_MalformedJSONIsError(t *testing.T) {
	_, _, _, _, err := JSONParser{}.Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestJSONParser_MissingTimestampDefaultsToNow(t *testing.T) {
	payload := []byte(`{"metric":"temperature","value":85.5}`)

	_, _, ts, _, err := JSONParser{}.Parse(payload)

	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, 5*time.Second)
}

func TestValidator_NoAllowListAllowsAnything(t *testing.T) {
	v := Validator{}
	assert.NoError(t, v.Validate("anything", -999))
}

func TestValidator_RejectsMetricNotInAllowList(t *testing.T) {
	v := Validator{AllowedMetrics: map[string]MetricBounds{"temperature": {}}}
	assert.Error(t, v.Validate("pressure", 10))
}

func TestValidator_RejectsValueOutsideBounds(t *testing.T) {
	min, max := 0.0, 100.0
	v := Validator{AllowedMetrics: map[string]MetricBounds{"temperature": {Min: &min, Max: &max}}}

	assert.Error(t, v.Validate("temperature", -1))
	assert.Error(t, v.Validate("temperature", 101))
	assert.NoError(t, v.Validate("temperature", 50))
}
