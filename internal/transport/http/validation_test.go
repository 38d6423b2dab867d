package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var validationNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func decodeRequest(t *testing.T, body string) telemetryRequest {
	t.Helper()
	var req telemetryRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return req
}

func validBody(ts int64) string {
	b, _ := json.Marshal(map[string]any{
		"vehicle_id": "EV-1",
		"timestamp":  ts,
		"data": map[string]any{
			"speed":           42.5,
			"battery_voltage": 72,
			"battery_current": -30,
			"soc":             80,
			"motor_temp":      65,
			"battery_temp":    35,
			"odometer":        1200,
			"gear":            "D",
		},
	})
	return string(b)
}

func fieldsOf(errs []FieldError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidateTelemetryAccepts(t *testing.T) {
	ts := validationNow.Add(-2 * time.Second).UnixMilli()
	p, errs := validateTelemetry(decodeRequest(t, validBody(ts)), validationNow)
	require.Empty(t, errs)

	assert.Equal(t, "EV-1", p.VehicleID)
	assert.Equal(t, ts, p.Timestamp)
	assert.Equal(t, 42.5, p.Data["speed"])
	assert.Equal(t, float64(1200), p.Data["odometer"], "extra numeric metrics are kept")
	assert.NotContains(t, p.Data, "gear")
}

func TestValidateTelemetryMissingRootFields(t *testing.T) {
	_, errs := validateTelemetry(decodeRequest(t, `{}`), validationNow)
	assert.Equal(t, []string{"vehicle_id", "timestamp", "data"}, fieldsOf(errs))

	_, errs = validateTelemetry(decodeRequest(t, `{"vehicle_id":"EV-1","timestamp":0,"data":{}}`), validationNow)
	assert.Equal(t, []string{"timestamp"}, fieldsOf(errs))
}

func TestValidateTelemetryTimestamp(t *testing.T) {
	_, errs := validateTelemetry(decodeRequest(t, validBody(validationNow.Add(time.Second).UnixMilli())), validationNow)
	require.Len(t, errs, 1)
	assert.Equal(t, "timestamp cannot be in the future", errs[0].Message)

	_, errs = validateTelemetry(decodeRequest(t, validBody(validationNow.Add(-6*time.Minute).UnixMilli())), validationNow)
	require.Len(t, errs, 1)
	assert.Equal(t, "timestamp is too far from server time (max ±5 mins)", errs[0].Message)

	_, errs = validateTelemetry(decodeRequest(t, validBody(validationNow.Add(-5*time.Minute).UnixMilli())), validationNow)
	assert.Empty(t, errs, "exactly five minutes old is accepted")

	_, errs = validateTelemetry(decodeRequest(t, `{"vehicle_id":"EV-1","timestamp":"yesterday","data":{}}`), validationNow)
	assert.Contains(t, errs, FieldError{"timestamp", "timestamp must be a number"})
}

func TestValidateTelemetryMetrics(t *testing.T) {
	body := map[string]any{
		"vehicle_id": "EV-1",
		"timestamp":  validationNow.UnixMilli(),
		"data": map[string]any{
			"speed":           121,
			"battery_voltage": "72",
			"battery_current": -200,
			"soc":             nil,
			"motor_temp":      150,
		},
	}
	raw, _ := json.Marshal(body)

	_, errs := validateTelemetry(decodeRequest(t, string(raw)), validationNow)
	assert.Equal(t, []FieldError{
		{"data.speed", "Value 121km/h is outside allowed range (0 to 120km/h)"},
		{"data.battery_voltage", "battery_voltage must be a number"},
		{"data.soc", "soc is mandatory"},
		{"data.battery_temp", "battery_temp is mandatory"},
	}, errs)
}

func TestValidateTelemetryDataMustBeObject(t *testing.T) {
	_, errs := validateTelemetry(decodeRequest(t, `{"vehicle_id":"EV-1","timestamp":1,"data":[1,2]}`), validationNow)
	assert.Contains(t, errs, FieldError{"data", "data must be an object"})
}
