package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-monitor/realtime/internal/domain"
)

func nominal() domain.Metrics {
	return domain.Metrics{
		"speed":           40,
		"battery_voltage": 60,
		"battery_current": 10,
		"soc":             50,
		"motor_temp":      60,
		"battery_temp":    30,
	}
}

func with(m domain.Metrics, key string, v float64) domain.Metrics {
	out := make(domain.Metrics, len(m))
	for k, val := range m {
		out[k] = val
	}
	out[key] = v
	return out
}

func byType(t *testing.T, s Set, typ string) Rule {
	t.Helper()
	for _, r := range s {
		if r.Type == typ {
			return r
		}
	}
	t.Fatalf("rule %s not found", typ)
	return Rule{}
}

func TestDefaults_Thresholds(t *testing.T) {
	set := Defaults()
	require.NoError(t, set.Validate())
	require.Len(t, set, 6)

	tests := []struct {
		name string
		rule string
		data domain.Metrics
		want bool
	}{
		{"nominal high temp", HighTemperature, nominal(), false},
		{"motor 81", HighTemperature, with(nominal(), "motor_temp", 81), true},
		{"motor exactly 80", HighTemperature, with(nominal(), "motor_temp", 80), false},
		{"battery temp 51", HighTemperature, with(nominal(), "battery_temp", 51), true},
		{"motor 101", CriticalTemperature, with(nominal(), "motor_temp", 101), true},
		{"battery temp 61", CriticalTemperature, with(nominal(), "battery_temp", 61), true},
		{"battery temp 60", CriticalTemperature, with(nominal(), "battery_temp", 60), false},
		{"soc 19", LowBattery, with(nominal(), "soc", 19), true},
		{"soc 20", LowBattery, with(nominal(), "soc", 20), false},
		{"soc 9", CriticalBattery, with(nominal(), "soc", 9), true},
		{"soc 10", CriticalBattery, with(nominal(), "soc", 10), false},
		{"voltage 47", AbnormalVoltage, with(nominal(), "battery_voltage", 47), true},
		{"voltage 85", AbnormalVoltage, with(nominal(), "battery_voltage", 85), true},
		{"voltage 84", AbnormalVoltage, with(nominal(), "battery_voltage", 84), false},
		{"current 151", HighCurrentDraw, with(nominal(), "battery_current", 151), true},
		{"current -151", HighCurrentDraw, with(nominal(), "battery_current", -151), true},
		{"current -150", HighCurrentDraw, with(nominal(), "battery_current", -150), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, byType(t, set, tt.rule).Matches(tt.data))
		})
	}
}

func TestRule_MissingMetricsNeverMatch(t *testing.T) {
	for _, r := range Defaults() {
		assert.False(t, r.Matches(domain.Metrics{}), r.Type)
		assert.False(t, r.Matches(nil), r.Type)
	}
}

func TestRule_Message(t *testing.T) {
	set := Defaults()

	hot := with(nominal(), "motor_temp", 105)
	assert.Equal(t, "Motor temperature high: 105°C", byType(t, set, HighTemperature).Message(hot))
	assert.Equal(t, "CRITICAL: Motor temperature high: 105°C", byType(t, set, CriticalTemperature).Message(hot))

	batteryHot := with(nominal(), "battery_temp", 62.5)
	assert.Equal(t, "CRITICAL: Battery temperature high: 62.5°C", byType(t, set, CriticalTemperature).Message(batteryHot))

	assert.Equal(t, "High current draw: -180A",
		byType(t, set, HighCurrentDraw).Message(with(nominal(), "battery_current", -180)))
	assert.Equal(t, "Low battery: 15%", byType(t, set, LowBattery).Message(with(nominal(), "soc", 15)))
}

func TestParse(t *testing.T) {
	raw := []byte(`
rules:
  - type: overspeed
    severity: WARNING
    conditions:
      - metric: speed
        op: ">"
        threshold: 100
        message: "Speeding: {value} km/h"
`)
	set, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.True(t, set[0].Matches(domain.Metrics{"speed": 110}))
	assert.Equal(t, "Speeding: 110 km/h", set[0].Message(domain.Metrics{"speed": 110}))
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":        `rules: []`,
		"bad severity": "rules:\n  - type: a\n    severity: INFO\n    conditions:\n      - {metric: soc, op: \"<\", threshold: 1}\n",
		"bad op":       "rules:\n  - type: a\n    severity: WARNING\n    conditions:\n      - {metric: soc, op: \"=\", threshold: 1}\n",
		"duplicate": "rules:\n  - type: a\n    severity: WARNING\n    conditions:\n      - {metric: soc, op: \"<\", threshold: 1}\n" +
			"  - type: a\n    severity: WARNING\n    conditions:\n      - {metric: soc, op: \"<\", threshold: 1}\n",
		"no conditions": "rules:\n  - type: a\n    severity: WARNING\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	set, err := LoadFile("")
	require.NoError(t, err)
	assert.Len(t, set, len(Defaults()))

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - type: cold\n    severity: CRITICAL\n    conditions:\n      - {metric: battery_temp, op: \"<\", threshold: 0, message: \"cold\"}\n"), 0o600))
	set, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "cold", set[0].Type)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
