// Package rules holds the alert rule table evaluated against every packet.
package rules

import (
	"math"
	"strconv"
	"strings"

	"fleet-monitor/realtime/internal/domain"
)

type Operator string

const (
	OpGreater Operator = ">"
	OpLess    Operator = "<"
)

func (o Operator) Valid() bool {
	return o == OpGreater || o == OpLess
}

// Condition compares one metric against a threshold. Abs compares the
// magnitude of the reading instead of its signed value.
type Condition struct {
	Metric    string   `yaml:"metric"`
	Op        Operator `yaml:"op"`
	Threshold float64  `yaml:"threshold"`
	Abs       bool     `yaml:"abs"`
	// Message is rendered when this condition is the first one to match.
	// "{value}" is replaced with the raw reading.
	Message string `yaml:"message"`
}

// Matches reports whether the condition holds. A missing metric never matches.
func (c Condition) Matches(m domain.Metrics) bool {
	v, ok := m.Get(c.Metric)
	if !ok || math.IsNaN(v) {
		return false
	}
	if c.Abs {
		v = math.Abs(v)
	}
	switch c.Op {
	case OpGreater:
		return v > c.Threshold
	case OpLess:
		return v < c.Threshold
	default:
		return false
	}
}

type Rule struct {
	Type       string               `yaml:"type"`
	Severity   domain.AlertSeverity `yaml:"severity"`
	Conditions []Condition          `yaml:"conditions"`
}

// Matches reports whether any of the rule's conditions holds.
func (r Rule) Matches(m domain.Metrics) bool {
	for _, c := range r.Conditions {
		if c.Matches(m) {
			return true
		}
	}
	return false
}

// Message renders the message of the first matching condition, or of the
// first condition when none match.
func (r Rule) Message(m domain.Metrics) string {
	if len(r.Conditions) == 0 {
		return r.Type
	}
	c := r.Conditions[0]
	for _, cond := range r.Conditions {
		if cond.Matches(m) {
			c = cond
			break
		}
	}
	v, _ := m.Get(c.Metric)
	return strings.ReplaceAll(c.Message, "{value}", formatValue(v))
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Set is an ordered rule table. Order only affects log order.
type Set []Rule

const (
	HighTemperature     = "high_temperature"
	CriticalTemperature = "critical_temperature"
	LowBattery          = "low_battery"
	CriticalBattery     = "critical_battery"
	AbnormalVoltage     = "abnormal_voltage"
	HighCurrentDraw     = "high_current_draw"
)

// Defaults returns a fresh copy of the built-in rule table.
func Defaults() Set {
	return Set{
		{
			Type:     HighTemperature,
			Severity: domain.SeverityWarning,
			Conditions: []Condition{
				{Metric: domain.MetricMotorTemp, Op: OpGreater, Threshold: 80, Message: "Motor temperature high: {value}°C"},
				{Metric: domain.MetricBatteryTemp, Op: OpGreater, Threshold: 50, Message: "Battery temperature high: {value}°C"},
			},
		},
		{
			Type:     CriticalTemperature,
			Severity: domain.SeverityCritical,
			Conditions: []Condition{
				{Metric: domain.MetricMotorTemp, Op: OpGreater, Threshold: 100, Message: "CRITICAL: Motor temperature high: {value}°C"},
				{Metric: domain.MetricBatteryTemp, Op: OpGreater, Threshold: 60, Message: "CRITICAL: Battery temperature high: {value}°C"},
			},
		},
		{
			Type:     LowBattery,
			Severity: domain.SeverityWarning,
			Conditions: []Condition{
				{Metric: domain.MetricSoC, Op: OpLess, Threshold: 20, Message: "Low battery: {value}%"},
			},
		},
		{
			Type:     CriticalBattery,
			Severity: domain.SeverityCritical,
			Conditions: []Condition{
				{Metric: domain.MetricSoC, Op: OpLess, Threshold: 10, Message: "CRITICAL: Battery low: {value}%"},
			},
		},
		{
			Type:     AbnormalVoltage,
			Severity: domain.SeverityWarning,
			Conditions: []Condition{
				{Metric: domain.MetricBatteryVoltage, Op: OpLess, Threshold: 48, Message: "Abnormal voltage: {value}V"},
				{Metric: domain.MetricBatteryVoltage, Op: OpGreater, Threshold: 84, Message: "Abnormal voltage: {value}V"},
			},
		},
		{
			Type:     HighCurrentDraw,
			Severity: domain.SeverityWarning,
			Conditions: []Condition{
				{Metric: domain.MetricBatteryCurrent, Op: OpGreater, Threshold: 150, Abs: true, Message: "High current draw: {value}A"},
			},
		},
	}
}
