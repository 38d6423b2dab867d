package domain

import "time"

// Metrics holds the numeric readings of one packet keyed by metric name.
type Metrics map[string]float64

// Get returns the value of a metric and whether it was reported at all.
func (m Metrics) Get(name string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[name]
	return v, ok
}

type TelemetryPacket struct {
	VehicleID string  `json:"vehicle_id"`
	Timestamp int64   `json:"timestamp"` // epoch ms, vehicle clock
	Data      Metrics `json:"data"`
}

func (p *TelemetryPacket) Time() time.Time {
	return time.UnixMilli(p.Timestamp).UTC()
}

// Metric names reported by the vehicles.
const (
	MetricSpeed          = "speed"
	MetricBatteryVoltage = "battery_voltage"
	MetricBatteryCurrent = "battery_current"
	MetricSoC            = "soc"
	MetricMotorTemp      = "motor_temp"
	MetricBatteryTemp    = "battery_temp"
)

// TelemetryRecord is a stored packet as returned by the history queries.
type TelemetryRecord struct {
	ID         int64     `json:"id"`
	VehicleID  string    `json:"vehicle_id"`
	Timestamp  int64     `json:"timestamp"`
	Data       Metrics   `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
}

// TelemetryStats aggregates a vehicle's stored telemetry.
type TelemetryStats struct {
	VehicleID  string   `json:"vehicle_id"`
	Model      string   `json:"model"`
	AvgSpeed   *float64 `json:"avg_speed"`
	MinVoltage *float64 `json:"min_voltage"`
	MaxVoltage *float64 `json:"max_voltage"`
	CurrentSoC *float64 `json:"current_soc"`
}
