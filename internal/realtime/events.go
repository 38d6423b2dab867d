package realtime

import (
	"time"

	"fleet-monitor/realtime/internal/domain"
)

// Event names sent to clients.
const (
	EventVehicleStatus   = "vehicle_status"
	EventTelemetryUpdate = "telemetry_update"
	EventAlertCreated    = "alert_created"
	EventAlertResolved   = "alert_resolved"
)

type StatusPayload struct {
	Event     string                `json:"event"`
	VehicleID string                `json:"vehicle_id"`
	Status    domain.PresenceStatus `json:"status"`
}

type TelemetryPayload struct {
	Event     string         `json:"event"`
	VehicleID string         `json:"vehicle_id"`
	Data      domain.Metrics `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

type AlertPayload struct {
	Event     string               `json:"event"`
	VehicleID string               `json:"vehicle_id"`
	AlertID   int64                `json:"alert_id,omitempty"`
	AlertType string               `json:"alert_type"`
	Severity  domain.AlertSeverity `json:"severity,omitempty"`
	Message   string               `json:"message,omitempty"`
	CreatedAt *time.Time           `json:"created_at,omitempty"`
}
