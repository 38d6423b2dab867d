package domain

import "time"

type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "WARNING"
	SeverityCritical AlertSeverity = "CRITICAL"
)

func (s AlertSeverity) Valid() bool {
	return s == SeverityWarning || s == SeverityCritical
}

// Alert is an active or resolved rule violation for one vehicle.
// At most one unresolved alert exists per (VehicleID, Type).
type Alert struct {
	ID             int64         `json:"alert_id"`
	VehicleID      string        `json:"vehicle_id"`
	Type           string        `json:"alert_type"`
	Severity       AlertSeverity `json:"severity"`
	Message        string        `json:"message"`
	CreatedAt      time.Time     `json:"created_at"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at"`
	ResolvedAt     *time.Time    `json:"resolved_at"`
}

func (a *Alert) Active() bool {
	return a.ResolvedAt == nil
}

type AlertCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// AlertStats backs the monitoring endpoint.
type AlertStats struct {
	Active       int64        `json:"active"`
	LastMinute   int64        `json:"lastMinute"`
	Last5Minutes int64        `json:"last5Minutes"`
	BySeverity   []AlertCount `json:"bySeverity"`
	ByType       []AlertCount `json:"byType"`
	Today        int64        `json:"today"`
}
