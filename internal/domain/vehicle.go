package domain

import "time"

type Vehicle struct {
	VehicleID          string     `json:"vehicle_id"`
	Model              string     `json:"model"`
	RegistrationNumber string     `json:"registration_number"`
	LastSeen           *time.Time `json:"last_seen"`
	CreatedAt          time.Time  `json:"created_at"`
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// VehicleStatus is the in-memory presence of a vehicle. It is derived from
// packet arrival and never persisted.
type VehicleStatus struct {
	VehicleID string         `json:"vehicle_id"`
	LastSeen  time.Time      `json:"last_seen"`
	Status    PresenceStatus `json:"status"`
}
