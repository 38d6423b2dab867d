package store

import (
	"context"
	"fmt"
	"log/slog"
)

type migration struct {
	label string
	sql   string
	// optional steps log a warning instead of failing, e.g. when the
	// timescaledb extension is not installed on the server.
	optional bool
}

var migrations = []migration{
	{
		label:    "timescaledb extension",
		sql:      `CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE`,
		optional: true,
	},
	{
		label: "vehicles table",
		sql: `
			CREATE TABLE IF NOT EXISTS vehicles (
				vehicle_id           TEXT        PRIMARY KEY,
				model                TEXT        NOT NULL,
				registration_number  TEXT        NOT NULL,
				last_seen            TIMESTAMPTZ,
				created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
	},
	{
		// No foreign key to vehicles: history outlives a decommissioned vehicle.
		label: "telemetry table",
		sql: `
			CREATE TABLE IF NOT EXISTS telemetry (
				id           BIGSERIAL,
				vehicle_id   TEXT        NOT NULL,
				timestamp    TIMESTAMPTZ NOT NULL,
				received_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				data         JSONB       NOT NULL
			)`,
	},
	{
		label:    "telemetry hypertable",
		sql:      `SELECT create_hypertable('telemetry', 'timestamp', if_not_exists => TRUE)`,
		optional: true,
	},
	{
		label: "alerts table",
		sql: `
			CREATE TABLE IF NOT EXISTS alerts (
				alert_id         BIGSERIAL   PRIMARY KEY,
				vehicle_id       TEXT        NOT NULL,
				alert_type       TEXT        NOT NULL,
				severity         TEXT        NOT NULL,
				message          TEXT        NOT NULL,
				created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				acknowledged_at  TIMESTAMPTZ,
				resolved_at      TIMESTAMPTZ,

				CONSTRAINT chk_severity CHECK (severity IN ('WARNING', 'CRITICAL'))
			)`,
	},
	{
		label: "uq_alerts_active",
		sql: `CREATE UNIQUE INDEX IF NOT EXISTS uq_alerts_active
			ON alerts (vehicle_id, alert_type) WHERE resolved_at IS NULL`,
	},
	{
		label: "idx_telemetry_vehicle_time",
		sql: `CREATE INDEX IF NOT EXISTS idx_telemetry_vehicle_time
			ON telemetry (vehicle_id, timestamp DESC)`,
	},
	{
		label: "idx_alerts_created",
		sql: `CREATE INDEX IF NOT EXISTS idx_alerts_created
			ON alerts (created_at DESC)`,
	},
	{
		label: "idx_alerts_vehicle",
		sql: `CREATE INDEX IF NOT EXISTS idx_alerts_vehicle
			ON alerts (vehicle_id, created_at DESC)`,
	},
}

// Migrate creates the schema. It is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context, logger *slog.Logger) error {
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m.sql); err != nil {
			if m.optional {
				logger.Warn("optional migration skipped", "step", m.label, "err", err)
				continue
			}
			return fmt.Errorf("migration %q: %w", m.label, err)
		}
		logger.Info("migration applied", "step", m.label)
	}
	return nil
}
