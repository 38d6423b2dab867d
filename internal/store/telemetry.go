package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"fleet-monitor/realtime/internal/domain"
)

const maxHistoryRows = 500

func (s *PostgresStore) StoreTelemetry(ctx context.Context, p *domain.TelemetryPacket) error {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return fmt.Errorf("marshal telemetry data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO telemetry (vehicle_id, timestamp, data)
		VALUES ($1, $2, $3)
	`, p.VehicleID, p.Time(), string(data))
	if err != nil {
		return fmt.Errorf("insert telemetry for %s: %w", p.VehicleID, err)
	}
	return nil
}

// TouchLastSeen stamps last_seen for a batch of vehicles in one statement.
func (s *PostgresStore) TouchLastSeen(ctx context.Context, vehicleIDs []string) error {
	if len(vehicleIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE vehicles
		SET last_seen = NOW()
		WHERE vehicle_id = ANY($1)
	`, vehicleIDs)
	if err != nil {
		return fmt.Errorf("touch last_seen for %d vehicles: %w", len(vehicleIDs), err)
	}
	return nil
}

func (s *PostgresStore) LatestTelemetry(ctx context.Context, vehicleID string) (*domain.TelemetryRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, vehicle_id, timestamp, data, received_at
		FROM telemetry
		WHERE vehicle_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`, vehicleID)

	rec, err := scanTelemetry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// TelemetryHistory returns at most 500 records between from and to (epoch
// ms, inclusive), oldest first.
func (s *PostgresStore) TelemetryHistory(ctx context.Context, vehicleID string, from, to int64) ([]domain.TelemetryRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, vehicle_id, timestamp, data, received_at
		FROM telemetry
		WHERE vehicle_id = $1
		AND timestamp >= $2
		AND timestamp <= $3
		ORDER BY timestamp ASC
		LIMIT $4
	`, vehicleID, time.UnixMilli(from).UTC(), time.UnixMilli(to).UTC(), maxHistoryRows)
	if err != nil {
		return nil, fmt.Errorf("query telemetry history: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TelemetryRecord, 0)
	for rows.Next() {
		rec, err := scanTelemetry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TelemetryStats(ctx context.Context) ([]domain.TelemetryStats, error) {
	rows, err := s.pool.Query(ctx, `
		WITH latest_telemetry AS (
			SELECT DISTINCT ON (vehicle_id) vehicle_id, data
			FROM telemetry
			ORDER BY vehicle_id, timestamp DESC
		)
		SELECT
			v.vehicle_id,
			v.model,
			AVG((t.data->>'speed')::FLOAT),
			MIN((t.data->>'battery_voltage')::FLOAT),
			MAX((t.data->>'battery_voltage')::FLOAT),
			(lt.data->>'soc')::FLOAT
		FROM vehicles v
		LEFT JOIN telemetry t ON v.vehicle_id = t.vehicle_id
		LEFT JOIN latest_telemetry lt ON v.vehicle_id = lt.vehicle_id
		GROUP BY v.vehicle_id, v.model, lt.data
		ORDER BY v.vehicle_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query telemetry stats: %w", err)
	}
	defer rows.Close()

	out := make([]domain.TelemetryStats, 0)
	for rows.Next() {
		var st domain.TelemetryStats
		if err := rows.Scan(&st.VehicleID, &st.Model, &st.AvgSpeed, &st.MinVoltage, &st.MaxVoltage, &st.CurrentSoC); err != nil {
			return nil, fmt.Errorf("scan telemetry stats: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanTelemetry(row pgx.Row) (*domain.TelemetryRecord, error) {
	var (
		rec domain.TelemetryRecord
		ts  time.Time
		raw []byte
	)
	if err := row.Scan(&rec.ID, &rec.VehicleID, &ts, &raw, &rec.ReceivedAt); err != nil {
		return nil, err
	}
	rec.Timestamp = ts.UnixMilli()
	if err := json.Unmarshal(raw, &rec.Data); err != nil {
		return nil, fmt.Errorf("decode telemetry data: %w", err)
	}
	return &rec, nil
}
