package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fleet-monitor/realtime/internal/domain"
)

const alertColumns = `alert_id, vehicle_id, alert_type, severity, message, created_at, acknowledged_at, resolved_at`

func (s *PostgresStore) FindUnresolved(ctx context.Context, vehicleID, alertType string) (*domain.Alert, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE vehicle_id = $1 AND alert_type = $2 AND resolved_at IS NULL
		LIMIT 1
	`, vehicleID, alertType)

	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find unresolved %s/%s: %w", vehicleID, alertType, err)
	}
	return a, nil
}

// CreateAlert relies on the partial unique index over unresolved alerts, so
// a concurrent duplicate is skipped rather than inserted.
func (s *PostgresStore) CreateAlert(
	ctx context.Context,
	vehicleID string,
	alertType string,
	severity domain.AlertSeverity,
	message string,
) (*domain.Alert, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO alerts
			(vehicle_id, alert_type, severity, message, created_at)
		VALUES
			($1, $2, $3, $4, NOW())
		ON CONFLICT (vehicle_id, alert_type) WHERE resolved_at IS NULL DO NOTHING
		RETURNING `+alertColumns,
		vehicleID, alertType, string(severity), message,
	)

	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("insert alert %s/%s: %w", vehicleID, alertType, err)
	}
	return a, nil
}

func (s *PostgresStore) ResolveIfPresent(ctx context.Context, vehicleID, alertType string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts
		SET resolved_at = NOW()
		WHERE vehicle_id = $1 AND alert_type = $2 AND resolved_at IS NULL
	`, vehicleID, alertType)
	if err != nil {
		return false, fmt.Errorf("resolve %s/%s: %w", vehicleID, alertType, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]domain.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE resolved_at IS NULL
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetAlert(ctx context.Context, id int64) (*domain.Alert, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE alert_id = $1`, id)
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert %d: %w", id, err)
	}
	return a, nil
}

func (s *PostgresStore) AcknowledgeAlert(ctx context.Context, id int64) (*domain.Alert, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE alerts
		SET acknowledged_at = NOW()
		WHERE alert_id = $1
		RETURNING `+alertColumns, id)
	a, err := scanAlert(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("acknowledge alert %d: %w", id, err)
	}
	return a, nil
}

// AlertStats runs the monitoring queries in a single round trip.
func (s *PostgresStore) AlertStats(ctx context.Context) (*domain.AlertStats, error) {
	batch := &pgx.Batch{}
	batch.Queue(`SELECT COUNT(*) FROM alerts WHERE resolved_at IS NULL`)
	batch.Queue(`SELECT COUNT(*) FROM alerts WHERE created_at >= NOW() - INTERVAL '1 minute'`)
	batch.Queue(`SELECT COUNT(*) FROM alerts WHERE created_at >= NOW() - INTERVAL '5 minutes'`)
	batch.Queue(`SELECT severity, COUNT(*) FROM alerts WHERE resolved_at IS NULL GROUP BY severity ORDER BY severity`)
	batch.Queue(`SELECT alert_type, COUNT(*) FROM alerts WHERE created_at >= NOW() - INTERVAL '5 minutes' GROUP BY alert_type ORDER BY alert_type`)
	batch.Queue(`SELECT COUNT(*) FROM alerts WHERE created_at >= CURRENT_DATE`)

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	stats := &domain.AlertStats{}
	if err := br.QueryRow().Scan(&stats.Active); err != nil {
		return nil, fmt.Errorf("count active alerts: %w", err)
	}
	if err := br.QueryRow().Scan(&stats.LastMinute); err != nil {
		return nil, fmt.Errorf("count last minute alerts: %w", err)
	}
	if err := br.QueryRow().Scan(&stats.Last5Minutes); err != nil {
		return nil, fmt.Errorf("count last 5 minutes alerts: %w", err)
	}

	var err error
	if stats.BySeverity, err = scanCounts(br); err != nil {
		return nil, fmt.Errorf("alerts by severity: %w", err)
	}
	if stats.ByType, err = scanCounts(br); err != nil {
		return nil, fmt.Errorf("alerts by type: %w", err)
	}
	if err := br.QueryRow().Scan(&stats.Today); err != nil {
		return nil, fmt.Errorf("count today alerts: %w", err)
	}
	return stats, nil
}

func scanCounts(br pgx.BatchResults) ([]domain.AlertCount, error) {
	rows, err := br.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.AlertCount, 0)
	for rows.Next() {
		var c domain.AlertCount
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanAlert(row pgx.Row) (*domain.Alert, error) {
	var (
		a        domain.Alert
		severity string
	)
	err := row.Scan(&a.ID, &a.VehicleID, &a.Type, &severity, &a.Message, &a.CreatedAt, &a.AcknowledgedAt, &a.ResolvedAt)
	if err != nil {
		return nil, err
	}
	a.Severity = domain.AlertSeverity(severity)
	return &a, nil
}
