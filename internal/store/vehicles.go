package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fleet-monitor/realtime/internal/domain"
)

const vehicleColumns = `vehicle_id, model, registration_number, last_seen, created_at`

func (s *PostgresStore) CreateVehicle(ctx context.Context, v domain.Vehicle) (*domain.Vehicle, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO vehicles (vehicle_id, model, registration_number)
		VALUES ($1, $2, $3)
		RETURNING `+vehicleColumns,
		v.VehicleID, v.Model, v.RegistrationNumber,
	)
	created, err := scanVehicle(row)
	if isUniqueViolation(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("insert vehicle %s: %w", v.VehicleID, err)
	}
	return created, nil
}

func (s *PostgresStore) ListVehicles(ctx context.Context) ([]domain.Vehicle, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+vehicleColumns+` FROM vehicles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Vehicle, 0)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE vehicle_id = $1`, vehicleID)
	v, err := scanVehicle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle %s: %w", vehicleID, err)
	}
	return v, nil
}

// DeleteVehicle removes the vehicle record only; its telemetry history stays.
func (s *PostgresStore) DeleteVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	row := s.pool.QueryRow(ctx, `DELETE FROM vehicles WHERE vehicle_id = $1 RETURNING `+vehicleColumns, vehicleID)
	v, err := scanVehicle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete vehicle %s: %w", vehicleID, err)
	}
	return v, nil
}

func scanVehicle(row pgx.Row) (*domain.Vehicle, error) {
	var v domain.Vehicle
	if err := row.Scan(&v.VehicleID, &v.Model, &v.RegistrationNumber, &v.LastSeen, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}
