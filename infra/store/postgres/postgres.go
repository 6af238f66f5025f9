package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lubricentro/usagepredict/core/model"
	"github.com/lubricentro/usagepredict/core/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS vehicles (
    id TEXT PRIMARY KEY,
    plate TEXT NOT NULL DEFAULT '',
    client_id TEXT NOT NULL DEFAULT '',
    brand TEXT NOT NULL DEFAULT '',
    model TEXT NOT NULL DEFAULT '',
    avg_daily_km DOUBLE PRECISION,
    last_service_date TIMESTAMPTZ,
    last_service_mileage INTEGER,
    predicted_next_service TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS work_orders (
    id TEXT PRIMARY KEY,
    vehicle_id TEXT NOT NULL REFERENCES vehicles(id),
    status TEXT NOT NULL,
    completed_at TIMESTAMPTZ,
    odometer INTEGER
);
CREATE INDEX IF NOT EXISTS idx_work_orders_vehicle ON work_orders(vehicle_id, completed_at DESC);
`

const vehicleColumns = `id, plate, client_id, brand, model,
    avg_daily_km, last_service_date, last_service_mileage, predicted_next_service`

// Store persists vehicles and work orders in PostgreSQL through a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open connects to the database URL and ensures the schema.
func Open(ctx context.Context, url string, maxConns int) (*Store, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is required for PostgreSQL")
	}
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping verifies the connection is still alive.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// UpsertVehicle inserts the vehicle or updates its identity fields.
func (s *Store) UpsertVehicle(ctx context.Context, v model.Vehicle) error {
	if err := v.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO vehicles (id, plate, client_id, brand, model)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET
            plate = EXCLUDED.plate,
            client_id = EXCLUDED.client_id,
            brand = EXCLUDED.brand,
            model = EXCLUDED.model`,
		v.ID, v.Plate, v.ClientID, v.Brand, v.Model)
	return err
}

// Vehicle returns the vehicle or store.ErrNotFound.
func (s *Store) Vehicle(ctx context.Context, id string) (model.Vehicle, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
	v, err := scanVehicle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, store.ErrNotFound)
	}
	return v, err
}

// AddWorkOrder inserts or replaces a work order of an existing vehicle.
func (s *Store) AddWorkOrder(ctx context.Context, wo model.WorkOrder) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM vehicles WHERE id = $1)`, wo.VehicleID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("vehicle %s: %w", wo.VehicleID, store.ErrNotFound)
	}
	var completed *time.Time
	if !wo.CompletedAt.IsZero() {
		t := wo.CompletedAt.UTC()
		completed = &t
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO work_orders (id, vehicle_id, status, completed_at, odometer)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            completed_at = EXCLUDED.completed_at,
            odometer = EXCLUDED.odometer`,
		wo.ID, wo.VehicleID, wo.Status.String(), completed, wo.Odometer)
	return err
}

// History returns completed records with an odometer reading, most recent first.
func (s *Store) History(ctx context.Context, vehicleID string, limit int) ([]model.ServiceRecord, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `SELECT completed_at, odometer FROM work_orders
        WHERE vehicle_id = $1 AND status = ANY($2)
          AND odometer IS NOT NULL AND completed_at IS NOT NULL
        ORDER BY completed_at DESC LIMIT $3`,
		vehicleID, completedStatuses(), lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.ServiceRecord
	for rows.Next() {
		var r model.ServiceRecord
		if err := rows.Scan(&r.Date, &r.Odometer); err != nil {
			return nil, err
		}
		r.Date = r.Date.UTC()
		res = append(res, r)
	}
	return res, rows.Err()
}

// WriteUsage overwrites the usage fields of the vehicle.
func (s *Store) WriteUsage(ctx context.Context, vehicleID string, u model.UsageFields) error {
	tag, err := s.pool.Exec(ctx, `UPDATE vehicles SET
            avg_daily_km = $1, last_service_date = $2, last_service_mileage = $3, predicted_next_service = $4
        WHERE id = $5`,
		u.AverageDailyDistance, u.LastServiceDate.UTC(), u.LastServiceMileage, u.PredictedNextServiceDate.UTC(), vehicleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vehicle %s: %w", vehicleID, store.ErrNotFound)
	}
	return nil
}

// VehicleIDs returns all vehicle identifiers in ascending order.
func (s *Store) VehicleIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// Upcoming returns vehicles predicted to be due before the given time.
func (s *Store) Upcoming(ctx context.Context, before time.Time) ([]model.Vehicle, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+vehicleColumns+` FROM vehicles
        WHERE avg_daily_km > 0 AND predicted_next_service IS NOT NULL AND predicted_next_service <= $1
        ORDER BY predicted_next_service, id`, before.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func completedStatuses() []string {
	var out []string
	for _, st := range model.CompletedStatuses() {
		out = append(out, st.String())
	}
	return out
}

func scanVehicle(row pgx.Row) (model.Vehicle, error) {
	var v model.Vehicle
	var avg *float64
	var last, next *time.Time
	var mileage *int
	if err := row.Scan(&v.ID, &v.Plate, &v.ClientID, &v.Brand, &v.Model, &avg, &last, &mileage, &next); err != nil {
		return model.Vehicle{}, err
	}
	if avg != nil {
		v.Usage.AverageDailyDistance = *avg
	}
	if last != nil {
		v.Usage.LastServiceDate = last.UTC()
	}
	if mileage != nil {
		v.Usage.LastServiceMileage = *mileage
	}
	if next != nil {
		v.Usage.PredictedNextServiceDate = next.UTC()
	}
	return v, nil
}
