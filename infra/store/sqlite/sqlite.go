package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

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
    avg_daily_km REAL,
    last_service_date INTEGER,
    last_service_mileage INTEGER,
    predicted_next_service INTEGER
);
CREATE TABLE IF NOT EXISTS work_orders (
    id TEXT PRIMARY KEY,
    vehicle_id TEXT NOT NULL REFERENCES vehicles(id),
    status TEXT NOT NULL,
    completed_at INTEGER,
    odometer INTEGER
);
CREATE INDEX IF NOT EXISTS idx_work_orders_vehicle ON work_orders(vehicle_id, completed_at);
`

// Store persists vehicles and work orders in a SQLite database.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping verifies the database file is still reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// UpsertVehicle inserts the vehicle or updates its identity fields.
func (s *Store) UpsertVehicle(ctx context.Context, v model.Vehicle) error {
	if err := v.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO vehicles (id, plate, client_id, brand, model)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            plate = excluded.plate,
            client_id = excluded.client_id,
            brand = excluded.brand,
            model = excluded.model`,
		v.ID, v.Plate, v.ClientID, v.Brand, v.Model)
	return err
}

// Vehicle returns the vehicle or store.ErrNotFound.
func (s *Store) Vehicle(ctx context.Context, id string) (model.Vehicle, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, plate, client_id, brand, model,
        avg_daily_km, last_service_date, last_service_mileage, predicted_next_service
        FROM vehicles WHERE id = ?`, id)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, store.ErrNotFound)
	}
	return v, err
}

// AddWorkOrder inserts or replaces a work order of an existing vehicle.
func (s *Store) AddWorkOrder(ctx context.Context, wo model.WorkOrder) error {
	if err := s.exists(ctx, wo.VehicleID); err != nil {
		return err
	}
	var completed sql.NullInt64
	if !wo.CompletedAt.IsZero() {
		completed = sql.NullInt64{Int64: wo.CompletedAt.Unix(), Valid: true}
	}
	var odo sql.NullInt64
	if wo.Odometer != nil {
		odo = sql.NullInt64{Int64: int64(*wo.Odometer), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO work_orders (id, vehicle_id, status, completed_at, odometer)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            status = excluded.status,
            completed_at = excluded.completed_at,
            odometer = excluded.odometer`,
		wo.ID, wo.VehicleID, wo.Status.String(), completed, odo)
	return err
}

// History returns completed records with an odometer reading, most recent first.
func (s *Store) History(ctx context.Context, vehicleID string, limit int) ([]model.ServiceRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT completed_at, odometer FROM work_orders
        WHERE vehicle_id = ? AND status IN (?, ?)
          AND odometer IS NOT NULL AND completed_at IS NOT NULL
        ORDER BY completed_at DESC LIMIT ?`,
		vehicleID, model.StatusDone.String(), model.StatusDelivered.String(), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.ServiceRecord
	for rows.Next() {
		var ts, odo int64
		if err := rows.Scan(&ts, &odo); err != nil {
			return nil, err
		}
		res = append(res, model.ServiceRecord{Date: time.Unix(ts, 0).UTC(), Odometer: int(odo)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// WriteUsage overwrites the usage fields of the vehicle.
func (s *Store) WriteUsage(ctx context.Context, vehicleID string, u model.UsageFields) error {
	res, err := s.db.ExecContext(ctx, `UPDATE vehicles SET
            avg_daily_km = ?, last_service_date = ?, last_service_mileage = ?, predicted_next_service = ?
        WHERE id = ?`,
		u.AverageDailyDistance, u.LastServiceDate.Unix(), u.LastServiceMileage, u.PredictedNextServiceDate.Unix(), vehicleID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("vehicle %s: %w", vehicleID, store.ErrNotFound)
	}
	return nil
}

// VehicleIDs returns all vehicle identifiers in ascending order.
func (s *Store) VehicleIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM vehicles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Upcoming returns vehicles predicted to be due before the given time.
func (s *Store) Upcoming(ctx context.Context, before time.Time) ([]model.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, plate, client_id, brand, model,
        avg_daily_km, last_service_date, last_service_mileage, predicted_next_service
        FROM vehicles
        WHERE avg_daily_km > 0 AND predicted_next_service IS NOT NULL AND predicted_next_service <= ?
        ORDER BY predicted_next_service, id`, before.Unix())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) exists(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM vehicles WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("vehicle %s: %w", id, store.ErrNotFound)
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVehicle(sc scanner) (model.Vehicle, error) {
	var v model.Vehicle
	var avg sql.NullFloat64
	var last, mileage, next sql.NullInt64
	if err := sc.Scan(&v.ID, &v.Plate, &v.ClientID, &v.Brand, &v.Model, &avg, &last, &mileage, &next); err != nil {
		return model.Vehicle{}, err
	}
	if avg.Valid {
		v.Usage.AverageDailyDistance = avg.Float64
	}
	if last.Valid {
		v.Usage.LastServiceDate = time.Unix(last.Int64, 0).UTC()
	}
	if mileage.Valid {
		v.Usage.LastServiceMileage = int(mileage.Int64)
	}
	if next.Valid {
		v.Usage.PredictedNextServiceDate = time.Unix(next.Int64, 0).UTC()
	}
	return v, nil
}
