package store

import (
	"context"
	"errors"
	"time"

	"github.com/lubricentro/usagepredict/core/model"
)

// ErrNotFound is returned when a vehicle does not exist.
var ErrNotFound = errors.New("not found")

// HistorySource returns the most recent completed service records of a
// vehicle, most recent first. Only orders in a completed state with an
// odometer reading are returned.
type HistorySource interface {
	History(ctx context.Context, vehicleID string, limit int) ([]model.ServiceRecord, error)
}

// UsageWriter overwrites the usage fields of a vehicle.
type UsageWriter interface {
	WriteUsage(ctx context.Context, vehicleID string, u model.UsageFields) error
}

// VehicleLister enumerates vehicle identifiers for batch runs.
type VehicleLister interface {
	VehicleIDs(ctx context.Context) ([]string, error)
}

// Store is the full persistence contract used by the service.
type Store interface {
	HistorySource
	UsageWriter
	VehicleLister

	UpsertVehicle(ctx context.Context, v model.Vehicle) error
	Vehicle(ctx context.Context, id string) (model.Vehicle, error)
	AddWorkOrder(ctx context.Context, wo model.WorkOrder) error
	// Upcoming returns vehicles whose predicted next service falls before
	// the given time, soonest first.
	Upcoming(ctx context.Context, before time.Time) ([]model.Vehicle, error)
	Close() error
}

// Pinger is implemented by stores backed by a remote connection.
type Pinger interface {
	Ping(ctx context.Context) error
}
