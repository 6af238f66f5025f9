package model

import (
	"fmt"
	"strings"
	"time"
)

// WorkOrderStatus is the lifecycle state of a work order on the kanban.
type WorkOrderStatus int

const (
	StatusPending WorkOrderStatus = iota
	StatusInProgress
	StatusDone
	StatusDelivered
	StatusCancelled
)

// String returns the persisted representation of the status.
func (s WorkOrderStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusDone:
		return "done"
	case StatusDelivered:
		return "delivered"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Completed reports whether the status is a terminal completed state.
func (s WorkOrderStatus) Completed() bool {
	return s == StatusDone || s == StatusDelivered
}

// ParseWorkOrderStatus converts a persisted status string.
func ParseWorkOrderStatus(s string) (WorkOrderStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "in_progress":
		return StatusInProgress, nil
	case "done":
		return StatusDone, nil
	case "delivered":
		return StatusDelivered, nil
	case "cancelled":
		return StatusCancelled, nil
	default:
		return 0, fmt.Errorf("unknown work order status %q", s)
	}
}

// CompletedStatuses lists the statuses whose orders count as service history.
func CompletedStatuses() []WorkOrderStatus {
	return []WorkOrderStatus{StatusDone, StatusDelivered}
}

// WorkOrder is a service job performed on a vehicle. Odometer is nil when
// the reading was not recorded.
type WorkOrder struct {
	ID          string          `json:"id"`
	VehicleID   string          `json:"vehicle_id"`
	Status      WorkOrderStatus `json:"status"`
	CompletedAt time.Time       `json:"completed_at"`
	Odometer    *int            `json:"odometer,omitempty"`
}

// ServiceRecord converts the order into a history record. ok is false when
// the order is not completed or has no odometer reading.
func (w WorkOrder) ServiceRecord() (ServiceRecord, bool) {
	if !w.Status.Completed() || w.Odometer == nil {
		return ServiceRecord{}, false
	}
	return ServiceRecord{Date: w.CompletedAt, Odometer: *w.Odometer}, true
}
