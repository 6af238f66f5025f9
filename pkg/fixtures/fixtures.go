// Package fixtures loads vehicles and work orders from YAML files to seed
// a store for demos and local runs.
package fixtures

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lubricentro/usagepredict/core/model"
)

type VehicleDef struct {
	ID       string `yaml:"id"`
	Plate    string `yaml:"plate,omitempty"`
	ClientID string `yaml:"client_id,omitempty"`
	Brand    string `yaml:"brand,omitempty"`
	Model    string `yaml:"model,omitempty"`
}

func (v VehicleDef) ToModel() model.Vehicle {
	return model.Vehicle{ID: v.ID, Plate: v.Plate, ClientID: v.ClientID, Brand: v.Brand, Model: v.Model}
}

// WorkOrderDef is one order. Date uses the YYYY-MM-DD layout and Status
// defaults to "done".
type WorkOrderDef struct {
	ID        string `yaml:"id"`
	VehicleID string `yaml:"vehicle_id"`
	Status    string `yaml:"status,omitempty"`
	Date      string `yaml:"date"`
	Odometer  *int   `yaml:"odometer,omitempty"`
}

func (w WorkOrderDef) ToModel() (model.WorkOrder, error) {
	status := model.StatusDone
	if w.Status != "" {
		s, err := model.ParseWorkOrderStatus(w.Status)
		if err != nil {
			return model.WorkOrder{}, err
		}
		status = s
	}
	date, err := time.Parse(time.DateOnly, w.Date)
	if err != nil {
		return model.WorkOrder{}, fmt.Errorf("work order %s: %w", w.ID, err)
	}
	return model.WorkOrder{
		ID:          w.ID,
		VehicleID:   w.VehicleID,
		Status:      status,
		CompletedAt: date,
		Odometer:    w.Odometer,
	}, nil
}

// File is the root of a fixtures document.
type File struct {
	Vehicles   []VehicleDef   `yaml:"vehicles"`
	WorkOrders []WorkOrderDef `yaml:"work_orders"`
}

// Load reads a fixtures file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a fixtures document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Writer is the part of the store fixtures are applied to.
type Writer interface {
	UpsertVehicle(ctx context.Context, v model.Vehicle) error
	AddWorkOrder(ctx context.Context, wo model.WorkOrder) error
}

// Apply writes every vehicle, then every work order.
func (f *File) Apply(ctx context.Context, w Writer) error {
	for _, v := range f.Vehicles {
		if err := w.UpsertVehicle(ctx, v.ToModel()); err != nil {
			return fmt.Errorf("vehicle %s: %w", v.ID, err)
		}
	}
	for _, def := range f.WorkOrders {
		wo, err := def.ToModel()
		if err != nil {
			return err
		}
		if err := w.AddWorkOrder(ctx, wo); err != nil {
			return fmt.Errorf("work order %s: %w", def.ID, err)
		}
	}
	return nil
}
