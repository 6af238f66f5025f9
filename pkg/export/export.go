// Package export renders the upcoming-service list for the workshop.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/lubricentro/usagepredict/core/model"
)

// UpcomingEntry is a vehicle due for service inside the requested window.
type UpcomingEntry struct {
	VehicleID            string    `json:"vehicle_id"`
	Plate                string    `json:"plate,omitempty"`
	ClientID             string    `json:"client_id,omitempty"`
	PredictedDate        time.Time `json:"predicted_date"`
	AverageDailyDistance float64   `json:"average_daily_distance"`
	// DaysLeft is negative for overdue vehicles.
	DaysLeft int `json:"days_left"`
}

// Upcoming converts vehicles into entries relative to today.
func Upcoming(vehicles []model.Vehicle, today time.Time) []UpcomingEntry {
	today = model.Day(today)
	out := make([]UpcomingEntry, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, UpcomingEntry{
			VehicleID:            v.ID,
			Plate:                v.Plate,
			ClientID:             v.ClientID,
			PredictedDate:        v.Usage.PredictedNextServiceDate,
			AverageDailyDistance: v.Usage.AverageDailyDistance,
			DaysLeft:             int(model.Day(v.Usage.PredictedNextServiceDate).Sub(today).Hours() / 24),
		})
	}
	return out
}

// WriteJSON writes the entries to w as a JSON array.
func WriteJSON(w io.Writer, entries []UpcomingEntry) error {
	if entries == nil {
		entries = []UpcomingEntry{}
	}
	return json.NewEncoder(w).Encode(entries)
}

// WriteCSV writes the entries to w with a header row.
func WriteCSV(w io.Writer, entries []UpcomingEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"vehicle_id", "plate", "client_id", "predicted_date", "average_daily_km", "days_left"}); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{
			e.VehicleID,
			e.Plate,
			e.ClientID,
			e.PredictedDate.Format(time.DateOnly),
			strconv.FormatFloat(e.AverageDailyDistance, 'f', 2, 64),
			strconv.Itoa(e.DaysLeft),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
