package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lubricentro/usagepredict/core/model"
)

func TestUpcomingDaysLeft(t *testing.T) {
	today := time.Date(2025, 6, 10, 18, 30, 0, 0, time.UTC)
	vehicles := []model.Vehicle{
		{ID: "late", Usage: model.UsageFields{AverageDailyDistance: 30, PredictedNextServiceDate: time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)}},
		{ID: "soon", Plate: "AB123CD", Usage: model.UsageFields{AverageDailyDistance: 45.5, PredictedNextServiceDate: time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)}},
	}
	entries := Upcoming(vehicles, today)
	require.Len(t, entries, 2)
	assert.Equal(t, -3, entries[0].DaysLeft)
	assert.Equal(t, 10, entries[1].DaysLeft)
	assert.Equal(t, "AB123CD", entries[1].Plate)
}

func TestWriteCSV(t *testing.T) {
	entries := []UpcomingEntry{{
		VehicleID:            "v1",
		Plate:                "AB123CD",
		PredictedDate:        time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC),
		AverageDailyDistance: 45.5,
		DaysLeft:             10,
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, entries))
	want := "vehicle_id,plate,client_id,predicted_date,average_daily_km,days_left\n" +
		"v1,AB123CD,,2025-06-20,45.50,10\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}
