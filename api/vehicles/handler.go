// Package vehicles exposes usage predictions and service history over HTTP.
package vehicles

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/lubricentro/usagepredict/core/logger"
	"github.com/lubricentro/usagepredict/core/model"
	"github.com/lubricentro/usagepredict/core/prediction"
	"github.com/lubricentro/usagepredict/core/store"
	"github.com/lubricentro/usagepredict/pkg/export"
)

// Store is the read side the handlers need.
type Store interface {
	store.HistorySource
	Vehicle(ctx context.Context, id string) (model.Vehicle, error)
	Upcoming(ctx context.Context, before time.Time) ([]model.Vehicle, error)
}

// Cache serves the latest persisted prediction of a vehicle.
type Cache interface {
	Get(ctx context.Context, vehicleID string) (*prediction.Result, error)
}

const (
	defaultWindowDays = 30
	maxWindowDays     = 366
)

// Handler serves the /api/vehicles routes.
type Handler struct {
	store        Store
	engine       prediction.Engine
	cache        Cache
	historyLimit int
	log          logger.Logger
	now          func() time.Time
}

// NewHandler builds a Handler. cache may be nil.
func NewHandler(s Store, engine prediction.Engine, cache Cache, historyLimit int, log logger.Logger) *Handler {
	return &Handler{store: s, engine: engine, cache: cache, historyLimit: historyLimit, log: log, now: time.Now}
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/vehicles/upcoming", h.upcoming)
	mux.HandleFunc("GET /api/vehicles/{id}/prediction", h.preview)
	mux.HandleFunc("POST /api/vehicles/{id}/prediction", h.predict)
	mux.HandleFunc("GET /api/vehicles/{id}/history", h.history)
}

// preview returns the cached prediction when present and otherwise
// estimates without persisting.
func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.exists(w, r, id) {
		return
	}
	if h.cache != nil {
		res, err := h.cache.Get(r.Context(), id)
		if err != nil {
			h.log.Warnf("prediction cache for %s: %v", id, err)
		} else if res != nil {
			w.Header().Set("X-Cache", "hit")
			h.writeJSON(w, http.StatusOK, res)
			return
		}
	}
	res, err := h.engine.Preview(r.Context(), id)
	h.writeResult(w, id, res, err)
}

func (h *Handler) predict(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.exists(w, r, id) {
		return
	}
	res, err := h.engine.Predict(r.Context(), id)
	h.writeResult(w, id, res, err)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.exists(w, r, id) {
		return
	}
	recs, err := h.store.History(r.Context(), id, h.historyLimit)
	if err != nil {
		h.log.Errorf("history for %s: %v", id, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if recs == nil {
		recs = []model.ServiceRecord{}
	}
	h.writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) upcoming(w http.ResponseWriter, r *http.Request) {
	days := defaultWindowDays
	if s := r.URL.Query().Get("days"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > maxWindowDays {
			http.Error(w, "days must be an integer between 1 and 366", http.StatusBadRequest)
			return
		}
		days = v
	}
	today := model.Day(h.now())
	vehicles, err := h.store.Upcoming(r.Context(), today.AddDate(0, 0, days+1).Add(-time.Nanosecond))
	if err != nil {
		h.log.Errorf("upcoming services: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	entries := export.Upcoming(vehicles, today)
	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		if err := export.WriteCSV(w, entries); err != nil {
			h.log.Warnf("write upcoming csv: %v", err)
		}
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) exists(w http.ResponseWriter, r *http.Request, id string) bool {
	_, err := h.store.Vehicle(r.Context(), id)
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "vehicle not found", http.StatusNotFound)
	default:
		h.log.Errorf("load vehicle %s: %v", id, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
	return false
}

func (h *Handler) writeResult(w http.ResponseWriter, id string, res *prediction.Result, err error) {
	switch {
	case err != nil:
		h.log.Errorf("prediction for %s: %v", id, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case res == nil:
		w.WriteHeader(http.StatusNoContent)
	default:
		h.writeJSON(w, http.StatusOK, res)
	}
}

// writeJSON encodes v before committing the status so encoding failures
// surface as 500 instead of an empty 200.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.log.Errorf("encode response: %v", err)
		http.Error(w, "encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
