// Package refresh exposes the batch refresh over HTTP.
package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	refreshjob "github.com/lubricentro/usagepredict/jobs/refresh"
)

// Runner runs one batch refresh.
type Runner interface {
	Run(ctx context.Context) (refreshjob.Summary, error)
}

// NewHandler returns an HTTP handler running the batch via POST /api/refresh.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
func NewHandler(runner Runner, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		sum, err := runner.Run(r.Context())
		if errors.Is(err, refreshjob.ErrRunning) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(sum); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
