package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	refreshjob "github.com/lubricentro/usagepredict/jobs/refresh"
)

type runnerFunc func(context.Context) (refreshjob.Summary, error)

func (f runnerFunc) Run(ctx context.Context) (refreshjob.Summary, error) { return f(ctx) }

func TestHandler_AuthAndSummary(t *testing.T) {
	calls := 0
	h := NewHandler(runnerFunc(func(context.Context) (refreshjob.Summary, error) {
		calls++
		return refreshjob.Summary{RunID: "r1", Total: 3, Predicted: 2, NoPrediction: 1}, nil
	}), "tok")

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out refreshjob.Summary
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.RunID != "r1" || out.Predicted != 2 || calls != 1 {
		t.Fatalf("unexpected summary %+v (calls=%d)", out, calls)
	}
}

func TestHandler_Errors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{refreshjob.ErrRunning, http.StatusConflict},
		{errors.New("list vehicles: db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		h := NewHandler(runnerFunc(func(context.Context) (refreshjob.Summary, error) { return refreshjob.Summary{}, tc.err }), "")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
		if rr.Code != tc.want {
			t.Fatalf("%v: expected %d got %d", tc.err, tc.want, rr.Code)
		}
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := NewHandler(runnerFunc(func(context.Context) (refreshjob.Summary, error) { return refreshjob.Summary{}, nil }), "")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/refresh", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}
}
