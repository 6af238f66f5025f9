package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lubricentro/usagepredict/config"
	"github.com/lubricentro/usagepredict/core/model"
	"github.com/lubricentro/usagepredict/core/prediction"
	"github.com/lubricentro/usagepredict/core/store"
	"github.com/lubricentro/usagepredict/infra/mqtt"
)

func seededStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	ms := store.NewMemoryStore()
	require.NoError(t, ms.UpsertVehicle(ctx, model.Vehicle{ID: "v1"}))
	require.NoError(t, ms.UpsertVehicle(ctx, model.Vehicle{ID: "v2"}))
	for i, odo := range []int{20000, 21500, 23000} {
		km := odo
		require.NoError(t, ms.AddWorkOrder(ctx, model.WorkOrder{
			ID:          string(rune('a' + i)),
			VehicleID:   "v1",
			Status:      model.StatusDelivered,
			CompletedAt: time.Date(2025, 3, 1+15*i, 10, 0, 0, 0, time.UTC),
			Odometer:    &km,
		}))
	}
	return ms
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Store.Backend = "memory"
	cfg.Refresh.Disabled = true
	cfg.SetDefaults()
	return cfg
}

func newTestService(t *testing.T, ms store.Store, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithStore(ms), WithoutConsumers()}, opts...)
	svc, err := New(context.Background(), testConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestServicePredictRoutePersists(t *testing.T) {
	ms := seededStore(t)
	svc := newTestService(t, ms)

	req := httptest.NewRequest(http.MethodPost, "/api/vehicles/v1/prediction", nil)
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	v, err := ms.Vehicle(context.Background(), "v1")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, v.Usage.AverageDailyDistance, 1e-9)
	assert.Equal(t, 23000, v.Usage.LastServiceMileage)
}

func TestServiceRefreshOnce(t *testing.T) {
	ms := seededStore(t)
	svc := newTestService(t, ms)

	sum, err := svc.RefreshOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Predicted)
	assert.Equal(t, 1, sum.NoPrediction)

	v, err := ms.Vehicle(context.Background(), "v2")
	require.NoError(t, err)
	assert.False(t, v.Usage.HasPrediction())
}

func TestServiceHealthz(t *testing.T) {
	svc := newTestService(t, store.NewMemoryStore())
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type unreachableStore struct{ *store.MemoryStore }

func (unreachableStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestServiceHealthzStoreDown(t *testing.T) {
	svc := newTestService(t, unreachableStore{store.NewMemoryStore()})
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRefreshOncePublishesEveryPrediction(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	const vehicles = 200
	for v := 0; v < vehicles; v++ {
		id := fmt.Sprintf("v%03d", v)
		require.NoError(t, ms.UpsertVehicle(ctx, model.Vehicle{ID: id}))
		for i, odo := range []int{20000, 21500, 23000} {
			km := odo + v
			require.NoError(t, ms.AddWorkOrder(ctx, model.WorkOrder{
				ID:          fmt.Sprintf("%s-%d", id, i),
				VehicleID:   id,
				Status:      model.StatusDone,
				CompletedAt: time.Date(2025, 3, 1+15*i, 10, 0, 0, 0, time.UTC),
				Odometer:    &km,
			}))
		}
	}
	pub := mqtt.NewMockPublisher()
	pub.Delay = 2 * time.Millisecond
	svc := newTestService(t, ms, WithPublisher(pub))

	sum, err := svc.RefreshOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, vehicles, sum.Predicted)
	assert.Equal(t, vehicles, pub.Count(), "every persisted prediction must be published")
	assert.Zero(t, svc.bus.Dropped())

	res, ok := pub.Published("v199")
	require.True(t, ok)
	assert.Equal(t, 23199, res.LastServiceMileage)
}

type fakeCache struct {
	mu          sync.Mutex
	entries     map[string]prediction.Result
	setErr      error
	invalidated []string
}

func newFakeCache() *fakeCache { return &fakeCache{entries: map[string]prediction.Result{}} }

func (c *fakeCache) Get(_ context.Context, id string) (*prediction.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (c *fakeCache) Set(_ context.Context, res prediction.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[res.VehicleID] = res
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

func TestPredictCachesBeforeResponding(t *testing.T) {
	c := newFakeCache()
	c.entries["v1"] = prediction.Result{VehicleID: "v1", LastServiceMileage: 1}
	svc := newTestService(t, seededStore(t), WithCache(c))

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/vehicles/v1/prediction", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cached, err := c.Get(context.Background(), "v1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 23000, cached.LastServiceMileage)

	rec = httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/vehicles/v1/prediction", nil))
	assert.Equal(t, "hit", rec.Header().Get("X-Cache"))
}

func TestPredictInvalidatesCacheOnWriteFailure(t *testing.T) {
	c := newFakeCache()
	c.entries["v1"] = prediction.Result{VehicleID: "v1", LastServiceMileage: 1}
	c.setErr = errors.New("redis: connection pool timeout")
	svc := newTestService(t, seededStore(t), WithCache(c))

	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/vehicles/v1/prediction", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, []string{"v1"}, c.invalidated)
	cached, err := c.Get(context.Background(), "v1")
	require.NoError(t, err)
	assert.Nil(t, cached, "a stale entry must not outlive a failed cache write")
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	ms := seededStore(t)
	cfg := testConfig()
	cfg.HTTP.Addr = "127.0.0.1:0"
	svc, err := New(context.Background(), cfg, WithStore(ms), WithoutConsumers())
	require.NoError(t, err)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
