// Package cache keeps the latest prediction of each vehicle in Redis and
// provides a Redis-backed per-vehicle lock.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lubricentro/usagepredict/core/lock"
	"github.com/lubricentro/usagepredict/core/prediction"
)

// NewClient connects to Redis and pings it.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// PredictionCache stores prediction results keyed by vehicle.
type PredictionCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewPredictionCache wraps client.
func NewPredictionCache(client redis.UniversalClient, cfg Config) *PredictionCache {
	cfg.SetDefaults()
	return &PredictionCache{client: client, prefix: cfg.Prefix, ttl: cfg.TTL()}
}

// PredictionKey returns the cache key of a vehicle.
func PredictionKey(prefix, vehicleID string) string {
	return fmt.Sprintf("%s:vehicle:%s:prediction", prefix, vehicleID)
}

// Get returns the cached result; a miss yields (nil, nil).
func (c *PredictionCache) Get(ctx context.Context, vehicleID string) (*prediction.Result, error) {
	data, err := c.client.Get(ctx, PredictionKey(c.prefix, vehicleID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res prediction.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode cached prediction: %w", err)
	}
	return &res, nil
}

// Set stores res under its vehicle ID.
func (c *PredictionCache) Set(ctx context.Context, res prediction.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, PredictionKey(c.prefix, res.VehicleID), data, c.ttl).Err()
}

// Invalidate drops the cached result of a vehicle.
func (c *PredictionCache) Invalidate(ctx context.Context, vehicleID string) error {
	return c.client.Del(ctx, PredictionKey(c.prefix, vehicleID)).Err()
}

// releaseScript deletes the key only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Locker implements lock.Locker with SET NX PX.
type Locker struct {
	client redis.UniversalClient
	prefix string
}

// NewLocker wraps client.
func NewLocker(client redis.UniversalClient, cfg Config) *Locker {
	cfg.SetDefaults()
	return &Locker{client: client, prefix: cfg.Prefix}
}

var _ lock.Locker = (*Locker)(nil)

// TryLock implements lock.Locker.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	full := l.prefix + ":lock:" + key
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, lock.ErrHeld
	}
	return func() {
		// A fresh context so cancellation of the caller still releases the key.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.client, []string{full}, token).Err()
	}, nil
}
