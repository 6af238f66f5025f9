// Package lock serialises work on a single vehicle across goroutines or
// processes. The predictor itself does not lock; callers that need
// per-vehicle mutual exclusion acquire a lock around each call.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrHeld is returned by TryLock when another holder owns the key.
var ErrHeld = errors.New("lock held")

// VehicleKey is the lock name of a vehicle. Every component that predicts
// shares it so a batch run and a trigger never race on the same vehicle.
func VehicleKey(vehicleID string) string { return "vehicle:" + vehicleID }

// Locker acquires exclusive, expiring locks by key.
type Locker interface {
	// TryLock acquires key without waiting. It returns ErrHeld when the key
	// is owned by someone else. The returned release func is safe to call
	// more than once.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocal returns an empty in-process Locker.
func NewLocal() *Local {
	return &Local{held: map[string]time.Time{}, now: time.Now}
}

// TryLock implements Locker. Expired entries are treated as free.
func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, ErrHeld
	}
	exp := now.Add(ttl)
	l.held[key] = exp
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.held[key].Equal(exp) {
				delete(l.held, key)
			}
			l.mu.Unlock()
		})
	}, nil
}

// Nop never contends.
type Nop struct{}

func (Nop) TryLock(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

// Retry intervals of Acquire.
const (
	minRetry = 100 * time.Millisecond
	maxRetry = 2 * time.Second
)

// Acquire retries TryLock with exponential backoff until it succeeds, wait
// elapses or ctx ends. It returns ErrHeld when the key is still owned after
// wait; other locker errors are returned at once.
func Acquire(ctx context.Context, l Locker, key string, ttl, wait time.Duration) (func(), error) {
	deadline := time.Now().Add(wait)
	delay := minRetry
	for {
		release, err := l.TryLock(ctx, key, ttl)
		if !errors.Is(err, ErrHeld) {
			return release, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, err
		}
		t := time.NewTimer(min(delay, remaining))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		delay = min(delay*2, maxRetry)
	}
}
