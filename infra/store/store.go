// Package store opens the configured persistence backend for vehicles and
// work orders and optionally guards it with a circuit breaker.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	corestore "github.com/lubricentro/usagepredict/core/store"
	"github.com/lubricentro/usagepredict/infra/logger"
	"github.com/lubricentro/usagepredict/infra/store/postgres"
	"github.com/lubricentro/usagepredict/infra/store/sqlite"
)

// Opener opens one backend from its configuration.
type Opener func(ctx context.Context, cfg Config) (corestore.Store, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]Opener{}
)

// RegisterBackend makes a backend available under store.backend = name.
func RegisterBackend(name string, o Opener) error {
	if o == nil {
		return fmt.Errorf("opener nil for %s", name)
	}
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, ok := backends[name]; ok {
		return fmt.Errorf("store backend already registered for %s", name)
	}
	backends[name] = o
	return nil
}

// Backends lists the registered backend names in ascending order.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupBackend(name string) (Opener, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	o, ok := backends[name]
	return o, ok
}

// init registers built-in backends.
func init() {
	_ = RegisterBackend("memory", func(context.Context, Config) (corestore.Store, error) {
		return corestore.NewMemoryStore(), nil
	})
	_ = RegisterBackend("sqlite", func(_ context.Context, cfg Config) (corestore.Store, error) {
		s, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	_ = RegisterBackend("postgres", func(ctx context.Context, cfg Config) (corestore.Store, error) {
		s, err := postgres.Open(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Open returns the store described by cfg.
func Open(ctx context.Context, cfg Config, log logger.Logger) (corestore.Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	open, ok := lookupBackend(cfg.Backend)
	if !ok {
		return nil, fmt.Errorf("unknown store backend %q (known: %v)", cfg.Backend, Backends())
	}
	s, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	if cfg.Breaker.Enabled {
		s = NewBreakerStore(s, cfg.Breaker, log)
	}
	return s, nil
}
