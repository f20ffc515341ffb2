package modelstore

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/tngbot/internal/config"
)

// ErrBackendNotRegistered is returned by [Registry.Open] when no factory has
// been registered for the configured backend.
var ErrBackendNotRegistered = errors.New("modelstore: backend not registered")

// Factory opens a store from its configuration.
type Factory func(ctx context.Context, cfg config.StoreConfig) (Store, error)

// Registry maps backend names to store factories. It is safe for concurrent
// use.
type Registry struct {
	mu        sync.RWMutex
	factories map[config.Backend]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[config.Backend]Factory)}
}

// Register registers factory under backend. A later registration with the
// same name replaces the earlier one.
func (r *Registry) Register(backend config.Backend, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[backend] = factory
}

// Backends returns the registered backend names, sorted.
func (r *Registry) Backends() []config.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// Open creates the store selected by cfg.Backend.
func (r *Registry) Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotRegistered, cfg.Backend)
	}
	return factory(ctx, cfg)
}

// DefaultRegistry returns a registry with the file, postgres and sqlite
// backends registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(config.BackendFile, func(_ context.Context, cfg config.StoreConfig) (Store, error) {
		return NewFileStore(cfg.Dir)
	})
	r.Register(config.BackendPostgres, func(ctx context.Context, cfg config.StoreConfig) (Store, error) {
		return OpenPostgres(ctx, cfg.PostgresDSN)
	})
	r.Register(config.BackendSQLite, func(_ context.Context, cfg config.StoreConfig) (Store, error) {
		return OpenSQLite(cfg.SQLitePath)
	})
	return r
}

// Open creates the store selected by cfg using [DefaultRegistry].
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	return DefaultRegistry().Open(ctx, cfg)
}
