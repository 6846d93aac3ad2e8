// Package adapters executes components through endpoint-type specific
// adapters.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"workflow-orchestrator/backend/pkg/models"
)

// ErrNoAdapter is returned when no adapter is registered for an endpoint type.
var ErrNoAdapter = errors.New("no adapter registered")

// Adapter invokes a component. Implementations must honor ctx and return
// an *InvocationError (or an error wrapping one) to classify failures.
type Adapter interface {
	Invoke(ctx context.Context, component *models.Component, config models.Payload, input models.Payload) (models.Payload, error)
}

// AdapterFunc adapts a plain function to the Adapter interface.
type AdapterFunc func(ctx context.Context, component *models.Component, config models.Payload, input models.Payload) (models.Payload, error)

// Invoke calls f.
func (f AdapterFunc) Invoke(ctx context.Context, component *models.Component, config models.Payload, input models.Payload) (models.Payload, error) {
	return f(ctx, component, config, input)
}

// Factory builds an adapter the first time its endpoint type is resolved.
type Factory func() (Adapter, error)

// Instance returns a factory for an already constructed adapter.
func Instance(a Adapter) Factory {
	return func() (Adapter, error) { return a, nil }
}

type entry struct {
	factory Factory
	once    sync.Once
	adapter Adapter
	err     error
}

// Registry maps endpoint types to adapters. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[models.EndpointType]*entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[models.EndpointType]*entry)}
}

// Register binds a factory to an endpoint type, replacing any earlier one.
func (r *Registry) Register(t models.EndpointType, f Factory) error {
	if !t.Valid() {
		return fmt.Errorf("unknown endpoint type %q", t)
	}
	if f == nil {
		return fmt.Errorf("nil factory for endpoint type %q", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[t] = &entry{factory: f}
	return nil
}

// Has reports whether an adapter is registered for t.
func (r *Registry) Has(t models.EndpointType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[t]
	return ok
}

// Resolve returns the adapter for t, building it on first use.
func (r *Registry) Resolve(t models.EndpointType) (Adapter, error) {
	r.mu.RLock()
	e, ok := r.entries[t]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for endpoint type %q", ErrNoAdapter, t)
	}
	e.once.Do(func() {
		e.adapter, e.err = e.factory()
		if e.err == nil && e.adapter == nil {
			e.err = fmt.Errorf("factory for endpoint type %q returned no adapter", t)
		}
	})
	if e.err != nil {
		return nil, fmt.Errorf("building %s adapter: %w", t, e.err)
	}
	return e.adapter, nil
}
