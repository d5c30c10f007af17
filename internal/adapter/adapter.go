package adapter

import (
	"context"
	"fmt"

	"MarketScanner/internal/domain"
)

// Request carries all parameters required to fetch one source.
type Request struct {
	SourceID  string
	URL       string
	Selectors map[string]string
	Options   map[string]string
}

// Adapter captures a single fetch strategy (HTML page, JSON API, etc.).
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]domain.RawListing, error)
}

// Registry keeps a mapping from adapter names to their implementations.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

// Register adds or replaces an adapter implementation.
func (r *Registry) Register(a Adapter) {
	if r.adapters == nil {
		r.adapters = map[string]Adapter{}
	}
	r.adapters[a.Name()] = a
}

// Resolve returns an adapter by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Adapter, error) {
	if a, ok := r.adapters[name]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("adapter %s is not registered", name)
}
