package model

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"
)

// Registry maps variants to their loaded predictors.
//
// Lifecycle: a Registry is built once at process start by LoadRegistry (or
// NewRegistry in tests) and is read-only afterwards. Predictors are shared by
// every worker; nothing is reloaded while requests are in flight.
type Registry struct {
	entries map[string]Binding
}

// Binding pairs a variant with the predictor serving it
type Binding struct {
	Variant   Variant
	Predictor Predictor
}

// availabilityChecker is implemented by predictors that can probe their backend
type availabilityChecker interface {
	CheckAvailable(ctx context.Context) error
}

// NewRegistry builds a registry from already constructed predictors, keyed by variant name
func NewRegistry(bindings ...Binding) *Registry {
	r := &Registry{entries: make(map[string]Binding, len(bindings))}
	for _, b := range bindings {
		r.entries[b.Variant.Name] = b
	}
	return r
}

// LoadRegistry connects a TF Serving predictor for each variant and probes it.
// Any unavailable model is a startup failure.
func LoadRegistry(ctx context.Context, serverURL string, timeout time.Duration, variants []Variant) (*Registry, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("model server URL not configured")
	}

	bindings := make([]Binding, 0, len(variants))
	for _, v := range variants {
		p := NewTFServingPredictor(serverURL, v.ModelName, timeout)
		if err := p.CheckAvailable(ctx); err != nil {
			return nil, fmt.Errorf("failed to load model for variant %s: %w", v.Name, err)
		}
		log.Printf("🧠 Model loaded: %s (variant %s, window %d)", v.ModelName, v.Name, v.WindowLength)
		bindings = append(bindings, Binding{Variant: v, Predictor: p})
	}
	return NewRegistry(bindings...), nil
}

// Get returns the variant and predictor registered under name
func (r *Registry) Get(name string) (Variant, Predictor, error) {
	e, ok := r.entries[name]
	if !ok {
		return Variant{}, nil, fmt.Errorf("model variant %s not loaded", name)
	}
	return e.Variant, e.Predictor, nil
}

// Names returns the registered variant names in sorted order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check re-probes every predictor that supports it; used by the health endpoint
func (r *Registry) Check(ctx context.Context) map[string]error {
	status := make(map[string]error, len(r.entries))
	for name, e := range r.entries {
		if c, ok := e.Predictor.(availabilityChecker); ok {
			status[name] = c.CheckAvailable(ctx)
		} else {
			status[name] = nil
		}
	}
	return status
}
