package engine

import (
	"fmt"
	"sort"
)

// Registry holds the evaluators enabled for an engine instance. It is an
// explicit map constructed at startup; there is no global mutable registry.
type Registry struct {
	evaluators map[string]Evaluator
}

// NewRegistry constructs a registry containing the given evaluators.
// Duplicate slugs are rejected.
func NewRegistry(evaluators ...Evaluator) (*Registry, error) {
	r := &Registry{evaluators: make(map[string]Evaluator, len(evaluators))}
	for _, ev := range evaluators {
		if err := r.register(ev); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(ev Evaluator) error {
	if ev == nil {
		return fmt.Errorf("nil evaluator")
	}
	slug := ev.Slug()
	if slug == "" {
		return fmt.Errorf("evaluator with empty slug")
	}
	if _, exists := r.evaluators[slug]; exists {
		return fmt.Errorf("evaluator %s already registered", slug)
	}
	r.evaluators[slug] = ev
	return nil
}

// Get returns the evaluator registered under slug.
func (r *Registry) Get(slug string) (Evaluator, error) {
	ev, ok := r.evaluators[slug]
	if !ok {
		return nil, fmt.Errorf("evaluator %s: %w", slug, ErrUnknownEvaluator)
	}
	return ev, nil
}

// List returns all registered evaluators ordered by slug.
func (r *Registry) List() []Evaluator {
	out := make([]Evaluator, 0, len(r.evaluators))
	for _, ev := range r.evaluators {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug() < out[j].Slug() })
	return out
}
