// Package pipeline holds the named pipeline definitions a deployment can run.
package pipeline

import (
	"fmt"
	"sort"
	"sync"

	"github.com/waabox/pakdeck/internal/domain"
)

// Registry maps pipeline names to definitions.
// Definitions are copied on the way in and on the way out, so replacing a
// pipeline never affects a run that already loaded it.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]domain.PipelineDefinition
}

// NewRegistry creates a registry seeded with the built-in pipelines.
func NewRegistry() *Registry {
	r := &Registry{pipelines: make(map[string]domain.PipelineDefinition)}
	for _, def := range Builtin() {
		r.pipelines[def.Name] = def
	}
	return r
}

// Load returns the pipeline registered under name.
// Returns an error wrapping domain.ErrPipelineNotFound if there is none.
func (r *Registry) Load(name string) (domain.PipelineDefinition, error) {
	r.mu.RLock()
	def, ok := r.pipelines[name]
	r.mu.RUnlock()
	if !ok {
		return domain.PipelineDefinition{}, fmt.Errorf("pipeline %q: %w", name, domain.ErrPipelineNotFound)
	}
	return def.Clone(), nil
}

// List returns the registered pipeline names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns every registered pipeline sorted by name.
func (r *Registry) Definitions() []domain.PipelineDefinition {
	names := r.List()
	defs := make([]domain.PipelineDefinition, 0, len(names))
	for _, name := range names {
		if def, err := r.Load(name); err == nil {
			defs = append(defs, def)
		}
	}
	return defs
}

// Add validates def and registers it, replacing any pipeline with the same name.
func (r *Registry) Add(def domain.PipelineDefinition) error {
	if err := Validate(def); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines[def.Name] = def.Clone()
	return nil
}
