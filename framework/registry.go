// Package framework holds the toolbox model, allow-list filtering, the
// kernel session binding and the per-document Manager that ties them
// together.
package framework

import (
	"sync"
)

// DefaultToolbox is the toolbox selected when nothing else resolves.
const DefaultToolbox = "default"

// DefaultLanguage is used to pick a generator while no kernel is active.
const DefaultLanguage = "python"

// Registry maintains named toolbox definitions and the code generators bound
// to kernel languages. Documents typically share one registry instance and
// clone the definitions they filter.
type Registry struct {
	mu         sync.RWMutex
	toolboxes  map[string]*Toolbox
	order      []string
	generators map[string]Generator
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		toolboxes:  make(map[string]*Toolbox),
		generators: make(map[string]Generator),
	}
}

// Register adds or replaces a toolbox. A replaced toolbox keeps its original
// listing position.
func (r *Registry) Register(name string, toolbox *Toolbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.toolboxes[name]; !exists {
		r.order = append(r.order, name)
	}
	r.toolboxes[name] = toolbox
}

// Unregister removes a toolbox. Reports whether it existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.toolboxes[name]; !exists {
		return false
	}
	delete(r.toolboxes, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Toolbox fetches a toolbox definition by name.
func (r *Registry) Toolbox(name string) (*Toolbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tb, ok := r.toolboxes[name]
	return tb, ok
}

// HasToolbox reports whether the name is registered.
func (r *Registry) HasToolbox(name string) bool {
	_, ok := r.Toolbox(name)
	return ok
}

// Names returns the registered toolbox names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// RegisterGenerator binds a generator to a language identifier.
func (r *Registry) RegisterGenerator(language string, gen Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[foldType(language)] = gen
}

// Generator fetches the generator for a language.
func (r *Registry) Generator(language string) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gen, ok := r.generators[foldType(language)]
	return gen, ok
}

// HasGenerator reports whether a generator is bound to the language.
func (r *Registry) HasGenerator(language string) bool {
	_, ok := r.Generator(language)
	return ok
}

// Languages lists the languages that have a generator.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.generators))
	for lang := range r.generators {
		out = append(out, lang)
	}
	return out
}
