package module

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicate is returned when a module name is registered twice.
var ErrDuplicate = errors.New("module already registered")

// ErrInvalidSpec is returned for a spec that cannot be scheduled.
var ErrInvalidSpec = errors.New("invalid module spec")

// Registry maps module names to modules. Definitions persist for the life
// of the registry; only the scheduler's view of them changes.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Register adds m. The name must be unique and the out label non-empty.
func (r *Registry) Register(m Module) error {
	spec := m.Spec()
	if spec.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidSpec)
	}
	if spec.OutLabel == "" {
		return fmt.Errorf("%w: module %s has no out_label", ErrInvalidSpec, spec.Name)
	}
	if spec.ConnectLabels != nil && spec.InLabel == "" {
		return fmt.Errorf("%w: module %s has connect_labels without in_label", ErrInvalidSpec, spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.modules[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, spec.Name)
	}
	r.modules[spec.Name] = m
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(modules ...Module) {
	for _, m := range modules {
		if err := r.Register(m); err != nil {
			panic(err)
		}
	}
}

// Get returns the module registered under name.
func (r *Registry) Get(name string) (Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns every registered spec, sorted by name.
func (r *Registry) Specs() []Spec {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.modules[name].Spec())
	}
	return specs
}

// Len returns the number of registered modules.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.modules)
}
