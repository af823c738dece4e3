package permission

import (
	"errors"
	"slices"
	"sync"
)

var (
	// ErrFrozen is returned when registering after Freeze.
	ErrFrozen = errors.New("permission: registry frozen")
	// ErrUnknownPermission is returned for capabilities that were never registered.
	ErrUnknownPermission = errors.New("permission: unknown permission")
)

// Registry is the set of capability names the application recognises.
//
//	Docs: docs/permission.md
type Registry struct {
	mu     sync.RWMutex
	names  map[string]struct{}
	frozen bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a capability name. Registering an existing name is a no-op.
// Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrFrozen
	}
	if name == "" {
		return errors.New("permission name cannot be empty")
	}
	r.names[name] = struct{}{}
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

// Names returns every registered name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.names))
	for name := range r.names {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
