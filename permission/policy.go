package permission

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrUnknownRole is returned when deriving permissions for an unregistered role.
var ErrUnknownRole = errors.New("permission: unknown role")

// Policy maps roles to capability sets.
//
// Policy instances are configured during initialization and then frozen;
// after Freeze all methods are safe for concurrent use.
type Policy struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string][]string
	frozen bool
}

// NewPolicy creates a policy that validates capabilities against registry.
func NewPolicy(registry *Registry) *Policy {
	return &Policy{
		registry: registry,
		roles:    make(map[string][]string),
	}
}

// NewPolicyFromMap registers every capability named in caps, assigns them to
// their roles and freezes both registry and policy.
func NewPolicyFromMap(caps map[string][]string) (*Policy, error) {
	reg := NewRegistry()
	for _, perms := range caps {
		for _, p := range perms {
			if err := reg.Register(p); err != nil {
				return nil, err
			}
		}
	}
	reg.Freeze()

	p := NewPolicy(reg)
	roles := make([]string, 0, len(caps))
	for role := range caps {
		roles = append(roles, role)
	}
	slices.Sort(roles)
	for _, role := range roles {
		if err := p.RegisterRole(role, caps[role]); err != nil {
			return nil, err
		}
	}
	p.Freeze()
	return p, nil
}

// RegisterRole assigns capabilities to a role. Every capability must already
// be registered.
func (p *Policy) RegisterRole(role string, capabilities []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.frozen {
		return ErrFrozen
	}
	if role == "" {
		return errors.New("role name empty")
	}
	if _, exists := p.roles[role]; exists {
		return fmt.Errorf("role %q already registered", role)
	}
	for _, c := range capabilities {
		if !p.registry.Has(c) {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, c)
		}
	}

	p.roles[role] = Normalize(capabilities)
	return nil
}

// Freeze prevents further role registration.
func (p *Policy) Freeze() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frozen = true
}

// HasRole reports whether role has been registered.
func (p *Policy) HasRole(role string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.roles[role]
	return ok
}

// Capabilities returns a copy of the role's capability set.
func (p *Policy) Capabilities(role string) ([]string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	caps, ok := p.roles[role]
	return slices.Clone(caps), ok
}

// Derive returns the sorted union of the role's capabilities and grants.
// Grants are explicit per-user additions and need not be registered.
func (p *Policy) Derive(role string, grants []string) ([]string, error) {
	if p == nil {
		return nil, ErrUnknownRole
	}
	p.mu.RLock()
	caps, ok := p.roles[role]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	merged := make([]string, 0, len(caps)+len(grants))
	merged = append(merged, caps...)
	merged = append(merged, grants...)
	return Normalize(merged), nil
}

// Normalize returns perms sorted with duplicates and empty names removed.
// The input is not modified.
func Normalize(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
