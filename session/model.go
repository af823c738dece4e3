package session

import (
	"slices"
	"time"
)

// Role is the closed set of actor kinds a session can represent.
type Role string

const (
	// RolePatient is a clinic patient using the portal.
	RolePatient Role = "patient"
	// RoleProvider is a clinician.
	RoleProvider Role = "provider"
	// RoleAdmin is a practice administrator.
	RoleAdmin Role = "admin"
	// RoleSupport is a support staff member.
	RoleSupport Role = "support"
)

// Roles lists every valid role in a stable order.
func Roles() []Role {
	return []Role{RolePatient, RoleProvider, RoleAdmin, RoleSupport}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleProvider, RoleAdmin, RoleSupport:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Record is the canonical session entity.
//
// Record values handed out by the lifecycle manager are copies; mutating them
// has no effect on the active session.
type Record struct {
	SessionID string
	UserID    string
	Role      Role
	// Permissions is sorted and free of duplicates.
	Permissions []string

	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time

	IPAddress string
	UserAgent string

	RefreshToken string
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	out.Permissions = slices.Clone(r.Permissions)
	return &out
}

// HasPermission reports whether perm is in the record's permission set.
func (r *Record) HasPermission(perm string) bool {
	if r == nil {
		return false
	}
	_, found := slices.BinarySearch(r.Permissions, perm)
	return found
}
