package permission

// Role names used by DefaultRoleCapabilities.
const (
	RolePatient  = "patient"
	RoleProvider = "provider"
	RoleAdmin    = "admin"
	RoleSupport  = "support"
)

// DefaultRoleCapabilities returns the capability map for a typical clinic.
// A new map is returned on every call.
func DefaultRoleCapabilities() map[string][]string {
	return map[string][]string{
		RolePatient: {
			"appointments:book",
			"appointments:read",
			"billing:read_own",
			"messages:read",
			"messages:send",
			"records:read_own",
		},
		RoleProvider: {
			"appointments:manage",
			"appointments:read",
			"messages:read",
			"messages:send",
			"notes:write",
			"prescriptions:write",
			"records:read",
			"records:write",
		},
		RoleAdmin: {
			"appointments:manage",
			"appointments:read",
			"audit:read",
			"billing:manage",
			"settings:manage",
			"users:manage",
		},
		RoleSupport: {
			"appointments:read",
			"messages:read",
			"tickets:manage",
			"users:read",
		},
	}
}
