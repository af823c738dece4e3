package sessionguard

import (
	"context"
	"slices"
	"time"

	"github.com/carenest/sessionguard/session"
)

// Role re-exports the closed role set.
type Role = session.Role

const (
	RolePatient  = session.RolePatient
	RoleProvider = session.RoleProvider
	RoleAdmin    = session.RoleAdmin
	RoleSupport  = session.RoleSupport
)

// State is the manager's coarse lifecycle state.
type State int

const (
	// StateUninitialized is reported until Initialize succeeds.
	StateUninitialized State = iota
	// StateAbsent means no session has existed since Initialize, or a
	// persisted one was discarded on restore.
	StateAbsent
	// StateActive means a session is installed.
	StateActive
	// StateTerminated means the last session ended; see Manager.TerminationReason.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAbsent:
		return "absent"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TerminationReason explains why a session ended.
type TerminationReason string

const (
	ReasonLogout        TerminationReason = "logout"
	ReasonIdleTimeout   TerminationReason = "idle_timeout"
	ReasonExpired       TerminationReason = "expired"
	ReasonRefreshFailed TerminationReason = "refresh_failed"
	ReasonSuperseded    TerminationReason = "superseded"
	ReasonIntegrity     TerminationReason = "integrity"
)

// Valid reports whether r is a known reason.
func (r TerminationReason) Valid() bool {
	switch r {
	case ReasonLogout, ReasonIdleTimeout, ReasonExpired, ReasonRefreshFailed, ReasonSuperseded, ReasonIntegrity:
		return true
	}
	return false
}

// IdentityClaims is what an authentication step hands to CreateSession.
//
// IPAddress and UserAgent are optional; when empty they are taken from the
// context (see WithClientIP and WithUserAgent).
type IdentityClaims struct {
	UserID       string
	Role         Role
	Grants       []string
	IPAddress    string
	UserAgent    string
	RefreshToken string
}

// SessionInfo is the read-only view of the active session. The refresh token
// is never exposed.
type SessionInfo struct {
	SessionID       string
	UserID          string
	Role            Role
	Permissions     []string
	CreatedAt       time.Time
	ExpiresAt       time.Time
	LastActivityAt  time.Time
	IPAddress       string
	UserAgent       string
	HasRefreshToken bool
}

func infoFromRecord(r *session.Record) SessionInfo {
	if r == nil {
		return SessionInfo{}
	}
	return SessionInfo{
		SessionID:       r.SessionID,
		UserID:          r.UserID,
		Role:            r.Role,
		Permissions:     slices.Clone(r.Permissions),
		CreatedAt:       r.CreatedAt,
		ExpiresAt:       r.ExpiresAt,
		LastActivityAt:  r.LastActivityAt,
		IPAddress:       r.IPAddress,
		UserAgent:       r.UserAgent,
		HasRefreshToken: r.RefreshToken != "",
	}
}

// Renewal is an identity provider's answer to a refresh request.
//
// Role and RefreshToken are optional: an empty Role keeps the current one and
// an empty RefreshToken keeps the current token. A nil Permissions slice keeps
// the current set unless the role changed, in which case the set is derived
// from the role policy.
type Renewal struct {
	ExpiresAt    time.Time
	Permissions  []string
	Role         Role
	RefreshToken string
}

// IdentityProvider renews sessions. Renew must honor ctx cancellation.
type IdentityProvider interface {
	Renew(ctx context.Context, refreshToken string) (Renewal, error)
}

// IdentityProviderFunc adapts a function to IdentityProvider.
type IdentityProviderFunc func(ctx context.Context, refreshToken string) (Renewal, error)

func (f IdentityProviderFunc) Renew(ctx context.Context, refreshToken string) (Renewal, error) {
	return f(ctx, refreshToken)
}
