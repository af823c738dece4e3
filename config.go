package sessionguard

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/carenest/sessionguard/permission"
	"github.com/carenest/sessionguard/seal"
	"github.com/carenest/sessionguard/session"
)

// Config is the complete manager configuration.
//
// Config values are copied by the Builder; mutating a Config after Build has
// no effect on the Manager.
type Config struct {
	Session     SessionConfig
	Crypto      CryptoConfig
	Activity    ActivityConfig
	Refresh     RefreshConfig
	Store       StoreConfig
	Permissions PermissionsConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig holds the lifecycle durations.
type SessionConfig struct {
	// MaxAge is the absolute lifetime granted at creation.
	MaxAge time.Duration
	// IdleTimeout ends the session after this long without activity.
	IdleTimeout time.Duration
	// RefreshThreshold is how long before ExpiresAt the renewal starts.
	RefreshThreshold time.Duration
	// WarningWindow is how long before ExpiresAt the warning event fires.
	WarningWindow time.Duration
}

/*
====================================
CRYPTO CONFIG
====================================
*/

// CryptoConfig selects the sealing algorithm and the fallback policy.
type CryptoConfig struct {
	Algorithm string // "xchacha20poly1305" (default) or "aes-256-gcm"
	// RequireEncryption makes Initialize fail and CreateSession refuse when
	// no key could be set up, instead of persisting unencrypted.
	RequireEncryption bool
}

// ActivityConfig controls activity handling.
type ActivityConfig struct {
	// Enabled turns the activity tracker on. When off, signals are ignored and
	// the idle timer behaves as a second absolute deadline.
	Enabled bool
	// PersistInterval throttles re-persisting on activity. Zero persists on
	// every tick.
	PersistInterval time.Duration
}

// RefreshConfig controls identity provider renewals.
type RefreshConfig struct {
	Enabled bool
	Timeout time.Duration
}

// StoreConfig bounds store I/O.
type StoreConfig struct {
	Timeout time.Duration
}

// PermissionsConfig maps each role to its capabilities.
type PermissionsConfig struct {
	RoleCapabilities map[Role][]string
}

// AuditConfig controls the asynchronous audit relay.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the clinic defaults: 8h sessions, 30m idle timeout,
// a 5m warning window and a 2m refresh threshold. The warning lands before
// the renewal starts, since warnings are suppressed while one is in flight.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			MaxAge:           8 * time.Hour,
			IdleTimeout:      30 * time.Minute,
			RefreshThreshold: 2 * time.Minute,
			WarningWindow:    5 * time.Minute,
		},
		Crypto: CryptoConfig{
			Algorithm:         seal.AlgorithmXChaCha20Poly1305,
			RequireEncryption: false,
		},
		Activity: ActivityConfig{
			Enabled:         true,
			PersistInterval: 0,
		},
		Refresh: RefreshConfig{
			Enabled: true,
			Timeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Timeout: 5 * time.Second,
		},
		Permissions: PermissionsConfig{
			RoleCapabilities: defaultRoleCapabilities(),
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func defaultRoleCapabilities() map[Role][]string {
	out := make(map[Role][]string)
	for role, caps := range permission.DefaultRoleCapabilities() {
		out[Role(role)] = caps
	}
	return out
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Permissions.RoleCapabilities != nil {
		out.Permissions.RoleCapabilities = make(map[Role][]string, len(cfg.Permissions.RoleCapabilities))
		for role, caps := range cfg.Permissions.RoleCapabilities {
			out.Permissions.RoleCapabilities[role] = slices.Clone(caps)
		}
	}
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks durations, algorithm and role names.
func (c *Config) Validate() error {
	if c.Session.MaxAge <= 0 {
		return errors.New("Session.MaxAge must be > 0")
	}
	if c.Session.IdleTimeout <= 0 {
		return errors.New("Session.IdleTimeout must be > 0")
	}
	if c.Session.RefreshThreshold < 0 || c.Session.RefreshThreshold >= c.Session.MaxAge {
		return errors.New("Session.RefreshThreshold must be >= 0 and < MaxAge")
	}
	if c.Session.WarningWindow < 0 || c.Session.WarningWindow >= c.Session.MaxAge {
		return errors.New("Session.WarningWindow must be >= 0 and < MaxAge")
	}

	switch c.Crypto.Algorithm {
	case seal.AlgorithmXChaCha20Poly1305, seal.AlgorithmAES256GCM:
	default:
		return fmt.Errorf("Crypto.Algorithm %q not supported", c.Crypto.Algorithm)
	}

	if c.Activity.PersistInterval < 0 {
		return errors.New("Activity.PersistInterval must be >= 0")
	}

	if c.Refresh.Enabled {
		if c.Refresh.Timeout <= 0 {
			return errors.New("Refresh.Timeout must be > 0 when refresh is enabled")
		}
		if c.Session.RefreshThreshold > 0 && c.Refresh.Timeout >= c.Session.RefreshThreshold {
			return errors.New("Refresh.Timeout must be < Session.RefreshThreshold")
		}
	}

	if c.Store.Timeout <= 0 {
		return errors.New("Store.Timeout must be > 0")
	}

	if len(c.Permissions.RoleCapabilities) == 0 {
		return errors.New("Permissions.RoleCapabilities must not be empty")
	}
	for _, role := range slices.Sorted(maps.Keys(c.Permissions.RoleCapabilities)) {
		if !session.Role(role).Valid() {
			return fmt.Errorf("Permissions.RoleCapabilities: unknown role %q", role)
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

func (c *Config) buildPolicy() (*permission.Policy, error) {
	caps := make(map[string][]string, len(c.Permissions.RoleCapabilities))
	for role, list := range c.Permissions.RoleCapabilities {
		caps[string(role)] = list
	}
	return permission.NewPolicyFromMap(caps)
}
