package sessionguard

import (
	"time"

	"github.com/carenest/sessionguard/store"
)

// SecurityReport summarizes the security posture of a running Manager.
type SecurityReport struct {
	EncryptionAlgorithm string
	EncryptionAvailable bool
	RequireEncryption   bool
	MaxAge              time.Duration
	IdleTimeout         time.Duration
	RefreshThreshold    time.Duration
	WarningWindow       time.Duration
	RefreshEnabled      bool
	ActivityTracking    bool
	StoreBackend        string
	AuditEnabled        bool
}

func (m *Manager) SecurityReport() SecurityReport {
	if m == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		EncryptionAlgorithm: m.sealer.Algorithm(),
		EncryptionAvailable: m.sealer.Available(),
		RequireEncryption:   m.cfg.Crypto.RequireEncryption,
		MaxAge:              m.cfg.Session.MaxAge,
		IdleTimeout:         m.cfg.Session.IdleTimeout,
		RefreshThreshold:    m.cfg.Session.RefreshThreshold,
		WarningWindow:       m.cfg.Session.WarningWindow,
		RefreshEnabled:      m.refreshConfigured(),
		ActivityTracking:    m.cfg.Activity.Enabled,
		StoreBackend:        store.NameOf(m.store),
		AuditEnabled:        m.cfg.Audit.Enabled,
	}
}
