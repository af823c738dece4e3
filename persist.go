package sessionguard

import (
	"errors"
	"fmt"

	"github.com/carenest/sessionguard/events"
	"github.com/carenest/sessionguard/session"
	"github.com/carenest/sessionguard/store"
)

// Persisted blobs start with an envelope byte naming their protection.
const (
	envelopePlain  byte = 0x00
	envelopeSealed byte = 0x01
)

var (
	errEmptyBlob       = errors.New("empty blob")
	errDowngrade       = errors.New("plaintext blob while encryption is available")
	errSealedNoKey     = errors.New("sealed blob but no key")
	errUnknownEnvelope = errors.New("unknown envelope")
)

// encodeBlob serializes rec for the store. Without a key the refresh token is
// stripped and the record is written in plaintext.
func (m *Manager) encodeBlob(rec *session.Record) ([]byte, error) {
	sealed := m.sealer.Available()
	if !sealed && rec.RefreshToken != "" {
		rec = rec.Clone()
		rec.RefreshToken = ""
	}

	data, err := session.Encode(rec)
	if err != nil {
		return nil, err
	}
	if !sealed {
		return append([]byte{envelopePlain}, data...), nil
	}

	ct, err := m.sealer.Seal(data)
	if err != nil {
		return nil, err
	}
	return append([]byte{envelopeSealed}, ct...), nil
}

// decodeBlob reverses encodeBlob.
func (m *Manager) decodeBlob(blob []byte) (*session.Record, error) {
	if len(blob) == 0 {
		return nil, errEmptyBlob
	}
	body := blob[1:]

	switch blob[0] {
	case envelopeSealed:
		if !m.sealer.Available() {
			return nil, errSealedNoKey
		}
		pt, err := m.sealer.Unseal(body)
		if err != nil {
			return nil, err
		}
		return session.Decode(pt)
	case envelopePlain:
		if m.sealer.Available() {
			return nil, errDowngrade
		}
		return session.Decode(body)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", errUnknownEnvelope, blob[0])
	}
}

func (m *Manager) persist(rec *session.Record) {
	blob, err := m.encodeBlob(rec)
	if err != nil {
		m.metrics.Inc(MetricStoreFailure)
		m.logger.Printf("sessionguard: encode session failed session_id=%s err=%v", rec.SessionID, err)
		return
	}

	ctx, cancel := m.storeContext()
	defer cancel()
	if err := m.store.Save(ctx, blob); err != nil {
		m.metrics.Inc(MetricStoreFailure)
		m.logger.Printf("sessionguard: persist session failed session_id=%s store=%s err=%v",
			rec.SessionID, store.NameOf(m.store), err)
	}
}

func (m *Manager) clearStore() {
	ctx, cancel := m.storeContext()
	defer cancel()
	if err := m.store.Clear(ctx); err != nil {
		m.metrics.Inc(MetricStoreFailure)
		m.logger.Printf("sessionguard: clear session failed store=%s err=%v", store.NameOf(m.store), err)
	}
}

// restore installs the persisted session if it is intact and still valid.
// Every failure leaves the manager signed out; none is returned.
func (m *Manager) restore() {
	ctx, cancel := m.storeContext()
	blob, err := m.store.Load(ctx)
	cancel()
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.metrics.Inc(MetricStoreFailure)
			m.logger.Printf("sessionguard: restore load failed store=%s err=%v", store.NameOf(m.store), err)
		}
		return
	}

	rec, err := m.decodeBlob(blob)
	if err != nil {
		m.metrics.Inc(MetricIntegrityFailure)
		m.metrics.Inc(MetricRestoreDiscarded)
		m.logger.Printf("sessionguard: SECURITY discarding persisted session reason=%s err=%v", ReasonIntegrity, err)
		m.clearStore()
		return
	}

	now := m.clock.Now()
	if rec.CreatedAt.After(now) || rec.LastActivityAt.After(now) {
		m.metrics.Inc(MetricRestoreDiscarded)
		m.logger.Printf("sessionguard: discarding persisted session created in the future session_id=%s", rec.SessionID)
		m.clearStore()
		return
	}
	if !m.timeValid(rec, now) {
		m.metrics.Inc(MetricRestoreDiscarded)
		m.metrics.Inc(MetricSessionExpired)
		m.clearStore()
		reason := ReasonExpired
		if !m.expired(rec, now) {
			reason = ReasonIdleTimeout
		}
		m.emit(events.TypeExpired, rec, map[string]string{
			"reason":   string(reason),
			"restored": "true",
		})
		return
	}

	m.publish(StateActive, rec, "")
	m.arm(rec)
	m.emit(events.TypeCreated, rec, map[string]string{
		"role":     string(rec.Role),
		"restored": "true",
	})
	m.metrics.Inc(MetricSessionRestored)
}
