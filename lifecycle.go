package sessionguard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/carenest/sessionguard/events"
	"github.com/carenest/sessionguard/internal/timers"
	"github.com/carenest/sessionguard/session"
)

const maxIdentifierLength = 255

// Initialize sets up encryption and restores a persisted session. It is
// idempotent once it has succeeded.
//
// Encryption failure is logged and the manager continues in degraded mode
// unless Crypto.RequireEncryption is set, in which case the error is returned
// and Initialize may be retried.
func (m *Manager) Initialize(ctx context.Context) error {
	if m == nil {
		return ErrNotInitialized
	}
	var result error
	err := m.exec(ctx, func() {
		if m.initialized {
			return
		}
		if err := m.sealer.Initialize(); err != nil {
			m.metrics.Inc(MetricEncryptionDegraded)
			m.logger.Printf("sessionguard: SECURITY encryption unavailable algorithm=%s err=%v", m.sealer.Algorithm(), err)
			if m.cfg.Crypto.RequireEncryption {
				result = err
				return
			}
		}
		m.initialized = true
		m.publish(StateAbsent, nil, "")
		m.restore()
	})
	if err != nil {
		return err
	}
	return result
}

// CreateSession installs a new session for claims, superseding any current
// one. Persistence failures are logged and do not fail the call. When ctx
// ends before the manager picks the call up, nothing is committed and
// ctx.Err() is returned.
func (m *Manager) CreateSession(ctx context.Context, claims IdentityClaims) (SessionInfo, error) {
	if m == nil {
		return SessionInfo{}, ErrNotInitialized
	}
	if err := validateClaims(claims); err != nil {
		return SessionInfo{}, err
	}
	if claims.IPAddress == "" {
		claims.IPAddress = clientIPFromContext(ctx)
	}
	if claims.UserAgent == "" {
		claims.UserAgent = userAgentFromContext(ctx)
	}
	claims.IPAddress = truncate(claims.IPAddress, math.MaxUint8)
	claims.UserAgent = truncate(claims.UserAgent, math.MaxUint16)

	var (
		info   SessionInfo
		result error
	)
	err := m.exec(ctx, func() {
		info, result = m.create(claims)
	})
	if err != nil {
		return SessionInfo{}, err
	}
	return info, result
}

func validateClaims(claims IdentityClaims) error {
	if claims.UserID == "" {
		return fmt.Errorf("%w: user id required", ErrInvalidClaims)
	}
	if len(claims.UserID) > maxIdentifierLength {
		return fmt.Errorf("%w: user id too long", ErrInvalidClaims)
	}
	if !claims.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, claims.Role)
	}
	if len(claims.RefreshToken) > math.MaxUint16 {
		return fmt.Errorf("%w: refresh token too long", ErrInvalidClaims)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (m *Manager) create(claims IdentityClaims) (SessionInfo, error) {
	if !m.initialized {
		return SessionInfo{}, ErrNotInitialized
	}
	if m.cfg.Crypto.RequireEncryption && !m.sealer.Available() {
		return SessionInfo{}, fmt.Errorf("%w: refusing to create an unencrypted session", ErrEncryptionUnavailable)
	}

	perms, err := m.policy.Derive(string(claims.Role), claims.Grants)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("%w: %v", ErrInvalidRole, err)
	}

	m.terminate(ReasonSuperseded)

	now := m.clock.Now()
	rec := &session.Record{
		SessionID:      uuid.NewString(),
		UserID:         claims.UserID,
		Role:           claims.Role,
		Permissions:    perms,
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.cfg.Session.MaxAge),
		LastActivityAt: now,
		IPAddress:      claims.IPAddress,
		UserAgent:      claims.UserAgent,
		RefreshToken:   claims.RefreshToken,
	}

	m.publish(StateActive, rec, "")
	m.persist(rec)
	m.arm(rec)
	m.emit(events.TypeCreated, rec, map[string]string{
		"role":       string(rec.Role),
		"expires_at": rec.ExpiresAt.UTC().Format(time.RFC3339),
	})
	m.metrics.Inc(MetricSessionCreated)

	return infoFromRecord(rec), nil
}

// RecordActivity marks the session as used now and postpones the idle
// timeout. It is a no-op when no session is active or the tracker is off.
func (m *Manager) RecordActivity(ctx context.Context) error {
	if m == nil {
		return ErrNotInitialized
	}
	var result error
	err := m.exec(ctx, func() {
		result = m.recordActivity()
	})
	if err != nil {
		return err
	}
	return result
}

func (m *Manager) recordActivity() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	if !m.cfg.Activity.Enabled {
		return nil
	}
	rec := m.record
	if rec == nil {
		return nil
	}

	now := m.clock.Now()
	if m.idleExpired(rec, now) {
		m.terminate(ReasonIdleTimeout)
		return nil
	}
	if m.expired(rec, now) {
		m.expire()
		return nil
	}

	if now.Before(rec.LastActivityAt) {
		now = rec.LastActivityAt
	}
	next := rec.Clone()
	next.LastActivityAt = now

	m.publish(StateActive, next, "")
	m.sched.ResetIdle(next.SessionID, now.Add(m.cfg.Session.IdleTimeout))
	if m.persistLimiter == nil || m.persistLimiter.AllowN(now, 1) {
		m.persist(next)
	}
	m.emit(events.TypeActivity, next, nil)
	m.metrics.Inc(MetricActivityRecorded)
	return nil
}

// TerminateSession ends the current session. An empty reason means logout.
// Terminating when no session is active does nothing.
// Like CreateSession, a call still queued when ctx ends is dropped.
func (m *Manager) TerminateSession(ctx context.Context, reason TerminationReason) error {
	if m == nil {
		return ErrNotInitialized
	}
	if reason == "" {
		reason = ReasonLogout
	}
	if !reason.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidReason, reason)
	}
	var result error
	err := m.exec(ctx, func() {
		if !m.initialized {
			result = ErrNotInitialized
			return
		}
		m.terminate(reason)
	})
	if err != nil {
		return err
	}
	return result
}

// terminate cancels timers and any renewal, clears the store and emits
// terminated. It reports false when there was nothing to terminate.
func (m *Manager) terminate(reason TerminationReason) bool {
	rec := m.record
	if rec == nil {
		return false
	}

	m.sched.Cancel()
	if m.renewal != nil {
		m.renewal.stop()
		m.resolveRenewal(m.renewal, SessionInfo{}, fmt.Errorf("%w: session ended during renewal (%s)", ErrNoSession, reason))
		m.renewal = nil
	}

	m.publish(StateTerminated, nil, reason)
	m.clearStore()
	m.emit(events.TypeTerminated, rec, map[string]string{"reason": string(reason)})

	m.metrics.Inc(MetricSessionTerminated)
	if reason == ReasonIdleTimeout {
		m.metrics.Inc(MetricIdleTimeout)
	}
	m.logger.Printf("sessionguard: session terminated session_id=%s reason=%s", rec.SessionID, reason)
	return true
}

// expire ends the session at its absolute deadline.
func (m *Manager) expire() {
	rec := m.record
	if rec == nil {
		return
	}
	m.emit(events.TypeExpired, rec, map[string]string{
		"expires_at": rec.ExpiresAt.UTC().Format(time.RFC3339),
	})
	m.metrics.Inc(MetricSessionExpired)
	m.terminate(ReasonExpired)
}

/*
====================================
TIMERS
====================================
*/

func (m *Manager) handleTimer(f timers.Fire) {
	rec := m.record
	if rec == nil || rec.SessionID != f.SessionID || f.Generation != m.armGen {
		return
	}
	now := m.clock.Now()

	switch f.Kind {
	case timers.KindIdle:
		// activity may have re-armed the timer after this fire was queued
		if m.idleExpired(rec, now) {
			m.terminate(ReasonIdleTimeout)
		}

	case timers.KindRefresh:
		m.beginRefresh(nil)

	case timers.KindExpiry:
		// idle wins when both deadlines have passed
		if m.idleExpired(rec, now) {
			m.terminate(ReasonIdleTimeout)
			return
		}
		if m.expired(rec, now) {
			m.expire()
		}

	case timers.KindWarning:
		if m.renewal != nil || m.expired(rec, now) || m.idleExpired(rec, now) {
			return
		}
		remaining := rec.ExpiresAt.Sub(now)
		minutes := int(math.Ceil(remaining.Minutes()))
		m.emit(events.TypeWarning, rec, map[string]string{
			"minutes_remaining": strconv.Itoa(minutes),
			"expires_at":        rec.ExpiresAt.UTC().Format(time.RFC3339),
		})
		m.metrics.Inc(MetricWarningIssued)
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
