package sessionguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carenest/sessionguard/clock"
	"github.com/carenest/sessionguard/events"
	"github.com/carenest/sessionguard/permission"
)

// renewal is an identity provider call in flight. Concurrent refresh
// requests wait on the same renewal.
type renewal struct {
	sessionID string
	started   time.Time
	cancel    context.CancelFunc
	// deadline runs on the manager clock and fails the renewal even when the
	// provider ignores its context.
	deadline clock.Timer
	waiters  []chan refreshResult
}

func (r *renewal) stop() {
	r.cancel()
	if r.deadline != nil {
		r.deadline.Stop()
	}
}

type refreshResult struct {
	info SessionInfo
	err  error
}

// RefreshSession renews the session through the identity provider, bounded
// by Refresh.Timeout. On any failure the session is terminated with
// refresh_failed and the returned error wraps ErrRefreshFailure.
func (m *Manager) RefreshSession(ctx context.Context) (SessionInfo, error) {
	if m == nil {
		return SessionInfo{}, ErrNotInitialized
	}
	wait := make(chan refreshResult, 1)
	err := m.exec(ctx, func() {
		if !m.initialized {
			wait <- refreshResult{err: ErrNotInitialized}
			return
		}
		m.beginRefresh(wait)
	})
	if err != nil {
		return SessionInfo{}, err
	}

	select {
	case res := <-wait:
		return res.info, res.err
	case <-ctx.Done():
		return SessionInfo{}, ctx.Err()
	}
}

// beginRefresh starts a renewal or joins the one in flight. wait, when not
// nil, must be buffered and receives exactly one result.
func (m *Manager) beginRefresh(wait chan refreshResult) {
	rec := m.record
	if rec == nil {
		deliver(wait, refreshResult{err: ErrNoSession})
		return
	}

	now := m.clock.Now()
	if m.idleExpired(rec, now) {
		m.terminate(ReasonIdleTimeout)
		deliver(wait, refreshResult{err: fmt.Errorf("%w: idle timeout", ErrNoSession)})
		return
	}
	if m.expired(rec, now) {
		m.expire()
		deliver(wait, refreshResult{err: fmt.Errorf("%w: session expired", ErrNoSession)})
		return
	}

	if m.renewal != nil {
		if wait != nil {
			m.renewal.waiters = append(m.renewal.waiters, wait)
		}
		return
	}

	var reason string
	switch {
	case !m.refreshConfigured():
		reason = "no identity provider configured"
	case rec.RefreshToken == "":
		reason = "no refresh token"
	}
	if reason != "" {
		m.failRefresh(rec.SessionID, errors.New(reason))
		deliver(wait, refreshResult{err: fmt.Errorf("%w: %s", ErrRefreshFailure, reason)})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Refresh.Timeout)
	r := &renewal{
		sessionID: rec.SessionID,
		started:   now,
		cancel:    cancel,
	}
	if wait != nil {
		r.waiters = append(r.waiters, wait)
	}
	m.renewal = r
	r.deadline = m.clock.AfterFunc(m.cfg.Refresh.Timeout, func() {
		m.post(func() {
			m.finishRefresh(r, Renewal{}, context.DeadlineExceeded, m.clock.Now().Sub(r.started))
		})
	})

	token := rec.RefreshToken
	idp := m.idp
	go func() {
		begin := time.Now()
		ren, err := idp.Renew(ctx, token)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		latency := time.Since(begin)
		m.post(func() { m.finishRefresh(r, ren, err, latency) })
	}()
}

func (m *Manager) finishRefresh(r *renewal, ren Renewal, err error, latency time.Duration) {
	if m.renewal != r {
		// terminated or superseded while the provider was working
		return
	}
	m.renewal = nil
	r.stop()
	m.metrics.Observe(MetricRefreshLatency, latency)

	rec := m.record
	if rec == nil || rec.SessionID != r.sessionID {
		m.resolveRenewal(r, SessionInfo{}, ErrNoSession)
		return
	}

	now := m.clock.Now()
	if m.idleExpired(rec, now) {
		m.terminate(ReasonIdleTimeout)
		m.resolveRenewal(r, SessionInfo{}, fmt.Errorf("%w: idle timeout", ErrNoSession))
		return
	}

	if err == nil {
		err = m.checkRenewal(ren, now)
	}
	if err != nil {
		m.failRefresh(rec.SessionID, err)
		m.resolveRenewal(r, SessionInfo{}, fmt.Errorf("%w: %v", ErrRefreshFailure, err))
		return
	}

	next := rec.Clone()
	next.ExpiresAt = ren.ExpiresAt
	next.LastActivityAt = now
	if ren.Role != "" && ren.Role != rec.Role {
		next.Role = ren.Role
		if ren.Permissions == nil {
			// checkRenewal already verified the role is derivable
			next.Permissions, _ = m.policy.Derive(string(ren.Role), nil)
		}
	}
	if ren.Permissions != nil {
		next.Permissions = permission.Normalize(ren.Permissions)
	}
	if ren.RefreshToken != "" {
		next.RefreshToken = ren.RefreshToken
	}

	m.publish(StateActive, next, "")
	m.persist(next)
	m.arm(next)
	m.emit(events.TypeRenewed, next, map[string]string{
		"expires_at": next.ExpiresAt.UTC().Format(time.RFC3339),
	})
	m.metrics.Inc(MetricRefreshSuccess)

	m.resolveRenewal(r, infoFromRecord(next), nil)
}

func (m *Manager) checkRenewal(ren Renewal, now time.Time) error {
	if !ren.ExpiresAt.After(now) {
		return errors.New("renewal expiry is not in the future")
	}
	if ren.Role != "" {
		if !ren.Role.Valid() {
			return fmt.Errorf("renewal carries unknown role %q", ren.Role)
		}
		if ren.Permissions == nil && !m.policy.HasRole(string(ren.Role)) {
			return fmt.Errorf("no capabilities configured for role %q", ren.Role)
		}
	}
	if len(ren.RefreshToken) > 1<<16-1 {
		return errors.New("renewal refresh token too long")
	}
	return nil
}

func (m *Manager) failRefresh(sessionID string, err error) {
	m.metrics.Inc(MetricRefreshFailure)
	if isContextError(err) {
		m.logger.Printf("sessionguard: refresh timed out session_id=%s err=%v", sessionID, err)
	} else {
		m.logger.Printf("sessionguard: refresh failed session_id=%s err=%v", sessionID, err)
	}
	m.terminate(ReasonRefreshFailed)
}

func (m *Manager) resolveRenewal(r *renewal, info SessionInfo, err error) {
	for _, w := range r.waiters {
		deliver(w, refreshResult{info: info, err: err})
	}
	r.waiters = nil
}

func deliver(ch chan refreshResult, res refreshResult) {
	if ch == nil {
		return
	}
	select {
	case ch <- res:
	default:
	}
}
