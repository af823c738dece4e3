package sessionguard

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/carenest/sessionguard/activity"
	"github.com/carenest/sessionguard/audit"
	"github.com/carenest/sessionguard/clock"
	"github.com/carenest/sessionguard/events"
	"github.com/carenest/sessionguard/internal/timers"
	"github.com/carenest/sessionguard/permission"
	"github.com/carenest/sessionguard/seal"
	"github.com/carenest/sessionguard/session"
	"github.com/carenest/sessionguard/store"
)

const commandBuffer = 64

// Manager owns the single current session of a process.
//
// All mutators and timer fires are serialized through one command loop
// goroutine; queries read an atomically published snapshot and never block
// on the loop. Event handlers run on the loop goroutine and must not call
// mutators synchronously.
type Manager struct {
	cfg     Config
	clock   clock.Clock
	logger  *log.Logger
	store   store.Adapter
	sealer  *seal.Provider
	idp     IdentityProvider
	policy  *permission.Policy
	bus     *events.Bus
	audit   *audit.Dispatcher
	metrics *Metrics
	sched   *timers.Scheduler
	tracker *activity.Tracker

	persistLimiter *rate.Limiter

	snap atomic.Pointer[snapshot]

	cmds      chan func()
	done      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	// Owned by the loop goroutine.
	initialized bool
	record      *session.Record
	armGen      uint64
	renewal     *renewal
}

// snapshot is immutable once published.
type snapshot struct {
	state  State
	record *session.Record
	reason TerminationReason
}

func newManager(cfg Config, deps managerDeps) *Manager {
	m := &Manager{
		cfg:      cfg,
		clock:    deps.clock,
		logger:   deps.logger,
		store:    deps.store,
		sealer:   deps.sealer,
		idp:      deps.idp,
		policy:   deps.policy,
		metrics:  deps.metrics,
		cmds:     make(chan func(), commandBuffer),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	m.bus = events.NewBus(events.BusConfig{
		Logger: m.logger,
		OnPanic: func(events.Event, any) {
			m.metrics.Inc(MetricSubscriberPanic)
		},
	})
	m.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, deps.auditSink)
	m.audit.Attach(m.bus)

	m.sched = timers.New(m.clock, m.onTimer)
	m.tracker = activity.NewTracker(m, activity.Config{Enabled: cfg.Activity.Enabled})

	if cfg.Activity.PersistInterval > 0 {
		m.persistLimiter = rate.NewLimiter(rate.Every(cfg.Activity.PersistInterval), 1)
	}

	m.snap.Store(&snapshot{state: StateUninitialized})

	go m.loop()
	return m
}

func (m *Manager) loop() {
	defer close(m.loopDone)
	for {
		select {
		case fn := <-m.cmds:
			fn()
		case <-m.done:
			return
		}
	}
}

// exec runs fn on the loop and waits for it. fn either runs to completion
// and exec returns nil, or it never runs and exec returns the reason: a
// command still queued when ctx ends is dropped, but once the loop has
// started fn the caller waits for it even if ctx ends meanwhile.
func (m *Manager) exec(ctx context.Context, fn func()) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var state atomic.Int32
	finished := make(chan struct{})
	wrapped := func() {
		if !state.CompareAndSwap(cmdQueued, cmdRunning) {
			return
		}
		defer close(finished)
		fn()
	}

	select {
	case <-m.done:
		return ErrManagerClosed
	default:
	}

	select {
	case m.cmds <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrManagerClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		if state.CompareAndSwap(cmdQueued, cmdAbandoned) {
			return ctx.Err()
		}
	case <-m.loopDone:
		if state.CompareAndSwap(cmdQueued, cmdAbandoned) {
			return ErrManagerClosed
		}
	}
	// fn already started; the loop only exits between commands
	<-finished
	return nil
}

const (
	cmdQueued int32 = iota
	cmdRunning
	cmdAbandoned
)

// post queues fn without waiting. It gives up when the manager closes.
func (m *Manager) post(fn func()) {
	select {
	case m.cmds <- fn:
	case <-m.done:
	}
}

// flush waits until every command queued before it has run.
func (m *Manager) flush() {
	_ = m.exec(context.Background(), func() {})
}

func (m *Manager) onTimer(f timers.Fire) {
	m.post(func() { m.handleTimer(f) })
}

/*
====================================
QUERIES
====================================
*/

// State returns the current lifecycle state.
func (m *Manager) State() State {
	if m == nil {
		return StateUninitialized
	}
	return m.snap.Load().state
}

// TerminationReason returns why the last session ended, if it did.
func (m *Manager) TerminationReason() (TerminationReason, bool) {
	if m == nil {
		return "", false
	}
	s := m.snap.Load()
	return s.reason, s.state == StateTerminated
}

// Session returns the active session, or false when there is none.
func (m *Manager) Session() (SessionInfo, bool) {
	if m == nil {
		return SessionInfo{}, false
	}
	s := m.snap.Load()
	if s.state != StateActive || s.record == nil {
		return SessionInfo{}, false
	}
	return infoFromRecord(s.record), true
}

// IsAuthenticated reports whether a session is active and, by the clock,
// neither past its absolute expiry nor idle for IdleTimeout. A due timer that
// has not been processed yet therefore never makes a stale session look valid.
func (m *Manager) IsAuthenticated() bool {
	return m.liveRecord() != nil
}

// HasPermission reports whether the authenticated session carries perm.
func (m *Manager) HasPermission(perm string) bool {
	return m.liveRecord().HasPermission(perm)
}

// HasRole reports whether the authenticated session has role.
func (m *Manager) HasRole(role Role) bool {
	rec := m.liveRecord()
	return rec != nil && rec.Role == role
}

// TimeToExpiry returns the time left until absolute expiry, or zero.
func (m *Manager) TimeToExpiry() time.Duration {
	rec := m.liveRecord()
	if rec == nil {
		return 0
	}
	return rec.ExpiresAt.Sub(m.clock.Now())
}

func (m *Manager) liveRecord() *session.Record {
	if m == nil {
		return nil
	}
	s := m.snap.Load()
	if s.state != StateActive || s.record == nil {
		return nil
	}
	if !m.timeValid(s.record, m.clock.Now()) {
		return nil
	}
	return s.record
}

// timeValid treats both deadlines as exclusive: at now == ExpiresAt the
// session is already over, matching the instant the timers fire.
func (m *Manager) timeValid(rec *session.Record, now time.Time) bool {
	return !m.expired(rec, now) && !m.idleExpired(rec, now)
}

func (m *Manager) expired(rec *session.Record, now time.Time) bool {
	return !now.Before(rec.ExpiresAt)
}

func (m *Manager) idleExpired(rec *session.Record, now time.Time) bool {
	return !now.Before(rec.LastActivityAt.Add(m.cfg.Session.IdleTimeout))
}

/*
====================================
SUBSCRIPTIONS AND ACCESSORS
====================================
*/

// Subscribe registers h for lifecycle events and returns a function that
// removes it.
func (m *Manager) Subscribe(h events.Handler) (unsubscribe func()) {
	if m == nil {
		return func() {}
	}
	id := m.bus.Subscribe(h)
	return func() { m.bus.Unsubscribe(id) }
}

// Tracker returns the activity tracker bound to this manager.
func (m *Manager) Tracker() *activity.Tracker {
	if m == nil {
		return nil
	}
	return m.tracker
}

// Metrics returns the manager's metric set.
func (m *Manager) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

// MetricsSnapshot copies the current metric values.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	if m == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return m.metrics.Snapshot()
}

// AuditDropped returns how many events the audit relay discarded.
func (m *Manager) AuditDropped() uint64 {
	if m == nil {
		return 0
	}
	return m.audit.Dropped()
}

// Close stops timers, any in-flight renewal and the command loop, and
// flushes the audit relay. The persisted session is left in place so a
// later process can restore it. Close is idempotent.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.closeOnce.Do(func() {
		_ = m.exec(context.Background(), func() {
			m.sched.Cancel()
			if m.renewal != nil {
				m.renewal.stop()
				m.resolveRenewal(m.renewal, SessionInfo{}, ErrManagerClosed)
				m.renewal = nil
			}
		})
		close(m.done)
		<-m.loopDone
		m.audit.Close()
	})
}

/*
====================================
LOOP HELPERS
====================================
*/

func (m *Manager) publish(state State, rec *session.Record, reason TerminationReason) {
	m.record = rec
	m.snap.Store(&snapshot{state: state, record: rec, reason: reason})
}

func (m *Manager) emit(typ events.Type, rec *session.Record, data map[string]string) {
	e := events.Event{
		Type:      typ,
		Timestamp: m.clock.Now(),
		Data:      data,
	}
	if rec != nil {
		e.SessionID = rec.SessionID
		e.UserID = rec.UserID
	}
	m.bus.Publish(e)
}

func (m *Manager) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.cfg.Store.Timeout)
}

func (m *Manager) arm(rec *session.Record) {
	d := timers.Deadlines{
		Idle:   rec.LastActivityAt.Add(m.cfg.Session.IdleTimeout),
		Expiry: rec.ExpiresAt,
	}
	if m.refreshConfigured() {
		d.Refresh = rec.ExpiresAt.Add(-m.cfg.Session.RefreshThreshold)
	}
	if m.cfg.Session.WarningWindow > 0 {
		d.Warning = rec.ExpiresAt.Add(-m.cfg.Session.WarningWindow)
	}
	m.armGen = m.sched.Arm(rec.SessionID, d)
}

func (m *Manager) refreshConfigured() bool {
	return m.cfg.Refresh.Enabled && m.idp != nil
}
