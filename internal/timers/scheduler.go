// Package timers arms the refresh, warning, idle and expiry timers of the
// active session and filters out fires that belong to an older arming.
package timers

import (
	"sync"
	"time"

	"github.com/carenest/sessionguard/clock"
)

// Kind identifies one of the session timers.
type Kind int

const (
	KindIdle Kind = iota
	KindRefresh
	KindWarning
	// KindExpiry fires at the absolute deadline. It stays armed while a
	// renewal is in flight.
	KindExpiry

	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindIdle:
		return "idle"
	case KindRefresh:
		return "refresh"
	case KindWarning:
		return "warning"
	case KindExpiry:
		return "expiry"
	default:
		return "unknown"
	}
}

// Fire describes a timer that became due.
type Fire struct {
	Kind       Kind
	SessionID  string
	Generation uint64
}

// Deadlines are absolute fire times. A zero time leaves that timer disarmed.
type Deadlines struct {
	Idle    time.Time
	Refresh time.Time
	Warning time.Time
	Expiry  time.Time
}

func (d Deadlines) at(k Kind) time.Time {
	switch k {
	case KindIdle:
		return d.Idle
	case KindRefresh:
		return d.Refresh
	case KindWarning:
		return d.Warning
	default:
		return d.Expiry
	}
}

type slot struct {
	timer clock.Timer
	token uint64
}

// Scheduler owns the timers of at most one session at a time.
//
// The callback runs on the clock's goroutine, never while the scheduler's
// lock is held, so it may block or call back into the scheduler.
type Scheduler struct {
	clock  clock.Clock
	onFire func(Fire)

	mu         sync.Mutex
	sessionID  string
	generation uint64
	nextToken  uint64
	slots      [kindCount]slot
}

// New returns a scheduler that reports due timers to onFire.
func New(c clock.Clock, onFire func(Fire)) *Scheduler {
	if c == nil {
		c = clock.Real()
	}
	return &Scheduler{clock: c, onFire: onFire}
}

// Arm cancels every armed timer and arms new ones for sessionID. Deadlines in
// the past fire immediately. It returns the new generation.
func (s *Scheduler) Arm(sessionID string, d Deadlines) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAllLocked()
	s.generation++
	s.sessionID = sessionID

	for k := Kind(0); k < kindCount; k++ {
		if at := d.at(k); !at.IsZero() {
			s.armLocked(k, at)
		}
	}
	return s.generation
}

// ResetIdle re-arms only the idle timer. It reports false when sessionID is
// not the armed session.
func (s *Scheduler) ResetIdle(sessionID string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionID == "" || s.sessionID != sessionID {
		return false
	}
	s.stopLocked(KindIdle)
	s.armLocked(KindIdle, at)
	return true
}

// Cancel stops every timer and forgets the armed session.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopAllLocked()
	s.generation++
	s.sessionID = ""
}

// Current returns the armed session and generation.
func (s *Scheduler) Current() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID, s.generation
}

// Armed reports whether a timer of kind k is pending.
func (s *Scheduler) Armed(k Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[k].timer != nil
}

func (s *Scheduler) armLocked(k Kind, at time.Time) {
	s.nextToken++
	token := s.nextToken
	sessionID := s.sessionID
	generation := s.generation

	delay := at.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.slots[k] = slot{
		token: token,
		timer: s.clock.AfterFunc(delay, func() {
			s.fire(k, token, Fire{Kind: k, SessionID: sessionID, Generation: generation})
		}),
	}
}

func (s *Scheduler) fire(k Kind, token uint64, f Fire) {
	s.mu.Lock()
	current := s.slots[k].token == token && s.sessionID == f.SessionID && s.generation == f.Generation
	if current {
		s.slots[k] = slot{}
	}
	s.mu.Unlock()

	if current && s.onFire != nil {
		s.onFire(f)
	}
}

func (s *Scheduler) stopLocked(k Kind) {
	if s.slots[k].timer != nil {
		s.slots[k].timer.Stop()
	}
	s.slots[k] = slot{}
}

func (s *Scheduler) stopAllLocked() {
	for k := Kind(0); k < kindCount; k++ {
		s.stopLocked(k)
	}
}
