package activity

import (
	"context"
	"sync/atomic"
)

// Signal is a kind of user interaction.
type Signal string

const (
	SignalPointer    Signal = "pointer"
	SignalKeyboard   Signal = "keyboard"
	SignalTouch      Signal = "touch"
	SignalScroll     Signal = "scroll"
	SignalVisibility Signal = "visibility"
	SignalRequest    Signal = "request"
)

// Valid reports whether s is a known signal kind.
func (s Signal) Valid() bool {
	switch s {
	case SignalPointer, SignalKeyboard, SignalTouch, SignalScroll, SignalVisibility, SignalRequest:
		return true
	}
	return false
}

// Recorder receives activity. *sessionguard.Manager implements it.
type Recorder interface {
	RecordActivity(ctx context.Context) error
}

// Config controls a Tracker.
type Config struct {
	// Enabled false makes the tracker drop every signal.
	Enabled bool
}

// Tracker forwards activity signals to a Recorder.
type Tracker struct {
	recorder Recorder
	enabled  bool

	observed atomic.Uint64
	ignored  atomic.Uint64
}

// NewTracker returns a tracker bound to r.
func NewTracker(r Recorder, cfg Config) *Tracker {
	return &Tracker{recorder: r, enabled: cfg.Enabled && r != nil}
}

// Enabled reports whether signals are forwarded.
func (t *Tracker) Enabled() bool {
	return t != nil && t.enabled
}

// Observe forwards one signal. Unknown kinds and signals seen while the
// tracker is disabled are ignored.
func (t *Tracker) Observe(ctx context.Context, s Signal) error {
	if !t.Enabled() || !s.Valid() {
		if t != nil {
			t.ignored.Add(1)
		}
		return nil
	}
	t.observed.Add(1)
	return t.recorder.RecordActivity(ctx)
}

// Counts returns how many signals were forwarded and ignored.
func (t *Tracker) Counts() (observed, ignored uint64) {
	if t == nil {
		return 0, 0
	}
	return t.observed.Load(), t.ignored.Load()
}
