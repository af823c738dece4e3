// Package clock abstracts wall-clock reads and one-shot timers so lifecycle
// logic can run against virtual time in tests.
//
// # What this package must NOT do
//
//   - Import sessionguard or any of its sub-packages.
//   - Start goroutines of its own beyond what time.AfterFunc does.
package clock

import "time"

// Timer is a cancelable one-shot timer.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call
	// stopped the timer (false if it already fired or was stopped).
	Stop() bool
}

// Clock supplies the current time and schedules callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
