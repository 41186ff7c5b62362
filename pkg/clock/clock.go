// Package clock provides the monotonic millisecond source and the
// wrap-safe elapsed-time timer every fault-detection window in the core
// is built on.
package clock

import "time"

// System is the production cistern.Clock, backed by the process's
// monotonic clock and truncated to 32 bits the way an embedded millis()
// counter wraps at about 49.7 days.
type System struct {
	start time.Time
}

// NewSystem returns a Clock whose millisecond counter starts at zero at
// the moment of construction, mirroring a freshly booted controller.
func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) NowMillis() uint32 {
	return uint32(time.Since(s.start).Milliseconds())
}

// Fake is a test double that only advances when told to, so fault
// windows and wraparound can be exercised deterministically.
type Fake struct {
	now uint32
}

// NewFake returns a Fake clock starting at the given millisecond value.
func NewFake(startMillis uint32) *Fake {
	return &Fake{now: startMillis}
}

func (f *Fake) NowMillis() uint32 { return f.now }

// Advance moves the fake clock forward by delta milliseconds, wrapping
// at 2^32 the same as real hardware would.
func (f *Fake) Advance(delta uint32) {
	f.now += delta
}

// Set pins the fake clock to an absolute value, useful for placing it
// just before a wraparound boundary in tests.
func (f *Fake) Set(millis uint32) {
	f.now = millis
}
