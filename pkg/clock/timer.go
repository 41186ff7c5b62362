package clock

import "github.com/user/cistern"

// Timer is a start/stop elapsed-time window measured against a Clock.
// It mirrors the embedded Clock::startTimer/stopTimer/getElapsedTime
// contract: a stopped timer's elapsed value is unspecified, and elapsed
// time is computed with wraparound-safe unsigned subtraction so a
// single 2^32ms rollover (~49.7 days) still yields the correct forward
// difference.
type Timer struct {
	clk     cistern.Clock
	start   uint32
	running bool
}

// NewTimer binds a Timer to a clock. The timer starts stopped.
func NewTimer(clk cistern.Clock) *Timer {
	return &Timer{clk: clk}
}

// Start captures the current monotonic time and enters the running state.
func (t *Timer) Start() {
	t.start = t.clk.NowMillis()
	t.running = true
}

// Stop enters the stopped state without clearing the captured start time.
func (t *Timer) Stop() {
	t.running = false
}

// Running reports whether Start has been called more recently than Stop.
func (t *Timer) Running() bool {
	return t.running
}

// Elapsed returns now-start in modular arithmetic over uint32
// milliseconds. Callers must not rely on this value when the timer is
// stopped; Start must be called first.
func (t *Timer) Elapsed() uint32 {
	return t.clk.NowMillis() - t.start
}

// ElapsedAtLeast is a convenience guard combining Running and Elapsed,
// used pervasively by the fault-detection windows in pkg/watertank.
func (t *Timer) ElapsedAtLeast(d uint32) bool {
	return t.running && t.Elapsed() >= d
}
