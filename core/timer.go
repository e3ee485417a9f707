package core

import "vtimer/timex"

// Timer is a caller-owned virtual timer.
//
// The scheduler never allocates or frees a Timer. From the moment it is
// armed until its Action has run, the Timer is linked into one of the
// scheduler's queues and must not be reused, moved or armed again.
type Timer struct {
	// Action runs in interrupt context when the deadline is reached.
	// It receives its own Timer, so a periodic timer can rearm itself
	// with Set. Payload travels in the closure.
	Action func(t *Timer)

	// Absolute holds the relative interval when passed to Set and the
	// normalized absolute deadline once armed.
	Absolute timex.Time

	priority uint32 // queue key: epoch (long-term) or offset (short-term)
	next     *Timer
}
