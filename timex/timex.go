// Package timex holds the seconds+nanoseconds time value used by the
// virtual timer scheduler.
//
// The sub-second field counts hardware ticks. How many of them make up one
// "second" and how many seconds make up one epoch are parameters rather
// than constants so that the scheduler can scale both together.
package timex

import "math"

// Time is a (seconds, nanoseconds) pair. Values are passed by copy and
// treated as immutable by convention.
type Time struct {
	Seconds     uint32
	Nanoseconds uint32
}

// Set constructs a Time from its two fields
func Set(seconds, nanoseconds uint32) Time {
	return Time{Seconds: seconds, Nanoseconds: nanoseconds}
}

// IsZero reports whether both fields are zero
func (t Time) IsZero() bool {
	return t.Seconds == 0 && t.Nanoseconds == 0
}

// Add adds two time values field-wise, carrying whole seconds out of the
// nanosecond field so that the result has Nanoseconds < nanosPerSecond.
func Add(a, b Time, nanosPerSecond uint32) Time {
	// Reduce both operands first so the sum cannot overflow uint32.
	aSec, aNs := a.Seconds+a.Nanoseconds/nanosPerSecond, a.Nanoseconds%nanosPerSecond
	bSec, bNs := b.Seconds+b.Nanoseconds/nanosPerSecond, b.Nanoseconds%nanosPerSecond

	result := Time{
		Seconds:     aSec + bSec,
		Nanoseconds: aNs + bNs,
	}
	if result.Nanoseconds >= nanosPerSecond {
		result.Nanoseconds -= nanosPerSecond
		result.Seconds++
	}
	return result
}

// CheckedAdd is Add that also reports whether the seconds fit in uint32
func CheckedAdd(a, b Time, nanosPerSecond uint32) (Time, bool) {
	seconds := uint64(a.Seconds) + uint64(b.Seconds) +
		uint64(a.Nanoseconds/nanosPerSecond) + uint64(b.Nanoseconds/nanosPerSecond) +
		uint64((a.Nanoseconds%nanosPerSecond+b.Nanoseconds%nanosPerSecond)/nanosPerSecond)
	return Add(a, b, nanosPerSecond), seconds <= math.MaxUint32
}

// NormalizeToEpoch rounds t.Seconds down to a multiple of epochSeconds and
// folds the remainder into t.Nanoseconds at nanosPerSecond per second.
//
// The folded value can land one epoch off in either direction: the uint32
// addition may wrap, or the result may exceed one epoch of nanoseconds. In
// both cases one epoch of nanoseconds is removed and epochSeconds is
// carried into Seconds. Applying it twice yields the same result as once.
func NormalizeToEpoch(t *Time, epochSeconds, nanosPerSecond uint32) {
	nanosPerEpoch := epochSeconds * nanosPerSecond

	rem := t.Seconds % epochSeconds
	t.Seconds -= rem

	ns := t.Nanoseconds + rem*nanosPerSecond
	if ns < t.Nanoseconds {
		// wrapped past 2^32
		ns -= nanosPerEpoch
		t.Seconds += epochSeconds
	}
	if ns > nanosPerEpoch {
		ns -= nanosPerEpoch
		t.Seconds += epochSeconds
	}
	t.Nanoseconds = ns
}
