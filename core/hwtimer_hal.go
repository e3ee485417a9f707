package core

// HardwareTimer is the single free-running counter with one absolute
// compare-and-interrupt channel that the scheduler multiplexes.
// Platform-specific implementations handle the actual peripheral.
type HardwareTimer interface {
	// Now returns the free-running counter. It wraps silently at 2^32.
	Now() uint32

	// ArmAbsolute programs the compare channel to call handler(arg) from
	// interrupt context once the counter reaches deadline.
	// Returns an id for Cancel, or an error if no channel is free.
	ArmAbsolute(deadline uint32, handler func(arg uint32), arg uint32) (int, error)

	// Cancel disarms a pending arming. Unknown ids are ignored.
	Cancel(id int)
}
