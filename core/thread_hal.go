package core

// PID identifies a thread known to the thread scheduler
type PID int

// ThreadScheduler is the block/wake interface of the surrounding kernel.
type ThreadScheduler interface {
	// Current returns the PID of the calling thread
	Current() PID

	// Block suspends the calling thread until it is woken.
	// A wake delivered before Block must not be lost.
	Block()

	// Wake makes the given thread runnable again.
	// Called from interrupt context, so it must not block.
	Wake(pid PID)
}
