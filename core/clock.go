package core

import (
	"sync/atomic"

	"vtimer/timex"
)

// clockWord packs the epoch counter and the tick anchor into one word
type clockWord struct {
	v atomic.Uint64
}

func (c *clockWord) store(seconds, tickStart uint32) {
	c.v.Store(uint64(seconds)<<32 | uint64(tickStart))
}

func (c *clockWord) load() (seconds, tickStart uint32) {
	v := c.v.Load()
	return uint32(v >> 32), uint32(v)
}

// Now returns the virtual clock: the epoch counter and the ticks elapsed
// since the last epoch rollover. It does not mask interrupts and may be
// stale by the latency of a rollover that is in flight.
func (s *Scheduler) Now() timex.Time {
	seconds, tickStart := s.clock.load()
	return timex.Set(seconds, s.hw.Now()-tickStart)
}

// tick is the action of the internal epoch timer. It fires once per epoch,
// advances the counter, re-anchors at the current hardware reading and
// promotes the long-term timers that just became current.
func (s *Scheduler) tick(t *Timer) {
	state := s.irq.disableInterrupts()
	defer s.irq.restoreInterrupts(state)

	seconds, _ := s.clock.load()
	seconds += s.cfg.EpochSeconds
	// The anchor is the reading at dispatch, not the scheduled deadline.
	// A tick armed with backoff shifts the virtual clock by the difference
	// between the two, once per epoch.
	anchor := s.hw.Now()
	s.clock.store(seconds, anchor)
	s.stats.Ticks++
	s.trace.record(EvtTick, anchor, seconds, anchor)

	t.Absolute = timex.Set(seconds, s.nanosPerEpoch)
	s.shortterm.add(t, s.nanosPerEpoch)

	// Matching timers form a prefix of the long-term queue.
	for head := s.longterm.peek(); head != nil && head.Absolute.Seconds == seconds; head = s.longterm.peek() {
		s.longterm.pop()
		s.shortterm.add(head, head.Absolute.Nanoseconds)
		s.stats.Promotions++
		s.trace.record(EvtPromote, anchor, head.Absolute.Seconds, head.Absolute.Nanoseconds)
	}

	if err := s.rearm(); err != nil {
		s.stats.ArmFailures++
		DebugAsync("vtimer: tick rearm failed: " + err.Error())
	}
}
