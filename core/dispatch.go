package core

// dispatch is the hardware timer handler. It runs in interrupt context,
// fires the earliest short-term timer and rearms for the next one.
func (s *Scheduler) dispatch(gen uint32) {
	state := s.irq.disableInterrupts()

	// The driver may have consumed an alarm right before it was cancelled.
	if gen != s.armGen || s.hwID == noHardwareTimer {
		s.stats.Stale++
		s.trace.record(EvtStale, s.hw.Now(), gen, s.armGen)
		s.irq.restoreInterrupts(state)
		return
	}

	s.inCallback = true
	s.hwID = noHardwareTimer

	t := s.shortterm.pop()
	if t == nil {
		s.irq.restoreInterrupts(state)
		panic("vtimer: hardware fired with an empty short-term queue")
	}
	s.stats.Fired++
	s.trace.record(EvtFire, s.hw.Now(), t.Absolute.Seconds, t.Absolute.Nanoseconds)

	s.irq.restoreInterrupts(state)

	// Actions may call Set; those calls queue without touching the hardware.
	t.Action(t)

	state = s.irq.disableInterrupts()
	defer s.irq.restoreInterrupts(state)

	s.inCallback = false
	if err := s.rearm(); err != nil {
		s.stats.ArmFailures++
		DebugAsync("vtimer: rearm after dispatch failed: " + err.Error())
	}
}
