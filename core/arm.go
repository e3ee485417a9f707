package core

// rearm points the hardware at the head of the short-term queue.
// Must be called with interrupts disabled.
func (s *Scheduler) rearm() error {
	head := s.shortterm.peek()
	if head == nil {
		return nil
	}

	if s.hwID != noHardwareTimer {
		if s.hwNext == head.priority {
			return nil // Already armed for this deadline
		}
		s.hw.Cancel(s.hwID)
		s.hwID = noHardwareTimer
	}

	s.hwNext = head.priority

	_, tickStart := s.clock.load()
	next := s.hwNext + tickStart
	now := s.hw.Now()

	// Forward-progress guard. A deadline at or just behind now wraps to a
	// distance of nearly a whole counter period; arm it from now instead.
	if next-s.cfg.Threshold-now > s.nanosPerEpoch {
		s.stats.Backoffs++
		s.trace.record(EvtBackoff, now, next, now+s.cfg.Backoff)
		next = now + s.cfg.Backoff
	}

	s.armGen++
	id, err := s.hw.ArmAbsolute(next, s.dispatch, s.armGen)
	if err != nil {
		s.trace.record(EvtArmFail, now, next, 0)
		return &ArmError{Deadline: next, Cause: err}
	}
	if id < 0 {
		s.trace.record(EvtArmFail, now, next, 0)
		return &ArmError{Deadline: next, Cause: ErrNoHardwareTimer}
	}

	s.hwID = id
	s.stats.Arms++
	s.trace.record(EvtArm, now, next, uint32(id))
	return nil
}
