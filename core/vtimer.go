// Virtual timers multiplexed onto a single hardware alarm.
// Timers due in the current epoch sit in the short-term queue and drive
// the hardware; timers for later epochs wait in the long-term queue until
// the epoch tick promotes them.
package core

import (
	"errors"

	"vtimer/timex"
)

var (
	ErrNoHardwareTimer   = errors.New("no hardware timer available")
	ErrNotInitialized    = errors.New("virtual timer scheduler not initialized")
	ErrNoThreadScheduler = errors.New("no thread scheduler configured")
	ErrNoAction          = errors.New("timer has no action")
	ErrInterval          = errors.New("timer interval overflows the epoch counter")
)

// ArmError reports a hardware driver that could not be armed
type ArmError struct {
	Deadline uint32
	Cause    error
}

func (e *ArmError) Error() string {
	return "arm hardware timer at " + utoa(e.Deadline) + ": " + e.Cause.Error()
}

// Unwrap matches both ErrNoHardwareTimer and the driver's own error
func (e *ArmError) Unwrap() []error {
	return []error{ErrNoHardwareTimer, e.Cause}
}

const noHardwareTimer = -1

// Stats counts scheduler activity since Init
type Stats struct {
	Arms        uint32 // hardware armings
	Backoffs    uint32 // deadlines found in the past and armed from now
	Fired       uint32 // timers whose action ran
	Ticks       uint32 // epoch advances
	Promotions  uint32 // long-term timers moved short-term
	Stale       uint32 // hardware firings for cancelled armings
	ArmFailures uint32 // rearms that failed in interrupt context
}

// Scheduler is one virtual timer context bound to one hardware timer
type Scheduler struct {
	cfg           Config
	nanosPerEpoch uint32

	hw      HardwareTimer
	threads ThreadScheduler

	irq irqMask

	// Epoch counter (high 32 bits) and tick anchor (low 32 bits), stored
	// together so Now can read a consistent pair without masking.
	clock clockWord

	longterm  timerQueue
	shortterm timerQueue
	tickTimer Timer

	hwID   int    // outstanding arming, or noHardwareTimer
	hwNext uint32 // short-term priority the hardware is armed for
	armGen uint32 // passed to the driver to spot stale firings

	inCallback  bool
	initialized bool

	trace traceRing
	stats Stats
}

// New creates a scheduler. threads may be nil if Sleep, USleep and
// SetWakeup are never used.
func New(hw HardwareTimer, threads ThreadScheduler, cfg Config) (*Scheduler, error) {
	if hw == nil {
		return nil, errors.New("hardware timer driver is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Scheduler{
		cfg:           cfg,
		nanosPerEpoch: cfg.NanosPerEpoch(),
		hw:            hw,
		threads:       threads,
		hwID:          noHardwareTimer,
	}, nil
}

// Config returns the constants the scheduler was built with
func (s *Scheduler) Config() Config {
	return s.cfg
}

// Init resets the virtual clock to epoch zero, starts the epoch tick and
// arms the hardware. Calling it again drops every queued timer.
func (s *Scheduler) Init() error {
	state := s.irq.disableInterrupts()
	defer s.irq.restoreInterrupts(state)

	if s.hwID != noHardwareTimer {
		s.hw.Cancel(s.hwID)
		s.hwID = noHardwareTimer
	}
	s.longterm = timerQueue{}
	s.shortterm = timerQueue{}
	s.inCallback = false
	s.stats = Stats{}

	s.clock.store(0, s.hw.Now())

	s.tickTimer = Timer{
		Action:   s.tick,
		Absolute: timex.Set(0, s.nanosPerEpoch),
	}
	s.shortterm.add(&s.tickTimer, s.nanosPerEpoch)
	s.initialized = true

	DebugPrintln("vtimer: init, epoch is " + utoa(s.nanosPerEpoch) + " ticks")
	return s.rearm()
}

// Set arms t. On entry t.Absolute holds the interval from now; on return
// it holds the normalized absolute deadline. An interval that would
// carry the epoch counter past 2^32 is rejected with ErrInterval and t is
// left untouched.
func (s *Scheduler) Set(t *Timer) error {
	if t.Action == nil {
		return ErrNoAction
	}

	state := s.irq.disableInterrupts()
	defer s.irq.restoreInterrupts(state)

	if !s.initialized {
		return ErrNotInitialized
	}

	seconds, _ := s.clock.load()
	interval := t.Absolute
	deadline, ok := timex.CheckedAdd(s.Now(), interval, s.cfg.NanosPerSecond)
	timex.NormalizeToEpoch(&deadline, s.cfg.EpochSeconds, s.cfg.NanosPerSecond)

	// A wrapped epoch would sit at the head of the long-term queue and
	// block every promotion behind it.
	if !ok || deadline.Seconds < seconds {
		return ErrInterval
	}
	t.Absolute = deadline

	// Compensate for the time spent normalizing so a deadline right at
	// the start of the clock is not missed.
	if t.Absolute.Seconds == 0 && t.Absolute.Nanoseconds > s.cfg.Nudge {
		t.Absolute.Nanoseconds -= s.cfg.Nudge
	}

	if t.Absolute.Seconds != seconds {
		s.longterm.add(t, t.Absolute.Seconds)
		s.trace.record(EvtSetLong, s.hw.Now(), t.Absolute.Seconds, t.Absolute.Nanoseconds)
		return nil
	}

	s.shortterm.add(t, t.Absolute.Nanoseconds)
	s.trace.record(EvtSetShort, s.hw.Now(), t.Absolute.Seconds, t.Absolute.Nanoseconds)

	// From inside an action the dispatcher rearms once it is done.
	if s.inCallback {
		return nil
	}
	return s.rearm()
}

// SetCB arms t to run action after interval
func (s *Scheduler) SetCB(t *Timer, interval timex.Time, action func(t *Timer)) error {
	t.Action = action
	t.Absolute = interval
	return s.Set(t)
}

// SetWakeup arms t to wake thread pid after interval
func (s *Scheduler) SetWakeup(t *Timer, interval timex.Time, pid PID) error {
	if s.threads == nil {
		return ErrNoThreadScheduler
	}
	threads := s.threads
	return s.SetCB(t, interval, func(*Timer) {
		threads.Wake(pid)
	})
}

// Sleep blocks the calling thread for interval. The Timer lives on the
// caller's stack, which stays valid until the wakeup has fired.
func (s *Scheduler) Sleep(interval timex.Time) error {
	if s.threads == nil {
		return ErrNoThreadScheduler
	}

	var t Timer
	if err := s.SetWakeup(&t, interval, s.threads.Current()); err != nil {
		return err
	}
	s.threads.Block()
	return nil
}

// USleep blocks the calling thread for usecs hardware ticks
func (s *Scheduler) USleep(usecs uint32) error {
	return s.Sleep(timex.Set(0, usecs))
}

// Stats returns a copy of the activity counters
func (s *Scheduler) Stats() Stats {
	state := s.irq.disableInterrupts()
	defer s.irq.restoreInterrupts(state)
	return s.stats
}

// Pending returns how many timers wait in the long-term and short-term
// queues. The internal epoch tick counts as short-term.
func (s *Scheduler) Pending() (longterm, shortterm int) {
	state := s.irq.disableInterrupts()
	defer s.irq.restoreInterrupts(state)
	return s.longterm.len, s.shortterm.len
}

// Trace returns the recorded events from oldest to newest
func (s *Scheduler) Trace() []TraceEvent {
	state := s.irq.disableInterrupts()
	defer s.irq.restoreInterrupts(state)
	return s.trace.snapshot()
}

// SetTraceEnabled turns event recording on or off (on by default)
func (s *Scheduler) SetTraceEnabled(enabled bool) {
	state := s.irq.disableInterrupts()
	defer s.irq.restoreInterrupts(state)
	s.trace.disabled = !enabled
}

// ClearTrace empties the event ring
func (s *Scheduler) ClearTrace() {
	state := s.irq.disableInterrupts()
	defer s.irq.restoreInterrupts(state)
	s.trace.clear()
}

// DumpTrace writes the event ring through the debug writer.
// Call it after stopping time-critical code.
func (s *Scheduler) DumpTrace() {
	if debugPrintln == nil {
		return
	}
	events := s.Trace()
	stats := s.Stats()

	debugPrintln("[VTIMER] === Trace Dump ===")
	debugPrintln("[VTIMER] arms=" + utoa(stats.Arms) + " fired=" + utoa(stats.Fired) +
		" ticks=" + utoa(stats.Ticks) + " backoffs=" + utoa(stats.Backoffs))
	for _, evt := range events {
		debugPrintln(FormatTrace(evt))
	}
	debugPrintln("[VTIMER] === End Dump ===")
}
