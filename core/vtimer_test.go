package core_test

import (
	"math/rand"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vtimer/core"
	"vtimer/sim"
	"vtimer/timex"
)

// smallEpoch keeps epochs at 1000 ticks so tests can cross them cheaply
func smallEpoch() core.Config {
	return core.Config{
		EpochSeconds:   1,
		NanosPerSecond: 1000,
		Threshold:      core.DefaultThreshold,
		Backoff:        core.DefaultBackoff,
		Nudge:          core.DefaultNudge,
	}
}

func newScheduler(t *testing.T, cfg core.Config) (*core.Scheduler, *sim.HardwareTimer, *sim.Threads) {
	t.Helper()
	hw := sim.NewHardwareTimer(1)
	threads := sim.NewThreads()
	s, err := core.New(hw, threads, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Init())
	return s, hw, threads
}

// recorder collects action labels in firing order
type recorder struct {
	hw    *sim.HardwareTimer
	order []string
	at    []uint32
}

func (r *recorder) action(label string) func(*core.Timer) {
	return func(*core.Timer) {
		r.order = append(r.order, label)
		r.at = append(r.at, r.hw.Now())
	}
}

func TestNewValidatesConfig(t *testing.T) {
	hw := sim.NewHardwareTimer(1)

	_, err := core.New(nil, nil, core.DefaultConfig())
	assert.Error(t, err)

	bad := core.DefaultConfig()
	bad.EpochSeconds = 8192 // 8.192e9 ticks does not fit 32 bits
	_, err = core.New(hw, nil, bad)
	assert.Error(t, err)

	s, err := core.New(hw, nil, core.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, uint32(4096000000), s.Config().NanosPerEpoch())
}

func TestSetBeforeInit(t *testing.T) {
	s, err := core.New(sim.NewHardwareTimer(1), nil, smallEpoch())
	require.NoError(t, err)

	var tm core.Timer
	err = s.SetCB(&tm, timex.Set(0, 10), func(*core.Timer) {})
	assert.ErrorIs(t, err, core.ErrNotInitialized)
}

func TestSetWithoutAction(t *testing.T) {
	s, _, _ := newScheduler(t, smallEpoch())

	var tm core.Timer
	tm.Absolute = timex.Set(0, 10)
	assert.ErrorIs(t, s.Set(&tm), core.ErrNoAction)
}

func TestInitArmsEpochTick(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())

	deadline, ok := hw.Armed()
	require.True(t, ok)
	assert.Equal(t, uint32(1000), deadline)
	assert.Equal(t, 1, hw.ArmCount())

	long, short := s.Pending()
	assert.Zero(t, long)
	assert.Equal(t, 1, short)
	assert.Equal(t, timex.Set(0, 0), s.Now())
}

func TestFiringOrderAcrossEpoch(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())
	rec := &recorder{hw: hw}

	var t100, t50, tNext core.Timer
	require.NoError(t, s.SetCB(&t100, timex.Set(0, 100), rec.action("offset-100")))
	require.NoError(t, s.SetCB(&t50, timex.Set(0, 50), rec.action("offset-50")))
	require.NoError(t, s.SetCB(&tNext, timex.Set(1, 0), rec.action("next-epoch")))

	long, short := s.Pending()
	require.Equal(t, 1, long, "the (1, 0) timer belongs to the next epoch")
	require.Equal(t, 3, short)

	hw.Advance(999)
	if diff := cmp.Diff([]string{"offset-50", "offset-100"}, rec.order); diff != "" {
		t.Fatalf("firing order before the epoch tick (-want +got):\n%s", diff)
	}

	hw.Advance(100)
	want := []string{"offset-50", "offset-100", "next-epoch"}
	if diff := cmp.Diff(want, rec.order); diff != "" {
		t.Errorf("firing order (-want +got):\n%s", diff)
	}
	assert.Equal(t, uint32(1), s.Stats().Promotions)
	assert.Equal(t, uint32(1), s.Stats().Ticks)
}

func TestDistinctOffsetsFireInOrder(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())
	rec := &recorder{hw: hw}

	rng := rand.New(rand.NewSource(7))
	offsets := rng.Perm(900)[:40]
	timers := make([]core.Timer, len(offsets))
	label := func(off int) string { return "offset-" + strconv.Itoa(off+20) }
	for i, off := range offsets {
		interval := timex.Set(0, uint32(off+20))
		require.NoError(t, s.SetCB(&timers[i], interval, rec.action(label(off))))
	}

	hw.Advance(990)

	// Offsets closer than the threshold are armed with backoff, so only
	// the order is exact here.
	sorted := append([]int(nil), offsets...)
	sort.Ints(sorted)
	want := make([]string, len(sorted))
	for i, off := range sorted {
		want[i] = label(off)
	}
	if diff := cmp.Diff(want, rec.order); diff != "" {
		t.Errorf("firing order (-want +got):\n%s", diff)
	}
}

func TestSpacedOffsetsFireOnTime(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())
	rec := &recorder{hw: hw}

	// 25 ticks apart is wider than the 20 tick threshold, so no deadline
	// is ever backed off.
	rng := rand.New(rand.NewSource(11))
	slots := rng.Perm(35)
	timers := make([]core.Timer, len(slots))
	for i, slot := range slots {
		interval := timex.Set(0, uint32(slot*25+50))
		require.NoError(t, s.SetCB(&timers[i], interval, rec.action("slot-"+strconv.Itoa(slot))))
	}

	hw.Advance(990)
	require.Len(t, rec.at, len(slots))
	for slot := range slots {
		assert.Equal(t, "slot-"+strconv.Itoa(slot), rec.order[slot])
		// deadlines in epoch zero are pulled in by the nudge
		assert.Equal(t, uint32(slot*25+50-core.DefaultNudge), rec.at[slot])
	}
	assert.Zero(t, s.Stats().Backoffs)
}

func TestOverflowingIntervalIsRejected(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())
	hw.Advance(1000)
	require.Equal(t, timex.Set(1, 0), s.Now())

	fired := 0
	var huge core.Timer
	err := s.SetCB(&huge, timex.Set(^uint32(0), 0), func(*core.Timer) { fired++ })
	assert.ErrorIs(t, err, core.ErrInterval)
	assert.Equal(t, timex.Set(^uint32(0), 0), huge.Absolute, "rejected timer keeps its interval")

	// The carry out of the nanosecond field overflows too.
	err = s.SetCB(&huge, timex.Set(^uint32(0)-1, 2000), func(*core.Timer) { fired++ })
	assert.ErrorIs(t, err, core.ErrInterval)

	long, _ := s.Pending()
	require.Zero(t, long)

	// Later long-term timers are still promoted.
	var later core.Timer
	require.NoError(t, s.SetCB(&later, timex.Set(1, 500), func(*core.Timer) { fired++ }))
	hw.Advance(2000)
	assert.Equal(t, 1, fired)
}

func TestLateTickAnchorsAtDispatch(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())

	// Fires at 985, leaving the tick at 1000 inside the threshold: the
	// tick is armed a backoff from now and runs at 995.
	var tm core.Timer
	require.NoError(t, s.SetCB(&tm, timex.Set(0, 995), func(*core.Timer) {}))

	hw.Advance(995)
	require.Equal(t, uint32(1), s.Stats().Ticks)
	assert.Equal(t, uint32(1), s.Stats().Backoffs)

	// The new epoch starts at the reading the tick ran at, so the
	// virtual clock is 5 ticks ahead of the hardware from here on.
	assert.Equal(t, timex.Set(1, 0), s.Now())
	deadline, ok := hw.Armed()
	require.True(t, ok)
	assert.Equal(t, uint32(1995), deadline)
}

func TestEqualDeadlinesFireInArmingOrder(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())
	rec := &recorder{hw: hw}

	labels := []string{"first", "second", "third", "fourth"}
	timers := make([]core.Timer, len(labels))
	for i, label := range labels {
		require.NoError(t, s.SetCB(&timers[i], timex.Set(0, 400), rec.action(label)))
	}

	hw.Advance(500)
	if diff := cmp.Diff(labels, rec.order); diff != "" {
		t.Errorf("tie order (-want +got):\n%s", diff)
	}
}

func TestRearmIsIdempotent(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())
	require.Equal(t, 1, hw.ArmCount())

	var early, later core.Timer
	require.NoError(t, s.SetCB(&early, timex.Set(0, 500), func(*core.Timer) {}))
	require.Equal(t, 2, hw.ArmCount(), "earlier head re-arms the hardware")

	// Head unchanged: no new arming.
	require.NoError(t, s.SetCB(&later, timex.Set(0, 800), func(*core.Timer) {}))
	assert.Equal(t, 2, hw.ArmCount())
	assert.Equal(t, 1, hw.CancelCount())
}

func TestZeroIntervalAtEpochStartFires(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())

	fired := 0
	var tm core.Timer
	require.NoError(t, s.SetCB(&tm, timex.Set(0, 0), func(*core.Timer) { fired++ }))

	deadline, ok := hw.Armed()
	require.True(t, ok)
	assert.Equal(t, uint32(core.DefaultBackoff), deadline, "deadline at the counter must be armed a backoff ahead")

	hw.Advance(core.DefaultBackoff)
	assert.Equal(t, 1, fired)
}

func TestNudgedDeadlineBehindCounterStillFires(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())

	hw.SetTime(8)
	fired := false
	var tm core.Timer
	// (0, 8) + (0, 3) = (0, 11), nudged to (0, 1): already behind the counter.
	require.NoError(t, s.SetCB(&tm, timex.Set(0, 3), func(*core.Timer) { fired = true }))
	assert.Equal(t, timex.Set(0, 1), tm.Absolute)

	hw.Advance(core.DefaultBackoff)
	assert.True(t, fired)
	assert.Equal(t, uint32(1), s.Stats().Backoffs)
}

func TestSetFromActionRearmsOnce(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())

	var outer, inner1, inner2, inner3 core.Timer
	armsBefore := -1
	require.NoError(t, s.SetCB(&outer, timex.Set(0, 100), func(*core.Timer) {
		armsBefore = hw.ArmCount()
		require.NoError(t, s.SetCB(&inner1, timex.Set(0, 300), func(*core.Timer) {}))
		require.NoError(t, s.SetCB(&inner2, timex.Set(0, 200), func(*core.Timer) {}))
		require.NoError(t, s.SetCB(&inner3, timex.Set(0, 250), func(*core.Timer) {}))
		assert.Equal(t, armsBefore, hw.ArmCount(), "Set inside an action must not touch the hardware")
	}))

	hw.Advance(90)
	require.NotEqual(t, -1, armsBefore, "outer timer did not fire")
	assert.Equal(t, armsBefore+1, hw.ArmCount(), "one rearm after the dispatcher completes")

	deadline, ok := hw.Armed()
	require.True(t, ok)
	assert.Equal(t, inner2.Absolute.Nanoseconds, deadline)
}

func TestPeriodicTimerAcrossEpochs(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())

	var fires []uint32
	var periodic core.Timer
	var rearm func(*core.Timer)
	rearm = func(tm *core.Timer) {
		fires = append(fires, hw.Now())
		require.NoError(t, s.SetCB(tm, timex.Set(0, 300), rearm))
	}
	require.NoError(t, s.SetCB(&periodic, timex.Set(0, 300), rearm))

	hw.Advance(3500)

	require.GreaterOrEqual(t, len(fires), 10)
	for i := 1; i < len(fires); i++ {
		gap := fires[i] - fires[i-1]
		assert.Contains(t, []uint32{290, 300}, gap, "gap %d between fire %d and %d", gap, i-1, i)
	}
	assert.Equal(t, uint32(3), s.Stats().Ticks)
}

func TestLongTermTimerFiresAtDeadline(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())

	var firedAt uint32
	var tm core.Timer
	require.NoError(t, s.SetCB(&tm, timex.Set(3, 250), func(*core.Timer) { firedAt = hw.Now() }))
	assert.Equal(t, timex.Set(3, 250), tm.Absolute)

	long, _ := s.Pending()
	require.Equal(t, 1, long)

	hw.Advance(3249)
	assert.Zero(t, firedAt)
	hw.Advance(1)
	assert.Equal(t, uint32(3250), firedAt)
}

func TestNowAcrossEpochWrap(t *testing.T) {
	cfg := smallEpoch()
	cfg.EpochSeconds = 4
	cfg.NanosPerSecond = 250 // still 1000 ticks per epoch
	s, hw, _ := newScheduler(t, cfg)

	hw.Advance(999)
	before := s.Now()
	assert.Equal(t, timex.Set(0, 999), before)

	hw.Advance(1)
	after := s.Now()
	assert.Equal(t, before.Seconds+cfg.EpochSeconds, after.Seconds, "epoch advances by the per-wrap amount")
	assert.Equal(t, uint32(0), after.Nanoseconds, "offset restarts at the new anchor")

	hw.Advance(123)
	assert.Equal(t, timex.Set(4, 123), s.Now())
}

func TestHardwareCounterWrap(t *testing.T) {
	s, hw, _ := newScheduler(t, core.DefaultConfig())

	// 4_096_000_000 ticks per epoch; the counter wraps at 2^32 inside the
	// second epoch.
	hw.Advance(4096000000)
	require.Equal(t, timex.Set(4096, 0), s.Now())

	var firedAt uint32
	var tm core.Timer
	// 300_000_000 ticks puts the deadline past the 2^32 counter wrap.
	require.NoError(t, s.SetCB(&tm, timex.Set(300, 0), func(*core.Timer) { firedAt = hw.Now() }))

	hw.Advance(300000000)
	assert.Equal(t, uint32((4096000000+300000000)%(1<<32)), firedAt)
}

func TestUSleepBlocksUntilFired(t *testing.T) {
	s, hw, threads := newScheduler(t, smallEpoch())

	done := make(chan error, 1)
	go func() {
		done <- s.USleep(500)
	}()

	require.Eventually(t, func() bool { return threads.Blocked() == 1 }, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("USleep returned before the timer fired")
	default:
	}

	hw.Advance(500)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sleeping thread was not woken")
	}
}

func TestSleepWithoutThreadScheduler(t *testing.T) {
	s, err := core.New(sim.NewHardwareTimer(1), nil, smallEpoch())
	require.NoError(t, err)
	require.NoError(t, s.Init())

	assert.ErrorIs(t, s.Sleep(timex.Set(0, 1)), core.ErrNoThreadScheduler)
	var tm core.Timer
	assert.ErrorIs(t, s.SetWakeup(&tm, timex.Set(0, 1), 1), core.ErrNoThreadScheduler)
}

func TestInitFailsWithoutFreeChannel(t *testing.T) {
	hw := sim.NewHardwareTimer(1)
	_, err := hw.ArmAbsolute(5, func(uint32) {}, 0)
	require.NoError(t, err)

	s, err := core.New(hw, nil, smallEpoch())
	require.NoError(t, err)

	err = s.Init()
	assert.ErrorIs(t, err, core.ErrNoHardwareTimer)
	assert.ErrorIs(t, err, sim.ErrNoChannel)
}

func TestTraceRecordsLifecycle(t *testing.T) {
	s, hw, _ := newScheduler(t, smallEpoch())

	var tm core.Timer
	require.NoError(t, s.SetCB(&tm, timex.Set(0, 100), func(*core.Timer) {}))
	hw.Advance(1000)

	var kinds []uint8
	for _, evt := range s.Trace() {
		kinds = append(kinds, evt.EventType)
	}
	assert.Contains(t, kinds, uint8(core.EvtSetShort))
	assert.Contains(t, kinds, uint8(core.EvtFire))
	assert.Contains(t, kinds, uint8(core.EvtTick))

	s.ClearTrace()
	assert.Empty(t, s.Trace())

	s.SetTraceEnabled(false)
	require.NoError(t, s.SetCB(&tm, timex.Set(0, 100), func(*core.Timer) {}))
	assert.Empty(t, s.Trace())
}
