// Package simrun executes a scenario against the simulated hardware timer.
package simrun

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"vtimer/core"
	"vtimer/host/scenario"
	"vtimer/sim"
	"vtimer/timex"
)

// Firing is one observed timer action or thread wakeup
type Firing struct {
	Name  string
	Clock uint32     // hardware counter when it happened
	Now   timex.Time // virtual clock when it happened
}

// Result is what a scenario run observed
type Result struct {
	Firings []Firing
	Stats   core.Stats
	Trace   []core.TraceEvent
	End     timex.Time
}

// blockedPoll is how often the driver checks that sleepers have blocked
const blockedPoll = 100 * time.Microsecond

type runner struct {
	sc      *scenario.Scenario
	log     zerolog.Logger
	hw      *sim.HardwareTimer
	threads *sim.Threads
	sched   *core.Scheduler

	mu      sync.Mutex
	firings []Firing

	// sleepers that have not finished all their sleeps
	active atomic.Int32
}

// Run executes sc until its tick budget is spent and every sleeper is done
func Run(ctx context.Context, sc *scenario.Scenario, log zerolog.Logger) (*Result, error) {
	hw := sim.NewHardwareTimer(sc.Channels)
	threads := sim.NewThreads()
	sched, err := core.New(hw, threads, sc.Config)
	if err != nil {
		return nil, err
	}
	if err := sched.Init(); err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	r := &runner{
		sc:      sc,
		log:     log.With().Str("scenario", sc.Name).Logger(),
		hw:      hw,
		threads: threads,
		sched:   sched,
	}

	timers := make([]core.Timer, len(sc.Timers))
	for i, st := range sc.Timers {
		if err := r.armTimer(&timers[i], st); err != nil {
			return nil, err
		}
	}

	r.active.Store(int32(len(sc.Sleepers)))
	g, gctx := errgroup.WithContext(ctx)
	for _, sl := range sc.Sleepers {
		sl := sl
		g.Go(func() error {
			defer r.active.Add(-1)
			return r.sleep(gctx, sl)
		})
	}
	g.Go(func() error {
		return r.drive(gctx)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(r.firings, func(i, j int) bool {
		return r.firings[i].Clock < r.firings[j].Clock
	})
	return &Result{
		Firings: r.firings,
		Stats:   sched.Stats(),
		Trace:   sched.Trace(),
		End:     sched.Now(),
	}, nil
}

func (r *runner) record(name string) {
	f := Firing{Name: name, Clock: r.hw.Now(), Now: r.sched.Now()}

	r.mu.Lock()
	r.firings = append(r.firings, f)
	r.mu.Unlock()

	r.log.Debug().
		Str("name", name).
		Uint32("clock", f.Clock).
		Uint32("seconds", f.Now.Seconds).
		Uint32("nanoseconds", f.Now.Nanoseconds).
		Msg("fired")
}

// armTimer arms a callback timer that rearms itself st.Repeat times
func (r *runner) armTimer(t *core.Timer, st scenario.Timer) error {
	remaining := st.Repeat
	var action func(*core.Timer)
	action = func(t *core.Timer) {
		r.record(st.Name)
		remaining--
		if remaining > 0 {
			if err := r.sched.SetCB(t, st.Interval(), action); err != nil {
				r.log.Error().Err(err).Str("name", st.Name).Msg("rearm failed")
			}
		}
	}
	if err := r.sched.SetCB(t, st.Interval(), action); err != nil {
		return fmt.Errorf("arm timer %s: %w", st.Name, err)
	}
	return nil
}

func (r *runner) sleep(ctx context.Context, sl scenario.Sleeper) error {
	for i := 0; i < sl.Count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.sched.USleep(sl.USleep); err != nil {
			return fmt.Errorf("sleeper %s: %w", sl.Name, err)
		}
		r.record(sl.Name)
	}
	return nil
}

// drive advances the hardware counter in steps. Before each step it waits
// for every active sleeper to block so runs are repeatable.
func (r *runner) drive(ctx context.Context) error {
	var advanced uint32
	for advanced < r.sc.Run.Ticks || r.active.Load() > 0 {
		if err := r.waitBlocked(ctx); err != nil {
			r.release()
			return err
		}
		r.hw.Advance(r.sc.Run.Step)
		advanced += r.sc.Run.Step
		if advanced < r.sc.Run.Step {
			return errors.New("tick budget overflowed the counter")
		}
	}
	return nil
}

// release wakes sleepers until all of them have seen the cancellation
func (r *runner) release() {
	for r.active.Load() > 0 {
		r.threads.WakeAll()
		time.Sleep(blockedPoll)
	}
}

func (r *runner) waitBlocked(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if int32(r.threads.Blocked()) >= r.active.Load() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(blockedPoll):
		}
	}
}
