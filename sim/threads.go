package sim

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"

	"vtimer/core"
)

// Threads maps goroutines onto kernel-style threads with block and wake.
// Each goroutine gets a PID the first time it asks for one.
type Threads struct {
	mu       sync.Mutex
	pids     map[uint64]core.PID
	wake     map[core.PID]chan struct{}
	sleeping map[core.PID]bool
	nextPID  core.PID
	blocked  int
}

// NewThreads creates an empty thread table
func NewThreads() *Threads {
	return &Threads{
		pids:     make(map[uint64]core.PID),
		wake:     make(map[core.PID]chan struct{}),
		sleeping: make(map[core.PID]bool),
		nextPID:  1,
	}
}

// Current returns the PID of the calling goroutine
func (t *Threads) Current() core.PID {
	gid := goroutineID()

	t.mu.Lock()
	defer t.mu.Unlock()

	pid, ok := t.pids[gid]
	if !ok {
		pid = t.nextPID
		t.nextPID++
		t.pids[gid] = pid
	}
	return pid
}

// Block suspends the calling goroutine until its PID is woken
func (t *Threads) Block() {
	pid := t.Current()

	t.mu.Lock()
	ch := t.channelLocked(pid)
	select {
	case <-ch:
		t.mu.Unlock()
		return
	default:
	}
	t.sleeping[pid] = true
	t.blocked++
	t.mu.Unlock()

	<-ch
}

// Wake makes pid runnable. A wake with nobody blocked is kept until the
// next Block; repeated wakes collapse into one. The woken goroutine stops
// counting as blocked as soon as Wake returns.
func (t *Threads) Wake(pid core.PID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sleeping[pid] {
		delete(t.sleeping, pid)
		t.blocked--
	}
	select {
	case t.channelLocked(pid) <- struct{}{}:
	default:
	}
}

// WakeAll wakes every blocked goroutine
func (t *Threads) WakeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for pid := range t.sleeping {
		delete(t.sleeping, pid)
		t.blocked--
		select {
		case t.channelLocked(pid) <- struct{}{}:
		default:
		}
	}
}

// Blocked returns how many goroutines are inside Block
func (t *Threads) Blocked() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocked
}

func (t *Threads) channelLocked(pid core.PID) chan struct{} {
	ch, ok := t.wake[pid]
	if !ok {
		ch = make(chan struct{}, 1)
		t.wake[pid] = ch
	}
	return ch
}

// goroutineID parses the id from the "goroutine N [...]" stack header
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(field, ' '); i >= 0 {
		field = field[:i]
	}
	id, err := strconv.ParseUint(string(field), 10, 64)
	if err != nil {
		panic("sim: cannot parse goroutine id: " + err.Error())
	}
	return id
}
