// Package sim provides hosted stand-ins for the hardware and kernel
// collaborators of the virtual timer scheduler.
package sim

import (
	"errors"
	"sync"
)

// ErrNoChannel is returned when every compare channel is in use
var ErrNoChannel = errors.New("all compare channels armed")

type alarm struct {
	id       int
	deadline uint32
	handler  func(arg uint32)
	arg      uint32
	seq      uint64
}

// HardwareTimer simulates a free-running 32-bit counter with a small
// number of absolute compare channels. Time only moves when Advance is
// called, and alarm handlers run on the goroutine that advances it.
type HardwareTimer struct {
	mu       sync.Mutex
	now      uint32
	channels int
	alarms   map[int]*alarm
	nextID   int
	seq      uint64

	arms     int
	cancels  int
	fired    int
	deadline []uint32
}

// NewHardwareTimer creates a counter at zero with the given number of
// compare channels (at least one)
func NewHardwareTimer(channels int) *HardwareTimer {
	if channels < 1 {
		channels = 1
	}
	return &HardwareTimer{
		channels: channels,
		alarms:   make(map[int]*alarm),
	}
}

// Now returns the counter
func (h *HardwareTimer) Now() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

// SetTime moves the counter without firing anything
func (h *HardwareTimer) SetTime(ticks uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = ticks
}

// ArmAbsolute arms a free compare channel
func (h *HardwareTimer) ArmAbsolute(deadline uint32, handler func(arg uint32), arg uint32) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.alarms) >= h.channels {
		return -1, ErrNoChannel
	}

	id := h.nextID
	h.nextID++
	h.seq++
	h.alarms[id] = &alarm{
		id:       id,
		deadline: deadline,
		handler:  handler,
		arg:      arg,
		seq:      h.seq,
	}
	h.arms++
	h.deadline = append(h.deadline, deadline)
	return id, nil
}

// Cancel disarms a channel
func (h *HardwareTimer) Cancel(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.alarms[id]; ok {
		delete(h.alarms, id)
		h.cancels++
	}
}

// nextDue returns the armed alarm that comes up first within limit ticks.
// Must be called with h.mu held.
func (h *HardwareTimer) nextDue(limit uint32) (*alarm, uint32) {
	var due *alarm
	var dist uint32
	for _, a := range h.alarms {
		d := a.deadline - h.now
		if d > limit {
			continue
		}
		if due == nil || d < dist || (d == dist && a.seq < due.seq) {
			due, dist = a, d
		}
	}
	return due, dist
}

// Advance moves the counter forward by ticks, delivering each alarm it
// passes in deadline order. Handlers may arm and cancel channels.
func (h *HardwareTimer) Advance(ticks uint32) {
	remaining := ticks
	for {
		h.mu.Lock()
		due, dist := h.nextDue(remaining)
		if due == nil {
			h.now += remaining
			h.mu.Unlock()
			return
		}
		h.now += dist
		remaining -= dist
		delete(h.alarms, due.id)
		h.fired++
		h.mu.Unlock()

		due.handler(due.arg)
	}
}

// AdvanceToNext moves the counter to the earliest armed deadline and
// fires it. Returns false if nothing is armed.
func (h *HardwareTimer) AdvanceToNext() bool {
	h.mu.Lock()
	due, dist := h.nextDue(^uint32(0))
	h.mu.Unlock()
	if due == nil {
		return false
	}
	h.Advance(dist)
	return true
}

// Armed returns the earliest armed deadline
func (h *HardwareTimer) Armed() (uint32, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	due, _ := h.nextDue(^uint32(0))
	if due == nil {
		return 0, false
	}
	return due.deadline, true
}

// ArmCount returns how many times ArmAbsolute succeeded
func (h *HardwareTimer) ArmCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.arms
}

// CancelCount returns how many armed channels were cancelled
func (h *HardwareTimer) CancelCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancels
}

// FiredCount returns how many alarms were delivered
func (h *HardwareTimer) FiredCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fired
}

// Deadlines returns every deadline ever armed, in order
func (h *HardwareTimer) Deadlines() []uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]uint32, len(h.deadline))
	copy(out, h.deadline)
	return out
}
