package core

import (
	"strconv"
	"strings"
)

// TraceEvent captures a scheduler event for post-mortem analysis
type TraceEvent struct {
	EventType uint8  // Event type code
	Clock     uint32 // Hardware counter at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtSetShort = 1 // Timer queued short-term: v1=epoch v2=offset
	EvtSetLong  = 2 // Timer queued long-term: v1=epoch v2=offset
	EvtArm      = 3 // Hardware armed: v1=deadline v2=id
	EvtBackoff  = 4 // Deadline already past: v1=requested v2=armed
	EvtFire     = 5 // Timer fired: v1=epoch v2=offset
	EvtTick     = 6 // Epoch advanced: v1=epoch v2=anchor
	EvtPromote  = 7 // Long-term timer promoted: v1=epoch v2=offset
	EvtStale    = 8 // Hardware fired for a cancelled arming: v1=arg v2=current
	EvtArmFail  = 9 // Hardware driver refused to arm: v1=deadline
)

const (
	TraceRingSize = 32 // Keep last 32 events for post-mortem

	tracePrefix = "[VTIMER] "
)

var traceNames = map[uint8]string{
	EvtSetShort: "SET_SHORT",
	EvtSetLong:  "SET_LONG",
	EvtArm:      "ARM",
	EvtBackoff:  "BACKOFF",
	EvtFire:     "FIRE",
	EvtTick:     "TICK",
	EvtPromote:  "PROMOTE",
	EvtStale:    "STALE",
	EvtArmFail:  "ARM_FAIL!",
}

// traceRing is a fixed-size, allocation-free event log
type traceRing struct {
	events   [TraceRingSize]TraceEvent
	head     uint8 // Next write position
	disabled bool
}

func (r *traceRing) record(eventType uint8, clock, value1, value2 uint32) {
	if r.disabled {
		return
	}
	idx := r.head
	r.events[idx] = TraceEvent{
		EventType: eventType,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	r.head = (idx + 1) % TraceRingSize
}

// snapshot returns the recorded events from oldest to newest
func (r *traceRing) snapshot() []TraceEvent {
	out := make([]TraceEvent, 0, TraceRingSize)
	start := r.head
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := r.events[(start+i)%TraceRingSize]
		if evt.EventType == 0 {
			continue // Empty slot
		}
		out = append(out, evt)
	}
	return out
}

func (r *traceRing) clear() {
	for i := range r.events {
		r.events[i] = TraceEvent{}
	}
	r.head = 0
}

// TraceName returns the printable name of an event type
func TraceName(eventType uint8) string {
	if name, ok := traceNames[eventType]; ok {
		return name
	}
	return "UNKNOWN"
}

// FormatTrace renders an event as a single trace line
func FormatTrace(evt TraceEvent) string {
	return tracePrefix + TraceName(evt.EventType) +
		" clock=" + utoa(evt.Clock) +
		" v1=" + utoa(evt.Value1) +
		" v2=" + utoa(evt.Value2)
}

// ParseTraceLine decodes a line produced by FormatTrace.
// Lines that are not trace lines return false.
func ParseTraceLine(line string) (TraceEvent, bool) {
	idx := strings.Index(line, tracePrefix)
	if idx < 0 {
		return TraceEvent{}, false
	}
	fields := strings.Fields(line[idx+len(tracePrefix):])
	if len(fields) != 4 {
		return TraceEvent{}, false
	}

	var evt TraceEvent
	for code, name := range traceNames {
		if name == fields[0] {
			evt.EventType = code
			break
		}
	}
	if evt.EventType == 0 {
		return TraceEvent{}, false
	}

	targets := []*uint32{&evt.Clock, &evt.Value1, &evt.Value2}
	keys := []string{"clock=", "v1=", "v2="}
	for i, field := range fields[1:] {
		value, ok := strings.CutPrefix(field, keys[i])
		if !ok {
			return TraceEvent{}, false
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return TraceEvent{}, false
		}
		*targets[i] = uint32(n)
	}
	return evt, true
}
