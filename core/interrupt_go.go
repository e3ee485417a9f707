//go:build !tinygo

package core

import "sync"

// irqMask stands in for interrupt masking on regular Go, where the
// "interrupt" is a goroutine calling the dispatcher. A mutex per scheduler
// serializes it against thread code. Unlike real masking it does not nest,
// so scheduler code never enters a critical section twice.
type irqMask struct {
	mu sync.Mutex
}

// irqState is a placeholder for interrupt state on regular Go
type irqState struct{}

// disableInterrupts enters the critical section
func (m *irqMask) disableInterrupts() irqState {
	m.mu.Lock()
	return irqState{}
}

// restoreInterrupts leaves the critical section
func (m *irqMask) restoreInterrupts(irqState) {
	m.mu.Unlock()
}
