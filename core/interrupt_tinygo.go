//go:build tinygo

package core

import "runtime/interrupt"

// irqMask masks all interrupts; the state it returns makes nested use safe
type irqMask struct{}

type irqState = interrupt.State

// disableInterrupts disables interrupts and returns the previous state
func (m *irqMask) disableInterrupts() irqState {
	return interrupt.Disable()
}

// restoreInterrupts restores the interrupt state
func (m *irqMask) restoreInterrupts(state irqState) {
	interrupt.Restore(state)
}
