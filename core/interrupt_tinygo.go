//go:build tinygo

package core

import "runtime/interrupt"

// State is the saved machine interrupt enable
type State = interrupt.State

// DisableInterrupts masks interrupts and returns the previous state.
// DRAM bring-up runs with interrupts masked so the sequence is not split.
func DisableInterrupts() State {
	return interrupt.Disable()
}

// RestoreInterrupts restores the interrupt state
func RestoreInterrupts(state State) {
	interrupt.Restore(state)
}
