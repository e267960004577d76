package transfer

import "fmt"

// State represents the lifecycle state of a Driver.
type State uint8

const (
	// StateNone indicates the driver has been constructed but not started.
	StateNone State = iota
	// StateTransfer indicates the driver is actively sending chunks.
	StateTransfer
	// StatePaused indicates the pause gate is closed and the driver is
	// blocked between chunks.
	StatePaused
	// StateClosed is terminal: set by cancel, failure or completion.
	StateClosed
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateTransfer:
		return "transfer"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}
