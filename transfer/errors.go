package transfer

import (
	"errors"
	"fmt"
)

// ErrContractViolation indicates a Transfer reported success for a chunk but
// still has no payload, or reported an offset outside its payload.
var ErrContractViolation = errors.New("transfer contract violation")

// ErrInvalidOffset indicates the device confirmed an offset that goes
// backwards or beyond the end of the payload.
var ErrInvalidOffset = errors.New("device reported invalid offset")

// ErrTransferStalled indicates the device kept answering without advancing
// the offset.
var ErrTransferStalled = errors.New("transfer stalled: offset did not advance")

// ErrSupervisorClosed indicates a transfer was submitted to a closed Supervisor.
var ErrSupervisorClosed = errors.New("transfer supervisor closed")

// InsufficientMTUError is returned by Transfer.SendNext when the device
// rejected a chunk because it exceeded the device's MTU. MTU carries the
// value advertised by the device.
type InsufficientMTUError struct {
	MTU int
}

// Error implements error.
func (e *InsufficientMTUError) Error() string {
	return fmt.Sprintf("insufficient mtu: device advertised %d", e.MTU)
}

// IsInsufficientMTU reports whether err carries an InsufficientMTUError and
// returns it.
func IsInsufficientMTU(err error) (*InsufficientMTUError, bool) {
	var mtuErr *InsufficientMTUError
	if errors.As(err, &mtuErr) {
		return mtuErr, true
	}
	return nil, false
}
