package transfer

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Driver executes a single Transfer to a terminal state and doubles as its
// Controller.
//
// The state mutex guards O(1) transitions only. It is never held across
// SendNext or a user callback, so Pause and Cancel take effect within one
// outstanding chunk and may be called from inside callbacks.
//
// A chunk confirmed after Pause was called during its SendNext still reports
// its progress; the driver blocks before sending the next one.
type Driver struct {
	transfer Transfer

	mu            sync.Mutex
	state         State
	emitting      bool // a progress callback is being delivered
	cancelPending bool // Cancel arrived while emitting
	gate          *pauseGate
	timeProvider  TimeProvider
}

// NewDriver creates a driver for t in StateNone.
func NewDriver(t Transfer) *Driver {
	return &Driver{
		transfer:     t,
		state:        StateNone,
		gate:         newPauseGate(),
		timeProvider: defaultTimeProvider,
	}
}

// SetTimeProvider sets the clock used for progress timestamps.
func (d *Driver) SetTimeProvider(tp TimeProvider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeProvider = tp
}

// Transfer returns the driven transfer.
func (d *Driver) Transfer() Transfer {
	return d.transfer
}

// State returns the current driver state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Pause closes the pause gate. Only a driver in StateTransfer can be paused.
func (d *Driver) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateTransfer {
		return
	}
	d.state = StatePaused
	d.gate.shut()

	logrus.WithFields(logrus.Fields{
		"function":    "Pause",
		"transfer_id": transferID(d.transfer),
	}).Info("Transfer paused")
}

// Resume opens the pause gate. Only a driver in StatePaused can be resumed.
func (d *Driver) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StatePaused {
		return
	}
	d.state = StateTransfer
	d.gate.open()

	logrus.WithFields(logrus.Fields{
		"function":    "Resume",
		"transfer_id": transferID(d.transfer),
	}).Info("Transfer resumed")
}

// Cancel closes the driver and notifies the transfer. A paused driver wakes
// up, observes StateClosed and returns. When the cancel lands while a
// progress callback is being delivered, the cancel notification is delivered
// by the driver as soon as that callback returns.
func (d *Driver) Cancel() {
	d.mu.Lock()
	if d.state == StateClosed {
		d.mu.Unlock()
		return
	}
	d.state = StateClosed
	d.gate.open()
	deferred := d.emitting
	if deferred {
		d.cancelPending = true
	}
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "Cancel",
		"transfer_id": transferID(d.transfer),
		"deferred":    deferred,
	}).Info("Transfer canceled")

	if !deferred {
		d.transfer.NotifyCanceled()
	}
}

// Run drives the transfer until it completes, fails or is canceled, and
// returns it. The only error Run returns is *InsufficientMTUError: on that
// path no terminal callback is delivered and the state is left untouched so
// that the caller may reset the transfer and run again.
//
// If ctx is done while the driver waits on the pause gate, the transfer is
// canceled. ctx is also passed to SendNext.
func (d *Driver) Run(ctx context.Context) (Transfer, error) {
	d.mu.Lock()
	switch d.state {
	case StateClosed:
		d.mu.Unlock()
		return d.transfer, nil
	case StateNone:
		d.state = StateTransfer
	}
	d.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "Run",
		"transfer_id": transferID(d.transfer),
		"offset":      d.transfer.Offset(),
	}).Debug("Driver running")

	for !d.transfer.IsFinished() {
		if err := d.gate.wait(ctx); err != nil {
			d.Cancel()
			return d.transfer, nil
		}

		switch d.State() {
		case StateClosed:
			return d.transfer, nil
		case StatePaused:
			continue
		}

		if err := d.transfer.SendNext(ctx); err != nil {
			if mtuErr, ok := IsInsufficientMTU(err); ok {
				logrus.WithFields(logrus.Fields{
					"function":    "Run",
					"transfer_id": transferID(d.transfer),
					"device_mtu":  mtuErr.MTU,
				}).Warn("Device rejected chunk size")
				return d.transfer, mtuErr
			}
			d.fail(err)
			return d.transfer, nil
		}

		if !d.emitProgress() {
			return d.transfer, nil
		}
	}

	d.complete()
	return d.transfer, nil
}

// emitProgress performs the post-chunk checks and delivers one progress
// notification. It returns false when the driver must stop.
func (d *Driver) emitProgress() bool {
	d.mu.Lock()
	if d.state == StateClosed {
		d.mu.Unlock()
		return false
	}

	data := d.transfer.Data()
	offset := d.transfer.Offset()
	if data == nil || offset < 0 || offset > len(data) {
		d.state = StateClosed
		d.mu.Unlock()
		d.transfer.NotifyFailed(fmt.Errorf("%w: offset %d, data known %t", ErrContractViolation, offset, data != nil))
		return false
	}

	d.emitting = true
	now := d.timeProvider.Now()
	d.mu.Unlock()

	d.transfer.NotifyProgress(offset, len(data), now)

	d.mu.Lock()
	d.emitting = false
	canceled := d.cancelPending
	d.cancelPending = false
	d.mu.Unlock()

	if canceled {
		d.transfer.NotifyCanceled()
		return false
	}
	return true
}

// fail closes the driver and reports err, unless it is already closed.
func (d *Driver) fail(err error) {
	if !d.close() {
		return
	}
	d.transfer.NotifyFailed(err)
}

func (d *Driver) complete() {
	if !d.close() {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":    "complete",
		"transfer_id": transferID(d.transfer),
		"size":        len(d.transfer.Data()),
	}).Info("Transfer completed")

	d.transfer.NotifyCompleted()
}

// close transitions to StateClosed and reports whether this call did it.
func (d *Driver) close() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateClosed {
		return false
	}
	d.state = StateClosed
	d.gate.open()
	return true
}
