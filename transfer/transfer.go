package transfer

import (
	"context"
	"time"
)

// Transfer is one in-flight byte transfer driven chunk by chunk.
//
// Implementations own their payload and offset. The Notify methods are the
// driver's side of the callback contract: NotifyProgress may be called many
// times, and at most one of NotifyCompleted, NotifyFailed or NotifyCanceled
// is honoured between resets.
type Transfer interface {
	// SendNext transmits exactly one chunk at the current offset using the
	// current MTU and updates the offset (and, for downloads, the payload).
	// A device MTU rejection is reported as *InsufficientMTUError.
	SendNext(ctx context.Context) error

	// Reset returns the transfer to offset 0, clears accumulated data and
	// re-arms terminal-event eligibility.
	Reset()

	// IsFinished reports whether the payload is known and fully transferred.
	IsFinished() bool

	// Offset returns the number of payload bytes confirmed so far.
	Offset() int

	// Data returns the payload, or nil while it is still unknown.
	Data() []byte

	NotifyProgress(offset, total int, timestamp time.Time)
	NotifyCompleted()
	NotifyFailed(err error)
	NotifyCanceled()
}

// Controller pauses, resumes and cancels a running transfer. Each operation
// is idempotent and silently ignored in states where it does not apply.
type Controller interface {
	Pause()
	Resume()
	Cancel()
}

// identified is implemented by transfers that carry a log correlation id.
type identified interface {
	ID() string
}

func transferID(t Transfer) string {
	if i, ok := t.(identified); ok {
		return i.ID()
	}
	return ""
}
