package transfer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MaxStalledChunks is the number of consecutive chunks a device may answer
// without advancing the offset before the transfer fails.
const MaxStalledChunks = 3

// Stats is a snapshot of transfer progress.
type Stats struct {
	Transferred int
	Total       int     // -1 while the payload size is unknown
	Speed       float64 // bytes per second
}

// base carries the bookkeeping shared by Upload and Download: payload,
// offset, speed tracking and the user callbacks.
type base struct {
	id string

	mu            sync.Mutex
	data          []byte
	offset        int
	stalled       int
	terminated    bool
	transferSpeed float64
	lastChunkTime time.Time
	timeProvider  TimeProvider

	progressCallback func(offset, total int, timestamp time.Time)
	completeCallback func()
	failedCallback   func(error)
	cancelCallback   func()
}

func (b *base) init(data []byte) {
	b.id = uuid.NewString()
	b.data = data
	b.timeProvider = defaultTimeProvider
	b.lastChunkTime = b.timeProvider.Now()
}

// ID returns the identifier used to correlate log lines of this transfer.
func (b *base) ID() string { return b.id }

// SetTimeProvider sets a custom time provider for deterministic testing.
func (b *base) SetTimeProvider(tp TimeProvider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeProvider = tp
	b.lastChunkTime = tp.Now()
}

// Offset returns the number of payload bytes confirmed by the device.
func (b *base) Offset() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.offset
}

// Data returns the payload, or nil while it is unknown.
func (b *base) Data() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// IsFinished reports whether the whole payload has been transferred.
func (b *base) IsFinished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data != nil && b.offset == len(b.data)
}

// Stats returns a snapshot of the transfer progress.
func (b *base) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := -1
	if b.data != nil {
		total = len(b.data)
	}
	return Stats{Transferred: b.offset, Total: total, Speed: b.transferSpeed}
}

// OnProgress sets the callback invoked after every confirmed chunk.
// This method is safe for concurrent use.
func (b *base) OnProgress(callback func(offset, total int, timestamp time.Time)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.progressCallback = callback
}

// OnComplete sets the callback invoked when the transfer completes.
func (b *base) OnComplete(callback func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completeCallback = callback
}

// OnFailed sets the callback invoked when the transfer fails.
func (b *base) OnFailed(callback func(error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failedCallback = callback
}

// OnCancel sets the callback invoked when the transfer is canceled.
func (b *base) OnCancel(callback func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelCallback = callback
}

// NotifyProgress forwards a progress event to the user callback.
func (b *base) NotifyProgress(offset, total int, timestamp time.Time) {
	b.mu.Lock()
	if b.terminated {
		b.mu.Unlock()
		return
	}
	cb := b.progressCallback
	b.mu.Unlock()

	if cb != nil {
		cb(offset, total, timestamp)
	}
}

// NotifyCompleted forwards the completion event, at most once per budget.
func (b *base) NotifyCompleted() {
	if cb, ok := b.terminate(func() func() { return b.completeCallback }); ok && cb != nil {
		cb()
	}
}

// NotifyCanceled forwards the cancel event, at most once per budget.
func (b *base) NotifyCanceled() {
	if cb, ok := b.terminate(func() func() { return b.cancelCallback }); ok && cb != nil {
		cb()
	}
}

// NotifyFailed forwards the failure event, at most once per budget.
func (b *base) NotifyFailed(err error) {
	b.mu.Lock()
	if b.terminated {
		b.mu.Unlock()
		return
	}
	b.terminated = true
	cb := b.failedCallback
	b.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "NotifyFailed",
		"transfer_id": b.id,
		"error":       err.Error(),
	}).Warn("Transfer failed")

	if cb != nil {
		cb(err)
	}
}

// terminate consumes the terminal-event budget and returns the selected
// callback. ok is false when the budget was already spent.
func (b *base) terminate(pick func() func()) (func(), bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.terminated {
		return nil, false
	}
	b.terminated = true
	return pick(), true
}

// resetBase rewinds the offset and re-arms the terminal-event budget.
func (b *base) resetBase(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = data
	b.offset = 0
	b.stalled = 0
	b.terminated = false
	b.transferSpeed = 0
	b.lastChunkTime = b.timeProvider.Now()
}

// advanceLocked moves the offset from prev to next after a confirmed chunk.
// The caller holds b.mu.
func (b *base) advanceLocked(prev, next int) error {
	if next < prev || next > len(b.data) {
		return fmt.Errorf("%w: offset %d after %d, payload size %d", ErrInvalidOffset, next, prev, len(b.data))
	}

	if next == prev {
		b.stalled++
		if b.stalled >= MaxStalledChunks {
			return fmt.Errorf("%w: %d chunks at offset %d", ErrTransferStalled, b.stalled, next)
		}
		return nil
	}

	b.stalled = 0
	b.offset = next
	b.updateTransferSpeed(uint64(next - prev))
	return nil
}

// updateTransferSpeed calculates the current transfer speed.
func (b *base) updateTransferSpeed(chunkSize uint64) {
	now := b.timeProvider.Now()
	duration := b.timeProvider.Since(b.lastChunkTime).Seconds()

	if duration > 0 {
		instantSpeed := float64(chunkSize) / duration

		// Exponential moving average with alpha = 0.3
		if b.transferSpeed == 0 {
			b.transferSpeed = instantSpeed
		} else {
			b.transferSpeed = 0.7*b.transferSpeed + 0.3*instantSpeed
		}
	}

	b.lastChunkTime = now
}
