package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/mcumgr/limits"
	"github.com/opd-ai/mcumgr/smp"
)

var (
	// ErrTimeout is returned when no response arrives within the request timeout.
	ErrTimeout = errors.New("smp request timed out")

	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("transport closed")

	// ErrNoResponse is returned when a handler produces no response frame.
	ErrNoResponse = errors.New("no response from handler")

	// ErrRequestInFlight is returned when a request with the same group and
	// sequence number is already waiting for its response.
	ErrRequestInFlight = errors.New("request with same group and sequence in flight")
)

// FrameTooLargeError reports a frame that cannot be sent on a transport.
type FrameTooLargeError struct {
	Size  int
	Limit int
}

// Error implements error.
func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame of %d bytes exceeds transport limit %d", e.Size, e.Limit)
}

// Unwrap lets errors.Is match limits.ErrFrameTooLarge.
func (e *FrameTooLargeError) Unwrap() error {
	return limits.ErrFrameTooLarge
}

// checkFrameSize rejects serialized frames above limit.
func checkFrameSize(data []byte, limit int) error {
	if err := limits.ValidateFrameSize(data, limit); err != nil {
		if errors.Is(err, limits.ErrFrameTooLarge) {
			return &FrameTooLargeError{Size: len(data), Limit: limit}
		}
		return err
	}
	return nil
}

// Transport carries SMP requests to a device and returns its response.
// Implementations must be safe for concurrent use.
type Transport interface {
	// Send transmits a request frame and waits for the matching response.
	Send(ctx context.Context, frame *smp.Frame) (*smp.Frame, error)

	// Close shuts down the transport.
	Close() error
}

// Handler answers SMP requests. A nil response means the request is dropped.
type Handler interface {
	HandleFrame(frame *smp.Frame) *smp.Frame
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(frame *smp.Frame) *smp.Frame

// HandleFrame calls f(frame).
func (f HandlerFunc) HandleFrame(frame *smp.Frame) *smp.Frame {
	return f(frame)
}

// pendingKey matches a response to its request.
type pendingKey struct {
	group smp.Group
	seq   uint8
}

func keyOf(frame *smp.Frame) pendingKey {
	return pendingKey{group: frame.Header.Group, seq: frame.Header.Seq}
}
