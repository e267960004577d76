package transport

import (
	"context"
	"sync"

	"github.com/opd-ai/mcumgr/limits"
	"github.com/opd-ai/mcumgr/smp"
)

// Loopback delivers frames to an in-process Handler. Frames are serialized
// and parsed in both directions so that size limits and encoding errors
// surface exactly as on a real link.
type Loopback struct {
	handler      Handler
	maxFrameSize int

	mu     sync.Mutex
	closed bool
}

// NewLoopback creates a loopback transport in front of handler.
func NewLoopback(handler Handler) *Loopback {
	return &Loopback{handler: handler, maxFrameSize: limits.MaxDatagram}
}

// Send passes frame through the wire format to the handler and returns its
// response.
func (l *Loopback) Send(ctx context.Context, frame *smp.Frame) (*smp.Frame, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	request, err := l.roundTrip(frame)
	if err != nil {
		return nil, err
	}

	rsp := l.handler.HandleFrame(request)
	if rsp == nil {
		return nil, ErrNoResponse
	}
	return l.roundTrip(rsp)
}

// Close makes further Send calls fail with ErrClosed.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *Loopback) roundTrip(frame *smp.Frame) (*smp.Frame, error) {
	data, err := frame.Serialize()
	if err != nil {
		return nil, err
	}
	if err := checkFrameSize(data, l.maxFrameSize); err != nil {
		return nil, err
	}
	return smp.ParseFrame(data)
}
