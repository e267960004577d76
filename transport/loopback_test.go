package transport

import (
	"context"
	"testing"

	"github.com/opd-ai/mcumgr/smp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackDispatch(t *testing.T) {
	var seen *smp.Frame
	lb := NewLoopback(HandlerFunc(func(frame *smp.Frame) *smp.Frame {
		seen = frame
		return smp.NewResponse(frame, []byte{0xA0})
	}))

	rsp, err := lb.Send(context.Background(), request(4, []byte{1, 2, 3}))
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.Equal(t, uint16(3), seen.Header.Length, "request passes through the wire format")
	assert.Equal(t, smp.OpWriteResponse, rsp.Header.Op)
	assert.Equal(t, []byte{0xA0}, rsp.Payload)
}

func TestLoopbackNoResponse(t *testing.T) {
	lb := NewLoopback(HandlerFunc(func(*smp.Frame) *smp.Frame { return nil }))
	_, err := lb.Send(context.Background(), request(1, nil))
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestLoopbackFrameTooLarge(t *testing.T) {
	called := false
	lb := NewLoopback(HandlerFunc(func(frame *smp.Frame) *smp.Frame {
		called = true
		return smp.NewResponse(frame, nil)
	}))

	_, err := lb.Send(context.Background(), request(1, make([]byte, 3000)))
	var tooLarge *FrameTooLargeError
	assert.ErrorAs(t, err, &tooLarge)
	assert.False(t, called)
}

func TestLoopbackClosedAndCanceled(t *testing.T) {
	lb := NewLoopback(HandlerFunc(func(frame *smp.Frame) *smp.Frame { return smp.NewResponse(frame, nil) }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := lb.Send(ctx, request(1, nil))
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, lb.Close())
	_, err = lb.Send(context.Background(), request(1, nil))
	assert.ErrorIs(t, err, ErrClosed)
}
