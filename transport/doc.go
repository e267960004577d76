// Package transport carries SMP request frames to a device and returns the
// matching response frames.
//
// # Architecture
//
// The core abstraction is the Transport interface, a request/response pair
// keyed by the SMP group and sequence number of the request:
//
//	type Transport interface {
//	    Send(ctx context.Context, frame *smp.Frame) (*smp.Frame, error)
//	    Close() error
//	}
//
// # Transport Implementations
//
// UDP Transport:
//
//	t, err := NewUDPTransport("192.0.2.1:1337", nil)
//	// One datagram per frame, background receive loop, per-request timeout
//
// Loopback Transport:
//
//	t := NewLoopback(handler)
//	// In-process delivery to a Handler, used by tests and demos
//
// # Errors
//
// Frames larger than the transport limit fail locally with
// *FrameTooLargeError before anything is written. A request that sees no
// response within UDPOptions.Timeout fails with ErrTimeout, and every Send
// after Close fails with ErrClosed.
//
// # Thread Safety
//
// All transports are safe for concurrent use. Concurrent requests must use
// distinct sequence numbers; a duplicate (group, seq) pair fails with
// ErrRequestInFlight.
package transport
