// Package limits provides centralized size constants and validation functions
// for SMP framing. Every component that sizes or checks a frame goes through
// this package so that the MTU store, the chunk sizing of uploads and the
// transports agree on the same bounds.
//
// # Size Hierarchy
//
//   - SMPHeaderSize (8 bytes): the fixed SMP header preceding every CBOR body.
//
//   - MinMTU (20 bytes): the smallest MTU the MTU store accepts. This is the
//     default BLE ATT payload (23 bytes) minus the ATT header.
//
//   - DefaultMTU (515 bytes): the MTU used until a device advertises a
//     different one.
//
//   - MaxMTU (1024 bytes): the largest MTU the MTU store accepts.
//
//   - MaxDatagram (2048 bytes): the receive buffer of the UDP transport. Frames
//     larger than this are rejected locally.
//
// # Validation Functions
//
//	if err := limits.ValidateMTU(mtu); err != nil {
//	    // errors.Is(err, limits.ErrMTUTooSmall) or limits.ErrMTUTooLarge
//	}
//
//	if err := limits.ValidateFrameSize(frame, mtu); err != nil {
//	    // errors.Is(err, limits.ErrFrameTooLarge)
//	}
package limits
