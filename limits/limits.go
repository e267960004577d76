// Package limits provides centralized MTU and frame size limits for SMP.
package limits

import (
	"errors"
	"fmt"
)

const (
	// SMPHeaderSize is the size of the fixed SMP frame header.
	SMPHeaderSize = 8

	// MinMTU is the smallest accepted upload MTU.
	MinMTU = 20

	// DefaultMTU is the upload MTU used before a device advertises its own.
	DefaultMTU = 515

	// MaxMTU is the largest accepted upload MTU.
	MaxMTU = 1024

	// MaxDatagram is the largest frame a datagram transport will send or receive.
	MaxDatagram = 2048
)

var (
	// ErrMTUTooSmall indicates an MTU below MinMTU
	ErrMTUTooSmall = errors.New("mtu too small")

	// ErrMTUTooLarge indicates an MTU above MaxMTU
	ErrMTUTooLarge = errors.New("mtu too large")

	// ErrFrameEmpty indicates an empty frame was provided
	ErrFrameEmpty = errors.New("empty frame")

	// ErrFrameTooLarge indicates a frame exceeds the allowed size
	ErrFrameTooLarge = errors.New("frame too large")
)

// ValidateMTU checks that mtu lies within [MinMTU, MaxMTU].
// Returns an error with context including the offending value and the bound.
func ValidateMTU(mtu int) error {
	if mtu < MinMTU {
		return fmt.Errorf("%w: mtu %d below limit %d", ErrMTUTooSmall, mtu, MinMTU)
	}
	if mtu > MaxMTU {
		return fmt.Errorf("%w: mtu %d exceeds limit %d", ErrMTUTooLarge, mtu, MaxMTU)
	}
	return nil
}

// ValidateFrameSize validates a serialized frame against the specified maximum size.
func ValidateFrameSize(frame []byte, maxSize int) error {
	if len(frame) == 0 {
		return ErrFrameEmpty
	}
	if len(frame) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrFrameTooLarge, len(frame), maxSize)
	}
	return nil
}

// ValidateDatagram validates a serialized frame against MaxDatagram.
func ValidateDatagram(frame []byte) error {
	if len(frame) == 0 {
		return ErrFrameEmpty
	}
	if len(frame) > MaxDatagram {
		return fmt.Errorf("%w: datagram size %d exceeds limit %d", ErrFrameTooLarge, len(frame), MaxDatagram)
	}
	return nil
}
