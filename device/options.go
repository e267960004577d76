package device

import "github.com/opd-ai/mcumgr/limits"

// Options configures a simulated Device.
type Options struct {
	// MTU is the largest request frame the device accepts, header included.
	MTU int

	// ImageSlots is the number of image slots that accept uploads.
	ImageSlots int
}

// NewOptions returns Options with default values.
func NewOptions() *Options {
	return &Options{
		MTU:        limits.DefaultMTU,
		ImageSlots: 2,
	}
}
