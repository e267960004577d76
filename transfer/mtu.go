package transfer

import (
	"sync"

	"github.com/opd-ai/mcumgr/limits"
	"github.com/sirupsen/logrus"
)

// MTUStore holds the upload MTU used to frame chunks. SetUploadMTU returns
// false when the value is rejected.
type MTUStore interface {
	UploadMTU() int
	SetUploadMTU(mtu int) bool
}

// MTU is the default MTUStore. Values are validated against limits.
type MTU struct {
	mu    sync.RWMutex
	value int
}

// NewMTU creates an MTU store. An invalid initial value falls back to
// limits.DefaultMTU.
func NewMTU(initial int) *MTU {
	if err := limits.ValidateMTU(initial); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewMTU",
			"mtu":      initial,
			"fallback": limits.DefaultMTU,
			"error":    err.Error(),
		}).Warn("Invalid initial MTU, using default")
		initial = limits.DefaultMTU
	}
	return &MTU{value: initial}
}

// UploadMTU returns the current upload MTU.
func (m *MTU) UploadMTU() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.value
}

// SetUploadMTU stores mtu if it lies within the accepted range.
func (m *MTU) SetUploadMTU(mtu int) bool {
	if err := limits.ValidateMTU(mtu); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SetUploadMTU",
			"mtu":      mtu,
			"error":    err.Error(),
		}).Error("Upload MTU rejected")
		return false
	}

	m.mu.Lock()
	old := m.value
	m.value = mtu
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SetUploadMTU",
		"old_mtu":  old,
		"new_mtu":  mtu,
	}).Info("Upload MTU updated")
	return true
}
