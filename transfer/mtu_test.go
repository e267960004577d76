package transfer

import (
	"testing"

	"github.com/opd-ai/mcumgr/limits"
	"github.com/stretchr/testify/assert"
)

func TestMTUStore(t *testing.T) {
	m := NewMTU(512)
	assert.Equal(t, 512, m.UploadMTU())

	assert.True(t, m.SetUploadMTU(200))
	assert.Equal(t, 200, m.UploadMTU())

	assert.False(t, m.SetUploadMTU(limits.MinMTU-1))
	assert.False(t, m.SetUploadMTU(limits.MaxMTU+1))
	assert.Equal(t, 200, m.UploadMTU(), "rejected values leave the MTU unchanged")
}

func TestNewMTUFallsBackToDefault(t *testing.T) {
	assert.Equal(t, limits.DefaultMTU, NewMTU(0).UploadMTU())
	assert.Equal(t, limits.DefaultMTU, NewMTU(limits.MaxMTU+1).UploadMTU())
}

func TestInsufficientMTUError(t *testing.T) {
	err := &InsufficientMTUError{MTU: 128}
	assert.Contains(t, err.Error(), "128")

	mtuErr, ok := IsInsufficientMTU(err)
	assert.True(t, ok)
	assert.Same(t, err, mtuErr)

	_, ok = IsInsufficientMTU(ErrTransferStalled)
	assert.False(t, ok)
}
