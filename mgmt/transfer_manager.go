package mgmt

import (
	"fmt"
	"time"

	"github.com/opd-ai/mcumgr/limits"
	"github.com/opd-ai/mcumgr/smp"
	"github.com/opd-ai/mcumgr/transfer"
	"github.com/opd-ai/mcumgr/transport"
)

// byteStringGrowth is the most an empty CBOR byte string header grows by once
// it holds up to 65535 bytes.
const byteStringGrowth = 2

// Callbacks are registered on a transfer before it is queued. Nil fields are
// skipped.
type Callbacks struct {
	Progress func(offset, total int, timestamp time.Time)
	Complete func()
	Failed   func(err error)
	Canceled func()
}

type observer interface {
	OnProgress(func(offset, total int, timestamp time.Time))
	OnComplete(func())
	OnFailed(func(error))
	OnCancel(func())
}

func (c Callbacks) register(o observer) {
	if c.Progress != nil {
		o.OnProgress(c.Progress)
	}
	if c.Complete != nil {
		o.OnComplete(c.Complete)
	}
	if c.Failed != nil {
		o.OnFailed(c.Failed)
	}
	if c.Canceled != nil {
		o.OnCancel(c.Canceled)
	}
}

// TransferManager is a Manager that runs chunked transfers on a serialized
// supervisor. The manager itself is the supervisor's MTU store, so an MTU
// advertised by the device is applied to all later transfers.
type TransferManager struct {
	*Manager
	supervisor *transfer.Supervisor
}

// NewTransferManager creates a transfer manager for group.
func NewTransferManager(group smp.Group, t transport.Transport, mtu *transfer.MTU) *TransferManager {
	m := NewManager(group, t, mtu)
	return &TransferManager{
		Manager:    m,
		supervisor: transfer.NewSupervisor(m),
	}
}

// StartUpload queues an upload.
func (m *TransferManager) StartUpload(u *transfer.Upload) *transfer.Handle {
	return m.supervisor.StartUpload(u)
}

// StartDownload queues a download.
func (m *TransferManager) StartDownload(d *transfer.Download) *transfer.Handle {
	return m.supervisor.StartDownload(d)
}

// Close stops the supervisor. The transport is left open.
func (m *TransferManager) Close() error {
	return m.supervisor.Close()
}

// chunkSize returns how many payload bytes fit in a frame whose body encodes
// to overhead bytes without data, capped at remaining.
func (m *TransferManager) chunkSize(overhead, remaining int) (int, error) {
	mtu := m.UploadMTU()
	size := mtu - smp.HeaderSize - overhead - byteStringGrowth
	if size <= 0 {
		return 0, fmt.Errorf("%w: mtu %d leaves no room for data", limits.ErrMTUTooSmall, mtu)
	}
	return min(size, remaining), nil
}
