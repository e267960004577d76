package mgmt

import (
	"context"

	"github.com/opd-ai/mcumgr/smp"
	"github.com/opd-ai/mcumgr/transfer"
	"github.com/opd-ai/mcumgr/transport"
	"github.com/sirupsen/logrus"
)

// FSManager transfers files to and from the device file system.
type FSManager struct {
	*TransferManager
}

// NewFSManager creates a file system manager.
func NewFSManager(t transport.Transport, mtu *transfer.MTU) *FSManager {
	return &FSManager{TransferManager: NewTransferManager(smp.GroupFS, t, mtu)}
}

// FileUpload builds an upload of data to the file name. The upload is not
// started.
func (m *FSManager) FileUpload(name string, data []byte) *transfer.Upload {
	return transfer.NewUpload(data, transfer.UploadWriterFunc(func(ctx context.Context, data []byte, offset int) (int, error) {
		return m.writeChunk(ctx, name, data, offset)
	}))
}

// FileDownload builds a download of the file name. The download is not
// started.
func (m *FSManager) FileDownload(name string) *transfer.Download {
	return transfer.NewDownload(transfer.DownloadReaderFunc(func(ctx context.Context, offset int) (transfer.Chunk, error) {
		return m.readChunk(ctx, name, offset)
	}))
}

// StartFileUpload builds a file upload, registers callbacks and queues it.
func (m *FSManager) StartFileUpload(name string, data []byte, callbacks Callbacks) *transfer.Handle {
	u := m.FileUpload(name, data)
	callbacks.register(u)
	return m.StartUpload(u)
}

// StartFileDownload builds a file download, registers callbacks and queues
// it. The downloaded bytes are available from the handle's transfer once it
// completes.
func (m *FSManager) StartFileDownload(name string, callbacks Callbacks) *transfer.Handle {
	d := m.FileDownload(name)
	callbacks.register(d)
	return m.StartDownload(d)
}

func (m *FSManager) writeChunk(ctx context.Context, name string, data []byte, offset int) (int, error) {
	req := smp.FileUploadRequest{Name: name, Off: offset, Data: []byte{}}
	if offset == 0 {
		req.Len = len(data)
	}

	empty, err := m.codec.Marshal(req)
	if err != nil {
		return offset, err
	}
	size, err := m.chunkSize(len(empty), len(data)-offset)
	if err != nil {
		return offset, err
	}
	req.Data = data[offset : offset+size]

	var rsp smp.UploadResponse
	if err := m.Send(ctx, smp.OpWrite, smp.IDFile, req, &rsp); err != nil {
		return offset, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "writeChunk",
		"name":     name,
		"offset":   offset,
		"chunk":    size,
		"confirm":  rsp.Off,
	}).Debug("File chunk written")

	return rsp.Off, nil
}

func (m *FSManager) readChunk(ctx context.Context, name string, offset int) (transfer.Chunk, error) {
	var rsp smp.FileDownloadResponse
	err := m.Send(ctx, smp.OpRead, smp.IDFile, smp.FileDownloadRequest{Name: name, Off: offset}, &rsp)
	if err != nil {
		return transfer.Chunk{}, err
	}

	chunk := transfer.Chunk{Offset: rsp.Off, Data: rsp.Data, Total: -1}
	if rsp.Off == 0 {
		chunk.Total = rsp.Len
	}
	return chunk, nil
}
