package mgmt

import (
	"context"

	"github.com/opd-ai/mcumgr/smp"
	"github.com/opd-ai/mcumgr/transfer"
	"github.com/opd-ai/mcumgr/transport"
	"github.com/sirupsen/logrus"
)

// ImageManager uploads firmware images.
type ImageManager struct {
	*TransferManager
}

// NewImageManager creates an image manager.
func NewImageManager(t transport.Transport, mtu *transfer.MTU) *ImageManager {
	return &ImageManager{TransferManager: NewTransferManager(smp.GroupImage, t, mtu)}
}

// Upload builds an upload of data to image slot image. The upload is not
// started.
func (m *ImageManager) Upload(data []byte, image int) *transfer.Upload {
	return transfer.NewUpload(data, transfer.UploadWriterFunc(func(ctx context.Context, data []byte, offset int) (int, error) {
		return m.writeChunk(ctx, data, offset, image)
	}))
}

// StartImageUpload builds an upload, registers callbacks and queues it.
func (m *ImageManager) StartImageUpload(data []byte, image int, callbacks Callbacks) *transfer.Handle {
	u := m.Upload(data, image)
	callbacks.register(u)
	return m.StartUpload(u)
}

func (m *ImageManager) writeChunk(ctx context.Context, data []byte, offset, image int) (int, error) {
	req := smp.ImageUploadRequest{Off: offset, Data: []byte{}}
	if offset == 0 {
		req.Len = len(data)
		req.Image = image
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
	if err := m.Send(ctx, smp.OpWrite, smp.IDImageUpload, req, &rsp); err != nil {
		return offset, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "writeChunk",
		"image":    image,
		"offset":   offset,
		"chunk":    size,
		"confirm":  rsp.Off,
	}).Debug("Image chunk written")

	return rsp.Off, nil
}
