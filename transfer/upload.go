package transfer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// UploadWriter sends one chunk of an upload to the device. It receives the
// complete payload and the current offset, decides how much fits in the
// current MTU and returns the offset the device confirmed.
type UploadWriter interface {
	WriteChunk(ctx context.Context, data []byte, offset int) (int, error)
}

// UploadWriterFunc is a function type that implements UploadWriter.
type UploadWriterFunc func(ctx context.Context, data []byte, offset int) (int, error)

// WriteChunk implements UploadWriter for UploadWriterFunc.
func (f UploadWriterFunc) WriteChunk(ctx context.Context, data []byte, offset int) (int, error) {
	return f(ctx, data, offset)
}

// Upload moves a payload from the host to the device.
type Upload struct {
	base
	writer UploadWriter
}

// NewUpload creates an upload of data using writer for each chunk.
func NewUpload(data []byte, writer UploadWriter) *Upload {
	u := &Upload{writer: writer}
	if data == nil {
		data = []byte{}
	}
	u.init(data)

	logrus.WithFields(logrus.Fields{
		"function":    "NewUpload",
		"transfer_id": u.id,
		"size":        len(data),
	}).Debug("Upload created")

	return u
}

// SendNext writes the chunk at the current offset and adopts the offset the
// device confirmed.
func (u *Upload) SendNext(ctx context.Context) error {
	u.mu.Lock()
	data, offset := u.data, u.offset
	u.mu.Unlock()

	next, err := u.writer.WriteChunk(ctx, data, offset)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if err := u.advanceLocked(offset, next); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "SendNext",
		"transfer_id": u.id,
		"offset":      u.offset,
		"size":        len(u.data),
	}).Debug("Upload chunk confirmed")

	return nil
}

// Reset rewinds the upload to offset 0.
func (u *Upload) Reset() {
	u.mu.Lock()
	data := u.data
	u.mu.Unlock()

	u.resetBase(data)
}
