package transfer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Chunk is one piece of a download as returned by the device.
type Chunk struct {
	Offset int
	Data   []byte
	// Total is the payload size. Devices report it with the first chunk.
	Total int
}

// DownloadReader fetches the chunk starting at offset from the device.
type DownloadReader interface {
	ReadChunk(ctx context.Context, offset int) (Chunk, error)
}

// DownloadReaderFunc is a function type that implements DownloadReader.
type DownloadReaderFunc func(ctx context.Context, offset int) (Chunk, error)

// ReadChunk implements DownloadReader for DownloadReaderFunc.
func (f DownloadReaderFunc) ReadChunk(ctx context.Context, offset int) (Chunk, error) {
	return f(ctx, offset)
}

// Download moves a payload from the device to the host. Its payload is
// unknown until the first chunk arrives.
type Download struct {
	base
	reader DownloadReader
}

// NewDownload creates a download reading chunks through reader.
func NewDownload(reader DownloadReader) *Download {
	d := &Download{reader: reader}
	d.init(nil)

	logrus.WithFields(logrus.Fields{
		"function":    "NewDownload",
		"transfer_id": d.id,
	}).Debug("Download created")

	return d
}

// SendNext requests the chunk at the current offset and stores it.
func (d *Download) SendNext(ctx context.Context) error {
	offset := d.Offset()

	chunk, err := d.reader.ReadChunk(ctx, offset)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if chunk.Offset != offset {
		return fmt.Errorf("%w: requested %d, device answered %d", ErrInvalidOffset, offset, chunk.Offset)
	}

	if d.data == nil {
		if chunk.Total < 0 {
			return fmt.Errorf("%w: negative payload size %d", ErrInvalidOffset, chunk.Total)
		}
		d.data = make([]byte, chunk.Total)
	}

	end := chunk.Offset + len(chunk.Data)
	if end > len(d.data) {
		return fmt.Errorf("%w: chunk ends at %d, payload size %d", ErrInvalidOffset, end, len(d.data))
	}
	copy(d.data[chunk.Offset:end], chunk.Data)

	if err := d.advanceLocked(offset, end); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "SendNext",
		"transfer_id": d.id,
		"offset":      d.offset,
		"size":        len(d.data),
	}).Debug("Download chunk stored")

	return nil
}

// Reset discards downloaded data and rewinds to offset 0.
func (d *Download) Reset() {
	d.resetBase(nil)
}
