// Package device implements a simulated SMP device: image slots, an
// in-memory file system and MTU enforcement. It answers frames in process
// through transport.Loopback or over UDP through Serve.
package device

import (
	"errors"
	"sync"

	"github.com/opd-ai/mcumgr/smp"
	"github.com/sirupsen/logrus"
)

var errChunkTooSmall = errors.New("mtu leaves no room for file data")

// upload is a partially received image or file.
type upload struct {
	data []byte
	size int
}

// Device is a simulated SMP server. It implements transport.Handler.
type Device struct {
	codec smp.Codec
	slots int

	mu      sync.Mutex
	mtu     int
	images  map[int]*upload
	slot    int // image slot opened by the last offset 0 chunk, -1 if none
	files   map[string][]byte
	pending map[string]*upload
}

// New creates a device. A nil options value uses NewOptions.
func New(options *Options) *Device {
	if options == nil {
		options = NewOptions()
	}

	return &Device{
		codec:   smp.MustCBOR(),
		slots:   options.ImageSlots,
		mtu:     options.MTU,
		images:  make(map[int]*upload),
		slot:    -1,
		files:   make(map[string][]byte),
		pending: make(map[string]*upload),
	}
}

// MTU returns the device MTU.
func (d *Device) MTU() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mtu
}

// SetMTU changes the device MTU.
func (d *Device) SetMTU(mtu int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mtu = mtu
}

// PutFile stores a file on the device.
func (d *Device) PutFile(name string, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.files[name] = append([]byte(nil), data...)
}

// File returns a copy of a stored file.
func (d *Device) File(name string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.files[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Image returns a copy of the data received for an image slot and whether the
// upload to that slot is complete.
func (d *Device) Image(slot int) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	img, ok := d.images[slot]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), img.data...), len(img.data) == img.size
}

// HandleFrame answers one request frame.
func (d *Device) HandleFrame(frame *smp.Frame) *smp.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame.Size() > d.mtu {
		logrus.WithFields(logrus.Fields{
			"function":   "HandleFrame",
			"frame_size": frame.Size(),
			"mtu":        d.mtu,
		}).Debug("Rejecting oversized frame")
		return d.respond(frame, smp.ErrorResponse{RC: smp.EMSGSIZE, MTU: d.mtu})
	}

	h := frame.Header
	switch {
	case h.Group == smp.GroupOS && h.ID == smp.IDEcho:
		return d.handleEcho(frame)
	case h.Group == smp.GroupImage && h.ID == smp.IDImageUpload && h.Op == smp.OpWrite:
		return d.handleImageUpload(frame)
	case h.Group == smp.GroupFS && h.ID == smp.IDFile && h.Op == smp.OpWrite:
		return d.handleFileUpload(frame)
	case h.Group == smp.GroupFS && h.ID == smp.IDFile && h.Op == smp.OpRead:
		return d.handleFileDownload(frame)
	default:
		return d.fail(frame, smp.ENOTSUP)
	}
}

func (d *Device) handleEcho(frame *smp.Frame) *smp.Frame {
	var req smp.EchoRequest
	if err := d.codec.Unmarshal(frame.Payload, &req); err != nil {
		return d.fail(frame, smp.EINVAL)
	}
	return d.respond(frame, smp.EchoResponse{Data: req.Data})
}

func (d *Device) handleImageUpload(frame *smp.Frame) *smp.Frame {
	var req smp.ImageUploadRequest
	if err := d.codec.Unmarshal(frame.Payload, &req); err != nil {
		return d.fail(frame, smp.EINVAL)
	}
	// The slot is only sent with the first chunk; later chunks continue the
	// upload opened by it.
	if req.Off == 0 {
		if req.Image < 0 || req.Image >= d.slots {
			return d.fail(frame, smp.EINVAL)
		}
		d.images[req.Image] = &upload{data: make([]byte, 0, req.Len), size: req.Len}
		d.slot = req.Image
	}
	img, ok := d.images[d.slot]
	if !ok {
		return d.fail(frame, smp.EBADSTATE)
	}

	rc := img.accept(req.Off, req.Data)
	if rc != smp.EOK {
		return d.fail(frame, rc)
	}
	return d.respond(frame, smp.UploadResponse{Off: len(img.data)})
}

func (d *Device) handleFileUpload(frame *smp.Frame) *smp.Frame {
	var req smp.FileUploadRequest
	if err := d.codec.Unmarshal(frame.Payload, &req); err != nil || req.Name == "" {
		return d.fail(frame, smp.EINVAL)
	}

	if req.Off == 0 {
		d.pending[req.Name] = &upload{data: make([]byte, 0, req.Len), size: req.Len}
	}
	up, ok := d.pending[req.Name]
	if !ok {
		return d.fail(frame, smp.EBADSTATE)
	}

	rc := up.accept(req.Off, req.Data)
	if rc != smp.EOK {
		return d.fail(frame, rc)
	}
	if len(up.data) == up.size {
		d.files[req.Name] = up.data
		delete(d.pending, req.Name)

		logrus.WithFields(logrus.Fields{
			"function": "handleFileUpload",
			"name":     req.Name,
			"size":     up.size,
		}).Info("File stored")
	}
	return d.respond(frame, smp.UploadResponse{Off: len(up.data)})
}

func (d *Device) handleFileDownload(frame *smp.Frame) *smp.Frame {
	var req smp.FileDownloadRequest
	if err := d.codec.Unmarshal(frame.Payload, &req); err != nil {
		return d.fail(frame, smp.EINVAL)
	}

	data, ok := d.files[req.Name]
	if !ok {
		return d.fail(frame, smp.ENOENT)
	}
	if req.Off < 0 || req.Off > len(data) {
		return d.fail(frame, smp.EINVAL)
	}

	rsp := smp.FileDownloadResponse{Off: req.Off, Data: []byte{}}
	if req.Off == 0 {
		rsp.Len = len(data)
	}

	size, err := d.chunkSize(rsp)
	if err != nil {
		return d.fail(frame, smp.ENOMEM)
	}
	end := min(req.Off+size, len(data))
	rsp.Data = data[req.Off:end]
	return d.respond(frame, rsp)
}

// chunkSize returns how many data bytes fit in a download response under the
// device MTU.
func (d *Device) chunkSize(rsp smp.FileDownloadResponse) (int, error) {
	empty, err := d.codec.Marshal(rsp)
	if err != nil {
		return 0, err
	}
	// A byte string header grows by up to two bytes once it holds data.
	size := d.mtu - smp.HeaderSize - len(empty) - 2
	if size <= 0 {
		return 0, errChunkTooSmall
	}
	return size, nil
}

// accept appends a chunk at off. A chunk at an unexpected offset is ignored
// and the current length is reported back so the client can resynchronise.
func (u *upload) accept(off int, data []byte) smp.ReturnCode {
	if off != len(u.data) {
		return smp.EOK
	}
	if len(u.data)+len(data) > u.size {
		return smp.EINVAL
	}
	u.data = append(u.data, data...)
	return smp.EOK
}

func (d *Device) fail(frame *smp.Frame, rc smp.ReturnCode) *smp.Frame {
	logrus.WithFields(logrus.Fields{
		"function": "fail",
		"group":    frame.Header.Group,
		"id":       frame.Header.ID,
		"rc":       rc.String(),
	}).Debug("Request failed")
	return d.respond(frame, smp.ErrorResponse{RC: rc})
}

func (d *Device) respond(frame *smp.Frame, body any) *smp.Frame {
	payload, err := d.codec.Marshal(body)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "respond",
			"error":    err.Error(),
		}).Error("Failed to encode response")
		return nil
	}
	return smp.NewResponse(frame, payload)
}
