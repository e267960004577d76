// Package mgmt implements SMP device managers on top of a transport: the
// base Manager handles sequencing, body encoding and MTU bookkeeping, and the
// image and file system managers build chunked transfers on it.
package mgmt

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/opd-ai/mcumgr/limits"
	"github.com/opd-ai/mcumgr/smp"
	"github.com/opd-ai/mcumgr/transfer"
	"github.com/opd-ai/mcumgr/transport"
	"github.com/sirupsen/logrus"
)

// ErrUnexpectedResponse indicates a response frame that does not answer the
// request it was matched to.
var ErrUnexpectedResponse = errors.New("unexpected smp response")

// Manager sends commands of one management group. It implements
// transfer.MTUStore.
type Manager struct {
	group     smp.Group
	transport transport.Transport
	codec     smp.Codec
	mtu       *transfer.MTU
	seq       atomic.Uint32
}

// NewManager creates a manager for group. A nil mtu creates a private MTU
// store with the default value; pass a shared store to keep several managers
// of one device in step.
func NewManager(group smp.Group, t transport.Transport, mtu *transfer.MTU) *Manager {
	if mtu == nil {
		mtu = transfer.NewMTU(limits.DefaultMTU)
	}
	return &Manager{
		group:     group,
		transport: t,
		codec:     smp.MustCBOR(),
		mtu:       mtu,
	}
}

// Group returns the management group of the manager.
func (m *Manager) Group() smp.Group {
	return m.group
}

// UploadMTU returns the MTU used to size outgoing frames.
func (m *Manager) UploadMTU() int {
	return m.mtu.UploadMTU()
}

// SetUploadMTU updates the MTU and reports whether the value was accepted.
func (m *Manager) SetUploadMTU(mtu int) bool {
	return m.mtu.SetUploadMTU(mtu)
}

// Send encodes req, sends it as command id with op and decodes the response
// into rsp (which may be nil).
//
// A device rejecting the frame size with EMSGSIZE and an advertised MTU, or a
// transport refusing the frame locally, yields *transfer.InsufficientMTUError.
// Any other non-zero return code yields *smp.ResponseError.
func (m *Manager) Send(ctx context.Context, op smp.Op, id uint8, req, rsp any) error {
	payload, err := m.codec.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	frame := &smp.Frame{
		Header: smp.Header{
			Op:      op,
			Version: smp.Version,
			Group:   m.group,
			Seq:     uint8(m.seq.Add(1)),
			ID:      id,
		},
		Payload: payload,
	}

	response, err := m.transport.Send(ctx, frame)
	if err != nil {
		var tooLarge *transport.FrameTooLargeError
		if errors.As(err, &tooLarge) {
			return &transfer.InsufficientMTUError{MTU: tooLarge.Limit}
		}
		return fmt.Errorf("send group %d id %d: %w", m.group, id, err)
	}

	if response.Header.Op != op.Response() || response.Header.Group != m.group || response.Header.ID != id {
		return fmt.Errorf("%w: %s group %d id %d", ErrUnexpectedResponse,
			response.Header.Op, response.Header.Group, response.Header.ID)
	}

	var status smp.ErrorResponse
	if err := m.codec.Unmarshal(response.Payload, &status); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if status.RC == smp.EMSGSIZE && status.MTU > 0 {
		logrus.WithFields(logrus.Fields{
			"function":   "Send",
			"group":      m.group,
			"frame_size": frame.Size(),
			"device_mtu": status.MTU,
		}).Warn("Device rejected frame size")
		return &transfer.InsufficientMTUError{MTU: status.MTU}
	}
	if status.RC != smp.EOK {
		return &smp.ResponseError{Group: m.group, ID: id, Code: status.RC}
	}

	if rsp == nil {
		return nil
	}
	if err := m.codec.Unmarshal(response.Payload, rsp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Echo sends an os group echo command and returns the device's reply.
func Echo(ctx context.Context, t transport.Transport, text string) (string, error) {
	m := NewManager(smp.GroupOS, t, nil)
	var rsp smp.EchoResponse
	if err := m.Send(ctx, smp.OpWrite, smp.IDEcho, smp.EchoRequest{Data: text}, &rsp); err != nil {
		return "", err
	}
	return rsp.Data, nil
}
