package device

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/opd-ai/mcumgr/limits"
	"github.com/opd-ai/mcumgr/smp"
	"github.com/sirupsen/logrus"
)

// pollInterval bounds how long Serve waits on a read before checking ctx.
const pollInterval = 100 * time.Millisecond

// Serve answers SMP requests arriving on conn until ctx is done. The caller
// owns conn.
func (d *Device) Serve(ctx context.Context, conn net.PacketConn) error {
	logrus.WithFields(logrus.Fields{
		"function": "Serve",
		"addr":     conn.LocalAddr().String(),
		"mtu":      d.MTU(),
	}).Info("Device serving")

	buffer := make([]byte, limits.MaxDatagram)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := d.serveOne(conn, buffer); err != nil {
			return err
		}
	}
}

// serveOne handles a single datagram. Only fatal connection errors are
// returned.
func (d *Device) serveOne(conn net.PacketConn, buffer []byte) error {
	_ = conn.SetReadDeadline(time.Now().Add(pollInterval))

	n, addr, err := conn.ReadFrom(buffer)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	}

	frame, err := smp.ParseFrame(buffer[:n])
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "serveOne",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Warn("Dropping malformed frame")
		return nil
	}

	rsp := d.HandleFrame(frame)
	if rsp == nil {
		return nil
	}
	data, err := rsp.Serialize()
	if err == nil {
		err = limits.ValidateDatagram(data)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "serveOne",
			"to":       addr.String(),
			"error":    err.Error(),
		}).Warn("Dropping unsendable response")
		return nil
	}
	if _, err := conn.WriteTo(data, addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "serveOne",
			"to":       addr.String(),
			"error":    err.Error(),
		}).Warn("Failed to send response")
	}
	return nil
}
