package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/mcumgr/limits"
	"github.com/opd-ai/mcumgr/smp"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout is the per-request response timeout.
const DefaultTimeout = 5 * time.Second

// UDPOptions configures a UDPTransport.
type UDPOptions struct {
	// ListenAddr is the local address to bind. Defaults to an ephemeral port.
	ListenAddr string

	// Timeout bounds the wait for each response.
	Timeout time.Duration

	// PollInterval is the read deadline used by the receive loop so that it
	// notices Close.
	PollInterval time.Duration

	// MaxFrameSize is the largest datagram that will be sent or received.
	MaxFrameSize int
}

// NewUDPOptions returns UDPOptions with default values.
func NewUDPOptions() *UDPOptions {
	return &UDPOptions{
		ListenAddr:   ":0",
		Timeout:      DefaultTimeout,
		PollInterval: 100 * time.Millisecond,
		MaxFrameSize: limits.MaxDatagram,
	}
}

// UDPTransport sends SMP requests to a single device over UDP.
// It satisfies the Transport interface.
type UDPTransport struct {
	conn    net.PacketConn
	remote  net.Addr
	options UDPOptions

	mu      sync.Mutex
	pending map[pendingKey]chan *smp.Frame
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewUDPTransport creates a UDP transport talking to remoteAddr. A nil
// options value uses NewUDPOptions.
func NewUDPTransport(remoteAddr string, options *UDPOptions) (*UDPTransport, error) {
	if options == nil {
		options = NewUDPOptions()
	}

	remote, err := net.ResolveUDPAddr("udp", remoteAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", remoteAddr, err)
	}

	conn, err := net.ListenPacket("udp", options.ListenAddr)
	if err != nil {
		return nil, err
	}

	return newUDPTransport(conn, remote, *options), nil
}

func newUDPTransport(conn net.PacketConn, remote net.Addr, options UDPOptions) *UDPTransport {
	ctx, cancel := context.WithCancel(context.Background())

	t := &UDPTransport{
		conn:    conn,
		remote:  remote,
		options: options,
		pending: make(map[pendingKey]chan *smp.Frame),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go t.processPackets()

	logrus.WithFields(logrus.Fields{
		"function":   "NewUDPTransport",
		"local_addr": conn.LocalAddr().String(),
		"remote":     remote.String(),
	}).Info("UDP transport started")

	return t
}

// LocalAddr returns the local address the transport is bound to.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// Send writes the request frame and waits for the response with the same
// group and sequence number.
func (t *UDPTransport) Send(ctx context.Context, frame *smp.Frame) (*smp.Frame, error) {
	data, err := frame.Serialize()
	if err != nil {
		return nil, err
	}
	if err := checkFrameSize(data, t.options.MaxFrameSize); err != nil {
		return nil, err
	}

	key := keyOf(frame)
	ch, err := t.register(key)
	if err != nil {
		return nil, err
	}
	defer t.unregister(key)

	if _, err := t.conn.WriteTo(data, t.remote); err != nil {
		return nil, fmt.Errorf("write to %s: %w", t.remote, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Send",
		"group":    frame.Header.Group,
		"seq":      frame.Header.Seq,
		"size":     len(data),
	}).Debug("SMP request sent")

	timer := time.NewTimer(t.options.Timeout)
	defer timer.Stop()

	select {
	case rsp := <-ch:
		return rsp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%w: group %d seq %d after %s", ErrTimeout, key.group, key.seq, t.options.Timeout)
	case <-t.ctx.Done():
		return nil, ErrClosed
	}
}

// Close shuts down the transport and waits for the receive loop to exit.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	err := t.conn.Close()
	<-t.done
	return err
}

func (t *UDPTransport) register(key pendingKey) (chan *smp.Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}
	if _, exists := t.pending[key]; exists {
		return nil, ErrRequestInFlight
	}
	ch := make(chan *smp.Frame, 1)
	t.pending[key] = ch
	return ch, nil
}

func (t *UDPTransport) unregister(key pendingKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, key)
}

// processPackets reads responses until the transport is closed.
func (t *UDPTransport) processPackets() {
	defer close(t.done)
	buffer := make([]byte, t.options.MaxFrameSize)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
			t.processIncomingPacket(buffer)
		}
	}
}

// processIncomingPacket reads and dispatches a single datagram.
func (t *UDPTransport) processIncomingPacket(buffer []byte) {
	_ = t.conn.SetReadDeadline(time.Now().Add(t.options.PollInterval))

	n, _, err := t.conn.ReadFrom(buffer)
	if err != nil {
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			select {
			case <-t.ctx.Done():
			default:
				logrus.WithFields(logrus.Fields{
					"function": "processIncomingPacket",
					"error":    err.Error(),
				}).Warn("UDP read failed")
			}
		}
		return
	}

	frame, err := smp.ParseFrame(buffer[:n])
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "processIncomingPacket",
			"size":     n,
			"error":    err.Error(),
		}).Warn("Dropping malformed SMP frame")
		return
	}

	t.dispatch(frame)
}

// dispatch hands a response to the request waiting for it.
func (t *UDPTransport) dispatch(frame *smp.Frame) {
	if !frame.Header.Op.IsResponse() {
		return
	}

	t.mu.Lock()
	ch, exists := t.pending[keyOf(frame)]
	t.mu.Unlock()

	if !exists {
		logrus.WithFields(logrus.Fields{
			"function": "dispatch",
			"group":    frame.Header.Group,
			"seq":      frame.Header.Seq,
		}).Debug("Dropping unsolicited response")
		return
	}

	select {
	case ch <- frame:
	default:
	}
}
