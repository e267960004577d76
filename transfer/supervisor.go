package transfer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// maxAttempts bounds driver runs per submitted transfer: the first run plus
// one retry after an MTU correction.
const maxAttempts = 2

// Handle is the controller returned to callers of StartUpload and
// StartDownload.
type Handle struct {
	driver   *Driver
	attempts atomic.Int32
	done     chan struct{}
	once     sync.Once
}

func newHandle(d *Driver) *Handle {
	return &Handle{driver: d, done: make(chan struct{})}
}

// Pause pauses the transfer between chunks.
func (h *Handle) Pause() { h.driver.Pause() }

// Resume resumes a paused transfer.
func (h *Handle) Resume() { h.driver.Resume() }

// Cancel cancels the transfer.
func (h *Handle) Cancel() { h.driver.Cancel() }

// State returns the driver state.
func (h *Handle) State() State { return h.driver.State() }

// Transfer returns the transfer this handle controls.
func (h *Handle) Transfer() Transfer { return h.driver.Transfer() }

// Attempts returns the number of driver runs performed so far.
func (h *Handle) Attempts() int { return int(h.attempts.Load()) }

// Done is closed once the supervisor has finished with the transfer.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the supervisor has finished with the transfer or ctx is
// done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) finish() {
	h.once.Do(func() { close(h.done) })
}

// Supervisor schedules transfers on a serialized worker and applies the
// one-shot MTU recovery policy. At most one transfer runs at a time.
type Supervisor struct {
	store MTUStore

	mu      sync.Mutex
	queue   []*Handle
	started bool
	closed  bool
	wake    chan struct{}
	done    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSupervisor creates a supervisor framing chunks with the MTU in store.
// The worker goroutine starts with the first submitted transfer.
func NewSupervisor(store MTUStore) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		store:  store,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// StartUpload queues an upload and returns its controller.
func (s *Supervisor) StartUpload(u *Upload) *Handle {
	return s.StartTransfer(u)
}

// StartDownload queues a download and returns its controller.
func (s *Supervisor) StartDownload(d *Download) *Handle {
	return s.StartTransfer(d)
}

// StartTransfer queues any Transfer and returns its controller.
func (s *Supervisor) StartTransfer(t Transfer) *Handle {
	h := newHandle(NewDriver(t))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.driver.fail(ErrSupervisorClosed)
		h.finish()
		return h
	}
	s.queue = append(s.queue, h)
	if !s.started {
		s.started = true
		go s.worker()
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}

	logrus.WithFields(logrus.Fields{
		"function":    "StartTransfer",
		"transfer_id": transferID(t),
	}).Info("Transfer queued")

	return h
}

// Close stops the worker. The running transfer observes the shutdown at its
// next observation point; queued transfers are canceled. Close blocks until
// the worker has exited.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	s.cancel()
	if started {
		<-s.done
	}

	logrus.WithFields(logrus.Fields{
		"function": "Close",
	}).Info("Transfer supervisor closed")
	return nil
}

func (s *Supervisor) worker() {
	defer close(s.done)

	for {
		h, ok := s.next()
		if !ok {
			return
		}
		s.execute(h)
	}
}

// next pops the oldest queued handle, blocking until one is available. It
// returns false once the supervisor is closed, canceling whatever is left.
func (s *Supervisor) next() (*Handle, bool) {
	for {
		s.mu.Lock()
		if s.closed {
			pending := s.queue
			s.queue = nil
			s.mu.Unlock()

			for _, h := range pending {
				h.driver.Cancel()
				h.finish()
			}
			return nil, false
		}
		if len(s.queue) > 0 {
			h := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return h, true
		}
		s.mu.Unlock()

		select {
		case <-s.wake:
		case <-s.ctx.Done():
		}
	}
}

// execute runs the driver, retrying once with the device-advertised MTU when
// the first run ends with an InsufficientMTUError.
func (s *Supervisor) execute(h *Handle) {
	defer h.finish()

	for {
		attempt := int(h.attempts.Add(1))
		t, err := h.driver.Run(s.ctx)
		if err == nil {
			return
		}

		mtuErr, ok := IsInsufficientMTU(err)
		if !ok {
			h.driver.fail(err)
			return
		}

		if attempt >= maxAttempts {
			logrus.WithFields(logrus.Fields{
				"function":    "execute",
				"transfer_id": transferID(t),
				"attempt":     attempt,
				"device_mtu":  mtuErr.MTU,
			}).Error("Insufficient MTU after retry")
			h.driver.fail(mtuErr)
			return
		}

		if h.driver.State() == StateClosed {
			// Canceled while the rejected chunk was in flight.
			return
		}

		current := s.store.UploadMTU()
		mtu := mtuErr.MTU
		if mtu == current {
			mtu--
		}

		if !s.store.SetUploadMTU(mtu) {
			logrus.WithFields(logrus.Fields{
				"function":    "execute",
				"transfer_id": transferID(t),
				"current_mtu": current,
				"new_mtu":     mtu,
			}).Error("MTU update rejected, failing transfer")
			h.driver.fail(mtuErr)
			return
		}

		logrus.WithFields(logrus.Fields{
			"function":    "execute",
			"transfer_id": transferID(t),
			"old_mtu":     current,
			"new_mtu":     mtu,
		}).Info("Restarting transfer with device MTU")

		t.Reset()
	}
}
