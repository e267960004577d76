package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/opd-ai/mcumgr/device"
	"github.com/opd-ai/mcumgr/mgmt"
	"github.com/opd-ai/mcumgr/transfer"
	"github.com/opd-ai/mcumgr/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type action int

const (
	actionCancel action = iota
	actionPause
	actionResume
)

// serve runs the simulated device until interrupted.
func serve(ctx context.Context, cfg *Config) error {
	opts := device.NewOptions()
	opts.MTU = cfg.DeviceMTU
	opts.ImageSlots = cfg.ImageSlots
	dev := device.New(opts)

	conn, err := net.ListenPacket("udp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	defer conn.Close()

	fmt.Printf("Simulated device listening on %s (mtu %d)\n", conn.LocalAddr(), cfg.DeviceMTU)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dev.Serve(gctx, conn)
	})
	return g.Wait()
}

// session is a client connection to a device.
type session struct {
	runID     string
	transport transport.Transport
	mtu       *transfer.MTU
}

// openSession connects to the device at cfg.Addr, or to an in-process
// simulated device when cfg.Simulate is set.
func openSession(cfg *Config) (*session, error) {
	t, target, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	s := &session{
		runID:     uuid.NewString(),
		transport: t,
		mtu:       transfer.NewMTU(cfg.MTU),
	}

	logrus.WithFields(logrus.Fields{
		"function": "openSession",
		"run_id":   s.runID,
		"device":   target,
		"mtu":      cfg.MTU,
	}).Info("Session opened")

	return s, nil
}

func newTransport(cfg *Config) (transport.Transport, string, error) {
	if cfg.Simulate {
		opts := device.NewOptions()
		opts.MTU = cfg.DeviceMTU
		opts.ImageSlots = cfg.ImageSlots
		return transport.NewLoopback(device.New(opts)), "simulated", nil
	}

	opts := transport.NewUDPOptions()
	opts.Timeout = cfg.Timeout
	t, err := transport.NewUDPTransport(cfg.Addr, opts)
	if err != nil {
		return nil, "", err
	}
	return t, cfg.Addr, nil
}

func (s *session) Close() error {
	return s.transport.Close()
}

func upload(ctx context.Context, cfg *Config, local, remote string) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}

	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	fs := mgmt.NewFSManager(s.transport, s.mtu)
	defer fs.Close()

	p := newProgressPrinter(os.Stdout, "upload "+remote)
	h := fs.StartFileUpload(remote, data, p.Callbacks())
	return supervise(ctx, s, h, p)
}

func download(ctx context.Context, cfg *Config, remote, local string) error {
	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	fs := mgmt.NewFSManager(s.transport, s.mtu)
	defer fs.Close()

	p := newProgressPrinter(os.Stdout, "download "+remote)
	h := fs.StartFileDownload(remote, p.Callbacks())
	if err := supervise(ctx, s, h, p); err != nil {
		return err
	}
	return os.WriteFile(local, h.Transfer().Data(), 0o644)
}

func imageUpload(ctx context.Context, cfg *Config, local string) error {
	data, err := os.ReadFile(local)
	if err != nil {
		return err
	}

	s, err := openSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	im := mgmt.NewImageManager(s.transport, s.mtu)
	defer im.Close()

	p := newProgressPrinter(os.Stdout, fmt.Sprintf("image %d", cfg.Image))
	h := im.StartImageUpload(data, cfg.Image, p.Callbacks())
	return supervise(ctx, s, h, p)
}

// supervise forwards control signals to the transfer until it finishes and
// returns its outcome.
func supervise(ctx context.Context, s *session, h *transfer.Handle, p *progressPrinter) error {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, controlSignals...)
	defer signal.Stop(signals)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-h.Done():
				return nil
			case <-gctx.Done():
				h.Cancel()
				return nil
			case sig := <-signals:
				control(s, h, p, signalAction(sig))
			}
		}
	})
	g.Go(func() error {
		return h.Wait(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	<-h.Done()
	logrus.WithFields(logrus.Fields{
		"function": "supervise",
		"run_id":   s.runID,
		"attempts": h.Attempts(),
		"mtu":      s.mtu.UploadMTU(),
	}).Info("Transfer finished")
	return p.Err()
}

func control(s *session, h *transfer.Handle, p *progressPrinter, a action) {
	logrus.WithFields(logrus.Fields{
		"function": "control",
		"run_id":   s.runID,
		"action":   a,
	}).Debug("Control signal received")

	switch a {
	case actionPause:
		if h.State() == transfer.StateTransfer {
			h.Pause()
			p.Paused(true)
		}
	case actionResume:
		if h.State() == transfer.StatePaused {
			h.Resume()
			p.Paused(false)
		}
	default:
		h.Cancel()
	}
}
