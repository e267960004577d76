package transfer

import (
	"context"
	"sync"
)

// pauseGate is a one-bit wait/wake primitive. While shut, wait blocks; open
// releases every pending waiter. Both operations are idempotent.
type pauseGate struct {
	mu sync.Mutex
	ch chan struct{} // closed while the gate is open
}

func newPauseGate() *pauseGate {
	ch := make(chan struct{})
	close(ch)
	return &pauseGate{ch: ch}
}

// shut makes subsequent waiters block.
func (g *pauseGate) shut() {
	g.mu.Lock()
	defer g.mu.Unlock()

	select {
	case <-g.ch:
		g.ch = make(chan struct{})
	default:
	}
}

// open releases all waiters.
func (g *pauseGate) open() {
	g.mu.Lock()
	defer g.mu.Unlock()

	select {
	case <-g.ch:
	default:
		close(g.ch)
	}
}

func (g *pauseGate) isOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// wait blocks until the gate is open or ctx is done.
func (g *pauseGate) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
