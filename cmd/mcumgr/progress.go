package main

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/opd-ai/mcumgr/mgmt"
)

// errCanceled is returned by progressPrinter.Err for canceled transfers.
var errCanceled = errors.New("transfer canceled")

// progressPrinter renders transfer callbacks as a single updating line and
// remembers the outcome.
type progressPrinter struct {
	out      io.Writer
	label    string
	interval time.Duration

	mu        sync.Mutex
	start     time.Time
	lastPrint time.Time
	lastLen   int
	completed bool
	canceled  bool
	err       error
}

func newProgressPrinter(out io.Writer, label string) *progressPrinter {
	return &progressPrinter{
		out:      out,
		label:    label,
		interval: 200 * time.Millisecond,
	}
}

// Callbacks returns the transfer callbacks feeding the printer.
func (p *progressPrinter) Callbacks() mgmt.Callbacks {
	return mgmt.Callbacks{
		Progress: p.progress,
		Complete: p.complete,
		Failed:   p.failed,
		Canceled: p.cancel,
	}
}

func (p *progressPrinter) progress(offset, total int, ts time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.start.IsZero() {
		p.start = ts
	}
	if offset != total && ts.Sub(p.lastPrint) < p.interval {
		return
	}
	p.lastPrint = ts

	line := fmt.Sprintf("%s %s / %s", p.label, humanize.Bytes(uint64(offset)), humanize.Bytes(uint64(total)))
	if elapsed := ts.Sub(p.start); elapsed > 0 {
		rate := float64(offset) / elapsed.Seconds()
		line += fmt.Sprintf(" (%s/s)", humanize.Bytes(uint64(rate)))
	}
	p.printLine(line)
}

// printLine rewrites the current terminal line.
func (p *progressPrinter) printLine(line string) {
	pad := p.lastLen - len(line)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(p.out, "\r%s%*s", line, pad, "")
	p.lastLen = len(line)
}

func (p *progressPrinter) complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = true
	fmt.Fprintln(p.out)
	color.New(color.FgGreen).Fprintf(p.out, "%s completed\n", p.label)
}

func (p *progressPrinter) failed(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	fmt.Fprintln(p.out)
	color.New(color.FgRed).Fprintf(p.out, "%s failed: %v\n", p.label, err)
}

func (p *progressPrinter) cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.canceled = true
	fmt.Fprintln(p.out)
	color.New(color.FgYellow).Fprintf(p.out, "%s canceled\n", p.label)
}

// Paused reports a pause or resume to the user.
func (p *progressPrinter) Paused(paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out)
	if paused {
		color.New(color.FgCyan).Fprintf(p.out, "%s paused (SIGUSR2 to resume)\n", p.label)
	} else {
		color.New(color.FgCyan).Fprintf(p.out, "%s resumed\n", p.label)
	}
	p.lastLen = 0
}

// Err returns the outcome of the transfer: nil once completed.
func (p *progressPrinter) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.completed:
		return nil
	case p.canceled:
		return errCanceled
	case p.err != nil:
		return p.err
	default:
		return errors.New("transfer ended without an outcome")
	}
}
