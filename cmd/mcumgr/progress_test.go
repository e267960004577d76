package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestProgressPrinterCompleted(t *testing.T) {
	color.NoColor = true
	var out bytes.Buffer
	p := newProgressPrinter(&out, "upload /lfs/a")
	cb := p.Callbacks()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.Progress(1000, 4000, start)
	cb.Progress(2000, 4000, start.Add(50*time.Millisecond))
	cb.Progress(4000, 4000, start.Add(time.Second))
	cb.Complete()

	text := out.String()
	assert.Contains(t, text, "upload /lfs/a 1.0 kB / 4.0 kB")
	assert.NotContains(t, text, "2.0 kB /", "updates are throttled")
	assert.Contains(t, text, "4.0 kB / 4.0 kB (4.0 kB/s)")
	assert.Contains(t, text, "upload /lfs/a completed")
	assert.NoError(t, p.Err())
}

func TestProgressPrinterOutcomes(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	p := newProgressPrinter(&out, "x")
	assert.Error(t, p.Err(), "no outcome yet")

	p.Callbacks().Canceled()
	assert.ErrorIs(t, p.Err(), errCanceled)

	boom := errors.New("device busy")
	p = newProgressPrinter(&out, "y")
	p.Callbacks().Failed(boom)
	assert.ErrorIs(t, p.Err(), boom)
	assert.Contains(t, out.String(), "y failed: device busy")

	p.Paused(true)
	assert.Contains(t, out.String(), "y paused")
}
