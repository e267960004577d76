package transfer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAsync(d *Driver) <-chan error {
	done := make(chan error, 1)
	go func() {
		_, err := d.Run(context.Background())
		done <- err
	}()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to return")
		return nil
	}
}

func TestDriverHappyPathUpload(t *testing.T) {
	writer := &stepWriter{step: 256}
	upload := NewUpload(payload(1000), writer)
	rec := newRecorder()
	rec.watch(upload)

	d := NewDriver(upload)
	assert.Equal(t, StateNone, d.State())

	result, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Same(t, upload, result)

	assert.Equal(t, []int{256, 512, 768, 1000}, rec.offsets())
	require.Len(t, rec.terminals(), 1)
	assert.Equal(t, eventCompleted, rec.terminals()[0].kind)
	assert.Equal(t, 1000, upload.Offset())
	assert.Equal(t, StateClosed, d.State())

	for _, e := range rec.snapshot() {
		if e.kind == eventProgress {
			assert.Equal(t, 1000, e.total)
		}
	}
}

func TestDriverProgressTimestamps(t *testing.T) {
	tp := newMockTimeProvider()
	upload := NewUpload(payload(512), &stepWriter{step: 256})

	var stamps []time.Time
	upload.OnProgress(func(_, _ int, ts time.Time) {
		stamps = append(stamps, ts)
		tp.advance(time.Second)
	})

	d := NewDriver(upload)
	d.SetTimeProvider(tp)
	_, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, stamps, 2)
	assert.Equal(t, time.Second, stamps[1].Sub(stamps[0]))
}

func TestDriverPauseResume(t *testing.T) {
	writer := &stepWriter{step: 256}
	upload := NewUpload(payload(1000), writer)
	rec := newRecorder()
	d := NewDriver(upload)

	paused := make(chan struct{})
	rec.onProgress = func(offset int) {
		if offset == 512 {
			d.Pause()
			close(paused)
		}
	}
	rec.watch(upload)

	done := runAsync(d)
	<-paused

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StatePaused, d.State())
	assert.Equal(t, []int{256, 512}, rec.offsets())
	assert.Equal(t, int32(2), writer.calls.Load(), "no chunk may be sent while paused")

	d.Resume()
	require.NoError(t, waitRun(t, done))

	assert.Equal(t, []int{256, 512, 768, 1000}, rec.offsets())
	require.Len(t, rec.terminals(), 1)
	assert.Equal(t, eventCompleted, rec.terminals()[0].kind)
}

func TestDriverCancelWhilePaused(t *testing.T) {
	upload := NewUpload(payload(1000), &stepWriter{step: 256})
	rec := newRecorder()
	d := NewDriver(upload)

	paused := make(chan struct{})
	rec.onProgress = func(offset int) {
		if offset == 512 {
			d.Pause()
			close(paused)
		}
	}
	rec.watch(upload)

	done := runAsync(d)
	<-paused

	d.Cancel()
	require.NoError(t, waitRun(t, done))

	assert.Equal(t, []int{256, 512}, rec.offsets())
	assert.Equal(t, 1, rec.count(eventCanceled))
	assert.Equal(t, 0, rec.count(eventCompleted))
	assert.Equal(t, 0, rec.count(eventFailed))
	assert.Equal(t, StateClosed, d.State())
}

func TestDriverCancelDuringSendSuppressesProgress(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	upload := NewUpload(payload(1000), UploadWriterFunc(func(_ context.Context, data []byte, offset int) (int, error) {
		calls.Add(1)
		close(entered)
		<-release
		return offset + 256, nil
	}))
	rec := newRecorder()
	rec.watch(upload)
	d := NewDriver(upload)

	done := runAsync(d)
	<-entered
	d.Cancel()
	close(release)
	require.NoError(t, waitRun(t, done))

	assert.Empty(t, rec.offsets(), "in-flight chunk must not report progress after cancel")
	assert.Equal(t, 1, rec.count(eventCanceled))
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 256, upload.Offset(), "side effects of the in-flight chunk stand")
}

func TestDriverPauseDuringSendReportsChunk(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	upload := NewUpload(payload(512), UploadWriterFunc(func(_ context.Context, data []byte, offset int) (int, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return offset + 256, nil
	}))
	rec := newRecorder()
	reported := make(chan struct{})
	rec.onProgress = func(offset int) {
		if offset == 256 {
			close(reported)
		}
	}
	rec.watch(upload)
	d := NewDriver(upload)

	done := runAsync(d)
	<-entered
	d.Pause()
	close(release)
	<-reported

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StatePaused, d.State())
	assert.Equal(t, []int{256}, rec.offsets())
	assert.Equal(t, int32(1), calls.Load(), "no chunk may be sent while paused")

	d.Resume()
	require.NoError(t, waitRun(t, done))
	assert.Equal(t, []int{256, 512}, rec.offsets())
	assert.Equal(t, 1, rec.count(eventCompleted))
}

func TestDriverCancelFromProgressCallback(t *testing.T) {
	upload := NewUpload(payload(1000), &stepWriter{step: 256})
	rec := newRecorder()
	d := NewDriver(upload)
	rec.onProgress = func(offset int) {
		if offset == 256 {
			d.Cancel()
			d.Cancel()
		}
	}
	rec.watch(upload)

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, eventProgress, events[0].kind)
	assert.Equal(t, eventCanceled, events[1].kind)
}

func TestDriverFailure(t *testing.T) {
	boom := errors.New("device busy")
	upload := NewUpload(payload(1000), UploadWriterFunc(func(_ context.Context, _ []byte, offset int) (int, error) {
		if offset >= 256 {
			return offset, boom
		}
		return offset + 256, nil
	}))
	rec := newRecorder()
	rec.watch(upload)
	d := NewDriver(upload)

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{256}, rec.offsets())
	terminals := rec.terminals()
	require.Len(t, terminals, 1)
	assert.Equal(t, eventFailed, terminals[0].kind)
	assert.ErrorIs(t, terminals[0].err, boom)
	assert.Equal(t, StateClosed, d.State())

	// Controller calls after close are ignored.
	d.Pause()
	d.Resume()
	d.Cancel()
	assert.Equal(t, StateClosed, d.State())
	assert.Len(t, rec.terminals(), 1)
}

func TestDriverContractViolation(t *testing.T) {
	tr := newNilDataTransfer()
	rec := newRecorder()
	rec.watch(tr)
	d := NewDriver(tr)

	_, err := d.Run(context.Background())
	require.NoError(t, err)

	terminals := rec.terminals()
	require.Len(t, terminals, 1)
	assert.Equal(t, eventFailed, terminals[0].kind)
	assert.ErrorIs(t, terminals[0].err, ErrContractViolation)
	assert.Empty(t, rec.offsets())
	assert.Equal(t, StateClosed, d.State())
}

func TestDriverInsufficientMTUPropagates(t *testing.T) {
	upload := NewUpload(payload(1000), UploadWriterFunc(func(_ context.Context, _ []byte, offset int) (int, error) {
		return offset, &InsufficientMTUError{MTU: 200}
	}))
	rec := newRecorder()
	rec.watch(upload)
	d := NewDriver(upload)

	_, err := d.Run(context.Background())
	mtuErr, ok := IsInsufficientMTU(err)
	require.True(t, ok, "expected InsufficientMTUError, got %v", err)
	assert.Equal(t, 200, mtuErr.MTU)

	assert.Empty(t, rec.snapshot(), "no callbacks on the MTU path")
	assert.Equal(t, StateTransfer, d.State())
}

func TestDriverControllerIdempotence(t *testing.T) {
	upload := NewUpload(payload(1000), &stepWriter{step: 256})
	rec := newRecorder()
	d := NewDriver(upload)

	paused := make(chan struct{})
	rec.onProgress = func(offset int) {
		if offset == 256 {
			d.Pause()
			d.Pause()
			close(paused)
		}
	}
	rec.watch(upload)

	done := runAsync(d)
	<-paused
	assert.Equal(t, StatePaused, d.State())
	assert.False(t, d.gate.isOpen())

	d.Resume()
	d.Resume()
	require.NoError(t, waitRun(t, done))

	d.Cancel()
	d.Cancel()
	assert.Equal(t, []int{256, 512, 768, 1000}, rec.offsets())
	assert.Equal(t, 1, rec.count(eventCompleted))
	assert.Equal(t, 0, rec.count(eventCanceled))
}

func TestDriverControllerBeforeRun(t *testing.T) {
	writer := &stepWriter{step: 256}
	upload := NewUpload(payload(1000), writer)
	rec := newRecorder()
	rec.watch(upload)
	d := NewDriver(upload)

	d.Pause()
	assert.Equal(t, StateNone, d.State(), "pause applies only while transferring")
	d.Resume()
	assert.Equal(t, StateNone, d.State())

	d.Cancel()
	assert.Equal(t, StateClosed, d.State())

	_, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(0), writer.calls.Load())
	assert.Equal(t, 1, rec.count(eventCanceled))
	assert.Empty(t, rec.offsets())
}

func TestDriverContextDoneWhilePaused(t *testing.T) {
	upload := NewUpload(payload(1000), &stepWriter{step: 256})
	rec := newRecorder()
	d := NewDriver(upload)

	paused := make(chan struct{})
	rec.onProgress = func(offset int) {
		if offset == 256 {
			d.Pause()
			close(paused)
		}
	}
	rec.watch(upload)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, _ = d.Run(ctx)
		close(done)
	}()

	<-paused
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("paused driver did not observe context cancellation")
	}
	assert.Equal(t, 1, rec.count(eventCanceled))
	assert.Equal(t, StateClosed, d.State())
}

func TestDriverEmptyUploadCompletes(t *testing.T) {
	writer := &stepWriter{step: 256}
	upload := NewUpload(nil, writer)
	rec := newRecorder()
	rec.watch(upload)

	_, err := NewDriver(upload).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(0), writer.calls.Load())
	assert.Empty(t, rec.offsets())
	assert.Equal(t, 1, rec.count(eventCompleted))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "none", StateNone.String())
	assert.Equal(t, "transfer", StateTransfer.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "state(9)", State(9).String())
}
