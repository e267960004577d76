package transfer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockTimeProvider provides deterministic time for testing.
type mockTimeProvider struct {
	mu          sync.Mutex
	currentTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *mockTimeProvider) Since(t time.Time) time.Duration {
	return m.Now().Sub(t)
}

func (m *mockTimeProvider) advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = m.currentTime.Add(d)
}

func newMockTimeProvider() *mockTimeProvider {
	return &mockTimeProvider{
		currentTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

type eventKind string

const (
	eventProgress  eventKind = "progress"
	eventCompleted eventKind = "completed"
	eventFailed    eventKind = "failed"
	eventCanceled  eventKind = "canceled"
)

type event struct {
	kind   eventKind
	offset int
	total  int
	err    error
}

// observable is satisfied by Upload and Download.
type observable interface {
	OnProgress(func(offset, total int, timestamp time.Time))
	OnComplete(func())
	OnFailed(func(error))
	OnCancel(func())
}

// recorder captures callbacks in delivery order.
type recorder struct {
	mu       sync.Mutex
	events   []event
	terminal chan struct{}
	once     sync.Once

	// onProgress, if set, runs inside the progress callback.
	onProgress func(offset int)
}

func newRecorder() *recorder {
	return &recorder{terminal: make(chan struct{})}
}

func (r *recorder) watch(o observable) {
	o.OnProgress(func(offset, total int, _ time.Time) {
		r.add(event{kind: eventProgress, offset: offset, total: total})
		if r.onProgress != nil {
			r.onProgress(offset)
		}
	})
	o.OnComplete(func() { r.add(event{kind: eventCompleted}); r.done() })
	o.OnFailed(func(err error) { r.add(event{kind: eventFailed, err: err}); r.done() })
	o.OnCancel(func() { r.add(event{kind: eventCanceled}); r.done() })
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) done() {
	r.once.Do(func() { close(r.terminal) })
}

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) offsets() []int {
	var out []int
	for _, e := range r.snapshot() {
		if e.kind == eventProgress {
			out = append(out, e.offset)
		}
	}
	return out
}

func (r *recorder) count(kind eventKind) int {
	n := 0
	for _, e := range r.snapshot() {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) terminals() []event {
	var out []event
	for _, e := range r.snapshot() {
		if e.kind != eventProgress {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) waitTerminal(t *testing.T) {
	t.Helper()
	select {
	case <-r.terminal:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a terminal callback")
	}
}

// stepWriter confirms a fixed number of bytes per chunk.
type stepWriter struct {
	step  int
	calls atomic.Int32
}

func (w *stepWriter) WriteChunk(_ context.Context, data []byte, offset int) (int, error) {
	w.calls.Add(1)
	return min(offset+w.step, len(data)), nil
}

// mtuWriter frames chunks with the MTU from store and rejects anything
// above the device MTU, like a device advertising its own MTU.
type mtuWriter struct {
	store     MTUStore
	deviceMTU atomic.Int32
	calls     atomic.Int32
	restarts  atomic.Int32
}

func newMTUWriter(store MTUStore, deviceMTU int) *mtuWriter {
	w := &mtuWriter{store: store}
	w.deviceMTU.Store(int32(deviceMTU))
	return w
}

func (w *mtuWriter) WriteChunk(_ context.Context, data []byte, offset int) (int, error) {
	w.calls.Add(1)
	if offset == 0 {
		w.restarts.Add(1)
	}
	mtu := w.store.UploadMTU()
	device := int(w.deviceMTU.Load())
	if mtu > device {
		return offset, &InsufficientMTUError{MTU: device}
	}
	return min(offset+mtu, len(data)), nil
}

// fakeStore is an MTUStore that records updates and can reject them.
type fakeStore struct {
	mu     sync.Mutex
	mtu    int
	accept bool
	sets   []int
}

func (f *fakeStore) UploadMTU() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mtu
}

func (f *fakeStore) SetUploadMTU(mtu int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, mtu)
	if f.accept {
		f.mtu = mtu
	}
	return f.accept
}

func (f *fakeStore) updates() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.sets...)
}

// nilDataTransfer reports success from SendNext but never learns its payload.
type nilDataTransfer struct {
	base
}

func newNilDataTransfer() *nilDataTransfer {
	n := &nilDataTransfer{}
	n.init(nil)
	return n
}

func (n *nilDataTransfer) SendNext(context.Context) error { return nil }

func (n *nilDataTransfer) Reset() { n.resetBase(nil) }

func payload(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}
