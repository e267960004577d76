// Package transfer implements controllable chunked transfers for the SMP
// device-management client: a driver that moves one payload chunk by chunk
// with pause, resume and cancel support, and a supervisor that serializes
// transfers and recovers once from an MTU misestimate.
//
// # Overview
//
// The package provides three layers:
//
//   - Transfer: the contract a payload source or sink implements. Upload and
//     Download are the concrete implementations; they delegate the wire work
//     to an UploadWriter or DownloadReader.
//   - Driver: runs one Transfer to a terminal state and is its Controller.
//   - Supervisor: queues transfers on a single worker goroutine and applies
//     the MTU retry policy.
//
// # Uploads and Downloads
//
//	upload := transfer.NewUpload(image, writer)
//	upload.OnProgress(func(offset, total int, ts time.Time) {
//	    fmt.Printf("%d/%d\n", offset, total)
//	})
//	upload.OnComplete(func() { fmt.Println("done") })
//	upload.OnFailed(func(err error) { fmt.Println(err) })
//
//	handle := supervisor.StartUpload(upload)
//	handle.Pause()
//	handle.Resume()
//	<-handle.Done()
//
// # Driver States
//
//	StateNone      // constructed, not yet started
//	StateTransfer  // sending chunks
//	StatePaused    // blocked on the pause gate between chunks
//	StateClosed    // terminal: completed, failed or canceled
//
// Pause only applies in StateTransfer and Resume only in StatePaused; every
// controller call on a closed driver is ignored. Cancel is cooperative: it is
// observed after waking from the pause gate and right after SendNext
// returns. A chunk in flight when Cancel arrives is not interrupted, but no
// progress is reported for it.
//
// # Callbacks
//
// NotifyProgress is delivered after every confirmed chunk with the new
// offset, the payload size and a monotonic timestamp. Exactly one of
// NotifyCompleted, NotifyFailed or NotifyCanceled concludes an attempt, and
// no progress follows it. Callbacks run on the worker goroutine without any
// driver lock held, so they may call Pause, Resume or Cancel.
//
// # MTU Recovery
//
// When SendNext reports *InsufficientMTUError the driver returns it to the
// supervisor instead of failing. On the first attempt the supervisor stores
// the device-advertised MTU (one less if it equals the current MTU), resets
// the transfer and runs it again. A rejected MTU update or a second MTU
// fault fails the transfer with the original error. A transfer is never run
// more than twice.
//
// # Thread Safety
//
// Driver, Supervisor, Upload, Download and MTU are safe for concurrent use.
// A Supervisor runs at most one transfer at a time; transfers queue in
// submission order.
package transfer
