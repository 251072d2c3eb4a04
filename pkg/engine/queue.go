// Package engine drives the asynchronous I/O submission/completion queue.
// The Queue interface hides the platform facility (io_uring on Linux) behind
// a submit/drain capability carrying an opaque 64-bit tag per request.
package engine

import (
	"errors"
	"fmt"
	"syscall"
)

// ErrQueueFull signals that the submission ring had no free slot for part of
// a batch. It is backpressure, not a benchmark error: the caller drains
// completions and resubmits the remainder.
var ErrQueueFull = errors.New("submission queue full")

// ErrRingInit signals that the kernel asynchronous I/O facility could not be
// initialized. Fatal; no run starts without a ring.
var ErrRingInit = errors.New("ring init failed")

// IOError reports a completed operation that carried an error status. The
// benchmark never retries device errors: a failing device invalidates the
// latency measurement, so the run aborts.
type IOError struct {
	Op     string
	Offset int64
	Errno  syscall.Errno
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io failed: op=%s offset=%d errno=%d (%v)", e.Op, e.Offset, e.Errno, e.Errno)
}

func (e *IOError) Unwrap() error { return e.Errno }

// Completion is one drained completion event: the tag stamped at submission,
// the raw result (negative means error, already surfaced as IOError by the
// queue), and the completion timestamp in microseconds on the run clock.
type Completion struct {
	Tag uint64
	Res int32
	At  int64
}

// Queue is the capability interface over one asynchronous write queue. One
// Queue per writer worker; none of its methods are safe for concurrent use.
type Queue interface {
	// SubmitWrites enqueues one fixed-size block write per offset, stamping
	// each with the value returned by tag at submission time. It returns how
	// many were accepted; ErrQueueFull means the rest must wait until the
	// caller drains.
	SubmitWrites(offsets []int64, tag func() uint64) (int, error)

	// WaitCompletions blocks until at least min completions are ready, then
	// drains everything currently ready. Completions may arrive out of
	// submission order; callers must not assume otherwise. min==0 with
	// nothing in flight returns immediately with no completions. A
	// completion with an error status is returned as *IOError together with
	// the completions drained before it.
	WaitCompletions(min int) ([]Completion, error)

	// InFlight returns the number of submitted, not-yet-drained requests.
	InFlight() int

	// Close releases the queue's ring and buffers.
	Close() error
}
