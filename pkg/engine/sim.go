package engine

import (
	"syscall"

	"github.com/tailspin-io/tailspin/pkg/sampler"
)

// SimQueue is an in-memory Queue for tests: every write completes after a
// fixed simulated latency, and every FailEveryN-th operation (if set)
// completes with an error status. It honors the same backpressure and
// draining semantics as the real ring.
type SimQueue struct {
	// LatencyUs is the simulated device latency applied to every write.
	LatencyUs int64
	// FailEveryN, when > 0, makes every N-th submitted operation complete
	// with EIO.
	FailEveryN int64
	// Depth bounds in-flight operations; 0 means unbounded.
	Depth int

	clk       *sampler.Clock
	blockSize int

	// Offsets records every submitted offset in order, for assertions on
	// addressing patterns.
	Offsets []int64

	pending []Completion
	failed  []bool
	ops     int64
	closed  bool
}

func NewSim(blockSize int, latencyUs int64, clk *sampler.Clock) *SimQueue {
	return &SimQueue{LatencyUs: latencyUs, clk: clk, blockSize: blockSize}
}

func (q *SimQueue) InFlight() int { return len(q.pending) }

func (q *SimQueue) SubmitWrites(offsets []int64, tag func() uint64) (int, error) {
	queued := 0
	for _, off := range offsets {
		if q.Depth > 0 && len(q.pending) >= q.Depth {
			return queued, ErrQueueFull
		}
		q.Offsets = append(q.Offsets, off)
		q.ops++
		t := tag()
		c := Completion{
			Tag: t,
			Res: int32(q.blockSize),
			At:  sampler.SubmitTime(t) + q.LatencyUs,
		}
		fail := q.FailEveryN > 0 && q.ops%q.FailEveryN == 0
		if fail {
			c.Res = -int32(syscall.EIO)
		}
		q.pending = append(q.pending, c)
		q.failed = append(q.failed, fail)
		queued++
	}
	return queued, nil
}

func (q *SimQueue) WaitCompletions(min int) ([]Completion, error) {
	if min > len(q.pending) {
		min = len(q.pending)
	}
	_ = min // everything pending is always ready

	var completions []Completion
	for len(q.pending) > 0 {
		c := q.pending[0]
		fail := q.failed[0]
		q.pending = q.pending[1:]
		q.failed = q.failed[1:]
		if fail {
			return completions, &IOError{Op: "write", Errno: syscall.Errno(-c.Res)}
		}
		completions = append(completions, c)
	}
	return completions, nil
}

func (q *SimQueue) Close() error {
	q.closed = true
	return nil
}

// Closed reports whether Close was called, for lifecycle assertions.
func (q *SimQueue) Closed() bool { return q.closed }

// Ops returns the total number of submitted operations.
func (q *SimQueue) Ops() int64 { return q.ops }
