//go:build linux

package engine

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/godzie44/go-uring/uring"
	"github.com/ncw/directio"

	"github.com/tailspin-io/tailspin/pkg/sampler"
)

// URing is the io_uring-backed Queue. It owns the ring, a page-aligned
// write buffer sliced per slot, and the per-slot tag table used to correlate
// completions back to their submissions.
type URing struct {
	ring      *uring.Ring
	fd        uintptr
	clk       *sampler.Clock
	blockSize int
	depth     int

	buf  []byte
	tags []uint64

	freeSlots []int
	nextFree  int
	inFlight  int
}

// NewURing sets up a ring of the given depth against fd. The write buffer is
// allocated once, aligned for direct I/O, and filled with constant bytes:
// the benchmark measures device latency, not data integrity, and the buffer
// is never read back.
func NewURing(fd uintptr, blockSize, depth int, clk *sampler.Clock) (*URing, error) {
	ring, err := uring.New(uint32(depth))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRingInit, err)
	}

	buf := directio.AlignedBlock(blockSize * depth)
	for i := range buf {
		buf[i] = 0x5a
	}

	q := &URing{
		ring:      ring,
		fd:        fd,
		clk:       clk,
		blockSize: blockSize,
		depth:     depth,
		buf:       buf,
		tags:      make([]uint64, depth),
		freeSlots: make([]int, depth),
		nextFree:  depth,
	}
	for i := 0; i < depth; i++ {
		q.freeSlots[i] = i
	}
	return q, nil
}

func (q *URing) InFlight() int { return q.inFlight }

func (q *URing) SubmitWrites(offsets []int64, tag func() uint64) (int, error) {
	queued := 0
	full := false
	for _, off := range offsets {
		if q.nextFree == 0 {
			full = true
			break
		}
		slot := q.freeSlots[q.nextFree-1]

		blockBuf := q.buf[slot*q.blockSize : (slot+1)*q.blockSize]
		op := uring.Write(q.fd, blockBuf, uint64(off))
		q.tags[slot] = tag()
		if err := q.ring.QueueSQE(op, 0, uint64(slot)); err != nil {
			full = true
			break
		}
		q.nextFree--
		q.inFlight++
		queued++
	}

	if queued > 0 {
		for {
			_, err := q.ring.Submit()
			if err == nil {
				break
			}
			if !isEINTR(err) {
				return queued, fmt.Errorf("ring submit: %w", err)
			}
		}
	}

	if full && queued < len(offsets) {
		return queued, ErrQueueFull
	}
	return queued, nil
}

func (q *URing) WaitCompletions(min int) ([]Completion, error) {
	if min > q.inFlight {
		min = q.inFlight
	}

	var cqe *uring.CQEvent
	var err error
	if min > 0 {
		for {
			cqe, err = q.ring.WaitCQEvents(uint32(min))
			if err == nil || !isEINTR(err) {
				break
			}
		}
		if err != nil {
			return nil, fmt.Errorf("wait completions: %w", err)
		}
	} else {
		cqe, _ = q.ring.PeekCQE()
	}

	var completions []Completion
	for cqe != nil {
		slot := int(cqe.UserData)
		res := cqe.Res
		tag := q.tags[slot]

		q.ring.SeenCQE(cqe)
		q.inFlight--
		q.freeSlots[q.nextFree] = slot
		q.nextFree++

		if res < 0 {
			return completions, &IOError{Op: "write", Errno: syscall.Errno(-res)}
		}
		completions = append(completions, Completion{Tag: tag, Res: res, At: q.clk.Now()})

		cqe, _ = q.ring.PeekCQE()
	}
	return completions, nil
}

func (q *URing) Close() error {
	return q.ring.Close()
}

func isEINTR(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EINTR) {
		return true
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return sysErr.Err == syscall.EINTR
	}
	return false
}
