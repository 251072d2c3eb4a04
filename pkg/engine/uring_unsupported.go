//go:build !linux

package engine

import (
	"fmt"

	"github.com/tailspin-io/tailspin/pkg/sampler"
)

// URing is only available on Linux.
type URing struct{}

func NewURing(fd uintptr, blockSize, depth int, clk *sampler.Clock) (*URing, error) {
	return nil, fmt.Errorf("%w: io_uring is only supported on Linux", ErrRingInit)
}

func (q *URing) SubmitWrites(offsets []int64, tag func() uint64) (int, error) {
	return 0, fmt.Errorf("io_uring is only supported on Linux")
}

func (q *URing) WaitCompletions(min int) ([]Completion, error) {
	return nil, fmt.Errorf("io_uring is only supported on Linux")
}

func (q *URing) InFlight() int { return 0 }

func (q *URing) Close() error { return nil }
