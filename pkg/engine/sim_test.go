package engine

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailspin-io/tailspin/pkg/sampler"
)

func TestSimCompletesAtSubmitPlusLatency(t *testing.T) {
	clk := sampler.NewClock()
	q := NewSim(4096, 100, clk)

	var next uint64 = 1000
	tag := func() uint64 { next += 10; return next }

	n, err := q.SubmitWrites([]int64{0, 4096, 8192}, tag)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	assert.Equal(t, 3, q.InFlight())

	cs, err := q.WaitCompletions(3)
	require.NoError(t, err)
	require.Len(t, cs, 3)
	assert.Equal(t, 0, q.InFlight())

	for _, c := range cs {
		assert.Equal(t, int32(4096), c.Res)
		assert.Equal(t, sampler.SubmitTime(c.Tag)+100, c.At)
	}
}

func TestSimWaitZeroWithNothingInFlight(t *testing.T) {
	q := NewSim(4096, 100, sampler.NewClock())
	cs, err := q.WaitCompletions(0)
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestSimDepthBackpressure(t *testing.T) {
	q := NewSim(4096, 100, sampler.NewClock())
	q.Depth = 2

	tag := func() uint64 { return 0 }
	n, err := q.SubmitWrites([]int64{0, 4096, 8192, 12288}, tag)
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, n)

	// Draining frees the slots for the rest of the batch.
	cs, err := q.WaitCompletions(1)
	require.NoError(t, err)
	assert.Len(t, cs, 2)

	n, err = q.SubmitWrites([]int64{8192, 12288}, tag)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSimFailEveryNSurfacesIOError(t *testing.T) {
	q := NewSim(4096, 100, sampler.NewClock())
	q.FailEveryN = 3

	tag := func() uint64 { return 0 }
	_, err := q.SubmitWrites([]int64{0, 4096, 8192, 12288}, tag)
	require.NoError(t, err)

	cs, err := q.WaitCompletions(4)
	require.Error(t, err)

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, syscall.EIO, ioErr.Errno)
	assert.True(t, errors.Is(err, syscall.EIO))

	// The two healthy completions before the failure are still delivered.
	assert.Len(t, cs, 2)
}
