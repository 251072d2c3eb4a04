package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagRoundTrip(t *testing.T) {
	for _, us := range []int64{0, 1, 12345, 1<<40 + 7} {
		assert.Equal(t, us, SubmitTime(Tag(us)))
	}
}

func TestRecordAppliesDriftCorrection(t *testing.T) {
	s := New(8)
	s.Record(Tag(1000), 1100, 25)
	got := s.Snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, int64(125), got[0])
}

func TestBoundedCapacitySaturates(t *testing.T) {
	s := New(4)
	for i := int64(0); i < 6; i++ {
		s.Record(Tag(i), i+100, 0)
	}
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, int64(2), s.Dropped())
	assert.Len(t, s.Snapshot(), 4)
}

func TestSnapshotRetiresSampler(t *testing.T) {
	s := New(8)
	s.Record(Tag(0), 50, 0)
	first := s.Snapshot()
	require.Len(t, first, 1)

	s.Record(Tag(0), 60, 0)
	assert.Equal(t, 1, s.Len(), "record after snapshot must not grow the buffer")
	assert.Equal(t, int64(1), s.Dropped())
}

func TestMonotonicClockYieldsNonNegativeLatency(t *testing.T) {
	clk := NewClock()
	s := New(128)
	for i := 0; i < 100; i++ {
		tag := Tag(clk.Now())
		s.Record(tag, clk.Now(), 0)
	}
	for i, v := range s.Snapshot() {
		require.GreaterOrEqual(t, v, int64(0), "sample %d negative", i)
	}
}
