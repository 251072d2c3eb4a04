//go:build linux

package engine

import (
	"errors"
	"os"
	"testing"

	"github.com/tailspin-io/tailspin/pkg/sampler"
)

func newTestRing(t *testing.T, depth int) (*URing, *sampler.Clock) {
	t.Helper()

	f, err := os.CreateTemp("", "tailspin-uring-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	// Buffered file target keeps the test independent of O_DIRECT support.
	if err := f.Truncate(1 << 20); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })

	clk := sampler.NewClock()
	q, err := NewURing(f.Fd(), 4096, depth, clk)
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q, clk
}

func TestURingSubmitAndDrain(t *testing.T) {
	q, clk := newTestRing(t, 8)

	offsets := []int64{0, 4096, 8192, 12288}
	tags := map[uint64]bool{}
	tag := func() uint64 {
		v := sampler.Tag(clk.Now())
		for tags[v] {
			v++
		}
		tags[v] = true
		return v
	}

	n, err := q.SubmitWrites(offsets, tag)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(offsets) {
		t.Fatalf("submitted %d, want %d", n, len(offsets))
	}
	if q.InFlight() != len(offsets) {
		t.Fatalf("in flight %d, want %d", q.InFlight(), len(offsets))
	}

	var drained []Completion
	for q.InFlight() > 0 {
		cs, err := q.WaitCompletions(1)
		if err != nil {
			t.Fatal(err)
		}
		drained = append(drained, cs...)
	}
	if len(drained) != len(offsets) {
		t.Fatalf("drained %d completions, want %d", len(drained), len(offsets))
	}
	for _, c := range drained {
		if c.Res != 4096 {
			t.Errorf("completion res = %d, want 4096", c.Res)
		}
		if !tags[c.Tag] {
			t.Errorf("completion carries unknown tag %d", c.Tag)
		}
		delete(tags, c.Tag)
	}
}

func TestURingQueueFullBackpressure(t *testing.T) {
	q, clk := newTestRing(t, 2)

	tag := func() uint64 { return sampler.Tag(clk.Now()) }
	offsets := []int64{0, 4096, 8192, 12288}

	n, err := q.SubmitWrites(offsets, tag)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	if n != 2 {
		t.Fatalf("submitted %d, want 2", n)
	}

	if _, err := q.WaitCompletions(2); err != nil {
		t.Fatal(err)
	}
	n, err = q.SubmitWrites(offsets[2:], tag)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("resubmitted %d, want 2", n)
	}
	for q.InFlight() > 0 {
		if _, err := q.WaitCompletions(1); err != nil {
			t.Fatal(err)
		}
	}
}

func TestURingWaitZeroNeverBlocks(t *testing.T) {
	q, _ := newTestRing(t, 4)

	cs, err := q.WaitCompletions(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 0 {
		t.Fatalf("got %d completions with nothing in flight", len(cs))
	}

	// min greater than in-flight must not block forever either.
	cs, err = q.WaitCompletions(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 0 {
		t.Fatalf("got %d completions with nothing in flight", len(cs))
	}
}
