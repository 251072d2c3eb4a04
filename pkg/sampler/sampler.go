// Package sampler turns (submission tag, completion time) pairs into
// drift-corrected latency samples held in a bounded, preallocated buffer.
package sampler

import "time"

// Clock is a monotonic microsecond clock with a fixed epoch. All tags and
// completion times within one run are read from the same Clock so latencies
// never go negative.
type Clock struct {
	epoch time.Time
}

func NewClock() *Clock {
	return &Clock{epoch: time.Now()}
}

// Now returns microseconds since the clock epoch.
func (c *Clock) Now() int64 {
	return time.Since(c.epoch).Microseconds()
}

// Tag packs a microsecond timestamp into the opaque 64-bit value that rides
// along with an in-flight request.
func Tag(nowUs int64) uint64 {
	return uint64(nowUs)
}

// SubmitTime recovers the submission timestamp from a request tag.
func SubmitTime(tag uint64) int64 {
	return int64(tag)
}

// Sampler collects latency samples into a fixed-capacity buffer. Once the
// buffer is full further samples are dropped rather than grown: reallocation
// in the hot path would perturb the very latencies being measured.
type Sampler struct {
	samples []int64
	dropped int64
	retired bool
}

// New preallocates a sampler holding at most capacity samples.
func New(capacity int) *Sampler {
	return &Sampler{samples: make([]int64, 0, capacity)}
}

// Record appends one latency sample: completion time minus the submission
// time carried in the tag, plus the scheduling drift of the batch. The drift
// correction is applied to every sample of a batch even though only the
// first request was actually delayed; this matches the established result
// format and is a known approximation.
func (s *Sampler) Record(tag uint64, completionUs, driftUs int64) {
	if s.retired || len(s.samples) == cap(s.samples) {
		s.dropped++
		return
	}
	s.samples = append(s.samples, completionUs-SubmitTime(tag)+driftUs)
}

// Len returns the number of recorded samples.
func (s *Sampler) Len() int { return len(s.samples) }

// Dropped returns how many samples were discarded after capacity ran out.
func (s *Sampler) Dropped() int64 { return s.dropped }

// Snapshot hands the collected samples to the caller and retires the
// sampler. A retired sampler silently drops further records; a fresh
// instance is required to sample again.
func (s *Sampler) Snapshot() []int64 {
	s.retired = true
	return s.samples
}
