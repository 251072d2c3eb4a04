// Package pacer schedules write batches against a wall-clock target rate.
//
// The pacer is open-loop: the issuance schedule depends only on the clock,
// never on completion latency, so load does not self-throttle under
// contention. A closed loop would hide exactly the tail behavior the
// benchmark exists to expose.
package pacer

import (
	"runtime"
	"time"
)

// burstFactor stretches the inter-batch interval and batch size in spiky
// mode: the same long-run rate delivered as periodic oversized bursts.
const burstFactor = 10

// Pacer holds one worker's schedule state. Each worker owns its own Pacer;
// there is no shared scheduling state across threads.
type Pacer struct {
	interval time.Duration
	batch    int
	next     time.Time
}

// New builds a pacer for one worker's share of the target rate.
//
// ratePerSec is the aggregate target across all threads. In uniform mode
// worker deadlines are phase-shifted by threadID so submissions interleave
// evenly; in spiky mode the offset is dropped so all workers fire together,
// and each due tick carries an oversized burst at a stretched interval.
func New(ratePerSec float64, batch, threads, threadID int, spiky bool, now time.Time) *Pacer {
	perThread := ratePerSec / float64(threads)
	interval := time.Duration(float64(batch) / perThread * float64(time.Second))

	offset := interval / time.Duration(threads) * time.Duration(threadID)
	if spiky {
		offset = 0
		interval *= burstFactor
		batch *= burstFactor
	}

	return &Pacer{
		interval: interval,
		batch:    batch,
		next:     now.Add(offset + interval),
	}
}

// Interval returns the inter-batch interval.
func (p *Pacer) Interval() time.Duration { return p.interval }

// Batch returns the number of requests per due tick.
func (p *Pacer) Batch() int { return p.batch }

// Poll reports whether a batch is due at now. When due it returns the batch
// size and the drift: how far past the deadline the poll arrived, in
// microseconds, always >= 0. The drift is later added to each latency sample
// of the batch so issuer scheduling jitter is not misattributed to the
// device. The deadline then advances by one interval; a loop running behind
// schedule sees immediately-due polls with growing drift until it catches
// up.
func (p *Pacer) Poll(now time.Time) (due bool, batch int, driftUs int64) {
	if now.Before(p.next) {
		return false, 0, 0
	}
	driftUs = now.Sub(p.next).Microseconds()
	p.next = p.next.Add(p.interval)
	return true, p.batch, driftUs
}

// Wait busy-polls until a batch is due or the deadline passes. Microsecond
// pacing sits below reliable sleep granularity, so the wait spins; Gosched
// keeps the runtime responsive without giving up the timing budget.
func (p *Pacer) Wait(deadline time.Time) (batch int, driftUs int64, ok bool) {
	for {
		now := time.Now()
		if now.After(deadline) {
			return 0, 0, false
		}
		if due, b, d := p.Poll(now); due {
			return b, d, true
		}
		runtime.Gosched()
	}
}
