// Package driver ties the pacer, completion queue and sampler together for
// one benchmark run, fanning the load out across independent writer workers.
package driver

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tailspin-io/tailspin/pkg/config"
	"github.com/tailspin-io/tailspin/pkg/device"
	"github.com/tailspin-io/tailspin/pkg/engine"
	"github.com/tailspin-io/tailspin/pkg/pacer"
	"github.com/tailspin-io/tailspin/pkg/sampler"
)

// State tracks the run through its lifecycle.
type State int

const (
	Initializing State = iota
	Running
	Draining
	Finished
	Failed
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Finished:
		return "finished"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// maxSamplesPerWorker caps the preallocated sample buffer so long runs at
// high rates stay within bounded memory; samples beyond it are dropped.
const maxSamplesPerWorker = 4 << 20

// Driver executes one measurement run. Blocks, Sync, Preinit and NewQueue
// are split out from the device handle so tests can substitute a simulated
// queue without a real block device.
type Driver struct {
	run config.Run
	log zerolog.Logger

	// Blocks is the addressable block count for the configured capacity
	// fraction. Workers partition it disjointly.
	Blocks int64
	// Sync issues the data-synchronizing barrier used in fsync mode.
	Sync func() error
	// Preinit pre-writes the exercised range; nil when disabled.
	Preinit func() error
	// NewQueue builds one worker's completion queue on the worker's clock.
	NewQueue func(workerID int, clk *sampler.Clock) (engine.Queue, error)
	// SampleCapacity overrides the per-worker sample buffer size; 0 derives
	// it from the target rate and runtime.
	SampleCapacity int

	state State
}

// New wires a driver to a real device: per-worker io_uring queues sharing
// the device descriptor, with disjoint offset ranges so there is no
// write-write contention.
func New(run config.Run, dev *device.Device, log zerolog.Logger) *Driver {
	d := &Driver{
		run:    run,
		log:    log,
		Blocks: dev.Blocks(run.CapacityFraction),
		Sync:   dev.Sync,
		NewQueue: func(workerID int, clk *sampler.Clock) (engine.Queue, error) {
			return engine.NewURing(dev.Fd(), device.BlockSize, run.QueueDepth, clk)
		},
	}
	if run.Preinitialize {
		d.Preinit = func() error {
			_, err := dev.Preinitialize(run.CapacityFraction)
			return err
		}
	}
	return d
}

// NewWithQueues builds a driver over an externally supplied queue factory
// and sync barrier, with no real device behind it. This is how simulated
// runs and tests exercise the full driver loop.
func NewWithQueues(run config.Run, log zerolog.Logger, blocks int64, sync func() error, newQueue func(workerID int, clk *sampler.Clock) (engine.Queue, error)) *Driver {
	return &Driver{
		run:      run,
		log:      log,
		Blocks:   blocks,
		Sync:     sync,
		NewQueue: newQueue,
	}
}

// State returns the driver's current lifecycle state.
func (d *Driver) State() State { return d.state }

func (d *Driver) sampleCapacity() int {
	if d.SampleCapacity > 0 {
		return d.SampleCapacity
	}
	perWorker := d.run.IOPS / int64(d.run.WriterThreads) * int64(d.run.RuntimeSeconds)
	if perWorker > maxSamplesPerWorker {
		perWorker = maxSamplesPerWorker
	}
	if perWorker < 1024 {
		perWorker = 1024
	}
	return int(perWorker)
}

type workerResult struct {
	samples []int64
	err     error
}

// Run executes the measurement and returns the merged per-worker samples in
// worker order. Any I/O or ring failure aborts the run; partial samples are
// discarded.
func (d *Driver) Run() ([]int64, error) {
	d.state = Initializing
	d.log.Info().
		Str("uuid", d.run.UUID).
		Float64("utilization", d.run.UtilizationIOP).
		Int64("iops", d.run.IOPS).
		Int("workers", d.run.WriterThreads).
		Bool("spiky", d.run.Spiky).
		Bool("fsync", d.run.UseFsync).
		Msg("run initializing")

	if d.Blocks < int64(d.run.WriterThreads) {
		d.state = Failed
		return nil, fmt.Errorf("addressable range too small: %d blocks for %d workers", d.Blocks, d.run.WriterThreads)
	}
	if d.Preinit != nil {
		d.log.Info().Msg("preinitializing exercised range")
		if err := d.Preinit(); err != nil {
			d.state = Failed
			return nil, err
		}
	}

	workers := d.run.WriterThreads
	results := make([]workerResult, workers)
	var started atomic.Int64
	var wg sync.WaitGroup

	d.state = Running
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			results[id] = d.runWorker(id, &started)
		}(i)
	}
	wg.Wait()

	d.state = Draining
	var merged []int64
	for id, res := range results {
		if res.err != nil {
			d.state = Failed
			d.log.Error().Err(res.err).Int("worker", id).Msg("run failed")
			return nil, fmt.Errorf("worker %d: %w", id, res.err)
		}
		merged = append(merged, res.samples...)
	}

	d.state = Finished
	d.log.Info().
		Str("uuid", d.run.UUID).
		Int("samples", len(merged)).
		Msg("run finished")
	return merged, nil
}

func (d *Driver) runWorker(id int, started *atomic.Int64) workerResult {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	workers := d.run.WriterThreads
	clk := sampler.NewClock()

	q, err := d.NewQueue(id, clk)
	if err != nil {
		started.Add(1)
		return workerResult{err: err}
	}
	defer q.Close()

	part := device.Partition(id, workers, d.Blocks)
	cursor := part.Begin
	smp := sampler.New(d.sampleCapacity())
	tagFn := func() uint64 { return sampler.Tag(clk.Now()) }

	// Align worker start so per-thread phase offsets mean what the pacer
	// thinks they mean.
	started.Add(1)
	for started.Load() != int64(workers) {
		runtime.Gosched()
	}

	p := pacer.New(float64(d.run.IOPS), d.run.BatchSize, workers, id, d.run.Spiky, time.Now())
	deadline := time.Now().Add(d.run.Runtime())

	offsets := make([]int64, 0, p.Batch())
	staged := make([]engine.Completion, 0, p.Batch())

	for {
		batch, drift, ok := p.Wait(deadline)
		if !ok {
			break
		}

		offsets = offsets[:0]
		for i := 0; i < batch; i++ {
			if cursor >= part.End {
				cursor = part.Begin
			}
			offsets = append(offsets, cursor*device.BlockSize)
			cursor++
		}

		staged = staged[:0]

		// Submit, draining on backpressure until the whole batch is in.
		rem := offsets
		for len(rem) > 0 {
			n, err := q.SubmitWrites(rem, tagFn)
			rem = rem[n:]
			if err != nil {
				if errors.Is(err, engine.ErrQueueFull) {
					cs, werr := q.WaitCompletions(1)
					staged = append(staged, cs...)
					if werr != nil {
						return workerResult{err: werr}
					}
					continue
				}
				return workerResult{err: err}
			}
		}

		// Drain until every completion of this batch is observed.
		for q.InFlight() > 0 {
			cs, err := q.WaitCompletions(1)
			staged = append(staged, cs...)
			if err != nil {
				return workerResult{err: err}
			}
		}

		var barrierUs int64
		if d.run.UseFsync {
			t0 := clk.Now()
			if err := d.Sync(); err != nil {
				return workerResult{err: fmt.Errorf("fsync barrier: %w", err)}
			}
			barrierUs = clk.Now() - t0
		}

		for _, c := range staged {
			smp.Record(c.Tag, c.At, drift+barrierUs)
		}
	}

	// Outstanding requests still contribute to the distribution.
	for q.InFlight() > 0 {
		cs, err := q.WaitCompletions(1)
		if err != nil {
			return workerResult{err: err}
		}
		for _, c := range cs {
			smp.Record(c.Tag, c.At, 0)
		}
	}

	return workerResult{samples: smp.Snapshot()}
}
