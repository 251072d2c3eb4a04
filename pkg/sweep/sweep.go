// Package sweep runs the benchmark once per configured utilization point
// and emits the results.
package sweep

import (
	"github.com/rs/zerolog"

	"github.com/tailspin-io/tailspin/pkg/config"
	"github.com/tailspin-io/tailspin/pkg/device"
	"github.com/tailspin-io/tailspin/pkg/driver"
	"github.com/tailspin-io/tailspin/pkg/output"
	"github.com/tailspin-io/tailspin/pkg/stats"
)

// Sweep owns the device for the whole sweep: opened once, shared by every
// run's workers, closed when the sweep ends.
type Sweep struct {
	cfg *config.Config
	dev *device.Device
	log zerolog.Logger

	// newDriver is swappable for tests.
	newDriver func(run config.Run) *driver.Driver
}

func New(cfg *config.Config, dev *device.Device, log zerolog.Logger) *Sweep {
	s := &Sweep{cfg: cfg, dev: dev, log: log}
	s.newDriver = func(run config.Run) *driver.Driver {
		return driver.New(run, dev, log)
	}
	return s
}

// Run executes one benchmark run per utilization point. The preinitialize
// pass, when configured, happens once before the first run; repeating it per
// point would only rewrite the same blocks. Any fatal run error aborts the
// remaining points.
func (s *Sweep) Run() error {
	preinit := s.cfg.Preinitialize
	for _, utilization := range s.cfg.UtilizationIOPS {
		run := config.NewRun(s.cfg, utilization)
		run.Preinitialize = preinit
		preinit = false

		drv := s.newDriver(run)
		samples, err := drv.Run()
		if err != nil {
			return err
		}

		summary, err := stats.Summarize(samples)
		if err != nil {
			return err
		}
		s.log.Info().
			Str("uuid", run.UUID).
			Float64("utilization", utilization).
			Int64("p50_us", summary.P50).
			Int64("p99_us", summary.P99).
			Int64("p999_us", summary.P999).
			Msg("run summary")

		if err := output.AppendSummary(s.cfg.SummaryFile, run, summary); err != nil {
			return err
		}
		if s.cfg.SerializeSamples {
			if err := output.AppendSamples(s.cfg.SamplesFile, run.UUID, samples); err != nil {
				return err
			}
		}
	}
	return nil
}
