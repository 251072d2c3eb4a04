// Package output appends run results to the summary and samples CSV files.
// Both files are append-mode so repeated invocations accumulate rows; the
// header is written only when the file is new. Samples join the summary by
// the run uuid.
package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/tailspin-io/tailspin/pkg/config"
	"github.com/tailspin-io/tailspin/pkg/stats"
)

var summaryHeader = []string{
	"instance_type", "start_time", "hostname", "ssd_device", "writer_threads",
	"runtime_seconds", "preinitialize", "capacity_fraction", "max_iops", "iops",
	"utilization_iop", "use_fsync", "uuid", "spiky",
	"min", "max", "p50th", "p75th", "p90th", "p99th", "p999th",
}

var samplesHeader = []string{"latency", "id", "uuid"}

func openAppend(path string) (*os.File, bool, error) {
	_, statErr := os.Stat(path)
	exists := statErr == nil

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, false, fmt.Errorf("open %s: %w", path, err)
	}
	return f, exists, nil
}

// AppendSummary writes one summary row for the run.
func AppendSummary(path string, run config.Run, s stats.Summary) error {
	f, exists, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(summaryHeader); err != nil {
			return err
		}
	}

	row := []string{
		run.InstanceType,
		strconv.FormatInt(run.StartTime, 10),
		run.Hostname,
		run.SSDDevice,
		strconv.Itoa(run.WriterThreads),
		strconv.Itoa(run.RuntimeSeconds),
		strconv.FormatBool(run.Preinitialize),
		strconv.FormatFloat(run.CapacityFraction, 'g', -1, 64),
		strconv.FormatInt(run.MaxIOPS, 10),
		strconv.FormatInt(run.IOPS, 10),
		strconv.FormatFloat(run.UtilizationIOP, 'g', -1, 64),
		strconv.FormatBool(run.UseFsync),
		run.UUID,
		strconv.FormatBool(run.Spiky),
		strconv.FormatInt(s.Min, 10),
		strconv.FormatInt(s.Max, 10),
		strconv.FormatInt(s.P50, 10),
		strconv.FormatInt(s.P75, 10),
		strconv.FormatInt(s.P90, 10),
		strconv.FormatInt(s.P99, 10),
		strconv.FormatInt(s.P999, 10),
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// AppendSamples writes one row per latency sample, with a monotonic index
// and the run uuid for joining against the summary.
func AppendSamples(path, runID string, samples []int64) error {
	f, exists, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if !exists {
		if err := w.Write(samplesHeader); err != nil {
			return err
		}
	}

	for i, latency := range samples {
		row := []string{
			strconv.FormatInt(latency, 10),
			strconv.Itoa(i),
			runID,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
