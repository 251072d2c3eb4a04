// Package stats reduces a run's merged latency samples to the summary row
// written alongside them.
package stats

import (
	"fmt"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Summary holds the per-run latency distribution figures, in microseconds.
type Summary struct {
	Count int64
	Min   int64
	Max   int64
	P50   int64
	P75   int64
	P90   int64
	P99   int64
	P999  int64
}

// Summarize computes the summary over merged samples. Percentiles come from
// an HDR histogram with three significant figures over a 1µs..1h range;
// min/max are exact.
func Summarize(samples []int64) (Summary, error) {
	if len(samples) == 0 {
		return Summary{}, fmt.Errorf("no samples collected")
	}

	hist := hdrhistogram.New(1, 3600000000, 3)
	s := Summary{Count: int64(len(samples)), Min: samples[0], Max: samples[0]}
	for _, v := range samples {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		rv := v
		if rv < 1 {
			rv = 1
		}
		_ = hist.RecordValue(rv)
	}

	s.P50 = hist.ValueAtQuantile(50)
	s.P75 = hist.ValueAtQuantile(75)
	s.P90 = hist.ValueAtQuantile(90)
	s.P99 = hist.ValueAtQuantile(99)
	s.P999 = hist.ValueAtQuantile(99.9)
	return s, nil
}
