package output

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailspin-io/tailspin/pkg/config"
	"github.com/tailspin-io/tailspin/pkg/stats"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func testRun(uuid string) config.Run {
	cfg := config.Default()
	cfg.InstanceType = "i3en.3xlarge"
	cfg.SSDDevice = "/dev/nvme1n1"
	cfg.MaxIOPS = 200000
	run := config.NewRun(cfg, 0.6)
	run.UUID = uuid
	return run
}

func TestAppendSummaryWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.csv")
	s := stats.Summary{Count: 10, Min: 90, Max: 400, P50: 100, P75: 120, P90: 150, P99: 300, P999: 390}

	require.NoError(t, AppendSummary(path, testRun("run-a"), s))
	require.NoError(t, AppendSummary(path, testRun("run-b"), s))

	rows := readCSV(t, path)
	require.Len(t, rows, 3, "one header plus two data rows")
	assert.Equal(t, summaryHeader, rows[0])

	byName := func(row []string, col string) string {
		for i, h := range summaryHeader {
			if h == col {
				return row[i]
			}
		}
		t.Fatalf("no column %q", col)
		return ""
	}
	assert.Equal(t, "run-a", byName(rows[1], "uuid"))
	assert.Equal(t, "run-b", byName(rows[2], "uuid"))
	assert.Equal(t, "100", byName(rows[1], "p50th"))
	assert.Equal(t, "390", byName(rows[1], "p999th"))
	assert.Equal(t, "0.6", byName(rows[1], "utilization_iop"))
	assert.Equal(t, "i3en.3xlarge", byName(rows[1], "instance_type"))
}

func TestAppendSamplesJoinableByUUID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")

	require.NoError(t, AppendSamples(path, "run-a", []int64{101, 102, 103}))
	require.NoError(t, AppendSamples(path, "run-b", []int64{201}))

	rows := readCSV(t, path)
	require.Len(t, rows, 5)
	assert.Equal(t, samplesHeader, rows[0])
	assert.Equal(t, []string{"101", "0", "run-a"}, rows[1])
	assert.Equal(t, []string{"103", "2", "run-a"}, rows[3])
	assert.Equal(t, []string{"201", "0", "run-b"}, rows[4])
}
