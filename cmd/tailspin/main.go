package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tailspin-io/tailspin/pkg/config"
	"github.com/tailspin-io/tailspin/pkg/device"
	"github.com/tailspin-io/tailspin/pkg/sweep"
)

// floatList accepts comma- or space-separated floats, so both
// `--utilization-iops 0.5,0.6` and `--utilization-iops "0.5 0.6"` work.
type floatList []float64

func (f *floatList) String() string {
	parts := make([]string, len(*f))
	for i, v := range *f {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func (f *floatList) Set(s string) error {
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return fmt.Errorf("invalid utilization %q: %w", field, err)
		}
		*f = append(*f, v)
	}
	return nil
}

// Flags holds pointers to all supported CLI flags.
type Flags struct {
	ConfigFile  *string
	WriteConfig *string

	InstanceType     *string
	SSDDevice        *string
	MaxIOPS          *int64
	Utilization      floatList
	CapacityFraction *float64
	WriterThreads    *int
	RuntimeSeconds   *int
	BatchSize        *int
	QueueDepth       *int
	UseFsync         *bool
	Preinitialize    *bool
	Spiky            *bool
	SerializeSamples *bool
	SummaryFile      *string
	SamplesFile      *string

	LogLevel *string
}

func SetupFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	f.ConfigFile = fs.String("config", "", "Path to YAML configuration file (overrides other flags)")
	f.WriteConfig = fs.String("write-config", "", "Save the resolved configuration to this YAML file")

	f.InstanceType = fs.String("instance-type", "", "Opaque label attached to output rows")
	f.SSDDevice = fs.String("ssd-device", "", "Block device to exercise, e.g. /dev/nvme1n1")
	f.MaxIOPS = fs.Int64("max-iops", 0, "Specified maximum IOPS of the device")
	fs.Var(&f.Utilization, "utilization-iops", "Utilization points as fractions of max IOPS, e.g. 0.5,0.6,0.7")
	f.CapacityFraction = fs.Float64("capacity-fraction", 0.8, "Fraction of device capacity addressed")
	f.WriterThreads = fs.Int("writer-threads", 10, "Number of independent writer workers")
	f.RuntimeSeconds = fs.Int("runtime-seconds", 10, "Runtime in seconds per utilization point")
	f.BatchSize = fs.Int("batch-size", 1, "Writes per scheduled batch")
	f.QueueDepth = fs.Int("queue-depth", 32, "Submission ring depth per worker")
	f.UseFsync = fs.Bool("use-fsync", false, "Issue a synchronizing barrier after every batch")
	f.Preinitialize = fs.Bool("preinitialize", false, "Pre-write the addressed range before measuring")
	f.Spiky = fs.Bool("spiky", false, "Issue periodic oversized bursts instead of uniform batches")
	f.SerializeSamples = fs.Bool("serialize-samples", false, "Emit raw per-sample CSV in addition to the summary")
	f.SummaryFile = fs.String("summary-file", "summary_file.csv", "Summary CSV path")
	f.SamplesFile = fs.String("samples-file", "samples_file.csv", "Samples CSV path")

	f.LogLevel = fs.String("log-level", "info", "Log level: debug, info, warn, error")
	return f
}

// LoadConfig resolves the configuration from the config file or the flags.
func (f *Flags) LoadConfig() (*config.Config, error) {
	if *f.ConfigFile != "" {
		return config.Load(*f.ConfigFile)
	}

	cfg := config.Default()
	cfg.InstanceType = *f.InstanceType
	cfg.SSDDevice = *f.SSDDevice
	cfg.MaxIOPS = *f.MaxIOPS
	cfg.UtilizationIOPS = f.Utilization
	cfg.CapacityFraction = *f.CapacityFraction
	cfg.WriterThreads = *f.WriterThreads
	cfg.RuntimeSeconds = *f.RuntimeSeconds
	cfg.BatchSize = *f.BatchSize
	cfg.QueueDepth = *f.QueueDepth
	cfg.UseFsync = *f.UseFsync
	cfg.Preinitialize = *f.Preinitialize
	cfg.Spiky = *f.Spiky
	cfg.SerializeSamples = *f.SerializeSamples
	cfg.SummaryFile = *f.SummaryFile
	cfg.SamplesFile = *f.SamplesFile
	return cfg, nil
}

func (f *Flags) MaybeWriteConfig(cfg *config.Config, log zerolog.Logger) {
	if *f.WriteConfig == "" {
		return
	}
	if err := cfg.Save(*f.WriteConfig); err != nil {
		log.Warn().Err(err).Msg("failed to write config file")
		return
	}
	log.Info().Str("path", *f.WriteConfig).Msg("configuration written")
}

func main() {
	f := SetupFlags(flag.CommandLine)
	flag.Parse()

	level, err := zerolog.ParseLevel(*f.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %q\n", *f.LogLevel)
		os.Exit(1)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	cfg, err := f.LoadConfig()
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		flag.Usage()
		os.Exit(1)
	}
	f.MaybeWriteConfig(cfg, log)

	dev, err := device.Open(cfg.SSDDevice, true)
	if err != nil {
		log.Error().Err(err).Str("device", cfg.SSDDevice).Msg("cannot open device")
		os.Exit(1)
	}
	defer dev.Close()

	log.Info().
		Str("device", cfg.SSDDevice).
		Int64("capacity_bytes", dev.Capacity()).
		Float64("capacity_fraction", cfg.CapacityFraction).
		Int("utilization_points", len(cfg.UtilizationIOPS)).
		Msg("starting benchmark sweep")

	if err := sweep.New(cfg, dev, log).Run(); err != nil {
		dev.Close()
		log.Error().Err(err).Msg("benchmark aborted")
		os.Exit(1)
	}
}
