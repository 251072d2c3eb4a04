package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds every knob for a benchmark invocation. It is built once at
// startup (from flags or a YAML file) and never mutated during a run.
type Config struct {
	InstanceType     string    `yaml:"instance_type"`
	SSDDevice        string    `yaml:"ssd_device"`
	WriterThreads    int       `yaml:"writer_threads"`
	RuntimeSeconds   int       `yaml:"runtime_seconds"`
	MaxIOPS          int64     `yaml:"max_iops"`
	UtilizationIOPS  []float64 `yaml:"utilization_iops"`
	CapacityFraction float64   `yaml:"capacity_fraction"`
	BatchSize        int       `yaml:"batch_size"`
	QueueDepth       int       `yaml:"queue_depth"`
	UseFsync         bool      `yaml:"use_fsync"`
	Preinitialize    bool      `yaml:"preinitialize"`
	Spiky            bool      `yaml:"spiky"`
	SerializeSamples bool      `yaml:"serialize_samples"`
	SummaryFile      string    `yaml:"summary_file"`
	SamplesFile      string    `yaml:"samples_file"`
}

func Default() *Config {
	return &Config{
		WriterThreads:    10,
		RuntimeSeconds:   10,
		CapacityFraction: 0.8,
		BatchSize:        1,
		QueueDepth:       32,
		SummaryFile:      "summary_file.csv",
		SamplesFile:      "samples_file.csv",
	}
}

// Load reads a YAML configuration and applies defaults for unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML, for -write-config round trips.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.InstanceType == "" {
		return fmt.Errorf("instance_type is required")
	}
	if c.SSDDevice == "" {
		return fmt.Errorf("ssd_device is required")
	}
	if c.MaxIOPS <= 0 {
		return fmt.Errorf("max_iops must be positive, got %d", c.MaxIOPS)
	}
	if len(c.UtilizationIOPS) == 0 {
		return fmt.Errorf("at least one utilization point is required")
	}
	for _, u := range c.UtilizationIOPS {
		if u <= 0 {
			return fmt.Errorf("utilization point must be positive, got %v", u)
		}
	}
	if c.CapacityFraction <= 0 || c.CapacityFraction > 1 {
		return fmt.Errorf("capacity_fraction must be in (0, 1], got %v", c.CapacityFraction)
	}
	if c.WriterThreads <= 0 {
		return fmt.Errorf("writer_threads must be positive, got %d", c.WriterThreads)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.QueueDepth < c.BatchSize {
		return fmt.Errorf("queue_depth (%d) must be at least batch_size (%d)", c.QueueDepth, c.BatchSize)
	}
	if c.RuntimeSeconds <= 0 {
		return fmt.Errorf("runtime_seconds must be positive, got %d", c.RuntimeSeconds)
	}
	return nil
}

// Run describes one measurement point of a sweep: the shared Config plus the
// utilization level under test and per-run identity columns for the CSVs.
type Run struct {
	Config

	UtilizationIOP float64
	IOPS           int64
	UUID           string
	StartTime      int64
	Hostname       string
}

func NewRun(cfg *Config, utilization float64) Run {
	hostname, _ := os.Hostname()
	return Run{
		Config:         *cfg,
		UtilizationIOP: utilization,
		IOPS:           int64(utilization * float64(cfg.MaxIOPS)),
		UUID:           uuid.New().String(),
		StartTime:      time.Now().Unix(),
		Hostname:       hostname,
	}
}

// Runtime returns the measurement duration for one run.
func (r Run) Runtime() time.Duration {
	return time.Duration(r.RuntimeSeconds) * time.Second
}
