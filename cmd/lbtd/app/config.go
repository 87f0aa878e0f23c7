package app

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spectrumsense/lbt/internal/access"
	"github.com/spectrumsense/lbt/internal/sensing"
)

// Config is the daemon configuration.
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Sensing   SensingConfig   `yaml:"sensing"`
	Access    access.Config   `yaml:"access"`
	Simulator SimulatorConfig `yaml:"simulator"`
	Journal   JournalConfig   `yaml:"journal"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Probe     ProbeConfig     `yaml:"probe"`
}

// Settings represents global application settings.
type Settings struct {
	LogLevel string `yaml:"logLevel"`

	// SlotPeriodUs is the cadence of transmit opportunities offered to
	// the controller.
	SlotPeriodUs int64 `yaml:"slotPeriodUs"`

	// TxDurationUs is the nominal duration of a granted transmission.
	TxDurationUs int64 `yaml:"txDurationUs"`

	// StatsIntervalSec is how often the counter snapshot is logged.
	StatsIntervalSec int `yaml:"statsIntervalSec"`
}

// SensingConfig configures the sample buffer and calibration.
type SensingConfig struct {
	BufferCapacity     int   `yaml:"bufferCapacity"`
	DecimationFactor   int64 `yaml:"decimationFactor"`
	CalibrationSamples int   `yaml:"calibrationSamples"`
	StabilityCount     int   `yaml:"stabilityCount"`
}

// SimulatorConfig configures the signal simulator front end. When
// disabled the daemon runs with a no-op front end and expects samples
// to be fed externally.
type SimulatorConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BatchSize      int     `yaml:"batchSize"`
	IntervalUs     int64   `yaml:"intervalUs"`
	NoiseAmplitude float64 `yaml:"noiseAmplitude"`
}

// JournalConfig configures decision persistence.
type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
	MaxBatchSize  int    `yaml:"maxBatchSize"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// ProbeConfig configures cross-calibration against a wireless
// interface's reported link signal.
type ProbeConfig struct {
	Interface string `yaml:"interface"`
}

// LoadConfig reads and validates a YAML configuration file, filling in
// defaults for omitted values.
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	config := Config{
		Settings: Settings{
			LogLevel:         "info",
			SlotPeriodUs:     10_000,
			TxDurationUs:     2_000,
			StatsIntervalSec: 30,
		},
		Sensing: SensingConfig{
			BufferCapacity:     sensing.DefaultCapacity,
			DecimationFactor:   sensing.DefaultDecimationFactor,
			CalibrationSamples: 20,
			StabilityCount:     access.DefaultStabilityCount,
		},
		Access: access.DefaultConfig(),
		Journal: JournalConfig{
			MaxBatchSize: maxBatchSize,
		},
		Metrics: MetricsConfig{
			Listen: ":9090",
		},
	}

	if err = yaml.Unmarshal(p, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if config.Settings.SlotPeriodUs <= 0 {
		return nil, fmt.Errorf("invalid slot period: %dus", config.Settings.SlotPeriodUs)
	}
	if config.Settings.TxDurationUs <= 0 {
		return nil, fmt.Errorf("invalid tx duration: %dus", config.Settings.TxDurationUs)
	}
	if config.Sensing.BufferCapacity <= 0 {
		return nil, fmt.Errorf("invalid buffer capacity: %d", config.Sensing.BufferCapacity)
	}
	if err = config.Access.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
