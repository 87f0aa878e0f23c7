package access

import "fmt"

// Mode selects the channel-access regime.
type Mode string

const (
	// FrameBased grants transmission inside deterministic duty-cycled
	// windows derived purely from time (FBE).
	FrameBased Mode = "FBE"

	// LoadBased grants transmission after energy sensing with bounded
	// retries (LBE).
	LoadBased Mode = "LBE"

	// Disabled passes every opportunity through as Free.
	Disabled Mode = "OFF"
)

// Timing defaults aligned with ETSI EN 301 893 practice.
const (
	DefaultFBESensingUs = 25
	DefaultLBESensingUs = 100
	DefaultDeferUs      = 34
	DefaultCCAAttempts  = 10

	backoffSlotUs      = 9
	maxBackoffExponent = 5

	guardUs            = 1000
	fbeGuardUs         = 500
	txCompleteSettleUs = 2000
)

// Config is the runtime configuration of the channel-access controller.
// It is read on every decision and may be swapped at runtime through
// UpdateConfig; decisions are idempotent reads, so no transactional
// isolation is needed.
type Config struct {
	Enabled bool `yaml:"enabled"`
	Mode    Mode `yaml:"mode"`

	// Energy detection.
	EDThresholdDBm  float64 `yaml:"edThresholdDbm"`
	EDSensingTimeUs int64   `yaml:"edSensingTimeUs"`

	// Frame-Based Equipment.
	FramePeriodUs     int64   `yaml:"framePeriodUs"`
	TxWindowUs        int64   `yaml:"txWindowUs"`
	DutyCycleFraction float64 `yaml:"dutyCycleFraction"`

	// Load-Based Equipment.
	MaxChannelOccupancyUs int64 `yaml:"maxChannelOccupancyUs"`
	DeferPeriodUs         int64 `yaml:"deferPeriodUs"`
	CWMin                 int   `yaml:"cwMin"`
	CWMax                 int   `yaml:"cwMax"`

	LogDecisions bool `yaml:"logDecisions"`
}

// DefaultConfig returns a Load-Based configuration with conservative
// unlicensed-band timing.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		Mode:                  LoadBased,
		EDThresholdDBm:        -82,
		EDSensingTimeUs:       DefaultLBESensingUs,
		FramePeriodUs:         10_000,
		TxWindowUs:            2_000,
		DutyCycleFraction:     0.2,
		MaxChannelOccupancyUs: 8_000,
		DeferPeriodUs:         DefaultDeferUs,
		CWMin:                 0,
		CWMax:                 1 << maxBackoffExponent,
	}
}

// Validate checks the configuration for consistency. Violations are
// returned as a ConfigError and must abort initialization.
func (c *Config) Validate() error {
	switch c.Mode {
	case FrameBased, LoadBased, Disabled:
	default:
		return NewConfigError(fmt.Sprintf("unknown access mode %q", c.Mode))
	}

	if c.Mode == FrameBased {
		if c.FramePeriodUs <= 0 {
			return NewConfigError(fmt.Sprintf("invalid frame period: %dus", c.FramePeriodUs))
		}
		if c.TxWindowUs <= 0 || c.TxWindowUs > c.FramePeriodUs {
			return NewConfigError(fmt.Sprintf("invalid tx window: %dus of %dus frame", c.TxWindowUs, c.FramePeriodUs))
		}
		if c.DutyCycleFraction < 0 || c.DutyCycleFraction > 1 {
			return NewConfigError(fmt.Sprintf("invalid duty cycle fraction: %f", c.DutyCycleFraction))
		}
	}

	if c.Mode == LoadBased {
		if c.EDThresholdDBm >= 0 || c.EDThresholdDBm < -120 {
			return NewConfigError(fmt.Sprintf("ED threshold out of range: %.1f dBm", c.EDThresholdDBm))
		}
		if c.EDSensingTimeUs <= 0 {
			return NewConfigError(fmt.Sprintf("invalid sensing time: %dus", c.EDSensingTimeUs))
		}
		if c.MaxChannelOccupancyUs < c.EDSensingTimeUs {
			return NewConfigError(fmt.Sprintf("max channel occupancy %dus below sensing time %dus",
				c.MaxChannelOccupancyUs, c.EDSensingTimeUs))
		}
		if c.CWMin < 0 || c.CWMax < c.CWMin {
			return NewConfigError(fmt.Sprintf("invalid contention window: [%d, %d]", c.CWMin, c.CWMax))
		}
	}

	return nil
}
