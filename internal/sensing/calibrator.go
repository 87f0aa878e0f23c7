package sensing

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gonum.org/v1/gonum/stat"
)

const (
	// edMarginDB separates the derived detection threshold from the
	// measured noise floor.
	edMarginDB = 8.0

	// Readings outside this absolute range are implausible for an
	// unlicensed-band receive chain and are discarded during
	// calibration.
	validFloorDBm = -120.0
	validCeilDBm  = -50.0

	// calibrationIntervalUs spaces successive calibration readings.
	calibrationIntervalUs = 10_000

	autoCalWindows = 50
	autoCalWindow  = 500
)

// ErrCalibrationFailed is returned when too few calibration readings
// fall inside the plausible range. The prior calibration state is left
// untouched; callers treat this as non-fatal.
var ErrCalibrationFailed = errors.New("noise floor calibration failed")

// PowerSource is the measurement surface the calibrator consumes. The
// Estimator satisfies it; tests substitute canned readings.
type PowerSource interface {
	// EnergyFresh returns an uncached calibrated power reading in dBm.
	EnergyFresh() float64

	// RawPower returns an uncalibrated dBFS reading over up to window
	// recent samples, or false when no reading is available.
	RawPower(window int) (float64, bool)
}

// SignalProbe reports an externally measured reference power in dBm,
// such as a co-channel network's received signal strength. Production
// implementations may invoke a system utility; any failure to obtain a
// reading is non-fatal.
type SignalProbe interface {
	ReferencePower() (float64, error)
}

// Calibrator establishes the noise floor and detection threshold and
// aligns the estimator's internal power scale to real-world dBm.
type Calibrator struct {
	source PowerSource
	cal    *Calibration
	clock  Clock
	logger *slog.Logger
}

// WithLogger sets the logger for the calibrator.
func WithLogger(logger *slog.Logger) func(*Calibrator) {
	return func(c *Calibrator) {
		c.logger = logger
	}
}

// NewCalibrator creates a Calibrator over the given power source,
// shared calibration state and clock.
func NewCalibrator(source PowerSource, cal *Calibration, clock Clock, options ...func(*Calibrator)) *Calibrator {
	c := &Calibrator{
		source: source,
		cal:    cal,
		clock:  clock,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// CalibrateNoiseFloor takes n fresh readings spaced 10ms apart,
// discards any outside the plausible range, and requires more than half
// of them to be valid. On success the noise floor becomes the mean of
// the valid readings and the detection threshold is derived as noise
// floor plus a fixed margin. On failure the prior calibration state is
// left unchanged and ErrCalibrationFailed is returned.
func (c *Calibrator) CalibrateNoiseFloor(n int) error {
	if n <= 0 {
		n = 100
	}

	valid := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		e := c.source.EnergyFresh()
		if e > validFloorDBm && e < validCeilDBm {
			valid = append(valid, e)
		}
		c.clock.Sleep(calibrationIntervalUs)
	}

	if len(valid) <= n/2 {
		c.logger.Warn("noise floor calibration failed",
			slog.Int("valid", len(valid)),
			slog.Int("requested", n))
		return fmt.Errorf("%w: %d of %d readings valid", ErrCalibrationFailed, len(valid), n)
	}

	floor := stat.Mean(valid, nil)
	threshold := floor + edMarginDB

	c.cal.SetNoiseFloor(floor)
	c.cal.SetThreshold(threshold)
	c.cal.setCalibrated()

	c.logger.Info("noise floor calibrated",
		slog.Float64("noiseFloorDbm", floor),
		slog.Float64("thresholdDbm", threshold),
		slog.Float64("stddevDb", stat.StdDev(valid, nil)),
		slog.Int("valid", len(valid)))
	return nil
}

// AutoCalibrate measures raw digital power over a short averaged window
// against a signal of known strength and sets the calibration offset so
// that the internal scale reads true dBm.
func (c *Calibrator) AutoCalibrate(referenceDBm float64) error {
	raw := make([]float64, 0, autoCalWindows)
	for i := 0; i < autoCalWindows; i++ {
		if v, ok := c.source.RawPower(autoCalWindow); ok {
			raw = append(raw, v)
		}
		c.clock.Sleep(calibrationIntervalUs)
	}

	if len(raw) == 0 {
		c.logger.Warn("auto calibration failed: no raw power readings")
		return fmt.Errorf("auto calibration: no raw power readings")
	}

	measured := stat.Mean(raw, nil)
	offset := referenceDBm - measured
	c.cal.SetOffset(offset)

	c.logger.Info("calibration offset set",
		slog.Float64("referenceDbm", referenceDBm),
		slog.Float64("measuredDbfs", measured),
		slog.Float64("offsetDb", offset))
	return nil
}

// CrossCalibrate opportunistically derives the calibration offset from
// an external signal-strength probe. A missing or failing probe only
// produces a log line; the offset is left unchanged.
func (c *Calibrator) CrossCalibrate(probe SignalProbe) {
	if probe == nil {
		return
	}

	ref, err := probe.ReferencePower()
	if err != nil {
		c.logger.Warn("external reference unavailable", slog.String("error", err.Error()))
		return
	}

	raw, ok := c.source.RawPower(autoCalWindow)
	if !ok {
		c.logger.Warn("cross calibration skipped: raw power unavailable")
		return
	}

	offset := ref - raw
	c.cal.SetOffset(offset)
	c.logger.Info("cross calibration applied",
		slog.Float64("referenceDbm", ref),
		slog.Float64("measuredDbfs", raw),
		slog.Float64("offsetDb", offset))
}
