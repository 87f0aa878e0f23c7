package sensing

import (
	"math"
	"sync/atomic"
)

const (
	// cacheTTLMicros bounds how long a cached energy reading may be
	// reused before a fresh computation is forced.
	cacheTTLMicros = 500

	// fastWindow and accurateWindow size the estimation windows of the
	// cached and the fresh path respectively.
	fastWindow     = 500
	accurateWindow = 2000

	// minSamples is the minimum buffer fill for a meaningful estimate;
	// below it the configured noise floor is returned instead.
	minSamples = 100

	minMeanPower = 1e-12
)

// atomicFloat64 is a float64 updated with atomic read-modify-write
// operations, safe for concurrent access without the buffer lock.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (f *atomicFloat64) Load() float64 {
	return math.Float64frombits(f.bits.Load())
}

func (f *atomicFloat64) Store(v float64) {
	f.bits.Store(math.Float64bits(v))
}

// Calibration holds the power-scale state shared between the estimator
// and the calibrator: the measured noise floor, the energy-detection
// threshold derived from it, and the offset mapping raw digital power
// (dBFS) to calibrated dBm. All fields are atomics, so threshold
// updates are immediately visible to the next decision.
type Calibration struct {
	noiseFloor atomicFloat64
	threshold  atomicFloat64
	offset     atomicFloat64
	calibrated atomic.Bool
}

// Default power-scale values used until calibration runs.
const (
	DefaultNoiseFloorDBm  = -90.0
	DefaultEDThresholdDBm = -82.0
)

// NewCalibration creates a Calibration with default noise floor and
// threshold and a zero offset.
func NewCalibration() *Calibration {
	c := &Calibration{}
	c.noiseFloor.Store(DefaultNoiseFloorDBm)
	c.threshold.Store(DefaultEDThresholdDBm)
	c.offset.Store(0)
	return c
}

// NoiseFloor returns the current noise floor in dBm.
func (c *Calibration) NoiseFloor() float64 { return c.noiseFloor.Load() }

// SetNoiseFloor sets the noise floor in dBm.
func (c *Calibration) SetNoiseFloor(dbm float64) { c.noiseFloor.Store(dbm) }

// Threshold returns the energy-detection threshold in dBm.
func (c *Calibration) Threshold() float64 { return c.threshold.Load() }

// SetThreshold overrides the energy-detection threshold in dBm. The
// update is immediate and non-transactional.
func (c *Calibration) SetThreshold(dbm float64) { c.threshold.Store(dbm) }

// Offset returns the raw-to-dBm calibration offset in dB.
func (c *Calibration) Offset() float64 { return c.offset.Load() }

// SetOffset sets the raw-to-dBm calibration offset in dB.
func (c *Calibration) SetOffset(db float64) { c.offset.Store(db) }

// Calibrated reports whether a noise floor calibration has succeeded.
func (c *Calibration) Calibrated() bool { return c.calibrated.Load() }

func (c *Calibration) setCalibrated() { c.calibrated.Store(true) }

// Estimator converts buffered IQ samples into channel power estimates
// in dBm. Energy is the fast, cached path used on per-slot decisions;
// EnergyFresh is the slower high-accuracy path reserved for calibration
// and diagnostics.
type Estimator struct {
	buf   *Buffer
	cal   *Calibration
	clock Clock

	cachedEnergy atomicFloat64
	cachedAtUs   atomic.Int64

	degraded atomic.Uint64

	// scratch backs the fast path only; decision calls are serialized
	// by the scheduler, so no extra guard is needed.
	scratch []complex64
}

// NewEstimator creates an Estimator over the given buffer, calibration
// state and clock.
func NewEstimator(buf *Buffer, cal *Calibration, clock Clock) *Estimator {
	e := &Estimator{
		buf:     buf,
		cal:     cal,
		clock:   clock,
		scratch: make([]complex64, fastWindow),
	}
	e.cachedEnergy.Store(cal.NoiseFloor())
	e.cachedAtUs.Store(-cacheTTLMicros - 1) // force first computation
	return e
}

// Energy returns the current channel power estimate in dBm.
//
// A cached reading younger than the TTL is returned as-is without
// touching the buffer. Otherwise the estimate is recomputed from the
// most recent samples using a non-blocking buffer acquisition; if the
// producer holds the lock, the stale cached value is served instead of
// waiting. This keeps the per-slot decision path free of unbounded
// latency.
func (e *Estimator) Energy() float64 {
	now := e.clock.NowMicros()
	if now-e.cachedAtUs.Load() < cacheTTLMicros {
		return e.cachedEnergy.Load()
	}

	n, ok := e.buf.TryCopyLatest(e.scratch)
	if !ok {
		return e.cachedEnergy.Load()
	}

	energy := e.powerDBm(e.scratch[:n])
	e.cachedEnergy.Store(energy)
	e.cachedAtUs.Store(now)
	return energy
}

// EnergyFresh invalidates the cache and recomputes the estimate from up
// to 2000 of the most recent samples with a blocking buffer
// acquisition. Not for the per-slot decision path.
func (e *Estimator) EnergyFresh() float64 {
	e.cachedAtUs.Store(-cacheTTLMicros - 1)

	window := make([]complex64, accurateWindow)
	n := e.buf.CopyLatest(window)
	return e.powerDBm(window[:n])
}

// RawPower measures uncalibrated power in dBFS over up to window recent
// samples with a non-blocking acquisition. The second return value is
// false when the lock was contended or too few samples are buffered.
// Used by the calibrator to establish the dBFS-to-dBm offset.
func (e *Estimator) RawPower(window int) (float64, bool) {
	if window <= 0 {
		window = fastWindow
	}
	dst := make([]complex64, window)
	n, ok := e.buf.TryCopyLatest(dst)
	if !ok || n < minSamples {
		return 0, false
	}
	return dbfs(dst[:n]), true
}

// powerDBm converts a sample window to calibrated dBm, degrading to the
// configured noise floor when the window is too small or the result is
// not finite.
func (e *Estimator) powerDBm(samples []complex64) float64 {
	if len(samples) < minSamples {
		e.degraded.Add(1)
		return e.cal.NoiseFloor()
	}
	v := dbfs(samples) + e.cal.Offset()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return e.cal.NoiseFloor()
	}
	return v
}

// DegradedCount returns how many estimates fell back to the noise floor
// due to an underfilled buffer.
func (e *Estimator) DegradedCount() uint64 {
	return e.degraded.Load()
}

// Threshold returns the current energy-detection threshold in dBm.
func (e *Estimator) Threshold() float64 { return e.cal.Threshold() }

// SetThreshold overrides the energy-detection threshold in dBm.
func (e *Estimator) SetThreshold(dbm float64) { e.cal.SetThreshold(dbm) }

// NoiseFloor returns the current noise floor in dBm.
func (e *Estimator) NoiseFloor() float64 { return e.cal.NoiseFloor() }

func dbfs(samples []complex64) float64 {
	var sum float64
	for _, s := range samples {
		re := float64(real(s))
		im := float64(imag(s))
		sum += re*re + im*im
	}
	mean := sum / float64(len(samples))
	return 10 * math.Log10(math.Max(mean, minMeanPower))
}
