package access

import (
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/spectrumsense/lbt/internal/frontend"
	"github.com/spectrumsense/lbt/internal/sensing"
)

// EnergySensor is what the controller consumes from the sensing
// subsystem: the cached fast-path power estimate plus the calibrated
// threshold and noise floor.
type EnergySensor interface {
	Energy() float64
	Threshold() float64
	SetThreshold(dbm float64)
	NoiseFloor() float64
}

// IngestCounters exposes the sample-path counters consolidated into the
// controller's stats snapshot.
type IngestCounters interface {
	Counters() (received, dropped, overflows uint64)
	ResetCounters()
}

// Recorder receives one record per decision. Implementations must not
// block: the decision path runs under a soft real-time deadline.
type Recorder interface {
	Record(Decision)
}

// Decision is the transient outcome of one channel-access check. One
// record per decision is appended to the journal, forming the contract
// surface for offline fairness and throughput analysis.
type Decision struct {
	TimestampUs  int64
	EnergyDBm    float64
	ThresholdDBm float64
	Free         bool
	Forced       bool // granted despite a still-busy channel
	Attempts     int
	ElapsedUs    int64
	Mode         Mode
}

// Status returns the persisted FREE/BUSY form of the decision.
func (d Decision) Status() string {
	if d.Free {
		return "FREE"
	}
	return "BUSY"
}

// Stats is a consolidated snapshot of the subsystem's counters.
type Stats struct {
	SamplesReceived uint64
	SamplesDropped  uint64
	BufferOverflows uint64
	ChecksPerformed uint64
	BusyCount       uint64
	ForcedGrants    uint64
}

// WithLogger sets the logger for the controller.
func WithLogger(logger *slog.Logger) func(*Controller) {
	return func(c *Controller) {
		c.logger = logger.With(slog.String("component", "access"))
	}
}

// WithRecorder sets the decision recorder.
func WithRecorder(r Recorder) func(*Controller) {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithIngestCounters wires the sample-path counters into Stats.
func WithIngestCounters(ic IngestCounters) func(*Controller) {
	return func(c *Controller) {
		c.ingest = ic
	}
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *Metrics) func(*Controller) {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller is the channel-access decision engine. One instance owns
// one radio's access state; the calling scheduler serializes decision
// calls. After successful construction no decision path returns an
// error: every degradation resolves to a definite Free/Busy outcome.
type Controller struct {
	mu  sync.RWMutex
	cfg Config

	sensor EnergySensor
	fe     frontend.FrontEnd
	clock  sensing.Clock

	ingest   IngestCounters
	recorder Recorder
	metrics  *Metrics

	override atomic.Bool

	checks       atomic.Uint64
	busyCount    atomic.Uint64
	forcedGrants atomic.Uint64

	logger *slog.Logger
}

// New validates the configuration and creates a controller. There is no
// partial initialization: any validation failure returns a ConfigError
// and no controller.
func New(cfg *Config, sensor EnergySensor, fe frontend.FrontEnd, clock sensing.Clock, options ...func(*Controller)) (*Controller, error) {
	if cfg == nil {
		return nil, NewConfigError("nil configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sensor == nil {
		return nil, NewConfigError("nil energy sensor")
	}
	if fe == nil {
		return nil, NewConfigError("nil front end")
	}
	if clock == nil {
		return nil, NewConfigError("nil clock")
	}

	c := &Controller{
		cfg:    *cfg,
		sensor: sensor,
		fe:     fe,
		clock:  clock,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}
	for _, option := range options {
		option(c)
	}

	c.sensor.SetThreshold(cfg.EDThresholdDBm)
	return c, nil
}

// Config returns a copy of the current configuration.
func (c *Controller) Config() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// UpdateConfig swaps the configuration at runtime. The new settings are
// visible to the next decision.
func (c *Controller) UpdateConfig(cfg *Config) error {
	if cfg == nil {
		return NewConfigError("nil configuration")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.cfg = *cfg
	c.mu.Unlock()

	c.sensor.SetThreshold(cfg.EDThresholdDBm)
	return nil
}

func (c *Controller) snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetOverride sets or clears the sensing-bypass flag. While set, every
// opportunity is granted unconditionally; the scheduler uses it for
// slots that must not be deferred, such as random-access responses.
func (c *Controller) SetOverride(on bool) {
	c.override.Store(on)
}

// Override returns the current state of the sensing-bypass flag.
func (c *Controller) Override() bool {
	return c.override.Load()
}

// SenseAndAcquire decides whether the channel may be used for the next
// transmission opportunity of the given duration. It always returns a
// definite outcome and never blocks beyond the configured occupancy
// budget.
func (c *Controller) SenseAndAcquire(requiredUs int64) bool {
	cfg := c.snapshot()
	if !cfg.Enabled || cfg.Mode == Disabled {
		return true
	}

	c.checks.Add(1)

	if c.override.Load() {
		// Sensing-bypass opportunities are always honored.
		c.fe.MuteReceive()
		c.clock.Sleep(guardUs)
		return true
	}

	var d Decision
	switch cfg.Mode {
	case FrameBased:
		d = c.decideFrameBased(cfg)
	default:
		d = c.decideLoadBased(cfg, requiredUs)
	}

	c.finish(cfg, d)
	return d.Free
}

// decideFrameBased grants transmission iff the current frame phase
// falls inside the TX window. The outcome is a pure function of time:
// measured energy never enters into it.
func (c *Controller) decideFrameBased(cfg Config) Decision {
	now := c.clock.NowMicros()
	phase := now % cfg.FramePeriodUs
	free := phase < cfg.TxWindowUs

	if free {
		c.fe.MuteReceive()
		c.clock.Sleep(fbeGuardUs)
	} else {
		c.fe.ResumeReceive()
	}

	return Decision{
		TimestampUs:  now,
		EnergyDBm:    c.sensor.Energy(), // recorded for the journal only
		ThresholdDBm: c.sensor.Threshold(),
		Free:         free,
		ElapsedUs:    c.clock.NowMicros() - now,
		Mode:         FrameBased,
	}
}

// decideLoadBased samples energy against the detection threshold,
// retrying at the sensing interval until the channel clears or the
// occupancy budget is exhausted. An exhausted budget grants the channel
// anyway; the forced grant is flagged and counted so the policy stays
// auditable.
func (c *Controller) decideLoadBased(cfg Config, requiredUs int64) Decision {
	start := c.clock.NowMicros()
	threshold := c.sensor.Threshold()

	energy := c.sensor.Energy()
	free := energy < threshold

	attempts := 0
	maxRetries := int(cfg.MaxChannelOccupancyUs / cfg.EDSensingTimeUs)
	for !free && attempts < maxRetries {
		c.clock.Sleep(cfg.EDSensingTimeUs)
		energy = c.sensor.Energy()
		free = energy < threshold
		attempts++
	}

	forced := false
	if !free {
		forced = true
		free = true
		c.forcedGrants.Add(1)
	}

	c.fe.MuteReceive()
	c.clock.Sleep(guardUs)

	return Decision{
		TimestampUs:  start,
		EnergyDBm:    energy,
		ThresholdDBm: threshold,
		Free:         free,
		Forced:       forced,
		Attempts:     attempts,
		ElapsedUs:    c.clock.NowMicros() - start,
		Mode:         LoadBased,
	}
}

// ExtendedCCA is the alternate acquisition procedure for initial
// access: a fixed defer, a bounded sensing window, and on failure a
// randomized exponential backoff, repeated up to maxAttempts. Returns
// true on the first clear window, false if every attempt found the
// channel busy.
func (c *Controller) ExtendedCCA(deferUs int64, maxAttempts int) bool {
	if deferUs <= 0 {
		deferUs = DefaultDeferUs
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultCCAAttempts
	}
	cfg := c.snapshot()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		c.clock.Sleep(deferUs)

		if c.senseWindow(DefaultLBESensingUs) {
			return true
		}

		slots := c.backoffSlots(cfg, attempt)
		c.clock.Sleep(int64(slots) * backoffSlotUs)
	}

	return false
}

// senseWindow watches the channel for sensingUs, tracking the maximum
// observed energy and exiting early once it reaches the threshold.
func (c *Controller) senseWindow(sensingUs int64) bool {
	c.checks.Add(1)

	start := c.clock.NowMicros()
	threshold := c.sensor.Threshold()
	maxEnergy := c.sensor.NoiseFloor()

	interval := int64(10)
	if sensingUs < 50 {
		interval = sensingUs / 4
	}
	if interval < 2 {
		interval = 2
	}

	for c.clock.NowMicros()-start < sensingUs {
		if e := c.sensor.Energy(); e > maxEnergy {
			maxEnergy = e
		}
		if maxEnergy >= threshold {
			c.busyCount.Add(1)
			return false
		}
		c.clock.Sleep(interval / 2)
	}

	return maxEnergy < threshold
}

func (c *Controller) backoffSlots(cfg Config, attempt int) int {
	window := 1 << min(attempt, maxBackoffExponent)
	if w := cfg.CWMin + 1; window < w {
		window = w
	}
	if cfg.CWMax > 0 && window > cfg.CWMax+1 {
		window = cfg.CWMax + 1
	}
	return rand.Intn(window)
}

// OnTxComplete is called by the scheduler when a granted transmission
// ends: receive streaming resumes after a short settle interval.
func (c *Controller) OnTxComplete() {
	c.clock.Sleep(txCompleteSettleUs)
	c.fe.ResumeReceive()

	if c.snapshot().LogDecisions {
		c.logger.Debug("tx complete, receive resumed")
	}
}

func (c *Controller) finish(cfg Config, d Decision) {
	if !d.Free {
		c.busyCount.Add(1)
	}

	if cfg.LogDecisions {
		c.logger.Info("channel decision",
			slog.String("mode", string(d.Mode)),
			slog.String("status", d.Status()),
			slog.Float64("energyDbm", d.EnergyDBm),
			slog.Float64("thresholdDbm", d.ThresholdDBm),
			slog.Int("attempts", d.Attempts),
			slog.Bool("forced", d.Forced))
	}

	if c.recorder != nil {
		c.recorder.Record(d)
	}
	if c.metrics != nil {
		c.metrics.ObserveDecision(d)
	}
}

// SetThreshold overrides the energy-detection threshold in dBm. The
// update is visible to the next decision.
func (c *Controller) SetThreshold(dbm float64) {
	c.sensor.SetThreshold(dbm)
}

// Threshold returns the current energy-detection threshold in dBm.
func (c *Controller) Threshold() float64 {
	return c.sensor.Threshold()
}

// NoiseFloor returns the current calibrated noise floor in dBm.
func (c *Controller) NoiseFloor() float64 {
	return c.sensor.NoiseFloor()
}

// Stats returns a consolidated counter snapshot.
func (c *Controller) Stats() Stats {
	s := Stats{
		ChecksPerformed: c.checks.Load(),
		BusyCount:       c.busyCount.Load(),
		ForcedGrants:    c.forcedGrants.Load(),
	}
	if c.ingest != nil {
		s.SamplesReceived, s.SamplesDropped, s.BufferOverflows = c.ingest.Counters()
	}
	return s
}

// ResetStats zeroes all runtime counters, including the sample-path
// counters when wired.
func (c *Controller) ResetStats() {
	c.checks.Store(0)
	c.busyCount.Store(0)
	c.forcedGrants.Store(0)
	if c.ingest != nil {
		c.ingest.ResetCounters()
	}
}
