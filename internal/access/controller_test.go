package access

import (
	"testing"

	"github.com/spectrumsense/lbt/internal/sensing"
)

// fakeSensor replays scripted energy readings, repeating the last one
// once exhausted.
type fakeSensor struct {
	energies  []float64
	calls     int
	threshold float64
	floor     float64
}

func (f *fakeSensor) Energy() float64 {
	v := f.floor
	if f.calls < len(f.energies) {
		v = f.energies[f.calls]
	} else if len(f.energies) > 0 {
		v = f.energies[len(f.energies)-1]
	}
	f.calls++
	return v
}

func (f *fakeSensor) Threshold() float64       { return f.threshold }
func (f *fakeSensor) SetThreshold(dbm float64) { f.threshold = dbm }
func (f *fakeSensor) NoiseFloor() float64      { return f.floor }

type recordingFrontEnd struct {
	mutes   int
	resumes int
}

func (r *recordingFrontEnd) MuteReceive()   { r.mutes++ }
func (r *recordingFrontEnd) ResumeReceive() { r.resumes++ }

type captureRecorder struct {
	decisions []Decision
}

func (c *captureRecorder) Record(d Decision) {
	c.decisions = append(c.decisions, d)
}

func newTestController(t *testing.T, cfg Config, sensor *fakeSensor) (*Controller, *recordingFrontEnd, *sensing.ManualClock, *captureRecorder) {
	t.Helper()

	fe := &recordingFrontEnd{}
	clock := sensing.NewManualClock(0)
	rec := &captureRecorder{}

	sensor.floor = -90

	c, err := New(&cfg, sensor, fe, clock, WithRecorder(rec))
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	return c, fe, clock, rec
}

func TestController_LoadBasedImmediateFree(t *testing.T) {
	cfg := DefaultConfig()
	sensor := &fakeSensor{energies: []float64{-90}}
	c, fe, clock, rec := newTestController(t, cfg, sensor)

	if !c.SenseAndAcquire(1000) {
		t.Fatal("Expected Free for energy below threshold")
	}

	if len(rec.decisions) != 1 {
		t.Fatalf("Expected 1 recorded decision, got %d", len(rec.decisions))
	}
	d := rec.decisions[0]
	if d.Attempts != 0 {
		t.Errorf("Below-threshold energy must decide on the first sample, got %d retries", d.Attempts)
	}
	if d.Forced {
		t.Error("Clean grant must not be flagged as forced")
	}
	if fe.mutes != 1 {
		t.Errorf("Expected exactly 1 mute before returning Free, got %d", fe.mutes)
	}
	// Only the guard interval elapses on the zero-retry path.
	if got := clock.NowMicros(); got != guardUs {
		t.Errorf("Expected %dus elapsed, got %d", guardUs, got)
	}
}

func TestController_ForcedGrantAtRetryBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxChannelOccupancyUs = 1000
	cfg.EDSensingTimeUs = 100

	sensor := &fakeSensor{energies: []float64{-70}} // persistently busy
	c, _, clock, rec := newTestController(t, cfg, sensor)

	if !c.SenseAndAcquire(1000) {
		t.Fatal("Exhausted retries must still grant the channel")
	}

	d := rec.decisions[0]
	if !d.Forced {
		t.Error("Expected the grant to be flagged as forced")
	}
	if d.Attempts != 10 {
		t.Errorf("Expected exactly 10 retries (occupancy/sensing), got %d", d.Attempts)
	}
	if got := c.Stats().ForcedGrants; got != 1 {
		t.Errorf("Expected 1 forced grant counted, got %d", got)
	}
	// 10 sensing sleeps plus the guard interval.
	if got := clock.NowMicros(); got != 10*100+guardUs {
		t.Errorf("Expected %dus elapsed, got %d", 10*100+guardUs, got)
	}
}

func TestController_FrameBasedPurity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = FrameBased
	cfg.FramePeriodUs = 10_000
	cfg.TxWindowUs = 2_000

	// Energy far above threshold: the decision must ignore it.
	sensor := &fakeSensor{energies: []float64{-10}}
	c, _, clock, _ := newTestController(t, cfg, sensor)

	cases := []struct {
		name  string
		nowUs int64
		free  bool
	}{
		{"frame start", 0, true},
		{"inside window", 1_999, true},
		{"window edge", 2_000, false},
		{"frame end", 9_999, false},
		{"next frame", 10_000, true},
		{"next frame window edge", 12_000, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clock.Set(tc.nowUs)
			if got := c.SenseAndAcquire(500); got != tc.free {
				t.Errorf("At %dus: expected free=%v, got %v", tc.nowUs, tc.free, got)
			}
		})
	}
}

func TestController_DisabledPassThrough(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	sensor := &fakeSensor{energies: []float64{-10}}
	c, fe, _, rec := newTestController(t, cfg, sensor)

	if !c.SenseAndAcquire(1000) {
		t.Fatal("Disabled controller must pass every opportunity through as Free")
	}
	if fe.mutes != 0 || fe.resumes != 0 {
		t.Error("Disabled controller must not touch the front end")
	}
	if len(rec.decisions) != 0 {
		t.Error("Disabled controller must not journal decisions")
	}
	if got := c.Stats().ChecksPerformed; got != 0 {
		t.Errorf("Disabled controller must not count checks, got %d", got)
	}
}

func TestController_OverrideAlwaysHonored(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = FrameBased
	cfg.FramePeriodUs = 10_000
	cfg.TxWindowUs = 2_000

	sensor := &fakeSensor{energies: []float64{-10}}
	c, fe, clock, _ := newTestController(t, cfg, sensor)

	clock.Set(5_000) // outside the TX window
	if c.SenseAndAcquire(500) {
		t.Fatal("Sanity: outside the window the decision must be Busy")
	}

	c.SetOverride(true)
	clock.Set(15_000) // still outside the window
	if !c.SenseAndAcquire(500) {
		t.Error("Override must bypass sensing unconditionally")
	}
	if fe.mutes == 0 {
		t.Error("Override grant must still mute the receive path")
	}

	c.SetOverride(false)
	clock.Set(25_000)
	if c.SenseAndAcquire(500) {
		t.Error("Cleared override must restore normal decisions")
	}
}

func TestController_ExtendedCCA(t *testing.T) {
	t.Run("free channel clears on first attempt", func(t *testing.T) {
		cfg := DefaultConfig()
		sensor := &fakeSensor{energies: []float64{-90}}
		c, _, _, _ := newTestController(t, cfg, sensor)

		if !c.ExtendedCCA(34, 5) {
			t.Error("Expected Free on a quiet channel")
		}
	})

	t.Run("busy channel exhausts attempts", func(t *testing.T) {
		cfg := DefaultConfig()
		sensor := &fakeSensor{energies: []float64{-70}}
		c, _, _, _ := newTestController(t, cfg, sensor)

		if c.ExtendedCCA(34, 3) {
			t.Error("Expected Busy after all attempts fail")
		}
		if got := c.Stats().BusyCount; got != 3 {
			t.Errorf("Expected 3 busy windows counted, got %d", got)
		}
	})

	t.Run("defaults applied for non-positive arguments", func(t *testing.T) {
		cfg := DefaultConfig()
		sensor := &fakeSensor{energies: []float64{-90}}
		c, _, _, _ := newTestController(t, cfg, sensor)

		if !c.ExtendedCCA(0, 0) {
			t.Error("Expected Free with default defer and attempt count")
		}
	})
}

func TestController_UpdateConfig(t *testing.T) {
	cfg := DefaultConfig()
	sensor := &fakeSensor{energies: []float64{-90}}
	c, _, _, _ := newTestController(t, cfg, sensor)

	bad := DefaultConfig()
	bad.Mode = "bogus"
	if err := c.UpdateConfig(&bad); err == nil {
		t.Error("Expected an invalid mode to be rejected")
	}
	if err := c.UpdateConfig(nil); err == nil {
		t.Error("Expected a nil configuration to be rejected")
	}

	next := DefaultConfig()
	next.EDThresholdDBm = -75
	if err := c.UpdateConfig(&next); err != nil {
		t.Fatalf("Expected valid update to succeed: %v", err)
	}
	if got := c.Threshold(); got != -75 {
		t.Errorf("Expected updated threshold -75, got %.1f", got)
	}
	if got := c.Config().EDThresholdDBm; got != -75 {
		t.Errorf("Expected config snapshot to reflect the update, got %.1f", got)
	}
}

func TestController_InitValidation(t *testing.T) {
	sensor := &fakeSensor{}
	fe := &recordingFrontEnd{}
	clock := sensing.NewManualClock(0)

	if _, err := New(nil, sensor, fe, clock); err == nil {
		t.Error("Expected error for nil configuration")
	}

	bad := DefaultConfig()
	bad.EDSensingTimeUs = 0
	if _, err := New(&bad, sensor, fe, clock); err == nil {
		t.Error("Expected error for zero sensing time in load-based mode")
	}

	good := DefaultConfig()
	if _, err := New(&good, nil, fe, clock); err == nil {
		t.Error("Expected error for nil sensor")
	}
	if _, err := New(&good, sensor, nil, clock); err == nil {
		t.Error("Expected error for nil front end")
	}
	if _, err := New(&good, sensor, fe, nil); err == nil {
		t.Error("Expected error for nil clock")
	}
}

type fakeIngest struct {
	received, dropped, overflows uint64
	resets                       int
}

func (f *fakeIngest) Counters() (uint64, uint64, uint64) {
	return f.received, f.dropped, f.overflows
}

func (f *fakeIngest) ResetCounters() {
	f.resets++
	f.received, f.dropped, f.overflows = 0, 0, 0
}

func TestController_StatsSnapshotAndReset(t *testing.T) {
	cfg := DefaultConfig()
	sensor := &fakeSensor{energies: []float64{-90}}
	fe := &recordingFrontEnd{}
	clock := sensing.NewManualClock(0)
	ingest := &fakeIngest{received: 100, dropped: 5, overflows: 1}

	c, err := New(&cfg, sensor, fe, clock, WithIngestCounters(ingest))
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}

	c.SenseAndAcquire(1000)

	s := c.Stats()
	if s.SamplesReceived != 100 || s.SamplesDropped != 5 || s.BufferOverflows != 1 {
		t.Errorf("Expected ingest counters in snapshot, got %+v", s)
	}
	if s.ChecksPerformed != 1 {
		t.Errorf("Expected 1 check performed, got %d", s.ChecksPerformed)
	}

	c.ResetStats()
	s = c.Stats()
	if s.ChecksPerformed != 0 || s.SamplesReceived != 0 {
		t.Errorf("Expected zeroed stats after reset, got %+v", s)
	}
	if ingest.resets != 1 {
		t.Errorf("Expected ingest counters reset once, got %d", ingest.resets)
	}
}
