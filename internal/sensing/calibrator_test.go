package sensing

import (
	"errors"
	"math"
	"testing"
)

// scriptedSource yields pre-programmed readings, repeating the final
// value once exhausted.
type scriptedSource struct {
	fresh  []float64
	raw    float64
	rawOK  bool
	nFresh int
	nRaw   int
}

func (s *scriptedSource) EnergyFresh() float64 {
	var v float64
	if s.nFresh < len(s.fresh) {
		v = s.fresh[s.nFresh]
	} else if len(s.fresh) > 0 {
		v = s.fresh[len(s.fresh)-1]
	}
	s.nFresh++
	return v
}

func (s *scriptedSource) RawPower(int) (float64, bool) {
	s.nRaw++
	return s.raw, s.rawOK
}

func TestCalibrator_NoiseFloorFromValidMajority(t *testing.T) {
	// 60 valid readings averaging -91 dBm, 40 implausible ones.
	readings := make([]float64, 0, 100)
	for i := 0; i < 30; i++ {
		readings = append(readings, -92, -90) // mean -91
	}
	for i := 0; i < 40; i++ {
		readings = append(readings, -20) // outside plausible range
	}

	src := &scriptedSource{fresh: readings}
	cal := NewCalibration()
	c := NewCalibrator(src, cal, NewManualClock(0))

	if err := c.CalibrateNoiseFloor(100); err != nil {
		t.Fatalf("Expected calibration to succeed: %v", err)
	}
	if got := cal.NoiseFloor(); math.Abs(got-(-91)) > 0.001 {
		t.Errorf("Expected noise floor ~= -91, got %.3f", got)
	}
	if got := cal.Threshold(); math.Abs(got-(-83)) > 0.001 {
		t.Errorf("Expected threshold ~= -83, got %.3f", got)
	}
	if !cal.Calibrated() {
		t.Error("Expected calibrated flag to be set")
	}
}

func TestCalibrator_FailureLeavesStateUntouched(t *testing.T) {
	// Only 10 of 100 readings valid: below the majority requirement.
	readings := make([]float64, 0, 100)
	for i := 0; i < 10; i++ {
		readings = append(readings, -91)
	}
	for i := 0; i < 90; i++ {
		readings = append(readings, -10)
	}

	src := &scriptedSource{fresh: readings}
	cal := NewCalibration()
	cal.SetNoiseFloor(-95)
	cal.SetThreshold(-87)
	c := NewCalibrator(src, cal, NewManualClock(0))

	err := c.CalibrateNoiseFloor(100)
	if !errors.Is(err, ErrCalibrationFailed) {
		t.Fatalf("Expected ErrCalibrationFailed, got %v", err)
	}
	if got := cal.NoiseFloor(); got != -95 {
		t.Errorf("Noise floor must stay at -95, got %.3f", got)
	}
	if got := cal.Threshold(); got != -87 {
		t.Errorf("Threshold must stay at -87, got %.3f", got)
	}
	if cal.Calibrated() {
		t.Error("Failed calibration must not set the calibrated flag")
	}
}

func TestCalibrator_ExactMajorityBoundary(t *testing.T) {
	// Exactly half valid is still a failure: the requirement is more
	// than n/2.
	readings := make([]float64, 0, 10)
	for i := 0; i < 5; i++ {
		readings = append(readings, -91)
	}
	for i := 0; i < 5; i++ {
		readings = append(readings, -10)
	}

	src := &scriptedSource{fresh: readings}
	c := NewCalibrator(src, NewCalibration(), NewManualClock(0))

	if err := c.CalibrateNoiseFloor(10); !errors.Is(err, ErrCalibrationFailed) {
		t.Errorf("Expected ErrCalibrationFailed at the n/2 boundary, got %v", err)
	}
}

func TestCalibrator_AutoCalibrate(t *testing.T) {
	src := &scriptedSource{raw: -30, rawOK: true}
	cal := NewCalibration()
	c := NewCalibrator(src, cal, NewManualClock(0))

	if err := c.AutoCalibrate(-67); err != nil {
		t.Fatalf("Expected auto calibration to succeed: %v", err)
	}
	if got := cal.Offset(); math.Abs(got-(-37)) > 0.001 {
		t.Errorf("Expected offset -37 dB (reference - measured), got %.3f", got)
	}
}

func TestCalibrator_AutoCalibrateNoReadings(t *testing.T) {
	src := &scriptedSource{rawOK: false}
	cal := NewCalibration()
	c := NewCalibrator(src, cal, NewManualClock(0))

	if err := c.AutoCalibrate(-67); err == nil {
		t.Error("Expected error when no raw readings are available")
	}
	if got := cal.Offset(); got != 0 {
		t.Errorf("Offset must stay unchanged on failure, got %.3f", got)
	}
}

type probeFunc func() (float64, error)

func (f probeFunc) ReferencePower() (float64, error) { return f() }

func TestCalibrator_CrossCalibrate(t *testing.T) {
	src := &scriptedSource{raw: -25, rawOK: true}
	cal := NewCalibration()
	c := NewCalibrator(src, cal, NewManualClock(0))

	c.CrossCalibrate(probeFunc(func() (float64, error) { return -60, nil }))
	if got := cal.Offset(); math.Abs(got-(-35)) > 0.001 {
		t.Errorf("Expected offset -35 dB, got %.3f", got)
	}

	// A failing probe is ignored beyond logging.
	c.CrossCalibrate(probeFunc(func() (float64, error) { return 0, errors.New("no link") }))
	if got := cal.Offset(); math.Abs(got-(-35)) > 0.001 {
		t.Errorf("Probe failure must not change the offset, got %.3f", got)
	}

	// A nil probe is valid and does nothing.
	c.CrossCalibrate(nil)
}
