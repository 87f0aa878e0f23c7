package sensing

import (
	"sync"
	"time"
)

// Clock provides monotonic microsecond timestamps and bounded sleeps.
// Every sensing loop measures its elapsed time against a Clock instead
// of counting iterations, so implementations must never jump backwards.
type Clock interface {
	// NowMicros returns monotonic time in microseconds since an
	// arbitrary but fixed origin.
	NowMicros() int64

	// Sleep pauses the calling goroutine for the given number of
	// microseconds. Non-positive durations return immediately.
	Sleep(micros int64)
}

// SystemClock implements Clock on top of the runtime monotonic clock.
type SystemClock struct {
	origin time.Time
}

// NewSystemClock creates a SystemClock with its origin at the time of
// the call.
func NewSystemClock() *SystemClock {
	return &SystemClock{origin: time.Now()}
}

func (c *SystemClock) NowMicros() int64 {
	return time.Since(c.origin).Microseconds()
}

func (c *SystemClock) Sleep(micros int64) {
	if micros <= 0 {
		return
	}
	time.Sleep(time.Duration(micros) * time.Microsecond)
}

// ManualClock is a Clock for tests. Time stands still except when
// advanced explicitly or through Sleep, which makes frame-phase and
// cache-TTL behavior fully deterministic.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock creates a ManualClock positioned at the given
// microsecond timestamp.
func NewManualClock(startMicros int64) *ManualClock {
	return &ManualClock{now: startMicros}
}

func (c *ManualClock) NowMicros() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the clock without blocking.
func (c *ManualClock) Sleep(micros int64) {
	if micros <= 0 {
		return
	}
	c.Advance(micros)
}

// Advance moves the clock forward by the given number of microseconds.
func (c *ManualClock) Advance(micros int64) {
	c.mu.Lock()
	c.now += micros
	c.mu.Unlock()
}

// Set positions the clock at an absolute microsecond timestamp.
func (c *ManualClock) Set(micros int64) {
	c.mu.Lock()
	c.now = micros
	c.mu.Unlock()
}
