package access

import (
	"sync/atomic"
)

// DefaultStabilityCount is the number of consecutive clear observations
// required before the gate opens.
const DefaultStabilityCount = 3

const triggerGuardUs = 1000

// Gate tracks consecutive clear observations of the energy stream and
// gates an asynchronous transmit-opportunity trigger that runs outside
// the scheduler's slot cadence. Any busy observation resets the streak.
type Gate struct {
	c        *Controller
	required int32
	streak   atomic.Int32
}

// NewGate creates a stability gate over the given controller. A
// non-positive required count selects the default.
func NewGate(c *Controller, required int) *Gate {
	if required <= 0 {
		required = DefaultStabilityCount
	}
	return &Gate{c: c, required: int32(required)}
}

// Observe feeds one energy reading into the gate: the streak grows on a
// clear channel and resets to zero on a busy one.
func (g *Gate) Observe(energyDBm, thresholdDBm float64) {
	if energyDBm < thresholdDBm {
		g.streak.Add(1)
	} else {
		g.streak.Store(0)
	}
}

// IsStable reports whether the required number of consecutive clear
// observations has been reached.
func (g *Gate) IsStable() bool {
	return g.streak.Load() >= g.required
}

// Reset clears the streak.
func (g *Gate) Reset() {
	g.streak.Store(0)
}

// TryTrigger fires the transmit opportunity once the channel has been
// observed stable. A successful trigger resets the streak, mutes the
// receive path for the transmission, invokes fire, and completes the
// normal tx lifecycle so receiving resumes. Returns true if the trigger
// fired.
func (g *Gate) TryTrigger(fire func()) bool {
	if !g.IsStable() {
		return false
	}
	g.streak.Store(0)

	g.c.fe.MuteReceive()
	g.c.clock.Sleep(triggerGuardUs)

	if fire != nil {
		fire()
	}

	g.c.OnTxComplete()
	return true
}
