// Package frontend defines the contracts between the channel-access
// core and the radio front end: receive-path mute/resume hooks, an
// external signal-strength probe, and a simulated sample source for
// development and tests.
package frontend

// FrontEnd is the receive-path control surface of a radio. The
// channel-access controller mutes receive streaming around granted
// transmissions and resumes it afterwards. No-op implementations are
// valid where the radio manages its own stream.
type FrontEnd interface {
	MuteReceive()
	ResumeReceive()
}

// Nop is a FrontEnd that does nothing.
type Nop struct{}

func (Nop) MuteReceive()   {}
func (Nop) ResumeReceive() {}
