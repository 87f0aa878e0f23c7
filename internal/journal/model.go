package journal

import (
	"database/sql"
	"time"
)

// Session identifies one controller run. Every decision row belongs to
// exactly one session, so journals from repeated runs against the same
// database file stay separable.
type Session struct {
	ID        int64
	UUID      string
	StartTime time.Time
	Mode      string
	Config    *string
}

// Decision is one journaled channel-access verdict.
type Decision struct {
	ID           int64
	SessionID    int64
	TimestampUs  int64
	EnergyDBm    float64
	ThresholdDBm float64
	Status       string
	Mode         string
	Forced       bool
	Attempts     int
	ElapsedUs    int64
}

type decisionRow struct {
	ID           int64
	SessionID    int64
	TimestampUs  int64
	EnergyDBm    sql.NullFloat64
	ThresholdDBm sql.NullFloat64
	Status       string
	Mode         string
	Forced       bool
	Attempts     int64
	ElapsedUs    int64
}
