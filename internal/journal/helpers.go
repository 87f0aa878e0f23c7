package journal

import (
	"database/sql"
	"math"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func toDecisionRow(sessionID int64, d Decision) decisionRow {
	return decisionRow{
		SessionID:   sessionID,
		TimestampUs: d.TimestampUs,
		EnergyDBm: sql.NullFloat64{
			Float64: d.EnergyDBm,
			Valid:   !math.IsNaN(d.EnergyDBm) && !math.IsInf(d.EnergyDBm, 0),
		},
		ThresholdDBm: sql.NullFloat64{
			Float64: d.ThresholdDBm,
			Valid:   !math.IsNaN(d.ThresholdDBm) && !math.IsInf(d.ThresholdDBm, 0),
		},
		Status:    d.Status,
		Mode:      d.Mode,
		Forced:    d.Forced,
		Attempts:  int64(d.Attempts),
		ElapsedUs: d.ElapsedUs,
	}
}

func fromDecisionRow(r decisionRow) Decision {
	d := Decision{
		ID:          r.ID,
		SessionID:   r.SessionID,
		TimestampUs: r.TimestampUs,
		Status:      r.Status,
		Mode:        r.Mode,
		Forced:      r.Forced,
		Attempts:    int(r.Attempts),
		ElapsedUs:   r.ElapsedUs,
	}
	if r.EnergyDBm.Valid {
		d.EnergyDBm = r.EnergyDBm.Float64
	} else {
		d.EnergyDBm = math.Inf(-1)
	}
	if r.ThresholdDBm.Valid {
		d.ThresholdDBm = r.ThresholdDBm.Float64
	}
	return d
}
