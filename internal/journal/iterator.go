package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// WithSince restricts iteration to decisions at or after the given
// monotonic timestamp.
func WithSince(timestampUs int64) func(*DecisionIterator) {
	return func(it *DecisionIterator) {
		it.sinceUs = &timestampUs
	}
}

// WithUntil restricts iteration to decisions before the given monotonic
// timestamp.
func WithUntil(timestampUs int64) func(*DecisionIterator) {
	return func(it *DecisionIterator) {
		it.untilUs = &timestampUs
	}
}

// WithStatus restricts iteration to decisions with the given status
// ("FREE" or "BUSY").
func WithStatus(status string) func(*DecisionIterator) {
	return func(it *DecisionIterator) {
		it.status = &status
	}
}

// WithForcedOnly restricts iteration to forced grants.
func WithForcedOnly() func(*DecisionIterator) {
	return func(it *DecisionIterator) {
		forced := true
		it.forced = &forced
	}
}

// DecisionIterator streams journaled decisions for one session in
// timestamp order. Each iterator should be used from a single goroutine
// and closed after use.
type DecisionIterator struct {
	rows *sql.Rows

	sinceUs *int64
	untilUs *int64
	status  *string
	forced  *bool

	current Decision
	err     error
}

// Decisions opens an iterator over the decisions of a session. Options
// narrow the result set; without options every decision is returned.
func (j *Journal) Decisions(ctx context.Context, sessionID int64, opts ...func(*DecisionIterator)) (*DecisionIterator, error) {
	db, err := j.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	it := &DecisionIterator{}
	for _, opt := range opts {
		opt(it)
	}

	var sb strings.Builder
	sb.WriteString(`
SELECT
    id,
    session_id,
    timestamp_us,
    energy_dbm,
    threshold_dbm,
    status,
    mode,
    forced,
    attempts,
    elapsed_us
FROM decisions
WHERE session_id = ?`)

	args := []interface{}{sessionID}

	if it.sinceUs != nil {
		sb.WriteString(" AND timestamp_us >= ?")
		args = append(args, *it.sinceUs)
	}
	if it.untilUs != nil {
		sb.WriteString(" AND timestamp_us < ?")
		args = append(args, *it.untilUs)
	}
	if it.status != nil {
		sb.WriteString(" AND status = ?")
		args = append(args, *it.status)
	}
	if it.forced != nil {
		sb.WriteString(" AND forced = ?")
		args = append(args, *it.forced)
	}

	sb.WriteString(" ORDER BY timestamp_us, id")

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}

	it.rows = rows
	return it, nil
}

// Next advances to the next decision. It returns false when iteration
// ends, either through exhaustion or an error; check Err afterwards.
func (it *DecisionIterator) Next() bool {
	if it.err != nil || it.rows == nil {
		return false
	}
	if !it.rows.Next() {
		it.err = it.rows.Err()
		return false
	}

	var row decisionRow
	if err := it.rows.Scan(
		&row.ID,
		&row.SessionID,
		&row.TimestampUs,
		&row.EnergyDBm,
		&row.ThresholdDBm,
		&row.Status,
		&row.Mode,
		&row.Forced,
		&row.Attempts,
		&row.ElapsedUs,
	); err != nil {
		it.err = fmt.Errorf("scanning decision: %w", err)
		return false
	}

	it.current = fromDecisionRow(row)
	return true
}

// Decision returns the decision at the current iterator position.
func (it *DecisionIterator) Decision() Decision {
	return it.current
}

// Err returns the first error encountered during iteration.
func (it *DecisionIterator) Err() error {
	return it.err
}

// Close releases the underlying result set.
func (it *DecisionIterator) Close() error {
	if it.rows == nil {
		return nil
	}
	return it.rows.Close()
}
