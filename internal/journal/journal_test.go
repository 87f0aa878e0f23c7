package journal

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()

	j := New(filepath.Join(t.TempDir(), "decisions.db"))
	t.Cleanup(func() {
		if err := j.Close(); err != nil {
			t.Errorf("Failed to close journal: %v", err)
		}
	})
	return j
}

func TestJournal_SessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	cfg := map[string]any{"mode": "LBE", "edThresholdDbm": -82.0}
	id, err := j.CreateSession(ctx, "LBE", cfg)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if id == 0 {
		t.Fatal("Expected a non-zero session ID")
	}

	sess, err := j.Session(ctx, id)
	if err != nil {
		t.Fatalf("Failed to read session back: %v", err)
	}
	if sess.Mode != "LBE" {
		t.Errorf("Expected mode LBE, got %q", sess.Mode)
	}
	if sess.UUID == "" {
		t.Error("Expected a generated session UUID")
	}
	if sess.Config == nil {
		t.Fatal("Expected the configuration to be stored with the session")
	}

	sessions, err := j.Sessions(ctx)
	if err != nil {
		t.Fatalf("Failed to list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != id {
		t.Errorf("Expected exactly the created session, got %d sessions", len(sessions))
	}
}

func TestJournal_BatchAppendAndIterate(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	id, err := j.CreateSession(ctx, "LBE", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	batch := []Decision{
		{TimestampUs: 1000, EnergyDBm: -91.2, ThresholdDBm: -82, Status: "FREE", Mode: "LBE"},
		{TimestampUs: 2000, EnergyDBm: -63.5, ThresholdDBm: -82, Status: "BUSY", Mode: "LBE", Attempts: 3},
		{TimestampUs: 3000, EnergyDBm: -70.1, ThresholdDBm: -82, Status: "FREE", Mode: "LBE", Forced: true, Attempts: 10},
	}
	if err := j.BatchAppend(ctx, id, batch); err != nil {
		t.Fatalf("Failed to append batch: %v", err)
	}

	it, err := j.Decisions(ctx, id)
	if err != nil {
		t.Fatalf("Failed to open iterator: %v", err)
	}
	defer it.Close()

	var got []Decision
	for it.Next() {
		got = append(got, it.Decision())
	}
	if err := it.Err(); err != nil {
		t.Fatalf("Iteration failed: %v", err)
	}

	if len(got) != len(batch) {
		t.Fatalf("Expected %d decisions, got %d", len(batch), len(got))
	}
	for i, d := range got {
		want := batch[i]
		if d.TimestampUs != want.TimestampUs || d.Status != want.Status ||
			d.Forced != want.Forced || d.Attempts != want.Attempts {
			t.Errorf("Decision %d mismatch: got %+v, want %+v", i, d, want)
		}
		if math.Abs(d.EnergyDBm-want.EnergyDBm) > 1e-9 {
			t.Errorf("Decision %d energy mismatch: got %f, want %f", i, d.EnergyDBm, want.EnergyDBm)
		}
	}
}

func TestJournal_IteratorFilters(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	id, err := j.CreateSession(ctx, "LBE", nil)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	batch := []Decision{
		{TimestampUs: 1000, EnergyDBm: -91, ThresholdDBm: -82, Status: "FREE", Mode: "LBE"},
		{TimestampUs: 2000, EnergyDBm: -60, ThresholdDBm: -82, Status: "BUSY", Mode: "LBE"},
		{TimestampUs: 3000, EnergyDBm: -70, ThresholdDBm: -82, Status: "FREE", Mode: "LBE", Forced: true},
		{TimestampUs: 4000, EnergyDBm: -92, ThresholdDBm: -82, Status: "FREE", Mode: "LBE"},
	}
	if err := j.BatchAppend(ctx, id, batch); err != nil {
		t.Fatalf("Failed to append batch: %v", err)
	}

	count := func(t *testing.T, opts ...func(*DecisionIterator)) int {
		t.Helper()

		it, err := j.Decisions(ctx, id, opts...)
		if err != nil {
			t.Fatalf("Failed to open iterator: %v", err)
		}
		defer it.Close()

		n := 0
		for it.Next() {
			n++
		}
		if err := it.Err(); err != nil {
			t.Fatalf("Iteration failed: %v", err)
		}
		return n
	}

	t.Run("time range", func(t *testing.T) {
		if n := count(t, WithSince(2000), WithUntil(4000)); n != 2 {
			t.Errorf("Expected 2 decisions in [2000, 4000), got %d", n)
		}
	})

	t.Run("status", func(t *testing.T) {
		if n := count(t, WithStatus("BUSY")); n != 1 {
			t.Errorf("Expected 1 busy decision, got %d", n)
		}
	})

	t.Run("forced only", func(t *testing.T) {
		if n := count(t, WithForcedOnly()); n != 1 {
			t.Errorf("Expected 1 forced grant, got %d", n)
		}
	})

	t.Run("other session is empty", func(t *testing.T) {
		other, err := j.CreateSession(ctx, "FBE", nil)
		if err != nil {
			t.Fatalf("Failed to create second session: %v", err)
		}
		it, err := j.Decisions(ctx, other)
		if err != nil {
			t.Fatalf("Failed to open iterator: %v", err)
		}
		defer it.Close()
		if it.Next() {
			t.Error("Expected no decisions in a fresh session")
		}
	})
}

func TestJournal_AppendSingle(t *testing.T) {
	ctx := context.Background()
	j := newTestJournal(t)

	id, err := j.CreateSession(ctx, "FBE", "framePeriodUs: 10000")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	d := Decision{TimestampUs: 500, EnergyDBm: -88, ThresholdDBm: -82, Status: "FREE", Mode: "FBE"}
	if err := j.Append(ctx, id, d); err != nil {
		t.Fatalf("Failed to append decision: %v", err)
	}

	it, err := j.Decisions(ctx, id)
	if err != nil {
		t.Fatalf("Failed to open iterator: %v", err)
	}
	defer it.Close()

	if !it.Next() {
		t.Fatalf("Expected one decision, iteration ended: %v", it.Err())
	}
	if got := it.Decision(); got.Mode != "FBE" || got.Status != "FREE" {
		t.Errorf("Unexpected decision read back: %+v", got)
	}
}
