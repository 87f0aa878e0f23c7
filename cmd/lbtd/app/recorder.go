package app

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spectrumsense/lbt/internal/access"
	"github.com/spectrumsense/lbt/internal/journal"
)

const (
	maxBatchSize  = 100
	flushInterval = time.Second
)

// journalRecorder moves decision records from the sensing path into the
// journal. Record never blocks: records queue on a buffered channel and
// a background goroutine flushes them in batches. When the queue is
// full the record is dropped and counted instead.
type journalRecorder struct {
	journal   *journal.Journal
	sessionID int64
	logger    *slog.Logger

	maxBatchSize int
	records      chan journal.Decision
	done         chan struct{}
	dropped      atomic.Uint64
}

func newJournalRecorder(jnl *journal.Journal, sessionID int64, batchSize int, logger *slog.Logger) *journalRecorder {
	if batchSize <= 0 {
		batchSize = maxBatchSize
	}
	return &journalRecorder{
		journal:      jnl,
		sessionID:    sessionID,
		logger:       logger.With(slog.String("component", "journal")),
		maxBatchSize: batchSize,
		records:      make(chan journal.Decision, 4*batchSize),
		done:         make(chan struct{}),
	}
}

// Record implements access.Recorder.
func (r *journalRecorder) Record(d access.Decision) {
	select {
	case r.records <- toJournalDecision(d):
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of records lost to a full queue.
func (r *journalRecorder) Dropped() uint64 {
	return r.dropped.Load()
}

// run drains the queue until the context is cancelled, flushing a batch
// when it fills or the flush interval passes.
func (r *journalRecorder) run(ctx context.Context) {
	defer close(r.done)

	batch := make([]journal.Decision, 0, r.maxBatchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.journal.BatchAppend(context.Background(), r.sessionID, batch); err != nil {
			r.logger.Error("failed to journal decisions", slog.String("error", err.Error()),
				slog.Int("count", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Drain whatever queued before cancellation.
			for {
				select {
				case d := <-r.records:
					batch = append(batch, d)
					if len(batch) == r.maxBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}

		case d := <-r.records:
			batch = append(batch, d)
			if len(batch) == r.maxBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// Close waits for the background flusher to finish.
func (r *journalRecorder) Close() {
	<-r.done

	if dropped := r.dropped.Load(); dropped > 0 {
		r.logger.Warn("decision records dropped on full queue", slog.Uint64("count", dropped))
	}
}

func toJournalDecision(d access.Decision) journal.Decision {
	return journal.Decision{
		TimestampUs:  d.TimestampUs,
		EnergyDBm:    d.EnergyDBm,
		ThresholdDBm: d.ThresholdDBm,
		Status:       d.Status(),
		Mode:         string(d.Mode),
		Forced:       d.Forced,
		Attempts:     d.Attempts,
		ElapsedUs:    d.ElapsedUs,
	}
}
