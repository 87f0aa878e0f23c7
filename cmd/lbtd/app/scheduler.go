package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/spectrumsense/lbt/internal/access"
	"github.com/spectrumsense/lbt/internal/sensing"
)

// scheduler offers the controller a transmit opportunity every slot and
// feeds the stability gate between slots. Granted slots are held for
// the configured transmission duration before the channel is released.
type scheduler struct {
	controller *access.Controller
	estimator  *sensing.Estimator
	gate       *access.Gate
	logger     *slog.Logger

	slotPeriod    time.Duration
	txDurationUs  int64
	statsInterval time.Duration

	opportunities uint64
}

func newScheduler(controller *access.Controller, estimator *sensing.Estimator, gate *access.Gate, config *Config, logger *slog.Logger) *scheduler {
	statsInterval := time.Duration(config.Settings.StatsIntervalSec) * time.Second
	if statsInterval <= 0 {
		statsInterval = 30 * time.Second
	}

	return &scheduler{
		controller:    controller,
		estimator:     estimator,
		gate:          gate,
		logger:        logger.With(slog.String("component", "scheduler")),
		slotPeriod:    time.Duration(config.Settings.SlotPeriodUs) * time.Microsecond,
		txDurationUs:  config.Settings.TxDurationUs,
		statsInterval: statsInterval,
	}
}

func (s *scheduler) run(ctx context.Context) error {
	slots := time.NewTicker(s.slotPeriod)
	defer slots.Stop()

	stats := time.NewTicker(s.statsInterval)
	defer stats.Stop()

	s.logger.Info("scheduler started",
		slog.Duration("slotPeriod", s.slotPeriod),
		slog.Int64("txDurationUs", s.txDurationUs))

	for {
		select {
		case <-ctx.Done():
			s.logStats()
			return nil

		case <-slots.C:
			s.observeGate()
			if s.controller.SenseAndAcquire(s.txDurationUs) {
				s.transmit()
			}

		case <-stats.C:
			s.logStats()
		}
	}
}

// observeGate feeds the current energy estimate into the stability gate
// and fires an opportunistic transmission once the channel has been
// clear long enough.
func (s *scheduler) observeGate() {
	energy := s.estimator.Energy()
	s.gate.Observe(energy, s.controller.Threshold())

	s.gate.TryTrigger(func() {
		s.opportunities++
		s.logger.Debug("transmit opportunity fired",
			slog.Float64("energyDbm", energy),
			slog.Uint64("total", s.opportunities))
	})
}

func (s *scheduler) transmit() {
	// Stand-in for the radio's transmission; the channel is held for
	// the slot's duration and then released.
	time.Sleep(time.Duration(s.txDurationUs) * time.Microsecond)
	s.controller.OnTxComplete()
}

func (s *scheduler) logStats() {
	st := s.controller.Stats()
	s.logger.Info("channel access stats",
		slog.String("samplesReceived", humanize.Comma(int64(st.SamplesReceived))),
		slog.String("samplesDropped", humanize.Comma(int64(st.SamplesDropped))),
		slog.String("bufferOverflows", humanize.Comma(int64(st.BufferOverflows))),
		slog.String("checks", humanize.Comma(int64(st.ChecksPerformed))),
		slog.String("busy", humanize.Comma(int64(st.BusyCount))),
		slog.String("forcedGrants", humanize.Comma(int64(st.ForcedGrants))),
		slog.Uint64("degradedEstimates", s.estimator.DegradedCount()))
}
