package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spectrumsense/lbt/internal/access"
	"github.com/spectrumsense/lbt/internal/frontend"
	"github.com/spectrumsense/lbt/internal/journal"
	"github.com/spectrumsense/lbt/internal/sensing"
)

const storageDir = "data"

// Run wires the sensing chain, front end, journal, metrics and access
// controller together and drives the slot scheduler until the context
// is cancelled.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	// Cancelled on any return path so the background goroutines wind
	// down even when initialization fails partway.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	clock := sensing.NewSystemClock()

	buf, err := sensing.NewBuffer(config.Sensing.BufferCapacity)
	if err != nil {
		return fmt.Errorf("creating sample buffer: %w", err)
	}
	if config.Sensing.DecimationFactor > 0 {
		buf.SetDecimationFactor(config.Sensing.DecimationFactor)
	}

	cal := sensing.NewCalibration()
	estimator := sensing.NewEstimator(buf, cal, clock)

	fe, sim := createFrontEnd(config, buf, logger)
	if sim != nil {
		if err = sim.Start(ctx); err != nil {
			return fmt.Errorf("starting simulator: %w", err)
		}
		defer sim.Stop()
	}

	options := []func(*access.Controller){access.WithLogger(logger), access.WithIngestCounters(buf)}

	var metrics *access.Metrics
	if config.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())

		metrics = access.NewMetrics(registry, buf)
		options = append(options, access.WithMetrics(metrics))

		server := serveMetrics(config.Metrics.Listen, registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	var recorder *journalRecorder
	if config.Journal.Enabled {
		jnl, err := createJournal(&config.Journal)
		if err != nil {
			return fmt.Errorf("creating journal: %w", err)
		}
		defer jnl.Close()

		sessionID, err := jnl.CreateSession(ctx, string(config.Access.Mode), config)
		if err != nil {
			return fmt.Errorf("creating journal session: %w", err)
		}

		recorder = newJournalRecorder(jnl, sessionID, config.Journal.MaxBatchSize, logger)
		go recorder.run(ctx)
		defer func() {
			cancel() // stop the flusher before waiting on it
			recorder.Close()
		}()

		options = append(options, access.WithRecorder(recorder))
	}

	controller, err := access.New(&config.Access, estimator, fe, clock, options...)
	if err != nil {
		return fmt.Errorf("creating access controller: %w", err)
	}

	calibrate(config, estimator, cal, clock, logger)

	gate := access.NewGate(controller, config.Sensing.StabilityCount)

	scheduler := newScheduler(controller, estimator, gate, config, logger)
	return scheduler.run(ctx)
}

func createFrontEnd(config *Config, buf *sensing.Buffer, logger *slog.Logger) (frontend.FrontEnd, *frontend.Simulator) {
	if !config.Simulator.Enabled {
		return frontend.Nop{}, nil
	}

	var options []func(*frontend.Simulator)
	options = append(options, frontend.WithLogger(logger))
	if config.Simulator.BatchSize > 0 {
		options = append(options, frontend.WithBatchSize(config.Simulator.BatchSize))
	}
	if config.Simulator.IntervalUs > 0 {
		options = append(options, frontend.WithInterval(time.Duration(config.Simulator.IntervalUs)*time.Microsecond))
	}
	if config.Simulator.NoiseAmplitude > 0 {
		options = append(options, frontend.WithNoiseAmplitude(config.Simulator.NoiseAmplitude))
	}

	sim := frontend.NewSimulator(buf, options...)
	return sim, sim
}

// calibrate establishes the noise floor and detection threshold before
// the first decision. Failures are not fatal: the controller falls back
// to the configured threshold and the default floor.
func calibrate(config *Config, estimator *sensing.Estimator, cal *sensing.Calibration, clock sensing.Clock, logger *slog.Logger) {
	calibrator := sensing.NewCalibrator(estimator, cal, clock, sensing.WithLogger(logger))

	if err := calibrator.CalibrateNoiseFloor(config.Sensing.CalibrationSamples); err != nil {
		logger.Warn("noise floor calibration failed, using defaults",
			slog.String("error", err.Error()),
			slog.Float64("noiseFloorDbm", cal.NoiseFloor()),
			slog.Float64("thresholdDbm", cal.Threshold()))
	}

	if config.Probe.Interface != "" {
		calibrator.CrossCalibrate(frontend.NewIWProbe(config.Probe.Interface))
	}
}

func createJournal(config *JournalConfig) (*journal.Journal, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	var dbPath string
	if config.DataDirectory != "" {
		dbPath = filepath.Join(wd, config.DataDirectory)
	} else {
		dbPath = filepath.Join(wd, storageDir)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("journal directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking journal directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid journal directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("lbt_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return journal.New(dbPath), nil
}

func serveMetrics(listen string, registry *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: listen, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("metrics endpoint listening", slog.String("addr", listen))
	return server
}
