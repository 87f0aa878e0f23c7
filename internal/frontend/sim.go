package frontend

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spectrumsense/lbt/internal/sensing"
)

const (
	defaultBatchSize = 1024
	defaultInterval  = 500 * time.Microsecond

	defaultNoiseAmplitude = 0.001
)

// WithLogger sets the logger for the simulator.
func WithLogger(logger *slog.Logger) func(*Simulator) {
	return func(s *Simulator) {
		s.logger = logger.With(slog.String("component", "frontend-sim"))
	}
}

// WithBatchSize sets the number of IQ samples per delivered batch.
func WithBatchSize(n int) func(*Simulator) {
	return func(s *Simulator) {
		s.batchSize = n
	}
}

// WithInterval sets the delivery cadence.
func WithInterval(d time.Duration) func(*Simulator) {
	return func(s *Simulator) {
		s.interval = d
	}
}

// WithNoiseAmplitude sets the baseline per-component noise amplitude.
func WithNoiseAmplitude(a float64) func(*Simulator) {
	return func(s *Simulator) {
		s.noiseAmplitude = a
	}
}

// Simulator synthesizes Gaussian IQ batches at a fixed cadence and
// feeds them to the sample buffer through the same non-blocking
// contract a real front end uses. It doubles as the FrontEnd
// implementation: muting pauses delivery, resuming restarts it, which
// mirrors stopping and restarting a receive stream.
type Simulator struct {
	buf *sensing.Buffer

	batchSize      int
	interval       time.Duration
	noiseAmplitude float64

	// burstAmplitude, when set above the noise amplitude, simulates a
	// co-channel occupant.
	burstAmplitude atomic.Uint64

	muted   atomic.Bool
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger *slog.Logger
}

// NewSimulator creates a simulated front end feeding the given buffer.
func NewSimulator(buf *sensing.Buffer, options ...func(*Simulator)) *Simulator {
	s := &Simulator{
		buf:            buf,
		batchSize:      defaultBatchSize,
		interval:       defaultInterval,
		noiseAmplitude: defaultNoiseAmplitude,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Start begins sample delivery until the context is cancelled or Stop
// is called.
func (s *Simulator) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("simulator is already running")
	}
	s.running.Store(true)

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		s.logger.Info("starting simulated sample stream",
			slog.Int("batchSize", s.batchSize),
			slog.Duration("interval", s.interval))

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		batch := make([]complex64, s.batchSize)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("simulated sample stream stopped")
				return
			case <-ticker.C:
				if s.muted.Load() {
					continue
				}
				s.fill(batch)
				s.buf.Feed(batch)
			}
		}
	}()

	return nil
}

// Stop halts sample delivery and waits for the stream goroutine.
func (s *Simulator) Stop() {
	if !s.running.Load() {
		return
	}
	s.cancel()
	s.wg.Wait()
}

// IsRunning returns true if the stream goroutine is active.
func (s *Simulator) IsRunning() bool {
	return s.running.Load()
}

// MuteReceive pauses sample delivery, as a real front end stops its
// receive stream while transmitting.
func (s *Simulator) MuteReceive() {
	s.muted.Store(true)
}

// ResumeReceive restarts sample delivery.
func (s *Simulator) ResumeReceive() {
	s.muted.Store(false)
}

// SetBurstAmplitude raises the per-component amplitude to simulate a
// co-channel occupant; zero restores pure noise.
func (s *Simulator) SetBurstAmplitude(a float64) {
	s.burstAmplitude.Store(math.Float64bits(a))
}

func (s *Simulator) fill(batch []complex64) {
	amp := s.noiseAmplitude
	if burst := math.Float64frombits(s.burstAmplitude.Load()); burst > amp {
		amp = burst
	}
	for i := range batch {
		batch[i] = complex(
			float32(rand.NormFloat64()*amp),
			float32(rand.NormFloat64()*amp),
		)
	}
}
