// Package sampler runs the timed acquisition loop that polls every sensor
// once per tick and commits the results to a statistics table.
package sampler

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/jetpwmon/internal/errors"
	"codeberg.org/mutker/jetpwmon/internal/logger"
	"codeberg.org/mutker/jetpwmon/internal/sensor"
	"codeberg.org/mutker/jetpwmon/internal/stats"
)

// DefaultFrequency is the sampling rate used when none is configured.
const DefaultFrequency = 1.0

// Health counts what the loop did since the sampler was created.
type Health struct {
	Ticks        uint64
	Overruns     uint64
	ReadFailures uint64
}

// Sampler drives a fixed list of sources at a configurable frequency.
// Lifecycle calls are serialized; SetFrequency may be called at any time.
type Sampler struct {
	sources []sensor.Source
	ids     []sensor.Identity
	table   *stats.Table
	metrics Metrics
	log     logger.Logger

	freqBits atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	ticks        atomic.Uint64
	overruns     atomic.Uint64
	readFailures atomic.Uint64
}

// Option configures a Sampler.
type Option func(*Sampler) error

func WithFrequency(hz float64) Option {
	return func(s *Sampler) error {
		return s.SetFrequency(hz)
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Sampler) error {
		if m != nil {
			s.metrics = m
		}
		return nil
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Sampler) error {
		if l != nil {
			s.log = l
		}
		return nil
	}
}

// New creates a stopped sampler. Sources are polled in slice order.
func New(sources []sensor.Source, table *stats.Table, opts ...Option) (*Sampler, error) {
	errFactory := errors.New()

	if len(sources) == 0 {
		return nil, errFactory.New(ErrNoSources)
	}
	if table == nil {
		return nil, errFactory.New(ErrNoTable)
	}

	s := &Sampler{
		sources: sources,
		ids:     make([]sensor.Identity, len(sources)),
		table:   table,
		metrics: noopMetrics{},
		log:     logger.Nop(),
	}
	for i, src := range sources {
		s.ids[i] = src.Identity()
	}
	s.freqBits.Store(math.Float64bits(DefaultFrequency))

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// SetFrequency changes the sampling rate. A running loop picks it up when
// it computes its next deadline.
func (s *Sampler) SetFrequency(hz float64) error {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return errors.New().WithData(ErrInvalidFrequency, hz)
	}
	s.freqBits.Store(math.Float64bits(hz))
	return nil
}

func (s *Sampler) Frequency() float64 {
	return math.Float64frombits(s.freqBits.Load())
}

func (s *Sampler) period() time.Duration {
	p := time.Duration(float64(time.Second) / s.Frequency())
	if p < 1 {
		p = 1
	}
	return p
}

// Running reports whether the loop goroutine is alive.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runningLocked()
}

func (s *Sampler) runningLocked() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Sampler) Stats() Health {
	return Health{
		Ticks:        s.ticks.Load(),
		Overruns:     s.overruns.Load(),
		ReadFailures: s.readFailures.Load(),
	}
}

// Start launches the loop. It does nothing if the loop is already running.
// Cancelling ctx stops the loop the same way Stop does.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runningLocked() {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	s.log.Debug().Float64("frequency_hz", s.Frequency()).Msg("Sampling loop started")
	go s.run(loopCtx, done)
}

// Stop cancels the loop and blocks until the tick in flight, if any, has
// been committed. It does nothing if the loop is not running.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.log.Debug().Msg("Sampling loop stopped")
}

func (s *Sampler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	// reads must not be interrupted by Stop; a started tick always commits
	readCtx := context.WithoutCancel(ctx)
	samples := make([]stats.Sample, len(s.sources))

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	deadline := time.Now()
	for {
		s.tick(readCtx, samples)

		if ctx.Err() != nil {
			return
		}

		deadline = deadline.Add(s.period())
		now := time.Now()
		if !deadline.After(now) {
			s.overruns.Add(1)
			s.metrics.IncOverrun()
			deadline = now
			continue
		}

		timer.Reset(deadline.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Sampler) tick(ctx context.Context, samples []stats.Sample) {
	start := time.Now()

	for i, src := range s.sources {
		r, err := src.Read(ctx)
		samples[i] = stats.Sample{Sensor: s.ids[i], Reading: r, Err: err}
		if err != nil {
			s.readFailures.Add(1)
			s.metrics.IncReadFailure(s.ids[i].Name)
			ev := s.log.Debug()
			if !sensor.IsUnavailable(err) {
				ev = s.log.Warn()
			}
			ev.Err(err).Str("sensor", s.ids[i].String()).Msg("Sensor read failed")
		}
	}

	if err := s.table.Record(start, samples...); err != nil {
		s.log.Error().Err(err).Msg("Failed to commit tick")
		return
	}

	s.ticks.Add(1)
	s.metrics.ObserveTick(time.Since(start))
}
