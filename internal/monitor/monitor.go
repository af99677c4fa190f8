// Package monitor is the control surface of the power monitor: it owns the
// statistics table and the sampler and enforces the Idle/Sampling
// lifecycle on their behalf.
package monitor

import (
	"context"
	"sync"

	"codeberg.org/mutker/jetpwmon/internal/errors"
	"codeberg.org/mutker/jetpwmon/internal/logger"
	"codeberg.org/mutker/jetpwmon/internal/sampler"
	"codeberg.org/mutker/jetpwmon/internal/sensor"
	"codeberg.org/mutker/jetpwmon/internal/stats"
)

type State int

const (
	Idle State = iota
	Sampling
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sampling:
		return "sampling"
	default:
		return "unknown"
	}
}

type options struct {
	frequency      float64
	nominalVoltage *float64
	metrics        sampler.Metrics
	log            logger.Logger
}

type Option func(*options)

func WithFrequency(hz float64) Option {
	return func(o *options) { o.frequency = hz }
}

// WithNominalVoltage sets the voltage reported for the Total row.
func WithNominalVoltage(v float64) Option {
	return func(o *options) { o.nominalVoltage = &v }
}

func WithMetrics(m sampler.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// Monitor samples a fixed set of sensors in the background and serves
// statistics snapshots. All methods are safe for concurrent use.
type Monitor struct {
	sources []sensor.Source
	table   *stats.Table
	sampler *sampler.Sampler
	log     logger.Logger

	mu     sync.Mutex
	state  State
	closed bool
}

// New validates the sensor list and builds an Idle monitor. The monitor
// takes ownership of sources that implement io.Closer.
func New(sources []sensor.Source, opts ...Option) (*Monitor, error) {
	errFactory := errors.New()

	o := options{frequency: sampler.DefaultFrequency, log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	if len(sources) == 0 {
		return nil, errFactory.New(ErrNoSensors)
	}

	ids := make([]sensor.Identity, len(sources))
	seen := make(map[sensor.Identity]struct{}, len(sources))
	for i, src := range sources {
		id := src.Identity()
		if _, dup := seen[id]; dup {
			return nil, errFactory.WithData(ErrDuplicateSensor, id.String())
		}
		seen[id] = struct{}{}
		ids[i] = id
	}

	var tableOpts []stats.TableOption
	if o.nominalVoltage != nil {
		tableOpts = append(tableOpts, stats.WithNominalVoltage(*o.nominalVoltage))
	}
	table, err := stats.NewTable(ids, tableOpts...)
	if err != nil {
		return nil, err
	}

	s, err := sampler.New(sources, table,
		sampler.WithMetrics(o.metrics),
		sampler.WithLogger(o.log),
	)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		sources: sources,
		table:   table,
		sampler: s,
		log:     o.log,
	}
	if err := m.Configure(o.frequency); err != nil {
		return nil, err
	}

	return m, nil
}

// Configure sets the sampling frequency in Hz. While sampling, the new rate
// applies from the next tick boundary. An invalid value leaves the monitor
// unchanged.
func (m *Monitor) Configure(hz float64) error {
	if err := m.sampler.SetFrequency(hz); err != nil {
		return errors.New().Wrap(ErrInvalidFrequency, err)
	}
	return nil
}

func (m *Monitor) SamplingFrequency() float64 {
	return m.sampler.Frequency()
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) IsSampling() bool {
	return m.State() == Sampling
}

// StartSampling enters Sampling. Calling it while already sampling does
// nothing.
func (m *Monitor) StartSampling() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New().New(ErrClosed)
	}
	if m.state == Sampling {
		return nil
	}

	m.sampler.Start(context.Background())
	m.state = Sampling
	m.log.Info().Float64("frequency_hz", m.sampler.Frequency()).Msg("Sampling started")

	return nil
}

// StopSampling returns to Idle once the tick in flight has committed.
// Calling it while idle does nothing.
func (m *Monitor) StopSampling() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	if m.state != Sampling {
		return
	}
	m.sampler.Stop()
	m.state = Idle
	m.log.Info().Msg("Sampling stopped")
}

// ResetStatistics clears every aggregate and the energy baselines without
// touching the sampling state.
func (m *Monitor) ResetStatistics() {
	m.table.Reset()
	m.log.Debug().Msg("Statistics reset")
}

// Statistics returns a snapshot as of the call. A monitor that never
// sampled returns an empty snapshot.
func (m *Monitor) Statistics() stats.Snapshot {
	return m.table.Snapshot()
}

func (m *Monitor) LatestData() stats.Latest {
	return m.table.Latest()
}

func (m *Monitor) SensorCount() int {
	return len(m.sources)
}

func (m *Monitor) SensorNames() []string {
	ids := m.table.Sensors()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.Name
	}
	return names
}

func (m *Monitor) Health() sampler.Health {
	return m.sampler.Stats()
}

// Close stops sampling and releases the sources. Statistics stay readable.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.stopLocked()
	m.closed = true

	return sensor.CloseAll(m.sources)
}
