package stats

import (
	"math"
	"sync"
	"time"

	"codeberg.org/mutker/jetpwmon/internal/errors"
	"codeberg.org/mutker/jetpwmon/internal/sensor"
)

// DefaultNominalVoltage is reported as the board voltage of the Total row,
// which has no single physical rail behind it.
const DefaultNominalVoltage = 5.0

// Sample is the outcome of polling one sensor during a tick. A non-nil Err
// means the read failed and Reading is ignored. A reading with a NaN or
// infinite value counts as a failed read.
type Sample struct {
	Sensor  sensor.Identity
	Reading sensor.Reading
	Err     error
}

type metricSet struct {
	power   Aggregator
	voltage Aggregator
	current Aggregator
}

func (m *metricSet) reset() {
	m.power.Reset()
	m.voltage.Reset()
	m.current.Reset()
}

type sensorEntry struct {
	id       sensor.Identity
	metrics  metricSet
	failures uint64
	// last is the timestamp of the previous successful reading since the
	// last reset; zero means the next reading has no integration baseline.
	last time.Time

	latest  sensor.Reading
	online  bool
	lastErr string
}

func (e *sensorEntry) status() Status {
	switch {
	case e.online:
		return StatusNormal
	case e.lastErr != "":
		return StatusOffline
	default:
		return StatusNoData
	}
}

// Table maps sensor identities to their aggregates plus one Total set.
// Every method takes the single table lock for its whole duration, so a
// reader never sees a partially applied tick.
type Table struct {
	mu             sync.RWMutex
	entries        []sensorEntry
	index          map[sensor.Identity]int
	nominalVoltage float64

	total       metricSet
	lastTick    time.Time
	ticks       uint64
	since       time.Time
	latestTotal sensor.Reading
}

// TableOption configures a Table.
type TableOption func(*Table) error

// WithNominalVoltage overrides DefaultNominalVoltage.
func WithNominalVoltage(v float64) TableOption {
	return func(t *Table) error {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New().WithData(ErrInvalidNominalVdd, v)
		}
		t.nominalVoltage = v
		return nil
	}
}

// NewTable creates a table for the given sensors, in order.
func NewTable(ids []sensor.Identity, opts ...TableOption) (*Table, error) {
	t := &Table{
		entries:        make([]sensorEntry, len(ids)),
		index:          make(map[sensor.Identity]int, len(ids)),
		nominalVoltage: DefaultNominalVoltage,
		since:          time.Now(),
	}

	for i, id := range ids {
		if _, dup := t.index[id]; dup {
			return nil, errors.New().WithData(ErrDuplicateSensor, id.String())
		}
		t.index[id] = i
		t.entries[i].id = id
	}

	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// Record commits one tick. at is the tick time used to integrate the Total
// aggregate. Samples for unknown sensors reject the whole tick.
func (t *Table) Record(at time.Time, samples ...Sample) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range samples {
		if _, ok := t.index[s.Sensor]; !ok {
			return errors.New().WithData(ErrUnknownSensor, s.Sensor.String())
		}
	}

	var (
		succeeded    int
		totalPower   float64
		totalCurrent float64
	)

	for _, s := range samples {
		e := &t.entries[t.index[s.Sensor]]

		err := s.Err
		if err == nil && !finite(s.Reading) {
			err = errors.New().WithData(ErrNonFiniteReading, s.Sensor.String())
		}
		if err != nil {
			e.failures++
			e.online = false
			e.lastErr = err.Error()
			continue
		}

		r := s.Reading
		if r.Timestamp.IsZero() {
			r.Timestamp = at
		}

		var elapsed time.Duration
		if !e.last.IsZero() {
			elapsed = r.Timestamp.Sub(e.last)
		}

		e.metrics.power.Update(r.Power, elapsed)
		e.metrics.voltage.Update(r.Voltage, elapsed)
		e.metrics.current.Update(r.Current, elapsed)
		e.last = r.Timestamp
		e.latest = r
		e.online = true
		e.lastErr = ""

		succeeded++
		totalPower += r.Power
		totalCurrent += r.Current
	}

	t.ticks++
	if succeeded == 0 {
		return nil
	}

	var elapsed time.Duration
	if !t.lastTick.IsZero() {
		elapsed = at.Sub(t.lastTick)
	}

	t.total.power.Update(totalPower, elapsed)
	t.total.current.Update(totalCurrent, elapsed)
	t.total.voltage.Update(t.nominalVoltage, elapsed)
	t.lastTick = at
	t.latestTotal = sensor.Reading{
		Voltage:   t.nominalVoltage,
		Current:   totalCurrent,
		Power:     totalPower,
		Timestamp: at,
	}

	return nil
}

func finite(r sensor.Reading) bool {
	for _, v := range [...]float64{r.Voltage, r.Current, r.Power} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Reset zeroes every aggregate, failure count and integration baseline.
// The latest readings are kept.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		e := &t.entries[i]
		e.metrics.reset()
		e.failures = 0
		e.last = time.Time{}
	}

	t.total.reset()
	t.lastTick = time.Time{}
	t.ticks = 0
	t.since = time.Now()
}

// Snapshot returns a deep copy of the aggregates.
func (t *Table) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		TakenAt: time.Now(),
		Since:   t.since,
		Ticks:   t.ticks,
		Total: MetricViews{
			Power:   t.total.power.View(),
			Voltage: t.total.voltage.View(),
			Current: t.total.current.View(),
		},
		Sensors: make([]SensorStats, len(t.entries)),
	}

	for i := range t.entries {
		e := &t.entries[i]
		snap.Sensors[i] = SensorStats{
			Sensor: e.id,
			MetricViews: MetricViews{
				Power:   e.metrics.power.View(),
				Voltage: e.metrics.voltage.View(),
				Current: e.metrics.current.View(),
			},
			Failures: e.failures,
		}
	}

	return snap
}

// Latest returns the most recent instantaneous readings.
func (t *Table) Latest() Latest {
	t.mu.RLock()
	defer t.mu.RUnlock()

	latest := Latest{
		TakenAt:     time.Now(),
		Total:       t.latestTotal,
		TotalStatus: StatusNoData,
		Sensors:     make([]LatestReading, len(t.entries)),
	}
	if !t.latestTotal.Timestamp.IsZero() {
		latest.TotalStatus = StatusNormal
	}

	for i := range t.entries {
		e := &t.entries[i]
		latest.Sensors[i] = LatestReading{
			Sensor:  e.id,
			Reading: e.latest,
			Online:  e.online,
			Status:  e.status(),
			Err:     e.lastErr,
		}
	}

	return latest
}

// Sensors returns the identities in table order.
func (t *Table) Sensors() []sensor.Identity {
	ids := make([]sensor.Identity, len(t.entries))
	for i := range t.entries {
		ids[i] = t.entries[i].id
	}
	return ids
}
