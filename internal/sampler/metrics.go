package sampler

import (
	"time"

	"codeberg.org/mutker/jetpwmon/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics receives engine health events from the sampling loop. It never
// sees sample values.
type Metrics interface {
	ObserveTick(d time.Duration)
	IncOverrun()
	IncReadFailure(sensor string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTick(time.Duration) {}
func (noopMetrics) IncOverrun()               {}
func (noopMetrics) IncReadFailure(string)     {}

// PromMetrics exports sampler health through Prometheus collectors.
type PromMetrics struct {
	ticks        prometheus.Counter
	overruns     prometheus.Counter
	readFailures *prometheus.CounterVec
	tickDuration prometheus.Histogram
}

// NewPromMetrics creates the collectors and registers them with reg.
func NewPromMetrics(reg prometheus.Registerer) (*PromMetrics, error) {
	m := &PromMetrics{
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jetpwmon_ticks_total",
			Help: "Sampling ticks committed to the statistics table.",
		}),
		overruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jetpwmon_tick_overruns_total",
			Help: "Ticks that finished after the next deadline.",
		}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jetpwmon_sensor_read_failures_total",
			Help: "Failed sensor reads, by sensor name.",
		}, []string{"sensor"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jetpwmon_tick_duration_seconds",
			Help:    "Time spent reading all sensors and committing one tick.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
		}),
	}

	for _, c := range []prometheus.Collector{m.ticks, m.overruns, m.readFailures, m.tickDuration} {
		if err := reg.Register(c); err != nil {
			return nil, errors.New().Wrap(ErrRegisterMetrics, err)
		}
	}

	return m, nil
}

func (m *PromMetrics) ObserveTick(d time.Duration) {
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

func (m *PromMetrics) IncOverrun() {
	m.overruns.Inc()
}

func (m *PromMetrics) IncReadFailure(sensor string) {
	m.readFailures.WithLabelValues(sensor).Inc()
}
