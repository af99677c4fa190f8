package stats

import (
	"encoding/json"
	"time"

	"codeberg.org/mutker/jetpwmon/internal/sensor"
)

// MetricViews groups the three streams kept per sensor and for the Total.
type MetricViews struct {
	Power   View
	Voltage View
	Current View
}

// SensorStats is one sensor's row of a Snapshot.
type SensorStats struct {
	Sensor sensor.Identity
	MetricViews
	// Failures counts reads that failed since the last reset.
	Failures uint64
}

// Snapshot is a point-in-time copy of a Table. It shares no memory with
// the table it came from.
type Snapshot struct {
	TakenAt time.Time
	Since   time.Time
	Ticks   uint64
	Total   MetricViews
	Sensors []SensorStats
}

// Elapsed is the wall time covered by the snapshot.
func (s Snapshot) Elapsed() time.Duration {
	return s.TakenAt.Sub(s.Since)
}

// Sensor returns the row for the named sensor.
func (s Snapshot) Sensor(name string) (SensorStats, bool) {
	for _, row := range s.Sensors {
		if row.Sensor.Name == name {
			return row, true
		}
	}
	return SensorStats{}, false
}

// Status summarizes a sensor's last read.
type Status string

const (
	StatusNormal  Status = "Normal"
	StatusOffline Status = "Offline"
	// StatusNoData means the sensor has not been read since the table was
	// created.
	StatusNoData Status = "No data"
)

// LatestReading is the last known state of one sensor.
type LatestReading struct {
	Sensor  sensor.Identity
	Reading sensor.Reading
	Online  bool
	Status  Status
	Err     string
}

// Latest holds the instantaneous readings of the most recent tick.
type Latest struct {
	TakenAt     time.Time
	Total       sensor.Reading
	TotalStatus Status
	Sensors     []LatestReading
}

// Map renders the view as a plain mapping. Min, max and avg are nil when
// the view is empty.
func (v View) Map() map[string]any {
	m := map[string]any{
		"min":   nil,
		"max":   nil,
		"avg":   nil,
		"sum":   v.Sum,
		"total": v.Total,
		"count": v.Count,
	}
	if !v.Empty() {
		m["min"] = v.Min
		m["max"] = v.Max
		m["avg"] = v.Avg
	}
	return m
}

type viewJSON struct {
	Min   *float64 `json:"min"`
	Max   *float64 `json:"max"`
	Avg   *float64 `json:"avg"`
	Sum   float64  `json:"sum"`
	Total float64  `json:"total"`
	Count uint64   `json:"count"`
}

func (v View) MarshalJSON() ([]byte, error) {
	out := viewJSON{Sum: v.Sum, Total: v.Total, Count: v.Count}
	if !v.Empty() {
		out.Min, out.Max, out.Avg = &v.Min, &v.Max, &v.Avg
	}
	return json.Marshal(out)
}

func (m MetricViews) Map() map[string]any {
	return map[string]any{
		"power":   m.Power.Map(),
		"voltage": m.Voltage.Map(),
		"current": m.Current.Map(),
	}
}

// Map renders the snapshot as the nested mapping handed to bindings:
// {total: {power, voltage, current}, sensors: [{name, power, voltage, current}]}.
func (s Snapshot) Map() map[string]any {
	sensors := make([]map[string]any, len(s.Sensors))
	for i, row := range s.Sensors {
		m := row.MetricViews.Map()
		m["name"] = row.Sensor.Name
		m["index"] = row.Sensor.Index
		m["failures"] = row.Failures
		sensors[i] = m
	}

	return map[string]any{
		"total":   s.Total.Map(),
		"sensors": sensors,
		"ticks":   s.Ticks,
	}
}

type metricViewsJSON struct {
	Power   View `json:"power"`
	Voltage View `json:"voltage"`
	Current View `json:"current"`
}

type sensorStatsJSON struct {
	Name     string      `json:"name"`
	Index    int         `json:"index"`
	Kind     sensor.Kind `json:"kind,omitempty"`
	Power    View        `json:"power"`
	Voltage  View        `json:"voltage"`
	Current  View        `json:"current"`
	Failures uint64      `json:"failures"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := struct {
		TakenAt time.Time         `json:"taken_at"`
		Since   time.Time         `json:"since"`
		Ticks   uint64            `json:"ticks"`
		Total   metricViewsJSON   `json:"total"`
		Sensors []sensorStatsJSON `json:"sensors"`
	}{
		TakenAt: s.TakenAt,
		Since:   s.Since,
		Ticks:   s.Ticks,
		Total:   metricViewsJSON(s.Total),
		Sensors: make([]sensorStatsJSON, len(s.Sensors)),
	}

	for i, row := range s.Sensors {
		out.Sensors[i] = sensorStatsJSON{
			Name:     row.Sensor.Name,
			Index:    row.Sensor.Index,
			Kind:     row.Sensor.Kind,
			Power:    row.Power,
			Voltage:  row.Voltage,
			Current:  row.Current,
			Failures: row.Failures,
		}
	}

	return json.Marshal(out)
}
