package stats

import (
	"encoding/json"
	stderrors "errors"
	"math"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/jetpwmon/internal/errors"
	"codeberg.org/mutker/jetpwmon/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	cpu = sensor.Identity{Index: 0, Name: "CPU"}
	gpu = sensor.Identity{Index: 1, Name: "GPU"}
)

func newTestTable(t *testing.T, opts ...TableOption) *Table {
	t.Helper()
	table, err := NewTable([]sensor.Identity{cpu, gpu}, opts...)
	require.NoError(t, err)
	return table
}

func reading(v, i float64, at time.Time) sensor.Reading {
	return sensor.Reading{Voltage: v, Current: i, Power: v * i, Timestamp: at}
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	_, err := NewTable([]sensor.Identity{cpu, cpu})
	assert.Equal(t, ErrDuplicateSensor, errors.CodeOf(err))
}

func TestNewTableRejectsBadNominalVoltage(t *testing.T) {
	_, err := NewTable([]sensor.Identity{cpu}, WithNominalVoltage(-1))
	assert.Equal(t, ErrInvalidNominalVdd, errors.CodeOf(err))
}

func TestFreshTableSnapshotIsEmpty(t *testing.T) {
	snap := newTestTable(t).Snapshot()

	assert.True(t, snap.Total.Power.Empty())
	assert.Equal(t, uint64(0), snap.Ticks)
	require.Len(t, snap.Sensors, 2)
	assert.Equal(t, "CPU", snap.Sensors[0].Sensor.Name)
	assert.Equal(t, "GPU", snap.Sensors[1].Sensor.Name)
	for _, row := range snap.Sensors {
		assert.True(t, row.Power.Empty())
		assert.True(t, row.Voltage.Empty())
		assert.True(t, row.Current.Empty())
	}
}

func TestRecordUpdatesSensorsAndTotal(t *testing.T) {
	table := newTestTable(t)
	t0 := time.Now()
	t1 := t0.Add(time.Second)

	require.NoError(t, table.Record(t0,
		Sample{Sensor: cpu, Reading: reading(5, 1, t0)},
		Sample{Sensor: gpu, Reading: reading(5, 2, t0)},
	))
	require.NoError(t, table.Record(t1,
		Sample{Sensor: cpu, Reading: reading(5, 1, t1)},
		Sample{Sensor: gpu, Reading: reading(5, 2, t1)},
	))

	snap := table.Snapshot()
	assert.Equal(t, uint64(2), snap.Ticks)

	cpuRow, ok := snap.Sensor("CPU")
	require.True(t, ok)
	assert.Equal(t, uint64(2), cpuRow.Power.Count)
	assert.InDelta(t, 5.0, cpuRow.Power.Avg, 1e-12)
	assert.InDelta(t, 5.0, cpuRow.Power.Total, 1e-9)

	// one Total update per tick, not per sensor
	assert.Equal(t, uint64(2), snap.Total.Power.Count)
	assert.InDelta(t, 15.0, snap.Total.Power.Avg, 1e-12)
	assert.InDelta(t, 15.0, snap.Total.Power.Total, 1e-9)
	assert.InDelta(t, 3.0, snap.Total.Current.Avg, 1e-12)
	assert.InDelta(t, DefaultNominalVoltage, snap.Total.Voltage.Avg, 1e-12)
}

func TestRecordFailureLeavesAggregatesUntouched(t *testing.T) {
	table := newTestTable(t)
	t0 := time.Now()

	require.NoError(t, table.Record(t0,
		Sample{Sensor: cpu, Reading: reading(5, 1, t0)},
		Sample{Sensor: gpu, Reading: reading(5, 2, t0)},
	))
	before, _ := table.Snapshot().Sensor("CPU")

	t1 := t0.Add(100 * time.Millisecond)
	require.NoError(t, table.Record(t1,
		Sample{Sensor: cpu, Err: stderrors.New("i2c timeout")},
		Sample{Sensor: gpu, Reading: reading(5, 2, t1)},
	))

	snap := table.Snapshot()
	after, _ := snap.Sensor("CPU")
	assert.Equal(t, before.MetricViews, after.MetricViews)
	assert.Equal(t, uint64(1), after.Failures)

	gpuRow, _ := snap.Sensor("GPU")
	assert.Equal(t, uint64(2), gpuRow.Power.Count)
	assert.Equal(t, uint64(0), gpuRow.Failures)

	latest := table.Latest()
	assert.False(t, latest.Sensors[0].Online)
	assert.Equal(t, "i2c timeout", latest.Sensors[0].Err)
	assert.True(t, latest.Sensors[1].Online)
	assert.InDelta(t, 10.0, latest.Total.Power, 1e-12)
}

func TestNonFiniteReadingCountsAsFailure(t *testing.T) {
	table := newTestTable(t)
	t0 := time.Now()

	require.NoError(t, table.Record(t0,
		Sample{Sensor: cpu, Reading: sensor.Reading{Voltage: math.NaN(), Current: 1, Power: math.NaN(), Timestamp: t0}},
		Sample{Sensor: gpu, Reading: sensor.Reading{Voltage: 5, Current: math.Inf(1), Power: math.Inf(1), Timestamp: t0}},
	))

	snap := table.Snapshot()
	assert.True(t, snap.Total.Power.Empty())
	for _, row := range snap.Sensors {
		assert.True(t, row.Power.Empty())
		assert.Equal(t, uint64(1), row.Failures)
	}
	latest := table.Latest()
	assert.False(t, latest.Sensors[0].Online)
	assert.Contains(t, latest.Sensors[0].Err, string(ErrNonFiniteReading))

	for i := 1; i <= 3; i++ {
		at := t0.Add(time.Duration(i) * time.Second)
		require.NoError(t, table.Record(at,
			Sample{Sensor: cpu, Reading: reading(5, 1, at)},
			Sample{Sensor: gpu, Reading: reading(5, 1, at)},
		))
	}

	snap = table.Snapshot()
	row, _ := snap.Sensor("CPU")
	assert.Equal(t, uint64(3), row.Power.Count)
	assert.Equal(t, 5.0, row.Power.Min)
	assert.Equal(t, 5.0, row.Power.Max)
	assert.InDelta(t, 5.0, row.Power.Avg, 1e-12)
	assert.Equal(t, uint64(3), snap.Total.Power.Count)
	assert.Equal(t, 10.0, snap.Total.Power.Min)
	assert.Equal(t, 10.0, snap.Total.Power.Max)
	assert.True(t, table.Latest().Sensors[0].Online)
}

func TestLatestStatus(t *testing.T) {
	table := newTestTable(t)

	latest := table.Latest()
	assert.Equal(t, StatusNoData, latest.TotalStatus)
	assert.Equal(t, StatusNoData, latest.Sensors[0].Status)
	assert.Equal(t, StatusNoData, latest.Sensors[1].Status)

	t0 := time.Now()
	require.NoError(t, table.Record(t0,
		Sample{Sensor: cpu, Reading: reading(5, 1, t0)},
		Sample{Sensor: gpu, Err: stderrors.New("i2c timeout")},
	))

	latest = table.Latest()
	assert.Equal(t, StatusNormal, latest.TotalStatus)
	assert.Equal(t, StatusNormal, latest.Sensors[0].Status)
	assert.Equal(t, StatusOffline, latest.Sensors[1].Status)
}

func TestEnergyUsesElapsedSincePreviousSuccess(t *testing.T) {
	table := newTestTable(t)
	t0 := time.Now()

	require.NoError(t, table.Record(t0, Sample{Sensor: cpu, Reading: reading(4, 1, t0)}))
	require.NoError(t, table.Record(t0.Add(time.Second), Sample{Sensor: cpu, Err: stderrors.New("gone")}))
	t2 := t0.Add(2 * time.Second)
	require.NoError(t, table.Record(t2, Sample{Sensor: cpu, Reading: reading(4, 1, t2)}))

	row, _ := table.Snapshot().Sensor("CPU")
	// 4 W integrated over the 2 s gap spanning the failed tick
	assert.InDelta(t, 8.0, row.Power.Total, 1e-9)
}

func TestAllFailedTickDoesNotFoldTotal(t *testing.T) {
	table := newTestTable(t)
	now := time.Now()

	require.NoError(t, table.Record(now,
		Sample{Sensor: cpu, Err: stderrors.New("x")},
		Sample{Sensor: gpu, Err: stderrors.New("y")},
	))

	snap := table.Snapshot()
	assert.Equal(t, uint64(1), snap.Ticks)
	assert.True(t, snap.Total.Power.Empty())
}

func TestRecordUnknownSensorRejectsWholeTick(t *testing.T) {
	table := newTestTable(t)
	now := time.Now()

	err := table.Record(now,
		Sample{Sensor: cpu, Reading: reading(5, 1, now)},
		Sample{Sensor: sensor.Identity{Index: 9, Name: "SOC"}, Reading: reading(1, 1, now)},
	)
	assert.Equal(t, ErrUnknownSensor, errors.CodeOf(err))

	snap := table.Snapshot()
	assert.Equal(t, uint64(0), snap.Ticks)
	assert.True(t, snap.Sensors[0].Power.Empty())
}

func TestResetClearsEverythingAndBaselines(t *testing.T) {
	table := newTestTable(t)
	t0 := time.Now()

	require.NoError(t, table.Record(t0, Sample{Sensor: cpu, Reading: reading(5, 1, t0)}))
	t1 := t0.Add(time.Second)
	require.NoError(t, table.Record(t1,
		Sample{Sensor: cpu, Reading: reading(5, 1, t1)},
		Sample{Sensor: gpu, Err: stderrors.New("x")},
	))

	table.Reset()
	snap := table.Snapshot()
	assert.Equal(t, uint64(0), snap.Ticks)
	assert.True(t, snap.Total.Power.Empty())
	for _, row := range snap.Sensors {
		assert.True(t, row.Power.Empty())
		assert.Equal(t, uint64(0), row.Failures)
	}

	// the first post-reset sample contributes no energy even an hour later
	t2 := t1.Add(time.Hour)
	require.NoError(t, table.Record(t2, Sample{Sensor: cpu, Reading: reading(5, 1, t2)}))
	snap = table.Snapshot()
	row, _ := snap.Sensor("CPU")
	assert.Zero(t, row.Power.Total)
	assert.Zero(t, snap.Total.Power.Total)
	assert.Equal(t, uint64(1), snap.Total.Power.Count)
}

func TestSnapshotDoesNotAlias(t *testing.T) {
	table := newTestTable(t)
	now := time.Now()
	require.NoError(t, table.Record(now, Sample{Sensor: cpu, Reading: reading(5, 1, now)}))

	snap := table.Snapshot()
	snap.Sensors[0].Power.Count = 999
	snap.Sensors[0].Sensor.Name = "mutated"

	again := table.Snapshot()
	assert.Equal(t, uint64(1), again.Sensors[0].Power.Count)
	assert.Equal(t, "CPU", again.Sensors[0].Sensor.Name)
}

func TestNominalVoltageOption(t *testing.T) {
	table := newTestTable(t, WithNominalVoltage(19))
	now := time.Now()
	require.NoError(t, table.Record(now, Sample{Sensor: cpu, Reading: reading(5, 1, now)}))

	assert.Equal(t, 19.0, table.Snapshot().Total.Voltage.Max)
	assert.Equal(t, 19.0, table.Latest().Total.Voltage)
}

func TestSnapshotMapShape(t *testing.T) {
	table := newTestTable(t)
	now := time.Now()
	require.NoError(t, table.Record(now, Sample{Sensor: cpu, Reading: reading(5, 1, now)}))

	m := table.Snapshot().Map()
	total := m["total"].(map[string]any)
	power := total["power"].(map[string]any)
	assert.Equal(t, uint64(1), power["count"])
	assert.Equal(t, 5.0, power["avg"])

	sensors := m["sensors"].([]map[string]any)
	require.Len(t, sensors, 2)
	assert.Equal(t, "CPU", sensors[0]["name"])
	assert.Nil(t, sensors[1]["power"].(map[string]any)["avg"])
}

func TestSnapshotJSON(t *testing.T) {
	table := newTestTable(t)
	now := time.Now()
	require.NoError(t, table.Record(now, Sample{Sensor: cpu, Reading: reading(5, 1, now)}))

	raw, err := json.Marshal(table.Snapshot())
	require.NoError(t, err)

	var decoded struct {
		Ticks uint64 `json:"ticks"`
		Total struct {
			Power struct {
				Avg   *float64 `json:"avg"`
				Count uint64   `json:"count"`
			} `json:"power"`
		} `json:"total"`
		Sensors []struct {
			Name  string `json:"name"`
			Power struct {
				Avg *float64 `json:"avg"`
			} `json:"power"`
		} `json:"sensors"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, uint64(1), decoded.Ticks)
	require.NotNil(t, decoded.Total.Power.Avg)
	assert.Equal(t, 5.0, *decoded.Total.Power.Avg)
	require.Len(t, decoded.Sensors, 2)
	assert.Equal(t, "GPU", decoded.Sensors[1].Name)
	assert.Nil(t, decoded.Sensors[1].Power.Avg)
}

func TestConcurrentRecordAndSnapshotAreConsistent(t *testing.T) {
	table := newTestTable(t)
	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			at := start.Add(time.Duration(i) * time.Millisecond)
			_ = table.Record(at,
				Sample{Sensor: cpu, Reading: reading(5, 1, at)},
				Sample{Sensor: gpu, Reading: reading(5, 2, at)},
			)
			if i%500 == 0 {
				table.Reset()
			}
		}
	}()

	for i := 0; i < 500; i++ {
		snap := table.Snapshot()
		// a tick is all-or-nothing: both sensors and Total agree
		assert.Equal(t, snap.Sensors[0].Power.Count, snap.Sensors[1].Power.Count)
		assert.Equal(t, snap.Sensors[0].Power.Count, snap.Total.Power.Count)
		assert.Equal(t, snap.Ticks, snap.Total.Power.Count)
	}
	wg.Wait()
}
