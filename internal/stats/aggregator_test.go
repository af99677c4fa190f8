package stats

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAggregatorTracksMinMaxAvg(t *testing.T) {
	var a Aggregator
	values := []float64{4.2, -1.5, 9.75, 3.0, 3.0, 0}

	for _, v := range values {
		a.Update(v, 10*time.Millisecond)
	}

	v := a.View()
	assert.Equal(t, uint64(len(values)), v.Count)
	assert.Equal(t, -1.5, v.Min)
	assert.Equal(t, 9.75, v.Max)
	assert.InDelta(t, 18.45, v.Sum, 1e-12)
	assert.InDelta(t, 18.45/6, v.Avg, 1e-12)
	assert.False(t, v.Empty())
}

func TestAggregatorRandomStreams(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for run := 0; run < 20; run++ {
		var a Aggregator
		n := 1 + rnd.Intn(500)
		minV, maxV, sum := math.Inf(1), math.Inf(-1), 0.0

		for i := 0; i < n; i++ {
			v := rnd.NormFloat64() * 10
			a.Update(v, time.Millisecond)
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
			sum += v
		}

		view := a.View()
		assert.Equal(t, uint64(n), view.Count)
		assert.Equal(t, minV, view.Min)
		assert.Equal(t, maxV, view.Max)
		assert.InDelta(t, sum/float64(n), view.Avg, 1e-9)
		assert.LessOrEqual(t, view.Min, view.Avg)
		assert.GreaterOrEqual(t, view.Max, view.Avg)
	}
}

func TestAggregatorFirstSampleHasNoEnergy(t *testing.T) {
	var a Aggregator
	a.Update(100, time.Hour)

	v := a.View()
	assert.Equal(t, uint64(1), v.Count)
	assert.Equal(t, 100.0, v.Min)
	assert.Equal(t, 100.0, v.Max)
	assert.Zero(t, v.Total)
}

func TestAggregatorEnergyIsIntegralNotCount(t *testing.T) {
	const power = 7.5
	elapsed := 2500 * time.Millisecond

	var a Aggregator
	a.Update(power, 0)
	a.Update(power, elapsed)

	v := a.View()
	assert.InDelta(t, power*elapsed.Seconds(), v.Total, 1e-12)
	assert.NotEqual(t, power*2, v.Total)
}

func TestAggregatorIgnoresNonPositiveElapsed(t *testing.T) {
	var a Aggregator
	a.Update(1, 0)
	a.Update(1, 0)
	a.Update(1, -time.Second)

	assert.Zero(t, a.View().Total)
	assert.Equal(t, uint64(3), a.View().Count)
}

func TestAggregatorResetMeansNoData(t *testing.T) {
	var a Aggregator
	a.Update(3, 0)
	a.Update(5, time.Second)
	a.Reset()

	v := a.View()
	assert.True(t, v.Empty())
	assert.Equal(t, uint64(0), v.Count)
	assert.Zero(t, v.Total)

	// a real zero average is distinguishable from no data
	a.Update(0, 0)
	zero := a.View()
	assert.False(t, zero.Empty())
	assert.Zero(t, zero.Avg)

	// and the first post-reset sample does not integrate
	a.Reset()
	a.Update(9, time.Minute)
	assert.Zero(t, a.View().Total)
	assert.Equal(t, 9.0, a.View().Min)
}

func TestAggregatorCompensatedSum(t *testing.T) {
	var a Aggregator
	a.Update(1e16, 0)
	for i := 0; i < 1000; i++ {
		a.Update(1, 0)
	}
	a.Update(-1e16, 0)

	// naive float64 accumulation loses every +1 against 1e16
	assert.InDelta(t, 1000.0, a.View().Sum, 1e-9)
}

func TestViewMapAndJSONForEmpty(t *testing.T) {
	var a Aggregator

	m := a.View().Map()
	assert.Nil(t, m["min"])
	assert.Nil(t, m["max"])
	assert.Nil(t, m["avg"])
	assert.Equal(t, uint64(0), m["count"])

	raw, err := a.View().MarshalJSON()
	assert.NoError(t, err)
	assert.JSONEq(t, `{"min":null,"max":null,"avg":null,"sum":0,"total":0,"count":0}`, string(raw))

	a.Update(2, 0)
	a.Update(4, time.Second)
	raw, err = a.View().MarshalJSON()
	assert.NoError(t, err)
	assert.JSONEq(t, `{"min":2,"max":4,"avg":3,"sum":6,"total":4,"count":2}`, string(raw))
}
