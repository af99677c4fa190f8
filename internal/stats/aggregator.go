// Package stats holds the running aggregates for every sensor and the table
// that serializes access to them.
package stats

import (
	"math"
	"time"
)

// compensated is a Neumaier sum; it keeps long-running accumulations exact
// to within a few ulps regardless of how many terms are added.
type compensated struct {
	sum float64
	c   float64
}

func (k *compensated) add(v float64) {
	t := k.sum + v
	if math.Abs(k.sum) >= math.Abs(v) {
		k.c += (k.sum - t) + v
	} else {
		k.c += (v - t) + k.sum
	}
	k.sum = t
}

func (k *compensated) value() float64 {
	return k.sum + k.c
}

// Aggregator accumulates one metric stream without retaining samples.
// It is not safe for concurrent use; Table serializes access.
type Aggregator struct {
	count  uint64
	min    float64
	max    float64
	sum    compensated
	energy compensated
}

// Update folds value into the aggregate. elapsed is the time since the
// previous sample of this stream; the value is integrated over it unless
// this is the first sample since construction or Reset.
func (a *Aggregator) Update(value float64, elapsed time.Duration) {
	if a.count == 0 {
		a.min = value
		a.max = value
	} else {
		if value < a.min {
			a.min = value
		}
		if value > a.max {
			a.max = value
		}
		if elapsed > 0 {
			a.energy.add(value * elapsed.Seconds())
		}
	}

	a.sum.add(value)
	a.count++
}

// Reset returns the aggregate to its zero state.
func (a *Aggregator) Reset() {
	*a = Aggregator{}
}

// View returns a copy of the aggregate. Min, Max and Avg are zero when
// Count is zero; use Empty to tell "no data" from a zero average.
func (a *Aggregator) View() View {
	if a.count == 0 {
		return View{}
	}

	sum := a.sum.value()
	return View{
		Count: a.count,
		Min:   a.min,
		Max:   a.max,
		Avg:   sum / float64(a.count),
		Sum:   sum,
		Total: a.energy.value(),
	}
}

// View is an immutable copy of an Aggregator.
type View struct {
	Count uint64
	Min   float64
	Max   float64
	Avg   float64
	Sum   float64
	// Total is the time integral of the stream in unit-seconds: joules for
	// power, coulombs for current.
	Total float64
}

// Empty reports whether no sample has been observed.
func (v View) Empty() bool {
	return v.Count == 0
}
