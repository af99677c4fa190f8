package sensor

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Profile sets the nominal operating point of a simulated rail.
type Profile struct {
	Voltage float64
	Current float64
	Noise   float64
}

var (
	// I2CProfile mimics an INA3221 channel.
	I2CProfile = Profile{Voltage: 3.3, Current: 0.5, Noise: 0.05}
	// SystemProfile mimics a power_supply node.
	SystemProfile = Profile{Voltage: 5.0, Current: 1.0, Noise: 0.1}
)

type simulatedSource struct {
	id      Identity
	profile Profile

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSimulated returns a rail producing uniform noise of ±Noise/2 around the
// profile's operating point. The same seed yields the same sequence.
func NewSimulated(id Identity, profile Profile, seed int64) Source {
	id.Kind = KindSimulated
	return &simulatedSource{
		id:      id,
		profile: profile,
		rnd:     rand.New(rand.NewSource(seed)),
	}
}

func (s *simulatedSource) Identity() Identity {
	return s.id
}

func (s *simulatedSource) Read(_ context.Context) (Reading, error) {
	s.mu.Lock()
	voltage := s.profile.Voltage + (s.rnd.Float64()-0.5)*s.profile.Noise
	current := s.profile.Current + (s.rnd.Float64()-0.5)*s.profile.Noise
	s.mu.Unlock()

	return Reading{
		Voltage:   voltage,
		Current:   current,
		Power:     voltage * current,
		Timestamp: time.Now(),
	}, nil
}
