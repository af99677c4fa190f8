// Package sensor defines the power sensor capability polled by the sampler
// and the rail back ends that implement it.
package sensor

import (
	"context"
	"fmt"
	"time"
)

// Source yields one instantaneous reading per call. Implementations must be
// safe to call from the sampler goroutine while other goroutines call
// Identity.
type Source interface {
	Identity() Identity
	// Read fails with ErrSensorUnavailable when the underlying interface
	// cannot be read.
	Read(ctx context.Context) (Reading, error)
}

// Kind names the back end a rail is read from.
type Kind string

const (
	KindHwmon     Kind = "hwmon"
	KindIIO       Kind = "iio"
	KindSupply    Kind = "supply"
	KindNVML      Kind = "nvml"
	KindSimulated Kind = "simulated"
)

// Identity is fixed at enumeration time.
type Identity struct {
	Index int
	Name  string
	Kind  Kind
}

func (id Identity) String() string {
	return fmt.Sprintf("%d:%s", id.Index, id.Name)
}

// Reading is a single sample of a rail. Current may be negative on
// bidirectional rails.
type Reading struct {
	Voltage   float64 // V
	Current   float64 // A
	Power     float64 // W
	Timestamp time.Time
}

// Rail is an explicit rail definition as it appears in configuration.
type Rail struct {
	Name    string `mapstructure:"name"`
	Kind    Kind   `mapstructure:"kind"`
	Path    string `mapstructure:"path"`
	Channel int    `mapstructure:"channel"`
	Device  int    `mapstructure:"device"`
}
