package sensor

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/jetpwmon/internal/errors"
)

const (
	milli = 1e-3
	micro = 1e-6
)

// sysfsSource reads a voltage/current file pair and derives power.
type sysfsSource struct {
	id           Identity
	voltagePath  string
	currentPath  string
	voltageScale float64
	currentScale float64
}

// NewHwmonRail reads channel N of an INA3221 exposed through hwmon
// (JetPack 5 and later): in<N>_input in mV and curr<N>_input in mA.
func NewHwmonRail(id Identity, dir string, channel int) Source {
	id.Kind = KindHwmon
	return &sysfsSource{
		id:           id,
		voltagePath:  filepath.Join(dir, fmt.Sprintf("in%d_input", channel)),
		currentPath:  filepath.Join(dir, fmt.Sprintf("curr%d_input", channel)),
		voltageScale: milli,
		currentScale: milli,
	}
}

// NewIIORail reads channel N of an INA3221 exposed through the iio
// subsystem (JetPack 4 and earlier).
func NewIIORail(id Identity, dir string, channel int) Source {
	id.Kind = KindIIO
	return &sysfsSource{
		id:           id,
		voltagePath:  filepath.Join(dir, fmt.Sprintf("in_voltage%d_input", channel)),
		currentPath:  filepath.Join(dir, fmt.Sprintf("in_current%d_input", channel)),
		voltageScale: milli,
		currentScale: milli,
	}
}

// NewSupply reads a /sys/class/power_supply node (µV, µA).
func NewSupply(id Identity, dir string) Source {
	id.Kind = KindSupply
	return &sysfsSource{
		id:           id,
		voltagePath:  filepath.Join(dir, "voltage_now"),
		currentPath:  filepath.Join(dir, "current_now"),
		voltageScale: micro,
		currentScale: micro,
	}
}

func (s *sysfsSource) Identity() Identity {
	return s.id
}

func (s *sysfsSource) Read(_ context.Context) (Reading, error) {
	errFactory := errors.New()

	voltage, err := readScaled(s.voltagePath, s.voltageScale)
	if err != nil {
		return Reading{}, readError(err)
	}
	if voltage < 0 {
		return Reading{}, errFactory.WithData(ErrInvalidReading, struct {
			Sensor  string
			Voltage float64
		}{
			Sensor:  s.id.Name,
			Voltage: voltage,
		})
	}

	current, err := readScaled(s.currentPath, s.currentScale)
	if err != nil {
		return Reading{}, readError(err)
	}

	return Reading{
		Voltage:   voltage,
		Current:   current,
		Power:     voltage * current,
		Timestamp: time.Now(),
	}, nil
}

func readScaled(path string, scale float64) (float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	// ParseFloat accepts "nan" and "inf"
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New().WithData(ErrInvalidReading, path)
	}

	return v * scale, nil
}

func readError(err error) error {
	if errors.HasCode(err, ErrInvalidReading) {
		return err
	}
	return errors.New().Wrap(ErrSensorUnavailable, err)
}
