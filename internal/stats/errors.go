package stats

import "codeberg.org/mutker/jetpwmon/internal/errors"

const (
	ErrUnknownSensor     = errors.ErrorCode("stats_unknown_sensor")
	ErrDuplicateSensor   = errors.ErrorCode("stats_duplicate_sensor")
	ErrInvalidNominalVdd = errors.ErrorCode("stats_invalid_nominal_voltage")
	ErrNonFiniteReading  = errors.ErrorCode("stats_non_finite_reading")
)
