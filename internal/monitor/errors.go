package monitor

import "codeberg.org/mutker/jetpwmon/internal/errors"

const (
	ErrNoSensors        = errors.ErrorCode("monitor_no_sensors")
	ErrDuplicateSensor  = errors.ErrorCode("monitor_duplicate_sensor")
	ErrInvalidFrequency = errors.ErrorCode("monitor_invalid_frequency")
	ErrClosed           = errors.ErrorCode("monitor_closed")
)
