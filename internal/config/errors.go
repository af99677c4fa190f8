package config

import "codeberg.org/mutker/jetpwmon/internal/errors"

const (
	ErrInvalidConfig    = errors.ErrInvalidConfig
	ErrBindFlags        = errors.ErrBindFlags
	ErrReadConfig       = errors.ErrReadConfig
	ErrInvalidFrequency = errors.ErrInvalidFrequency
	ErrInvalidDuration  = errors.ErrInvalidDuration
	ErrInvalidLogLevel  = errors.ErrInvalidLogLevel
	ErrInvalidRail      = errors.ErrInvalidRail
)
