package sampler

import "codeberg.org/mutker/jetpwmon/internal/errors"

const (
	ErrInvalidFrequency = errors.ErrorCode("sampler_invalid_frequency")
	ErrNoSources        = errors.ErrorCode("sampler_no_sources")
	ErrNoTable          = errors.ErrorCode("sampler_no_table")
	ErrRegisterMetrics  = errors.ErrorCode("sampler_register_metrics")
)
