package sensor

import (
	"codeberg.org/mutker/jetpwmon/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	// Read Errors
	ErrSensorUnavailable = errors.ErrorCode("sensor_unavailable")
	ErrInvalidReading    = errors.ErrorCode("sensor_invalid_reading")

	// Construction Errors
	ErrInvalidRail     = errors.ErrInvalidRail
	ErrUnknownKind     = errors.ErrorCode("sensor_unknown_kind")
	ErrNVMLInitFailed  = errors.ErrorCode("sensor_nvml_init_failed")
	ErrNVMLShutdown    = errors.ErrorCode("sensor_nvml_shutdown_failed")
	ErrDeviceNotFound  = errors.ErrorCode("sensor_device_not_found")
	ErrNVMLNotOpen     = errors.ErrorCode("sensor_nvml_not_initialized")
	ErrNoSensorsConfig = errors.ErrorCode("sensor_none_configured")
)

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// IsNVMLSuccess checks if a Return value indicates success
func IsNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}

// IsUnavailable reports whether err is a per-read failure that the sampler
// should absorb rather than propagate.
func IsUnavailable(err error) bool {
	return errors.HasCode(err, ErrSensorUnavailable) || errors.HasCode(err, ErrInvalidReading)
}
