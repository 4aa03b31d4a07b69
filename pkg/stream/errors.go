package stream

import (
	"fmt"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/pkg/device"
)

// Sentinel errors, matched with errors.Is. Setup failures are returned by
// Start; teardown failures are joined into the error returned by Stop;
// conversion failures only reach the log and metrics.
var (
	ErrDeviceNotFound             = device.ErrDeviceNotFound
	ErrPropertyQueryFailed        = device.ErrPropertyQueryFailed
	ErrAllocationFailed           = errors.NewStd("stream allocation failed")
	ErrResourceInitFailed         = errors.NewStd("stream resource initialization failed")
	ErrInvalidFormat              = errors.NewStd("invalid application format")
	ErrConverterCreationFailed    = errors.NewStd("converter creation failed")
	ErrCallbackRegistrationFailed = errors.NewStd("io callback registration failed")
	ErrHardwareStartFailed        = errors.NewStd("hardware start failed")
	ErrHardwareStopFailed         = errors.NewStd("hardware stop failed")
	ErrConversionFailed           = errors.NewStd("conversion failed")
)

const componentStream = "stream"

// Start stages, used as error context and metric labels.
const (
	stageResolve   = "resolve"
	stageAllocate  = "allocate"
	stageConverter = "converter"
	stageRegister  = "register"
	stageHardware  = "hardware_start"
)

func categoryFor(sentinel error) errors.ErrorCategory {
	switch sentinel {
	case ErrDeviceNotFound:
		return errors.CategoryNotFound
	case ErrInvalidFormat:
		return errors.CategoryValidation
	case ErrConverterCreationFailed:
		return errors.CategoryConverter
	case ErrHardwareStartFailed, ErrHardwareStopFailed:
		return errors.CategoryHardware
	case ErrAllocationFailed:
		return errors.CategoryResource
	case ErrConversionFailed:
		return errors.CategoryRealtime
	default:
		return errors.CategoryStream
	}
}

func streamError(sentinel error, uid string, dir Direction, operation string, cause error) error {
	err := sentinel
	if cause != nil {
		err = fmt.Errorf("%w: %w", sentinel, cause)
	}
	return errors.New(err).
		Component(componentStream).
		Category(categoryFor(sentinel)).
		DeviceContext(uid, dir.String()).
		Context("operation", operation).
		Build()
}
