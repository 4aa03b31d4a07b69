package device

import (
	"fmt"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/pkg/hal"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrDeviceNotFound      = errors.NewStd("device not found")
	ErrPropertyQueryFailed = errors.NewStd("device property query failed")
	ErrNoVolumeControl     = errors.NewStd("device has no volume control")
	ErrHotplugUnsupported  = errors.NewStd("backend does not report device list changes")
	ErrUnknownTransport    = errors.NewStd("unknown transport type")
)

const componentDevice = "device"

func notFound(uid string, scope hal.Scope, cause error) error {
	err := fmt.Errorf("%w: uid %q", ErrDeviceNotFound, uid)
	if cause != nil {
		err = fmt.Errorf("%w: %w", err, cause)
	}
	return errors.New(err).
		Component(componentDevice).
		Category(errors.CategoryNotFound).
		DeviceContext(uid, scope.String()).
		Context("operation", "resolve").
		Build()
}

func propertyFailed(uid, property string, cause error) error {
	return errors.New(fmt.Errorf("%w: %s: %w", ErrPropertyQueryFailed, property, cause)).
		Component(componentDevice).
		Category(errors.CategoryProperty).
		DeviceContext(uid, "").
		Context("property", property).
		Build()
}
