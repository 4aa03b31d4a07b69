package stream

import (
	"time"

	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// conversion is a converter bound to one stream together with the
// scratch sizing ratio.
type conversion struct {
	converter hal.Converter
	device    pcm.Format
	ratio     float64
}

// buildConverter negotiates the device format and creates a converter
// between it and app. When appIsSource the application format is converted
// to the device format, otherwise the reverse. The ratio is app over device
// in both directions: the hardware thread always sizes application-side
// scratch from a device-side buffer length.
func (c *Controller) buildConverter(uid string, app pcm.Format, dir Direction) (conversion, error) {
	appIsSource := dir == Output

	devFmt, err := c.negotiator.DeviceFormat(uid, appIsSource)
	if err != nil {
		return conversion{}, err
	}

	src, dst := devFmt, app
	if appIsSource {
		src, dst = app, devFmt
	}

	began := time.Now()
	conv, err := c.converters.NewConverter(src, dst)
	if err != nil {
		return conversion{}, streamError(ErrConverterCreationFailed, uid, dir, "new_converter", err)
	}
	c.recorder.RecordConverterBuild(dir.String(), time.Since(began))

	ratio, err := pcm.Ratio(app, devFmt)
	if err != nil {
		if derr := conv.Dispose(); derr != nil {
			c.log.Warn("converter dispose failed", logger.Error(derr))
		}
		return conversion{}, streamError(ErrConverterCreationFailed, uid, dir, "ratio", err)
	}

	c.log.Debug("converter ready",
		logger.String("device_uid", uid),
		logger.String("direction", dir.String()),
		logger.String("source", src.String()),
		logger.String("destination", dst.String()),
		logger.Float64("ratio", ratio))

	return conversion{converter: conv, device: devFmt, ratio: ratio}, nil
}
