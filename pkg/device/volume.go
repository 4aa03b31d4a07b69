package device

import (
	"fmt"
	"math"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/hal"
)

// InputVolume returns the capture volume in [0, 1].
func (d *Directory) InputVolume(uid string) (float32, error) {
	return d.volume(uid, hal.ScopeInput)
}

// OutputVolume returns the playback volume in [0, 1].
func (d *Directory) OutputVolume(uid string) (float32, error) {
	return d.volume(uid, hal.ScopeOutput)
}

// SetInputVolume sets the capture volume. Values are clamped to [0, 1].
func (d *Directory) SetInputVolume(uid string, v float32) error {
	return d.setVolume(uid, hal.ScopeInput, v)
}

// SetOutputVolume sets the playback volume. Values are clamped to [0, 1].
func (d *Directory) SetOutputVolume(uid string, v float32) error {
	return d.setVolume(uid, hal.ScopeOutput, v)
}

// volumeElements returns the master element when it carries a volume
// control, otherwise the preferred stereo channels that do.
func (d *Directory) volumeElements(id hal.DeviceID, uid string, scope hal.Scope) ([]uint32, error) {
	if d.reg.HasVolume(id, scope, hal.ElementMaster) {
		return []uint32{hal.ElementMaster}, nil
	}

	pair, err := d.reg.PreferredStereoChannels(id, scope)
	if err != nil {
		return nil, propertyFailed(uid, "preferred_stereo_channels", err)
	}
	var elements []uint32
	for _, el := range pair {
		if el != hal.ElementMaster && d.reg.HasVolume(id, scope, el) {
			elements = append(elements, el)
		}
	}
	if len(elements) == 0 {
		return nil, errors.New(fmt.Errorf("%w: %s scope", ErrNoVolumeControl, scope)).
			Component(componentDevice).
			Category(errors.CategoryProperty).
			DeviceContext(uid, scope.String()).
			Build()
	}
	return elements, nil
}

// volume averages the volume of every controlling element.
func (d *Directory) volume(uid string, scope hal.Scope) (float32, error) {
	id, err := d.Resolve(uid, scope)
	if err != nil {
		return -1, err
	}
	elements, err := d.volumeElements(id, uid, scope)
	if err != nil {
		return -1, err
	}

	var sum float32
	for _, el := range elements {
		v, err := d.reg.Volume(id, scope, el)
		if err != nil {
			return -1, propertyFailed(uid, "volume", err)
		}
		sum += v
	}
	return sum / float32(len(elements)), nil
}

func (d *Directory) setVolume(uid string, scope hal.Scope, v float32) error {
	if math.IsNaN(float64(v)) {
		return propertyFailed(uid, "volume", fmt.Errorf("level is NaN"))
	}
	id, err := d.Resolve(uid, scope)
	if err != nil {
		return err
	}
	elements, err := d.volumeElements(id, uid, scope)
	if err != nil {
		return err
	}

	v = min(max(v, 0), 1)
	for _, el := range elements {
		if err := d.reg.SetVolume(id, scope, el, v); err != nil {
			d.log.Warn("volume update failed",
				logger.String("device_uid", uid),
				logger.String("scope", scope.String()),
				logger.Int("element", int(el)),
				logger.Error(err))
			return propertyFailed(uid, "volume", err)
		}
	}
	return nil
}
