// Package device resolves device UIDs against the HAL registry and answers
// property queries for them.
//
// Nothing is cached: a DeviceID is only valid while the hardware is present,
// so every call resolves the UID again and re-reads live hardware state.
package device

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/hal"
)

// Directory answers device queries against a HAL registry.
type Directory struct {
	reg      hal.Registry
	log      logger.Logger
	debounce time.Duration
}

// Option configures a Directory.
type Option func(*Directory)

// WithDebounce sets how long Watch waits for device-list notifications to
// settle before diffing the device list.
func WithDebounce(d time.Duration) Option {
	return func(dir *Directory) { dir.debounce = max(d, 0) }
}

// DefaultDebounce is the Watch settle window.
const DefaultDebounce = 250 * time.Millisecond

// NewDirectory returns a Directory over reg. A nil log discards output.
func NewDirectory(reg hal.Registry, log logger.Logger, opts ...Option) *Directory {
	d := &Directory{
		reg:      reg,
		log:      logger.OrNop(log).Module("device"),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the underlying HAL registry.
func (d *Directory) Registry() hal.Registry { return d.reg }

// Resolve translates uid to a present device. scope only qualifies the error.
func (d *Directory) Resolve(uid string, scope hal.Scope) (hal.DeviceID, error) {
	if uid == "" || !utf8.ValidString(uid) {
		return hal.UnknownDevice, notFound(uid, scope, fmt.Errorf("uid cannot be encoded"))
	}
	id, err := d.reg.DeviceForUID(uid)
	if err != nil {
		d.log.Debug("device lookup failed",
			logger.String("device_uid", uid),
			logger.String("scope", scope.String()),
			logger.Error(err))
		return hal.UnknownDevice, notFound(uid, scope, err)
	}
	if id == hal.UnknownDevice {
		return hal.UnknownDevice, notFound(uid, scope, nil)
	}
	return id, nil
}

// StringProperty returns a copy of a string property of a resolved device.
func (d *Directory) StringProperty(id hal.DeviceID, selector hal.Selector) (string, error) {
	v, err := d.reg.StringProperty(id, selector)
	if err != nil {
		return "", propertyFailed("", selector.String(), err)
	}
	if !utf8.ValidString(v) {
		return "", propertyFailed("", selector.String(), fmt.Errorf("value is not valid UTF-8"))
	}
	return strings.Clone(v), nil
}

func (d *Directory) stringByUID(uid string, selector hal.Selector) (string, error) {
	id, err := d.Resolve(uid, hal.ScopeGlobal)
	if err != nil {
		return "", err
	}
	v, err := d.StringProperty(id, selector)
	if err != nil {
		d.log.Debug("string property query failed",
			logger.String("device_uid", uid),
			logger.String("property", selector.String()),
			logger.Error(err))
		return "", err
	}
	return v, nil
}

// Name returns the human-readable device name.
func (d *Directory) Name(uid string) (string, error) {
	return d.stringByUID(uid, hal.PropertyName)
}

// ModelUID returns the model identifier shared by devices of the same model.
func (d *Directory) ModelUID(uid string) (string, error) {
	return d.stringByUID(uid, hal.PropertyModelUID)
}

// CountChannels sums the channels of every buffer the device delivers in
// scope. It returns -1 when the device or its configuration cannot be read.
func (d *Directory) CountChannels(uid string, scope hal.Scope) int {
	id, err := d.Resolve(uid, scope)
	if err != nil {
		return -1
	}
	buffers, err := d.reg.StreamConfiguration(id, scope)
	if err != nil {
		d.log.Debug("stream configuration query failed",
			logger.String("device_uid", uid),
			logger.String("scope", scope.String()),
			logger.Error(err))
		return -1
	}
	total := 0
	for _, ch := range buffers {
		total += int(ch)
	}
	return total
}

// IsInput reports whether the device can capture.
func (d *Directory) IsInput(uid string) bool { return d.CountChannels(uid, hal.ScopeInput) > 0 }

// IsOutput reports whether the device can play.
func (d *Directory) IsOutput(uid string) bool { return d.CountChannels(uid, hal.ScopeOutput) > 0 }

// NominalSampleRate returns the rate the device hardware currently runs at.
func (d *Directory) NominalSampleRate(uid string) (float64, error) {
	id, err := d.Resolve(uid, hal.ScopeGlobal)
	if err != nil {
		return 0, err
	}
	rate, err := d.reg.NominalSampleRate(id)
	if err != nil {
		return 0, propertyFailed(uid, "nominal_sample_rate", err)
	}
	return rate, nil
}

// AvailableSampleRates returns the lowest and highest nominal rates the
// device supports over all of its reported ranges.
func (d *Directory) AvailableSampleRates(uid string) (minRate, maxRate float64, err error) {
	id, err := d.Resolve(uid, hal.ScopeGlobal)
	if err != nil {
		return 0, 0, err
	}
	ranges, err := d.reg.AvailableSampleRates(id)
	if err != nil {
		return 0, 0, propertyFailed(uid, "available_sample_rates", err)
	}
	if len(ranges) == 0 {
		return 0, 0, propertyFailed(uid, "available_sample_rates", fmt.Errorf("no ranges reported"))
	}
	minRate, maxRate = math.Inf(1), math.Inf(-1)
	for _, r := range ranges {
		minRate = min(minRate, r.Minimum)
		maxRate = max(maxRate, r.Maximum)
	}
	return minRate, maxRate, nil
}

// UIDs lists the UIDs of every present device. Devices whose UID cannot be
// read are skipped.
func (d *Directory) UIDs() ([]string, error) {
	ids, err := d.reg.Devices()
	if err != nil {
		return nil, propertyFailed("", "devices", err)
	}
	uids := make([]string, 0, len(ids))
	for _, id := range ids {
		uid, err := d.StringProperty(id, hal.PropertyUID)
		if err != nil {
			d.log.Debug("skipping device without readable uid",
				logger.Int64("device_id", int64(id)),
				logger.Error(err))
			continue
		}
		uids = append(uids, uid)
	}
	return uids, nil
}

func (d *Directory) defaultUID(scope hal.Scope) (string, error) {
	id, err := d.reg.DefaultDevice(scope)
	if err != nil {
		return "", propertyFailed("", "default_"+scope.String()+"_device", err)
	}
	return d.StringProperty(id, hal.PropertyUID)
}

// DefaultInputUID returns the UID of the system default input device.
func (d *Directory) DefaultInputUID() (string, error) { return d.defaultUID(hal.ScopeInput) }

// DefaultOutputUID returns the UID of the system default output device.
func (d *Directory) DefaultOutputUID() (string, error) { return d.defaultUID(hal.ScopeOutput) }

// TransportType returns the display label of the device's connection type.
func (d *Directory) TransportType(uid string) (string, error) {
	id, err := d.Resolve(uid, hal.ScopeGlobal)
	if err != nil {
		return "", err
	}
	t, err := d.reg.TransportType(id)
	if err != nil {
		return "", propertyFailed(uid, "transport_type", err)
	}
	label, ok := t.Label()
	if !ok {
		return "", propertyFailed(uid, "transport_type", fmt.Errorf("%w: %d", ErrUnknownTransport, t))
	}
	return label, nil
}
