package malgo

import (
	"fmt"
	"slices"

	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/pcm"
)

type operation string

const (
	opDeviceForUID         operation = "device_for_uid"
	opDevices              operation = "devices"
	opDefaultDevice        operation = "default_device"
	opStringProperty       operation = "string_property"
	opStreamConfiguration  operation = "stream_configuration"
	opStreams              operation = "streams"
	opStreamVirtualFormat  operation = "stream_virtual_format"
	opDeviceStreamFormat   operation = "device_stream_format"
	opNominalSampleRate    operation = "nominal_sample_rate"
	opAvailableSampleRates operation = "available_sample_rates"
	opTransportType        operation = "transport_type"
	opPreferredStereo      operation = "preferred_stereo_channels"
	opVolume               operation = "volume"
	opSetVolume            operation = "set_volume"
	opCreateIOProc         operation = "create_io_proc"
	opDestroyIOProc        operation = "destroy_io_proc"
	opStart                operation = "start"
	opStop                 operation = "stop"
)

func streamID(id hal.DeviceID, scope hal.Scope) hal.StreamID {
	if scope == hal.ScopeOutput {
		return hal.StreamID(id)<<1 | 1
	}
	return hal.StreamID(id) << 1
}

func splitStreamID(stream hal.StreamID) (hal.DeviceID, hal.Scope) {
	if stream&1 == 1 {
		return hal.DeviceID(stream >> 1), hal.ScopeOutput
	}
	return hal.DeviceID(stream >> 1), hal.ScopeInput
}

// DeviceForUID re-enumerates devices and returns the handle for uid.
func (b *Backend) DeviceForUID(uid string) (hal.DeviceID, error) {
	if _, err := b.refresh(); err != nil {
		return hal.UnknownDevice, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.byUID[uid]
	if !ok || !e.present {
		return hal.UnknownDevice, statusError(string(opDeviceForUID), hal.StatusBadDevice, fmt.Errorf("uid %q", uid))
	}
	return e.id, nil
}

func (b *Backend) Devices() ([]hal.DeviceID, error) {
	if _, err := b.refresh(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]hal.DeviceID, 0, len(b.byID))
	for id, e := range b.byID {
		if e.present {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// DefaultDevice returns the device miniaudio flags as default for scope,
// falling back to the first device that has the scope.
func (b *Backend) DefaultDevice(scope hal.Scope) (hal.DeviceID, error) {
	if scope != hal.ScopeInput && scope != hal.ScopeOutput {
		return hal.UnknownDevice, statusError(string(opDefaultDevice), hal.StatusIllegalOperation, fmt.Errorf("scope %s", scope))
	}
	if _, err := b.refresh(); err != nil {
		return hal.UnknownDevice, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	fallback := hal.UnknownDevice
	for _, uid := range b.presentUIDs() {
		e := b.byUID[uid]
		s := e.side(scope)
		if s == nil {
			continue
		}
		if s.isDefault {
			return e.id, nil
		}
		if fallback == hal.UnknownDevice || e.id < fallback {
			fallback = e.id
		}
	}
	if fallback == hal.UnknownDevice {
		return hal.UnknownDevice, statusError(string(opDefaultDevice), hal.StatusBadDevice, fmt.Errorf("no %s device", scope))
	}
	return fallback, nil
}

// StringProperty answers name and UID queries. miniaudio has no model UID.
func (b *Backend) StringProperty(id hal.DeviceID, selector hal.Selector) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(opStringProperty, id)
	if err != nil {
		return "", err
	}
	switch selector {
	case hal.PropertyName:
		return e.name, nil
	case hal.PropertyUID:
		return e.uid, nil
	default:
		return "", statusError(string(opStringProperty), hal.StatusUnknownProperty, fmt.Errorf("selector %s", selector))
	}
}

// StreamConfiguration reports one interleaved buffer per scope.
func (b *Backend) StreamConfiguration(id hal.DeviceID, scope hal.Scope) ([]uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(opStreamConfiguration, id)
	if err != nil {
		return nil, err
	}
	s := e.side(scope)
	if s == nil {
		return nil, nil
	}
	return []uint32{s.native.channels}, nil
}

func (b *Backend) Streams(id hal.DeviceID, scope hal.Scope) ([]hal.StreamID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(opStreams, id)
	if err != nil {
		return nil, err
	}
	if e.side(scope) == nil {
		return nil, nil
	}
	return []hal.StreamID{streamID(id, scope)}, nil
}

func (b *Backend) StreamVirtualFormat(stream hal.StreamID) (pcm.Format, error) {
	id, scope := splitStreamID(stream)
	return b.format(opStreamVirtualFormat, id, scope)
}

func (b *Backend) DeviceStreamFormat(id hal.DeviceID, scope hal.Scope) (pcm.Format, error) {
	return b.format(opDeviceStreamFormat, id, scope)
}

// format returns the layout the device delivers once opened by Start.
func (b *Backend) format(op operation, id hal.DeviceID, scope hal.Scope) (pcm.Format, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(op, id)
	if err != nil {
		return pcm.Format{}, err
	}
	s := e.side(scope)
	if s == nil {
		return pcm.Format{}, statusError(string(op), hal.StatusBadStream, fmt.Errorf("no %s stream", scope))
	}
	return s.native.pcmFormat(), nil
}

func (b *Backend) NominalSampleRate(id hal.DeviceID) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(opNominalSampleRate, id)
	if err != nil {
		return 0, err
	}
	return float64(e.side(hal.ScopeGlobal).native.rate), nil
}

func (b *Backend) AvailableSampleRates(id hal.DeviceID) ([]hal.SampleRateRange, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(opAvailableSampleRates, id)
	if err != nil {
		return nil, err
	}
	var ranges []hal.SampleRateRange
	for _, s := range []*side{e.capture, e.playback} {
		if s != nil {
			ranges = append(ranges, s.rates...)
		}
	}
	return mergeRanges(ranges), nil
}

func (b *Backend) TransportType(id hal.DeviceID) (hal.TransportType, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(opTransportType, id)
	if err != nil {
		return hal.TransportUnknown, err
	}
	return hal.TransportFromName(e.name), nil
}

// HasVolume is always false: miniaudio exposes only a software master
// volume on an opened device, not a hardware control.
func (b *Backend) HasVolume(hal.DeviceID, hal.Scope, uint32) bool { return false }

func (b *Backend) PreferredStereoChannels(id hal.DeviceID, scope hal.Scope) ([2]uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, err := b.lookupLocked(opPreferredStereo, id)
	if err != nil {
		return [2]uint32{}, err
	}
	if s := e.side(scope); s == nil || s.native.channels < 2 {
		return [2]uint32{}, statusError(string(opPreferredStereo), hal.StatusUnknownProperty, fmt.Errorf("no stereo %s channels", scope))
	}
	return [2]uint32{1, 2}, nil
}

func (b *Backend) Volume(hal.DeviceID, hal.Scope, uint32) (float32, error) {
	return 0, statusError(string(opVolume), hal.StatusUnknownProperty, nil)
}

func (b *Backend) SetVolume(hal.DeviceID, hal.Scope, uint32, float32) error {
	return statusError(string(opSetVolume), hal.StatusUnknownProperty, nil)
}
