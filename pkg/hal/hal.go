// Package hal defines the host audio hardware abstraction consumed by the
// device directory and stream controller.
//
// A backend implements Registry for device and property queries, IOService
// for IO callback registration and hardware start/stop, and may implement
// ConverterService when the host provides sample-format conversion. Every
// call returns a *StatusError on failure.
package hal

import (
	"context"

	"github.com/tphakala/audiohal/pkg/pcm"
)

// DeviceID is an opaque handle to a present device. It is only valid while
// the hardware is attached and must be re-resolved from a UID before use.
type DeviceID uint32

// UnknownDevice marks a failed resolution.
const UnknownDevice DeviceID = 0

// StreamID identifies one hardware stream of a device.
type StreamID uint32

// IOProcID identifies a registered IO callback.
type IOProcID uint64

// Scope selects the direction a property query applies to.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeInput
	ScopeOutput
)

func (s Scope) String() string {
	switch s {
	case ScopeInput:
		return "input"
	case ScopeOutput:
		return "output"
	default:
		return "global"
	}
}

// Selector names a string-valued device property.
type Selector int

const (
	PropertyName Selector = iota
	PropertyModelUID
	PropertyUID
)

func (s Selector) String() string {
	switch s {
	case PropertyName:
		return "name"
	case PropertyModelUID:
		return "model_uid"
	case PropertyUID:
		return "uid"
	default:
		return "unknown"
	}
}

// ElementMaster is the master element of a scope; channel elements start at 1.
const ElementMaster uint32 = 0

// Buffer is one hardware buffer of a cycle. For output buffers the handler
// reports the bytes produced by reslicing Data; a zero-length Data means
// nothing was produced this cycle.
type Buffer struct {
	NumberChannels uint32
	Data           []byte
}

// BufferList is the set of buffers delivered in one IO cycle.
type BufferList struct {
	Buffers []Buffer
}

// IOProc is invoked by the backend on its real-time thread once per hardware
// cycle. input carries captured data, output must be filled. Either may be
// nil for a unidirectional registration. Implementations must not block.
type IOProc func(input, output *BufferList)

// SampleRateRange is an inclusive range of supported nominal sample rates.
type SampleRateRange struct {
	Minimum float64
	Maximum float64
}

// Registry answers device and property queries against live hardware state.
type Registry interface {
	// DeviceForUID translates a UID to a present device.
	DeviceForUID(uid string) (DeviceID, error)
	// Devices lists present devices.
	Devices() ([]DeviceID, error)
	// DefaultDevice returns the system default device for ScopeInput or ScopeOutput.
	DefaultDevice(scope Scope) (DeviceID, error)

	StringProperty(id DeviceID, selector Selector) (string, error)
	// StreamConfiguration returns the channel count of every buffer the
	// device delivers in scope.
	StreamConfiguration(id DeviceID, scope Scope) ([]uint32, error)
	Streams(id DeviceID, scope Scope) ([]StreamID, error)
	StreamVirtualFormat(stream StreamID) (pcm.Format, error)
	// DeviceStreamFormat is the legacy whole-device format query.
	DeviceStreamFormat(id DeviceID, scope Scope) (pcm.Format, error)
	NominalSampleRate(id DeviceID) (float64, error)
	AvailableSampleRates(id DeviceID) ([]SampleRateRange, error)
	TransportType(id DeviceID) (TransportType, error)

	// HasVolume reports whether element carries a volume control in scope.
	HasVolume(id DeviceID, scope Scope, element uint32) bool
	// PreferredStereoChannels returns the channel elements used for stereo.
	PreferredStereoChannels(id DeviceID, scope Scope) ([2]uint32, error)
	Volume(id DeviceID, scope Scope, element uint32) (float32, error)
	SetVolume(id DeviceID, scope Scope, element uint32, volume float32) error
}

// DeviceListNotifier is implemented by registries that can signal device
// arrival and removal. fn is called without any arguments from a backend
// goroutine; consumers re-query the device list.
type DeviceListNotifier interface {
	AddDeviceListListener(ctx context.Context, fn func()) error
}

// IOService registers IO callbacks and drives hardware IO.
type IOService interface {
	CreateIOProc(id DeviceID, proc IOProc) (IOProcID, error)
	DestroyIOProc(id DeviceID, proc IOProcID) error
	Start(id DeviceID, proc IOProcID) error
	Stop(id DeviceID, proc IOProcID) error
}

// ScopedIOService is implemented by IO services that open hardware per
// direction. CreateScopedIOProc registers proc for scope only; the controller
// prefers it over CreateIOProc when available.
type ScopedIOService interface {
	IOService
	CreateScopedIOProc(id DeviceID, scope Scope, proc IOProc) (IOProcID, error)
}

// Converter transforms bytes from its source format to its destination format.
// It is not safe for concurrent use.
type Converter interface {
	// Convert converts every byte of in and writes at most len(out) bytes,
	// returning the count written.
	Convert(in, out []byte) (int, error)
	Dispose() error
}

// BufferConverter is implemented by converters that keep state per device
// buffer, such as a resampler fed one plane at a time. index is the position
// of the buffer in its BufferList; Convert is ConvertBuffer with index 0.
type BufferConverter interface {
	Converter
	ConvertBuffer(index int, in, out []byte) (int, error)
}

// ConverterService creates converters for an ordered format pair.
type ConverterService interface {
	NewConverter(src, dst pcm.Format) (Converter, error)
}

// HAL bundles the services a stream controller needs.
type HAL struct {
	Registry   Registry
	IO         IOService
	Converters ConverterService
}
