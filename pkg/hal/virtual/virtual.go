// Package virtual provides an in-memory HAL with programmable devices.
//
// Devices are plugged and unplugged at runtime, every HAL call can be made to
// fail, and IO callbacks are either invoked by hand with Invoke or driven by a
// ticker when the device has a Period. The package backs the stream tests and
// the --backend virtual mode of the CLI.
package virtual

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// Op names a HAL call for failure injection and call counting.
type Op string

const (
	OpDeviceForUID         Op = "device_for_uid"
	OpDevices              Op = "devices"
	OpDefaultDevice        Op = "default_device"
	OpStringProperty       Op = "string_property"
	OpStreamConfiguration  Op = "stream_configuration"
	OpStreams              Op = "streams"
	OpStreamVirtualFormat  Op = "stream_virtual_format"
	OpDeviceStreamFormat   Op = "device_stream_format"
	OpNominalSampleRate    Op = "nominal_sample_rate"
	OpAvailableSampleRates Op = "available_sample_rates"
	OpTransportType        Op = "transport_type"
	OpPreferredStereo      Op = "preferred_stereo_channels"
	OpVolume               Op = "volume"
	OpSetVolume            Op = "set_volume"
	OpCreateIOProc         Op = "create_io_proc"
	OpDestroyIOProc        Op = "destroy_io_proc"
	OpStart                Op = "start"
	OpStop                 Op = "stop"
)

// DeviceSpec describes a virtual device. Nil formats make the matching
// format query fail, which exercises the negotiation fallback.
type DeviceSpec struct {
	UID       string
	Name      string
	ModelUID  string
	Transport hal.TransportType

	// Channel count of every buffer delivered per direction.
	InputChannels  []uint32
	OutputChannels []uint32

	InputFormat        *pcm.Format
	OutputFormat       *pcm.Format
	LegacyInputFormat  *pcm.Format
	LegacyOutputFormat *pcm.Format

	NominalRate float64
	RateRanges  []hal.SampleRateRange

	// Volume elements per scope; element 0 is the master.
	InputVolume     map[uint32]float32
	OutputVolume    map[uint32]float32
	PreferredStereo [2]uint32

	// Period enables the hardware clock: a started IO proc is then invoked
	// every Period with FramesPerCycle frames per buffer.
	Period         time.Duration
	FramesPerCycle int
	// InputSource fills captured buffers on clocked cycles; nil captures silence.
	InputSource func(buf []byte)
	// OutputSink receives every output buffer list after a clocked cycle.
	OutputSink func(out *hal.BufferList)
}

type device struct {
	id   hal.DeviceID
	spec DeviceSpec
	// volume elements copied from the spec so SetVolume does not mutate caller maps
	volume map[hal.Scope]map[uint32]float32
}

type ioProc struct {
	id        hal.IOProcID
	device    hal.DeviceID
	proc      hal.IOProc
	destroyed bool
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

type listener struct {
	id uint64
	fn func()
}

// HAL is a programmable in-memory implementation of hal.Registry,
// hal.IOService and hal.DeviceListNotifier. It is safe for concurrent use.
type HAL struct {
	mu        sync.Mutex
	nextDev   hal.DeviceID
	nextProc  hal.IOProcID
	nextLis   uint64
	devices   map[hal.DeviceID]*device
	procs     map[hal.IOProcID]*ioProc
	failures  map[Op]error
	calls     map[Op]int
	listeners []listener
	defaults  map[hal.Scope]string
}

var (
	_ hal.Registry           = (*HAL)(nil)
	_ hal.IOService          = (*HAL)(nil)
	_ hal.DeviceListNotifier = (*HAL)(nil)
)

// New returns a HAL with the given devices plugged in.
func New(specs ...DeviceSpec) *HAL {
	h := &HAL{
		devices:  make(map[hal.DeviceID]*device),
		procs:    make(map[hal.IOProcID]*ioProc),
		failures: make(map[Op]error),
		calls:    make(map[Op]int),
		defaults: make(map[hal.Scope]string),
	}
	for i := range specs {
		h.plug(specs[i])
	}
	return h
}

// Plug attaches a device and notifies device-list listeners.
func (h *HAL) Plug(spec DeviceSpec) hal.DeviceID {
	h.mu.Lock()
	id := h.plug(spec)
	h.mu.Unlock()
	h.notify()
	return id
}

func (h *HAL) plug(spec DeviceSpec) hal.DeviceID {
	h.nextDev++
	d := &device{
		id:   h.nextDev,
		spec: spec,
		volume: map[hal.Scope]map[uint32]float32{
			hal.ScopeInput:  maps.Clone(spec.InputVolume),
			hal.ScopeOutput: maps.Clone(spec.OutputVolume),
		},
	}
	h.devices[d.id] = d
	return d.id
}

// Unplug detaches the device with uid. Its handle becomes invalid and any
// running IO proc stops receiving cycles.
func (h *HAL) Unplug(uid string) bool {
	h.mu.Lock()
	d := h.lookupUID(uid)
	if d == nil {
		h.mu.Unlock()
		return false
	}
	delete(h.devices, d.id)
	var halts []func()
	for _, p := range h.procs {
		if p.device == d.id && p.running {
			halts = append(halts, p.detach())
		}
	}
	h.mu.Unlock()

	for _, wait := range halts {
		wait()
	}
	h.notify()
	return true
}

// SetDefault makes uid the default device for scope.
func (h *HAL) SetDefault(scope hal.Scope, uid string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.defaults[scope] = uid
}

// Fail makes every subsequent call of op fail with err. A nil err injects
// a generic unspecified status.
func (h *HAL) Fail(op Op, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		err = hal.NewStatusError(string(op), hal.StatusUnspecified, nil)
	}
	h.failures[op] = err
}

// Clear removes an injected failure.
func (h *HAL) Clear(op Op) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failures, op)
}

// Calls reports how many times op was called, failed calls included.
func (h *HAL) Calls(op Op) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[op]
}

// begin counts the call and returns the injected failure, if any.
// h.mu must be held.
func (h *HAL) begin(op Op) error {
	h.calls[op]++
	return h.failures[op]
}

func (h *HAL) lookupUID(uid string) *device {
	for _, d := range h.devices {
		if d.spec.UID == uid {
			return d
		}
	}
	return nil
}

func (h *HAL) lookup(op Op, id hal.DeviceID) (*device, error) {
	d, ok := h.devices[id]
	if !ok {
		return nil, hal.NewStatusError(string(op), hal.StatusBadDevice, fmt.Errorf("device %d", id))
	}
	return d, nil
}

func (h *HAL) DeviceForUID(uid string) (hal.DeviceID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpDeviceForUID); err != nil {
		return hal.UnknownDevice, err
	}
	d := h.lookupUID(uid)
	if d == nil {
		return hal.UnknownDevice, hal.NewStatusError(string(OpDeviceForUID), hal.StatusBadDevice, fmt.Errorf("uid %q", uid))
	}
	return d.id, nil
}

func (h *HAL) Devices() ([]hal.DeviceID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpDevices); err != nil {
		return nil, err
	}
	ids := make([]hal.DeviceID, 0, len(h.devices))
	for id := range h.devices {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (h *HAL) DefaultDevice(scope hal.Scope) (hal.DeviceID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpDefaultDevice); err != nil {
		return hal.UnknownDevice, err
	}
	if uid, ok := h.defaults[scope]; ok {
		if d := h.lookupUID(uid); d != nil {
			return d.id, nil
		}
	}

	// Without an explicit default the lowest handle with channels wins.
	var best hal.DeviceID
	for id, d := range h.devices {
		if len(d.channels(scope)) == 0 {
			continue
		}
		if best == hal.UnknownDevice || id < best {
			best = id
		}
	}
	if best == hal.UnknownDevice {
		return hal.UnknownDevice, hal.NewStatusError(string(OpDefaultDevice), hal.StatusBadDevice, fmt.Errorf("no %s device", scope))
	}
	return best, nil
}

func (d *device) channels(scope hal.Scope) []uint32 {
	switch scope {
	case hal.ScopeInput:
		return d.spec.InputChannels
	case hal.ScopeOutput:
		return d.spec.OutputChannels
	default:
		return nil
	}
}

func (h *HAL) StringProperty(id hal.DeviceID, selector hal.Selector) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpStringProperty); err != nil {
		return "", err
	}
	d, err := h.lookup(OpStringProperty, id)
	if err != nil {
		return "", err
	}
	switch selector {
	case hal.PropertyName:
		return d.spec.Name, nil
	case hal.PropertyModelUID:
		return d.spec.ModelUID, nil
	case hal.PropertyUID:
		return d.spec.UID, nil
	default:
		return "", hal.NewStatusError(string(OpStringProperty), hal.StatusUnknownProperty, fmt.Errorf("selector %d", selector))
	}
}

func (h *HAL) StreamConfiguration(id hal.DeviceID, scope hal.Scope) ([]uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpStreamConfiguration); err != nil {
		return nil, err
	}
	d, err := h.lookup(OpStreamConfiguration, id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(d.channels(scope)), nil
}

// Stream IDs encode the device handle and direction.
func streamID(id hal.DeviceID, scope hal.Scope) hal.StreamID {
	if scope == hal.ScopeOutput {
		return hal.StreamID(id)<<1 | 1
	}
	return hal.StreamID(id) << 1
}

func (h *HAL) Streams(id hal.DeviceID, scope hal.Scope) ([]hal.StreamID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpStreams); err != nil {
		return nil, err
	}
	d, err := h.lookup(OpStreams, id)
	if err != nil {
		return nil, err
	}
	if len(d.channels(scope)) == 0 {
		return nil, nil
	}
	return []hal.StreamID{streamID(id, scope)}, nil
}

func (h *HAL) StreamVirtualFormat(stream hal.StreamID) (pcm.Format, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpStreamVirtualFormat); err != nil {
		return pcm.Format{}, err
	}
	d, ok := h.devices[hal.DeviceID(stream>>1)]
	if !ok {
		return pcm.Format{}, hal.NewStatusError(string(OpStreamVirtualFormat), hal.StatusBadStream, fmt.Errorf("stream %d", stream))
	}
	f := d.spec.InputFormat
	if stream&1 == 1 {
		f = d.spec.OutputFormat
	}
	if f == nil {
		return pcm.Format{}, hal.NewStatusError(string(OpStreamVirtualFormat), hal.StatusUnknownProperty, nil)
	}
	return *f, nil
}

func (h *HAL) DeviceStreamFormat(id hal.DeviceID, scope hal.Scope) (pcm.Format, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpDeviceStreamFormat); err != nil {
		return pcm.Format{}, err
	}
	d, err := h.lookup(OpDeviceStreamFormat, id)
	if err != nil {
		return pcm.Format{}, err
	}
	f := d.spec.LegacyInputFormat
	if scope == hal.ScopeOutput {
		f = d.spec.LegacyOutputFormat
	}
	if f == nil {
		return pcm.Format{}, hal.NewStatusError(string(OpDeviceStreamFormat), hal.StatusUnknownProperty, nil)
	}
	return *f, nil
}

func (h *HAL) NominalSampleRate(id hal.DeviceID) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpNominalSampleRate); err != nil {
		return 0, err
	}
	d, err := h.lookup(OpNominalSampleRate, id)
	if err != nil {
		return 0, err
	}
	if d.spec.NominalRate <= 0 {
		return 0, hal.NewStatusError(string(OpNominalSampleRate), hal.StatusUnknownProperty, nil)
	}
	return d.spec.NominalRate, nil
}

func (h *HAL) AvailableSampleRates(id hal.DeviceID) ([]hal.SampleRateRange, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpAvailableSampleRates); err != nil {
		return nil, err
	}
	d, err := h.lookup(OpAvailableSampleRates, id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(d.spec.RateRanges), nil
}

func (h *HAL) TransportType(id hal.DeviceID) (hal.TransportType, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpTransportType); err != nil {
		return hal.TransportUnknown, err
	}
	d, err := h.lookup(OpTransportType, id)
	if err != nil {
		return hal.TransportUnknown, err
	}
	return d.spec.Transport, nil
}

func (h *HAL) HasVolume(id hal.DeviceID, scope hal.Scope, element uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.devices[id]
	if !ok {
		return false
	}
	_, ok = d.volume[scope][element]
	return ok
}

func (h *HAL) PreferredStereoChannels(id hal.DeviceID, scope hal.Scope) ([2]uint32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpPreferredStereo); err != nil {
		return [2]uint32{}, err
	}
	d, err := h.lookup(OpPreferredStereo, id)
	if err != nil {
		return [2]uint32{}, err
	}
	if d.spec.PreferredStereo == [2]uint32{} {
		return [2]uint32{1, 2}, nil
	}
	return d.spec.PreferredStereo, nil
}

func (h *HAL) Volume(id hal.DeviceID, scope hal.Scope, element uint32) (float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpVolume); err != nil {
		return 0, err
	}
	d, err := h.lookup(OpVolume, id)
	if err != nil {
		return 0, err
	}
	v, ok := d.volume[scope][element]
	if !ok {
		return 0, hal.NewStatusError(string(OpVolume), hal.StatusUnknownProperty, fmt.Errorf("element %d", element))
	}
	return v, nil
}

func (h *HAL) SetVolume(id hal.DeviceID, scope hal.Scope, element uint32, volume float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpSetVolume); err != nil {
		return err
	}
	d, err := h.lookup(OpSetVolume, id)
	if err != nil {
		return err
	}
	if _, ok := d.volume[scope][element]; !ok {
		return hal.NewStatusError(string(OpSetVolume), hal.StatusUnknownProperty, fmt.Errorf("element %d", element))
	}
	d.volume[scope][element] = min(max(volume, 0), 1)
	return nil
}

// AddDeviceListListener calls fn after every Plug and Unplug until ctx is done.
func (h *HAL) AddDeviceListListener(ctx context.Context, fn func()) error {
	if fn == nil {
		return hal.NewStatusError("add_device_list_listener", hal.StatusIllegalOperation, nil)
	}
	h.mu.Lock()
	h.nextLis++
	id := h.nextLis
	h.listeners = append(h.listeners, listener{id: id, fn: fn})
	h.mu.Unlock()

	context.AfterFunc(ctx, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.listeners = slices.DeleteFunc(h.listeners, func(l listener) bool { return l.id == id })
	})
	return nil
}

func (h *HAL) notify() {
	h.mu.Lock()
	fns := make([]func(), 0, len(h.listeners))
	for _, l := range h.listeners {
		fns = append(fns, l.fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Listeners reports how many device-list listeners are registered.
func (h *HAL) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}
