//go:build portaudio

// Package portaudio implements the HAL on top of PortAudio through
// github.com/gordonklaus/portaudio. Build with -tags portaudio.
//
// PortAudio only learns about devices when it is initialized, so the device
// list is fixed for the life of a Backend and hotplug is not reported.
// Devices are opened as interleaved float32 at their default sample rate.
package portaudio

import (
	"fmt"
	"slices"
	"sync"
	"unsafe"

	"github.com/gordonklaus/portaudio"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/pcm"
)

const componentPortAudio = "portaudio"

// maxOpenChannels caps the channels opened per direction.
const maxOpenChannels = 2

// probeRates are checked against IsFormatSupported for AvailableSampleRates.
var probeRates = []float64{8000, 11025, 16000, 22050, 32000, 44100, 48000, 88200, 96000, 176400, 192000}

type device struct {
	id             hal.DeviceID
	uid            string
	info           *portaudio.DeviceInfo
	inputChannels  int
	outputChannels int
	rates          []hal.SampleRateRange
}

func (d *device) channels(scope hal.Scope) int {
	switch scope {
	case hal.ScopeInput:
		return d.inputChannels
	case hal.ScopeOutput:
		return d.outputChannels
	default:
		return max(d.inputChannels, d.outputChannels)
	}
}

func (d *device) format(scope hal.Scope) pcm.Format {
	return pcm.Build(d.info.DefaultSampleRate, uint32(d.channels(scope)), 32, 32, true, false, false)
}

type ioProc struct {
	id     hal.IOProcID
	device *device
	scope  hal.Scope
	proc   hal.IOProc

	mu     sync.Mutex
	stream *portaudio.Stream

	in  hal.BufferList
	out hal.BufferList
}

// Backend is a hal.Registry and hal.ScopedIOService over PortAudio.
type Backend struct {
	log logger.Logger

	mu       sync.Mutex
	devices  []*device
	byUID    map[string]*device
	nextProc hal.IOProcID
	procs    map[hal.IOProcID]*ioProc
	closed   bool
}

var (
	_ hal.Registry        = (*Backend)(nil)
	_ hal.ScopedIOService = (*Backend)(nil)
)

// New initializes PortAudio and snapshots its devices.
func New(log logger.Logger) (*Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, errors.New(err).
			Component(componentPortAudio).
			Category(errors.CategoryDevice).
			Context("operation", "initialize").
			Build()
	}

	infos, err := portaudio.Devices()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, errors.New(err).
			Component(componentPortAudio).
			Category(errors.CategoryDevice).
			Context("operation", "enumerate_devices").
			Build()
	}

	b := &Backend{
		log:   logger.OrNop(log).Module(componentPortAudio),
		byUID: make(map[string]*device),
		procs: make(map[hal.IOProcID]*ioProc),
	}
	for _, info := range infos {
		uid := deviceUID(info)
		if _, dup := b.byUID[uid]; dup {
			uid = fmt.Sprintf("%s#%d", uid, info.Index)
		}
		d := &device{
			id:             hal.DeviceID(len(b.devices) + 1),
			uid:            uid,
			info:           info,
			inputChannels:  min(info.MaxInputChannels, maxOpenChannels),
			outputChannels: min(info.MaxOutputChannels, maxOpenChannels),
		}
		d.rates = supportedRates(d)
		b.devices = append(b.devices, d)
		b.byUID[uid] = d
	}
	b.log.Info("portaudio initialized",
		logger.String("version", portaudio.VersionText()),
		logger.Int("devices", len(b.devices)))
	return b, nil
}

// deviceUID is "<host api>:<device name>". PortAudio has no persistent ID.
func deviceUID(info *portaudio.DeviceInfo) string {
	if info.HostApi == nil {
		return info.Name
	}
	return info.HostApi.Name + ":" + info.Name
}

func streamParameters(d *device, scope hal.Scope, rate float64) portaudio.StreamParameters {
	var in, out *portaudio.DeviceInfo
	if scope != hal.ScopeOutput && d.inputChannels > 0 {
		in = d.info
	}
	if scope != hal.ScopeInput && d.outputChannels > 0 {
		out = d.info
	}
	p := portaudio.HighLatencyParameters(in, out)
	p.Input.Channels = 0
	p.Output.Channels = 0
	if in != nil {
		p.Input.Channels = d.inputChannels
	}
	if out != nil {
		p.Output.Channels = d.outputChannels
	}
	p.SampleRate = rate
	p.FramesPerBuffer = portaudio.FramesPerBufferUnspecified
	return p
}

func supportedRates(d *device) []hal.SampleRateRange {
	var ranges []hal.SampleRateRange
	for _, r := range probeRates {
		err := portaudio.IsFormatSupported(streamParameters(d, hal.ScopeGlobal, r), func(_, _ []float32) {})
		if err == nil {
			ranges = append(ranges, hal.SampleRateRange{Minimum: r, Maximum: r})
		}
	}
	if len(ranges) == 0 {
		rate := d.info.DefaultSampleRate
		ranges = append(ranges, hal.SampleRateRange{Minimum: rate, Maximum: rate})
	}
	return ranges
}

// Close stops open streams and terminates PortAudio.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	procs := make([]*ioProc, 0, len(b.procs))
	for _, p := range b.procs {
		procs = append(procs, p)
	}
	clear(b.procs)
	b.mu.Unlock()

	for _, p := range procs {
		if err := p.stop(); err != nil {
			b.log.Warn("stream close failed", logger.Error(err))
		}
	}
	if err := portaudio.Terminate(); err != nil {
		return errors.New(err).
			Component(componentPortAudio).
			Category(errors.CategoryDevice).
			Context("operation", "terminate").
			Build()
	}
	return nil
}

func (b *Backend) lookup(op string, id hal.DeviceID) (*device, error) {
	i := int(id) - 1
	if i < 0 || i >= len(b.devices) {
		return nil, hal.NewStatusError(op, hal.StatusBadDevice, fmt.Errorf("device %d", id))
	}
	return b.devices[i], nil
}

func (b *Backend) DeviceForUID(uid string) (hal.DeviceID, error) {
	d, ok := b.byUID[uid]
	if !ok {
		return hal.UnknownDevice, hal.NewStatusError("device_for_uid", hal.StatusBadDevice, fmt.Errorf("uid %q", uid))
	}
	return d.id, nil
}

func (b *Backend) Devices() ([]hal.DeviceID, error) {
	ids := make([]hal.DeviceID, 0, len(b.devices))
	for _, d := range b.devices {
		ids = append(ids, d.id)
	}
	return ids, nil
}

func (b *Backend) DefaultDevice(scope hal.Scope) (hal.DeviceID, error) {
	var (
		info *portaudio.DeviceInfo
		err  error
	)
	switch scope {
	case hal.ScopeInput:
		info, err = portaudio.DefaultInputDevice()
	case hal.ScopeOutput:
		info, err = portaudio.DefaultOutputDevice()
	default:
		return hal.UnknownDevice, hal.NewStatusError("default_device", hal.StatusIllegalOperation, fmt.Errorf("scope %s", scope))
	}
	if err != nil {
		return hal.UnknownDevice, hal.NewStatusError("default_device", hal.StatusBadDevice, err)
	}
	for _, d := range b.devices {
		if d.info.Index == info.Index {
			return d.id, nil
		}
	}
	return hal.UnknownDevice, hal.NewStatusError("default_device", hal.StatusBadDevice, fmt.Errorf("default %s device not enumerated", scope))
}

func (b *Backend) StringProperty(id hal.DeviceID, selector hal.Selector) (string, error) {
	d, err := b.lookup("string_property", id)
	if err != nil {
		return "", err
	}
	switch selector {
	case hal.PropertyName:
		return d.info.Name, nil
	case hal.PropertyUID:
		return d.uid, nil
	default:
		return "", hal.NewStatusError("string_property", hal.StatusUnknownProperty, fmt.Errorf("selector %s", selector))
	}
}

func (b *Backend) StreamConfiguration(id hal.DeviceID, scope hal.Scope) ([]uint32, error) {
	d, err := b.lookup("stream_configuration", id)
	if err != nil {
		return nil, err
	}
	if n := d.channels(scope); n > 0 {
		return []uint32{uint32(n)}, nil
	}
	return nil, nil
}

func (b *Backend) Streams(id hal.DeviceID, scope hal.Scope) ([]hal.StreamID, error) {
	d, err := b.lookup("streams", id)
	if err != nil {
		return nil, err
	}
	if d.channels(scope) == 0 {
		return nil, nil
	}
	sid := hal.StreamID(id) << 1
	if scope == hal.ScopeOutput {
		sid |= 1
	}
	return []hal.StreamID{sid}, nil
}

func (b *Backend) StreamVirtualFormat(stream hal.StreamID) (pcm.Format, error) {
	scope := hal.ScopeInput
	if stream&1 == 1 {
		scope = hal.ScopeOutput
	}
	return b.DeviceStreamFormat(hal.DeviceID(stream>>1), scope)
}

func (b *Backend) DeviceStreamFormat(id hal.DeviceID, scope hal.Scope) (pcm.Format, error) {
	d, err := b.lookup("device_stream_format", id)
	if err != nil {
		return pcm.Format{}, err
	}
	if d.channels(scope) == 0 {
		return pcm.Format{}, hal.NewStatusError("device_stream_format", hal.StatusBadStream, fmt.Errorf("no %s stream", scope))
	}
	return d.format(scope), nil
}

func (b *Backend) NominalSampleRate(id hal.DeviceID) (float64, error) {
	d, err := b.lookup("nominal_sample_rate", id)
	if err != nil {
		return 0, err
	}
	return d.info.DefaultSampleRate, nil
}

func (b *Backend) AvailableSampleRates(id hal.DeviceID) ([]hal.SampleRateRange, error) {
	d, err := b.lookup("available_sample_rates", id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(d.rates), nil
}

func (b *Backend) TransportType(id hal.DeviceID) (hal.TransportType, error) {
	d, err := b.lookup("transport_type", id)
	if err != nil {
		return hal.TransportUnknown, err
	}
	return hal.TransportFromName(d.info.Name), nil
}

func (b *Backend) HasVolume(hal.DeviceID, hal.Scope, uint32) bool { return false }

func (b *Backend) PreferredStereoChannels(id hal.DeviceID, scope hal.Scope) ([2]uint32, error) {
	d, err := b.lookup("preferred_stereo_channels", id)
	if err != nil {
		return [2]uint32{}, err
	}
	if d.channels(scope) < 2 {
		return [2]uint32{}, hal.NewStatusError("preferred_stereo_channels", hal.StatusUnknownProperty, nil)
	}
	return [2]uint32{1, 2}, nil
}

func (b *Backend) Volume(hal.DeviceID, hal.Scope, uint32) (float32, error) {
	return 0, hal.NewStatusError("volume", hal.StatusUnknownProperty, nil)
}

func (b *Backend) SetVolume(hal.DeviceID, hal.Scope, uint32, float32) error {
	return hal.NewStatusError("set_volume", hal.StatusUnknownProperty, nil)
}

func (b *Backend) CreateIOProc(id hal.DeviceID, proc hal.IOProc) (hal.IOProcID, error) {
	return b.CreateScopedIOProc(id, hal.ScopeGlobal, proc)
}

func (b *Backend) CreateScopedIOProc(id hal.DeviceID, scope hal.Scope, proc hal.IOProc) (hal.IOProcID, error) {
	if proc == nil {
		return 0, hal.NewStatusError("create_io_proc", hal.StatusIllegalOperation, fmt.Errorf("nil proc"))
	}
	d, err := b.lookup("create_io_proc", id)
	if err != nil {
		return 0, err
	}
	if d.channels(scope) == 0 {
		return 0, hal.NewStatusError("create_io_proc", hal.StatusBadStream, fmt.Errorf("no %s stream", scope))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, hal.NewStatusError("create_io_proc", hal.StatusIllegalOperation, fmt.Errorf("backend closed"))
	}
	b.nextProc++
	p := &ioProc{
		id:     b.nextProc,
		device: d,
		scope:  scope,
		proc:   proc,
		in:     hal.BufferList{Buffers: []hal.Buffer{{NumberChannels: uint32(d.inputChannels)}}},
		out:    hal.BufferList{Buffers: []hal.Buffer{{NumberChannels: uint32(d.outputChannels)}}},
	}
	b.procs[p.id] = p
	return p.id, nil
}

func (b *Backend) proc(op string, id hal.DeviceID, procID hal.IOProcID) (*ioProc, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.procs[procID]
	if !ok || p.device.id != id {
		return nil, hal.NewStatusError(op, hal.StatusIllegalOperation, fmt.Errorf("io proc %d", procID))
	}
	return p, nil
}

func (b *Backend) DestroyIOProc(id hal.DeviceID, procID hal.IOProcID) error {
	p, err := b.proc("destroy_io_proc", id, procID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.procs, procID)
	b.mu.Unlock()
	return p.stop()
}

// Start opens a PortAudio stream for the proc and starts it. Starting a
// running proc is a no-op.
func (b *Backend) Start(id hal.DeviceID, procID hal.IOProcID) error {
	p, err := b.proc("start", id, procID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		return nil
	}

	params := streamParameters(p.device, p.scope, p.device.info.DefaultSampleRate)
	s, err := portaudio.OpenStream(params, p.cycle)
	if err != nil {
		return hal.NewStatusError("start", hal.StatusUnspecified, errors.New(err).
			Component(componentPortAudio).
			Category(errors.CategoryHardware).
			Context("operation", "open_stream").
			Context("device_uid", p.device.uid).
			Build())
	}
	if err := s.Start(); err != nil {
		_ = s.Close()
		return hal.NewStatusError("start", hal.StatusUnspecified, errors.New(err).
			Component(componentPortAudio).
			Category(errors.CategoryHardware).
			Context("operation", "start_stream").
			Context("device_uid", p.device.uid).
			Build())
	}
	p.stream = s
	return nil
}

func (b *Backend) Stop(id hal.DeviceID, procID hal.IOProcID) error {
	p, err := b.proc("stop", id, procID)
	if err != nil {
		return err
	}
	return p.stop()
}

// stop waits for the callback to return and closes the stream.
func (p *ioProc) stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream == nil {
		return nil
	}
	err := p.stream.Stop()
	if cerr := p.stream.Close(); err == nil {
		err = cerr
	}
	p.stream = nil
	if err != nil {
		return hal.NewStatusError("stop", hal.StatusUnspecified, err)
	}
	return nil
}

// cycle runs on the PortAudio callback thread.
func (p *ioProc) cycle(in, out []float32) {
	var inList, outList *hal.BufferList
	if len(in) > 0 {
		p.in.Buffers[0].Data = float32Bytes(in)
		inList = &p.in
	}
	if len(out) > 0 {
		p.out.Buffers[0].Data = float32Bytes(out)
		outList = &p.out
	}

	p.proc(inList, outList)

	if outList != nil {
		raw := float32Bytes(out)
		n := min(len(p.out.Buffers[0].Data), len(raw))
		clear(raw[n:])
		p.out.Buffers[0].Data = nil
	}
	if inList != nil {
		p.in.Buffers[0].Data = nil
	}
}

// float32Bytes views samples as bytes without copying.
func float32Bytes(samples []float32) []byte {
	if len(samples) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&samples[0])), len(samples)*4)
}
