package device

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/hal/virtual"
	"github.com/tphakala/audiohal/pkg/pcm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func usbInterface() virtual.DeviceSpec {
	f := pcm.Build(48000, 2, 24, 32, false, false, false)
	return virtual.DeviceSpec{
		UID:             "usb-interface",
		Name:            "USB Interface",
		ModelUID:        "usb:1234:5678",
		Transport:       hal.TransportUSB,
		InputChannels:   []uint32{2, 2},
		OutputChannels:  []uint32{2},
		InputFormat:     &f,
		OutputFormat:    &f,
		NominalRate:     48000,
		RateRanges:      []hal.SampleRateRange{{Minimum: 44100, Maximum: 48000}, {Minimum: 88200, Maximum: 96000}},
		OutputVolume:    map[uint32]float32{hal.ElementMaster: 0.8},
		InputVolume:     map[uint32]float32{1: 0.2, 2: 0.4},
		PreferredStereo: [2]uint32{1, 2},
	}
}

func builtIn() virtual.DeviceSpec {
	return virtual.DeviceSpec{
		UID:            "built-in-output",
		Name:           "Built-in Output",
		Transport:      hal.TransportBuiltIn,
		OutputChannels: []uint32{2},
		NominalRate:    44100,
	}
}

func newTestDirectory(t *testing.T, specs ...virtual.DeviceSpec) (*Directory, *virtual.HAL) {
	t.Helper()
	h := virtual.New(specs...)
	return NewDirectory(h, nil, WithDebounce(5*time.Millisecond)), h
}

func TestResolve(t *testing.T) {
	t.Parallel()

	dir, _ := newTestDirectory(t, usbInterface())

	id, err := dir.Resolve("usb-interface", hal.ScopeInput)
	require.NoError(t, err)
	assert.NotEqual(t, hal.UnknownDevice, id)

	for _, uid := range []string{"", "missing", "bad\xff"} {
		_, err := dir.Resolve(uid, hal.ScopeOutput)
		require.ErrorIs(t, err, ErrDeviceNotFound, "uid %q", uid)
		assert.True(t, errors.IsNotFound(err))
	}
}

func TestStringProperties(t *testing.T) {
	t.Parallel()

	dir, h := newTestDirectory(t, usbInterface())

	name, err := dir.Name("usb-interface")
	require.NoError(t, err)
	assert.Equal(t, "USB Interface", name)

	model, err := dir.ModelUID("usb-interface")
	require.NoError(t, err)
	assert.Equal(t, "usb:1234:5678", model)

	h.Fail(virtual.OpStringProperty, nil)
	_, err = dir.Name("usb-interface")
	assert.ErrorIs(t, err, ErrPropertyQueryFailed)

	_, err = dir.Name("missing")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestInvalidUTF8PropertyIsRejected(t *testing.T) {
	t.Parallel()

	spec := usbInterface()
	spec.Name = "bad\xfe"
	dir, _ := newTestDirectory(t, spec)

	_, err := dir.Name("usb-interface")
	assert.ErrorIs(t, err, ErrPropertyQueryFailed)
}

func TestCountChannels(t *testing.T) {
	t.Parallel()

	dir, h := newTestDirectory(t, usbInterface(), builtIn())

	assert.Equal(t, 4, dir.CountChannels("usb-interface", hal.ScopeInput))
	assert.Equal(t, 2, dir.CountChannels("usb-interface", hal.ScopeOutput))
	assert.Equal(t, 0, dir.CountChannels("built-in-output", hal.ScopeInput))
	assert.Equal(t, -1, dir.CountChannels("missing", hal.ScopeInput))

	assert.True(t, dir.IsInput("usb-interface"))
	assert.True(t, dir.IsOutput("built-in-output"))
	assert.False(t, dir.IsInput("built-in-output"))

	h.Fail(virtual.OpStreamConfiguration, nil)
	assert.Equal(t, -1, dir.CountChannels("usb-interface", hal.ScopeInput))
	assert.False(t, dir.IsInput("usb-interface"))
}

func TestSampleRates(t *testing.T) {
	t.Parallel()

	dir, _ := newTestDirectory(t, usbInterface(), builtIn())

	rate, err := dir.NominalSampleRate("usb-interface")
	require.NoError(t, err)
	assert.Equal(t, 48000.0, rate)

	lo, hi, err := dir.AvailableSampleRates("usb-interface")
	require.NoError(t, err)
	assert.Equal(t, 44100.0, lo)
	assert.Equal(t, 96000.0, hi)

	_, _, err = dir.AvailableSampleRates("built-in-output")
	assert.ErrorIs(t, err, ErrPropertyQueryFailed)
}

func TestUIDsAndDefaults(t *testing.T) {
	t.Parallel()

	dir, h := newTestDirectory(t, usbInterface(), builtIn())

	uids, err := dir.UIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"usb-interface", "built-in-output"}, uids)

	h.SetDefault(hal.ScopeOutput, "built-in-output")
	out, err := dir.DefaultOutputUID()
	require.NoError(t, err)
	assert.Equal(t, "built-in-output", out)

	in, err := dir.DefaultInputUID()
	require.NoError(t, err)
	assert.Equal(t, "usb-interface", in)

	h.Fail(virtual.OpDevices, nil)
	_, err = dir.UIDs()
	assert.ErrorIs(t, err, ErrPropertyQueryFailed)
}

func TestTransportType(t *testing.T) {
	t.Parallel()

	spec := builtIn()
	spec.UID = "odd"
	spec.Transport = hal.TransportType(42)
	dir, _ := newTestDirectory(t, usbInterface(), builtIn(), spec)

	label, err := dir.TransportType("usb-interface")
	require.NoError(t, err)
	assert.Equal(t, "USB", label)

	label, err = dir.TransportType("built-in-output")
	require.NoError(t, err)
	assert.Equal(t, "Built-in", label)

	_, err = dir.TransportType("odd")
	assert.ErrorIs(t, err, ErrUnknownTransport)
}

func TestVolume(t *testing.T) {
	t.Parallel()

	dir, _ := newTestDirectory(t, usbInterface(), builtIn())

	// master element
	v, err := dir.OutputVolume("usb-interface")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, v, 1e-6)
	require.NoError(t, dir.SetOutputVolume("usb-interface", 0.3))
	v, _ = dir.OutputVolume("usb-interface")
	assert.InDelta(t, 0.3, v, 1e-6)

	// stereo channel elements
	v, err = dir.InputVolume("usb-interface")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, v, 1e-6)
	require.NoError(t, dir.SetInputVolume("usb-interface", 2))
	v, _ = dir.InputVolume("usb-interface")
	assert.InDelta(t, 1.0, v, 1e-6)

	v, err = dir.OutputVolume("built-in-output")
	require.ErrorIs(t, err, ErrNoVolumeControl)
	assert.Equal(t, float32(-1), v)
	assert.ErrorIs(t, dir.SetOutputVolume("built-in-output", 0.5), ErrNoVolumeControl)
}

func TestVolumeSetFailure(t *testing.T) {
	t.Parallel()

	dir, h := newTestDirectory(t, usbInterface())
	h.Fail(virtual.OpSetVolume, nil)
	assert.ErrorIs(t, dir.SetOutputVolume("usb-interface", 0.5), ErrPropertyQueryFailed)
}

func TestVolumeRejectsNaN(t *testing.T) {
	t.Parallel()

	dir, h := newTestDirectory(t, usbInterface())
	nan := float32(math.NaN())
	require.ErrorIs(t, dir.SetOutputVolume("usb-interface", nan), ErrPropertyQueryFailed)
	require.ErrorIs(t, dir.SetInputVolume("usb-interface", nan), ErrPropertyQueryFailed)
	assert.Zero(t, h.Calls(virtual.OpSetVolume))

	v, err := dir.OutputVolume("usb-interface")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, v, 1e-6)
}

func TestDescribeAndList(t *testing.T) {
	t.Parallel()

	dir, _ := newTestDirectory(t, usbInterface(), builtIn())

	info, err := dir.Describe("usb-interface")
	require.NoError(t, err)
	assert.Equal(t, Info{
		UID:            "usb-interface",
		Name:           "USB Interface",
		ModelUID:       "usb:1234:5678",
		Transport:      "USB",
		InputChannels:  4,
		OutputChannels: 2,
		NominalRate:    48000,
		MinRate:        44100,
		MaxRate:        96000,
		DefaultInput:   true,
		DefaultOutput:  true,
	}, info)

	infos, err := dir.List()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.False(t, infos[1].IsInput())
	assert.True(t, infos[1].IsOutput())

	_, err = dir.Describe("missing")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestWatchReportsChanges(t *testing.T) {
	t.Parallel()

	dir, h := newTestDirectory(t, builtIn())

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan Change, 4)
	done := make(chan error, 1)
	go func() { done <- dir.Watch(ctx, func(c Change) { changes <- c }) }()

	require.Eventually(t, func() bool { return h.Listeners() == 1 }, time.Second, time.Millisecond)

	h.Plug(usbInterface())
	select {
	case c := <-changes:
		require.Len(t, c.Added, 1)
		assert.Equal(t, "USB Interface", c.Added[0].Name)
		assert.Empty(t, c.Removed)
	case <-time.After(time.Second):
		t.Fatal("no change reported for plug")
	}

	h.Unplug("usb-interface")
	select {
	case c := <-changes:
		require.Len(t, c.Removed, 1)
		assert.Equal(t, "USB Interface", c.Removed[0].Name, "removed devices keep their last description")
	case <-time.After(time.Second):
		t.Fatal("no change reported for unplug")
	}

	cancel()
	require.NoError(t, <-done)
	assert.Eventually(t, func() bool { return h.Listeners() == 0 }, time.Second, time.Millisecond)
}

func TestWatchCollapsesBursts(t *testing.T) {
	t.Parallel()

	h := virtual.New(builtIn())
	dir := NewDirectory(h, nil, WithDebounce(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan Change, 4)
	done := make(chan error, 1)
	go func() { done <- dir.Watch(ctx, func(c Change) { changes <- c }) }()
	require.Eventually(t, func() bool { return h.Listeners() == 1 }, time.Second, time.Millisecond)

	// unplug and replug within the window is not a change
	h.Unplug("built-in-output")
	h.Plug(builtIn())
	h.Plug(usbInterface())

	select {
	case c := <-changes:
		require.Len(t, c.Added, 1)
		assert.Equal(t, "usb-interface", c.Added[0].UID)
		assert.Empty(t, c.Removed)
	case <-time.After(time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, changes)
}

type registryOnly struct{ hal.Registry }

func TestWatchUnsupported(t *testing.T) {
	t.Parallel()

	dir := NewDirectory(registryOnly{virtual.New()}, nil)
	err := dir.Watch(context.Background(), func(Change) {})
	assert.ErrorIs(t, err, ErrHotplugUnsupported)
}
