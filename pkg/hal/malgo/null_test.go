package malgo

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/pcm"
	"github.com/tphakala/audiohal/pkg/stream"
)

// newNullBackend opens miniaudio's null backend, which is always compiled in
// and clocks its devices without hardware.
func newNullBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Options{Backends: []string{"null"}, PollInterval: 20 * time.Millisecond})
	if err != nil {
		t.Skipf("miniaudio null backend unavailable: %v", err)
	}
	t.Cleanup(func() { require.NoError(t, b.Close()) })
	return b
}

func TestNullBackendRegistry(t *testing.T) {
	b := newNullBackend(t)

	ids, err := b.Devices()
	require.NoError(t, err)
	require.NotEmpty(t, ids)

	out, err := b.DefaultDevice(hal.ScopeOutput)
	require.NoError(t, err)

	uid, err := b.StringProperty(out, hal.PropertyUID)
	require.NoError(t, err)
	again, err := b.DeviceForUID(uid)
	require.NoError(t, err)
	assert.Equal(t, out, again, "handles are stable across refreshes")

	_, err = b.StringProperty(out, hal.PropertyModelUID)
	require.ErrorIs(t, err, &hal.StatusError{Status: hal.StatusUnknownProperty})

	channels, err := b.StreamConfiguration(out, hal.ScopeOutput)
	require.NoError(t, err)
	require.Len(t, channels, 1)

	streams, err := b.Streams(out, hal.ScopeOutput)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	virtualFormat, err := b.StreamVirtualFormat(streams[0])
	require.NoError(t, err)
	require.NoError(t, virtualFormat.Validate())
	legacy, err := b.DeviceStreamFormat(out, hal.ScopeOutput)
	require.NoError(t, err)
	assert.Equal(t, virtualFormat, legacy)

	rate, err := b.NominalSampleRate(out)
	require.NoError(t, err)
	assert.Positive(t, rate)

	ranges, err := b.AvailableSampleRates(out)
	require.NoError(t, err)
	assert.NotEmpty(t, ranges)

	assert.False(t, b.HasVolume(out, hal.ScopeOutput, hal.ElementMaster))
	_, err = b.Volume(out, hal.ScopeOutput, hal.ElementMaster)
	require.Error(t, err)

	_, err = b.DeviceForUID("no-such-device")
	require.ErrorIs(t, err, &hal.StatusError{Status: hal.StatusBadDevice})
}

func TestNullBackendIOProcLifecycle(t *testing.T) {
	b := newNullBackend(t)

	out, err := b.DefaultDevice(hal.ScopeOutput)
	require.NoError(t, err)

	var cycles atomic.Int64
	procID, err := b.CreateScopedIOProc(out, hal.ScopeOutput, func(in, out *hal.BufferList) {
		if in == nil && out != nil {
			cycles.Add(1)
		}
	})
	require.NoError(t, err)

	require.NoError(t, b.Start(out, procID))
	require.NoError(t, b.Start(out, procID), "starting a running proc is a no-op")
	require.Eventually(t, func() bool { return cycles.Load() > 0 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, b.Stop(out, procID))
	stopped := cycles.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, cycles.Load(), "no callback runs after Stop returns")

	// A stopped proc can be started again.
	require.NoError(t, b.Start(out, procID))
	require.Eventually(t, func() bool { return cycles.Load() > stopped }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, b.DestroyIOProc(out, procID))
	require.ErrorIs(t, b.Start(out, procID), &hal.StatusError{Status: hal.StatusIllegalOperation})
}

func TestNullBackendDrivesOutputStream(t *testing.T) {
	b := newNullBackend(t)

	ctrl, err := stream.NewController(hal.HAL{Registry: b, IO: b}, nil)
	require.NoError(t, err)

	out, err := b.DefaultDevice(hal.ScopeOutput)
	require.NoError(t, err)
	uid, err := b.StringProperty(out, hal.PropertyUID)
	require.NoError(t, err)

	var calls atomic.Int64
	s, err := ctrl.Start(uid, func(buf []byte) {
		calls.Add(1)
		clear(buf)
	}, pcm.Build(44100, 2, 16, 16, false, false, false), stream.Output)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, ctrl.Stop(uid, s))
	assert.Equal(t, stream.StateStopped, s.State())
}

func TestNullBackendListener(t *testing.T) {
	b := newNullBackend(t)

	ctx, cancel := context.WithCancel(t.Context())
	require.NoError(t, b.AddDeviceListListener(ctx, func() {}))
	assert.Equal(t, 1, b.Listeners())
	require.Error(t, b.AddDeviceListListener(ctx, nil))

	cancel()
	require.Eventually(t, func() bool { return b.Listeners() == 0 }, time.Second, 5*time.Millisecond)
}

func TestClosedBackendRejectsWork(t *testing.T) {
	b, err := New(Options{Backends: []string{"null"}})
	if err != nil {
		t.Skipf("miniaudio null backend unavailable: %v", err)
	}
	out, err := b.DefaultDevice(hal.ScopeOutput)
	require.NoError(t, err)
	procID, err := b.CreateIOProc(out, func(_, _ *hal.BufferList) {})
	require.NoError(t, err)
	require.NoError(t, b.Start(out, procID))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = b.Devices()
	require.Error(t, err)
	_, err = b.CreateIOProc(out, func(_, _ *hal.BufferList) {})
	require.Error(t, err)
	require.Error(t, b.AddDeviceListListener(t.Context(), func() {}))
}
