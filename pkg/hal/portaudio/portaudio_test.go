//go:build portaudio

package portaudio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiohal/pkg/hal"
)

func TestFloat32BytesAliasesSamples(t *testing.T) {
	t.Parallel()

	samples := []float32{0.5, -1}
	raw := float32Bytes(samples)
	require.Len(t, raw, 8)
	assert.Equal(t, math.Float32bits(0.5), binary.NativeEndian.Uint32(raw[:4]))

	binary.NativeEndian.PutUint32(raw[4:], math.Float32bits(0.25))
	assert.InDelta(t, 0.25, samples[1], 0)
	assert.Nil(t, float32Bytes(nil))
}

func TestDeviceUID(t *testing.T) {
	t.Parallel()

	info := &portaudio.DeviceInfo{Name: "USB Audio", HostApi: &portaudio.HostApiInfo{Name: "ALSA"}}
	assert.Equal(t, "ALSA:USB Audio", deviceUID(info))
	assert.Equal(t, "Loose", deviceUID(&portaudio.DeviceInfo{Name: "Loose"}))
}

func TestCycleSilencesTail(t *testing.T) {
	t.Parallel()

	p := &ioProc{
		in:  hal.BufferList{Buffers: []hal.Buffer{{NumberChannels: 2}}},
		out: hal.BufferList{Buffers: []hal.Buffer{{NumberChannels: 2}}},
		proc: func(in, out *hal.BufferList) {
			assert.Nil(t, in)
			out.Buffers[0].Data = out.Buffers[0].Data[:4]
		},
	}
	out := []float32{1, 1, 1}
	p.cycle(nil, out)
	assert.Equal(t, []float32{1, 0, 0}, out)
}

func TestBackendEnumerates(t *testing.T) {
	b, err := New(nil)
	if err != nil {
		t.Skipf("portaudio unavailable: %v", err)
	}
	t.Cleanup(func() { require.NoError(t, b.Close()) })

	ids, err := b.Devices()
	require.NoError(t, err)
	for _, id := range ids {
		uid, err := b.StringProperty(id, hal.PropertyUID)
		require.NoError(t, err)
		got, err := b.DeviceForUID(uid)
		require.NoError(t, err)
		assert.Equal(t, id, got)

		rates, err := b.AvailableSampleRates(id)
		require.NoError(t, err)
		assert.NotEmpty(t, rates)
	}
}
