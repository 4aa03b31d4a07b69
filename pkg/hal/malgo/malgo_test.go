package malgo

import (
	"runtime"
	"testing"

	"github.com/gen2brain/malgo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/pcm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParseBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    malgo.Backend
		wantErr bool
	}{
		{"alsa", malgo.BackendAlsa, false},
		{" PulseAudio ", malgo.BackendPulseaudio, false},
		{"coreaudio", malgo.BackendCoreaudio, false},
		{"null", malgo.BackendNull, false},
		{"beos", malgo.BackendNull, true},
		{"", malgo.BackendNull, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseBackend(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBackendsUsesPlatformDefault(t *testing.T) {
	t.Parallel()

	got, err := parseBackends(nil)
	switch runtime.GOOS {
	case "linux", "windows", "darwin":
		require.NoError(t, err)
		require.Len(t, got, 1)
	default:
		require.Error(t, err)
	}

	got, err = parseBackends([]string{"pulseaudio", "alsa"})
	require.NoError(t, err)
	assert.Equal(t, []malgo.Backend{malgo.BackendPulseaudio, malgo.BackendAlsa}, got)
	assert.Equal(t, "pulseaudio,alsa", backendNames(got))
}

func TestDeviceUID(t *testing.T) {
	t.Parallel()

	var alsa malgo.DeviceInfo
	copy(alsa.ID[:], "hw:1,0")
	assert.Equal(t, "hw:1,0", deviceUID(&alsa, malgo.Capture))
	assert.Equal(t, deviceUID(&alsa, malgo.Capture), deviceUID(&alsa, malgo.Playback),
		"printable IDs merge capture and playback")

	var zero malgo.DeviceInfo
	capture := deviceUID(&zero, malgo.Capture)
	playback := deviceUID(&zero, malgo.Playback)
	_, err := uuid.Parse(capture)
	require.NoError(t, err)
	assert.NotEqual(t, capture, playback)
	assert.Equal(t, capture, deviceUID(&zero, malgo.Capture), "derived UIDs are stable")
}

func infoWith(formats ...malgo.DataFormat) *malgo.DeviceInfo {
	return &malgo.DeviceInfo{FormatCount: uint32(len(formats)), Formats: formats}
}

func TestResolveNative(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info *malgo.DeviceInfo
		want nativeFormat
	}{
		{"no formats", infoWith(), nativeFormat{malgo.FormatF32, 2, 48000}},
		{"open format", infoWith(malgo.DataFormat{}), nativeFormat{malgo.FormatF32, 2, 48000}},
		{"s16 mono", infoWith(malgo.DataFormat{Format: malgo.FormatS16, Channels: 1, SampleRate: 44100}),
			nativeFormat{malgo.FormatS16, 1, 44100}},
		{"u8 widened", infoWith(malgo.DataFormat{Format: malgo.FormatU8, Channels: 2, SampleRate: 8000}),
			nativeFormat{malgo.FormatS16, 2, 8000}},
		{"first usable wins", infoWith(
			malgo.DataFormat{},
			malgo.DataFormat{Format: malgo.FormatS24, Channels: 6, SampleRate: 96000},
			malgo.DataFormat{Format: malgo.FormatS16, Channels: 2, SampleRate: 48000}),
			nativeFormat{malgo.FormatS24, 6, 96000}},
		{"channels only", infoWith(malgo.DataFormat{Channels: 4}), nativeFormat{malgo.FormatF32, 4, 48000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, resolveNative(tt.info))
		})
	}
}

func TestNativePCMFormat(t *testing.T) {
	t.Parallel()

	for _, f := range []malgo.FormatType{malgo.FormatS16, malgo.FormatS24, malgo.FormatS32, malgo.FormatF32} {
		got := nativeFormat{format: f, channels: 2, rate: 48000}.pcmFormat()
		require.NoError(t, got.Validate(), "format %d", f)
		assert.False(t, got.IsBigEndian())
		assert.False(t, got.IsNonInterleaved())
		assert.Equal(t, uint32(malgo.SampleSizeInBytes(f))*2, got.BytesPerFrame)
	}
	assert.True(t, nativeFormat{malgo.FormatF32, 1, 44100}.pcmFormat().IsFloat())
	assert.Equal(t, pcm.Build(22050, 1, 24, 24, false, false, false),
		nativeFormat{malgo.FormatS24, 1, 22050}.pcmFormat())
}

func TestRateRanges(t *testing.T) {
	t.Parallel()

	full := hal.SampleRateRange{Minimum: minSampleRate, Maximum: maxSampleRate}
	assert.Equal(t, []hal.SampleRateRange{full}, rateRanges(infoWith()))
	assert.Equal(t, []hal.SampleRateRange{full}, rateRanges(infoWith(malgo.DataFormat{Format: malgo.FormatS16})))

	got := rateRanges(infoWith(
		malgo.DataFormat{Format: malgo.FormatS16, SampleRate: 48000},
		malgo.DataFormat{Format: malgo.FormatF32, SampleRate: 44100},
		malgo.DataFormat{Format: malgo.FormatS32, SampleRate: 48000}))
	assert.Equal(t, []hal.SampleRateRange{{Minimum: 44100, Maximum: 44100}, {Minimum: 48000, Maximum: 48000}}, got)
}

func TestDeviceConfigOpensRequestedScope(t *testing.T) {
	t.Parallel()

	e := &entry{
		id:       1,
		uid:      "hw:0,0",
		present:  true,
		capture:  &side{native: nativeFormat{malgo.FormatS16, 1, 44100}},
		playback: &side{native: nativeFormat{malgo.FormatF32, 2, 48000}},
	}

	cfg, err := deviceConfig(e, hal.ScopeInput)
	require.NoError(t, err)
	assert.Equal(t, malgo.Capture, cfg.DeviceType)
	assert.Equal(t, malgo.FormatS16, cfg.Capture.Format)
	assert.Equal(t, uint32(1), cfg.Capture.Channels)
	assert.Equal(t, uint32(44100), cfg.SampleRate)
	assert.Equal(t, uint32(1), cfg.Alsa.NoMMap)

	cfg, err = deviceConfig(e, hal.ScopeOutput)
	require.NoError(t, err)
	assert.Equal(t, malgo.Playback, cfg.DeviceType)
	assert.Equal(t, uint32(48000), cfg.SampleRate)

	cfg, err = deviceConfig(e, hal.ScopeGlobal)
	require.NoError(t, err)
	assert.Equal(t, malgo.Duplex, cfg.DeviceType)

	e.capture = nil
	_, err = deviceConfig(e, hal.ScopeInput)
	require.ErrorIs(t, err, &hal.StatusError{Status: hal.StatusBadStream})
}

func TestCycleSilencesUnproducedOutput(t *testing.T) {
	t.Parallel()

	p := &ioProc{
		playback: true,
		capture:  true,
		in:       hal.BufferList{Buffers: []hal.Buffer{{NumberChannels: 1}}},
		out:      hal.BufferList{Buffers: []hal.Buffer{{NumberChannels: 2}}},
	}
	var captured []byte
	p.proc = func(in, out *hal.BufferList) {
		captured = append(captured, in.Buffers[0].Data...)
		buf := &out.Buffers[0]
		for i := range 4 {
			buf.Data[i] = 0x7f
		}
		buf.Data = buf.Data[:4]
	}

	output := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	p.cycle(output, []byte{9, 9}, 2)

	assert.Equal(t, []byte{0x7f, 0x7f, 0x7f, 0x7f, 0, 0, 0, 0}, output)
	assert.Equal(t, []byte{9, 9}, captured)
	assert.Nil(t, p.out.Buffers[0].Data, "device memory is not retained between cycles")
	assert.Nil(t, p.in.Buffers[0].Data)
}

func TestCycleUnidirectional(t *testing.T) {
	t.Parallel()

	var gotIn, gotOut *hal.BufferList
	p := &ioProc{
		playback: true,
		out:      hal.BufferList{Buffers: []hal.Buffer{{NumberChannels: 2}}},
		proc: func(in, out *hal.BufferList) {
			gotIn, gotOut = in, out
		},
	}
	p.cycle(make([]byte, 8), nil, 1)
	assert.Nil(t, gotIn)
	require.NotNil(t, gotOut)
}

func TestMergeRangesDeduplicates(t *testing.T) {
	t.Parallel()

	got := mergeRanges([]hal.SampleRateRange{
		{Minimum: 48000, Maximum: 48000},
		{Minimum: 8000, Maximum: 384000},
		{Minimum: 48000, Maximum: 48000},
	})
	assert.Equal(t, []hal.SampleRateRange{{Minimum: 8000, Maximum: 384000}, {Minimum: 48000, Maximum: 48000}}, got)
}
