package pcm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInvariants(t *testing.T) {
	t.Parallel()

	rates := []float64{8000, 44100, 48000, 96000}
	channels := []uint32{1, 2, 6}
	bits := []struct{ valid, total uint32 }{{8, 8}, {16, 16}, {24, 24}, {24, 32}, {32, 32}, {64, 64}}
	bools := []bool{false, true}

	for _, rate := range rates {
		for _, ch := range channels {
			for _, b := range bits {
				for _, isFloat := range bools {
					for _, be := range bools {
						for _, planar := range bools {
							name := fmt.Sprintf("%v/%d/%d-%d/f=%v/be=%v/ni=%v", rate, ch, b.valid, b.total, isFloat, be, planar)
							f := Build(rate, ch, b.valid, b.total, isFloat, be, planar)

							assert.Equal(t, f.BytesPerFrame, f.BytesPerPacket, name)
							assert.Equal(t, uint32(1), f.FramesPerPacket, name)
							assert.Equal(t, !isFloat && b.valid == b.total, f.IsPacked(), name)
							assert.Equal(t, !f.IsPacked(), f.FormatFlags.Has(FlagIsAlignedHigh), name)
							assert.Equal(t, isFloat, f.IsFloat(), name)
							assert.Equal(t, !isFloat, f.FormatFlags.Has(FlagIsSignedInteger), name)
							assert.Equal(t, be, f.IsBigEndian(), name)
							assert.Equal(t, planar, f.IsNonInterleaved(), name)

							perFrame := ch
							if planar {
								perFrame = 1
							}
							assert.Equal(t, perFrame*(b.total/8), f.BytesPerFrame, name)
							assert.Equal(t, b.valid, f.BitsPerChannel, name)
						}
					}
				}
			}
		}
	}
}

func TestBuildFlagValues(t *testing.T) {
	t.Parallel()

	// 16-bit signed packed little-endian interleaved
	f := Build(44100, 2, 16, 16, false, false, false)
	assert.Equal(t, FlagIsSignedInteger|FlagIsPacked, f.FormatFlags)
	assert.Equal(t, FormatFlags(12), f.FormatFlags)

	// 32-bit float big-endian non-interleaved
	f = Build(48000, 2, 32, 32, true, true, true)
	assert.Equal(t, FormatFlags(1|2|16|32), f.FormatFlags)
	assert.Equal(t, uint32(4), f.BytesPerFrame)
}

func TestDefaultFormat(t *testing.T) {
	t.Parallel()

	f := DefaultFormat()
	assert.Equal(t, 44100.0, f.SampleRate)
	assert.Equal(t, uint32(2), f.ChannelsPerFrame)
	assert.Equal(t, uint32(32), f.BitsPerChannel)
	assert.Equal(t, uint32(32), f.TotalBitsPerChannel())
	assert.True(t, f.IsFloat())
	assert.False(t, f.IsBigEndian())
	assert.False(t, f.IsNonInterleaved())
	assert.Equal(t, uint32(8), f.BytesPerFrame)
	assert.Equal(t, Build(44100, 2, 32, 32, true, false, false), f)
	require.NoError(t, f.Validate())
}

func TestRatio(t *testing.T) {
	t.Parallel()

	device := Build(48000, 2, 32, 32, true, false, false)
	app := Build(44100, 2, 16, 16, false, false, false)

	ratio, err := Ratio(app, device)
	require.NoError(t, err)
	assert.InDelta(t, 0.459375, ratio, 1e-12)

	assert.Equal(t, 440, ScratchBytes(960, ratio, app.BytesPerFrame))

	// Positive for any pair of well-formed descriptors.
	for _, a := range []Format{app, device, DefaultFormat(), Build(8000, 1, 8, 8, false, false, false)} {
		for _, d := range []Format{app, device, DefaultFormat(), Build(192000, 8, 24, 32, false, true, true)} {
			r, err := Ratio(a, d)
			require.NoError(t, err)
			assert.Greater(t, r, 0.0)
		}
	}

	_, err = Ratio(Format{}, device)
	assert.Error(t, err)
}

func TestScratchBytesEdgeCases(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ScratchBytes(0, 1, 4))
	assert.Equal(t, 0, ScratchBytes(100, 0, 4))
	assert.Equal(t, 0, ScratchBytes(100, 1, 0))
	assert.Equal(t, 1920, ScratchBytes(960, 2, 4))
	assert.Equal(t, 8, ScratchBytes(10, 1, 4))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"valid int16", Build(44100, 2, 16, 16, false, false, false), false},
		{"valid 24 in 32", Build(48000, 2, 24, 32, false, false, false), false},
		{"zero rate", Build(0, 2, 16, 16, false, false, false), true},
		{"zero channels", Build(44100, 0, 16, 16, false, false, false), true},
		{"zero bits", Build(44100, 2, 0, 0, false, false, false), true},
		{"valid exceeds total", Build(44100, 2, 32, 16, false, false, false), true},
		{"compressed", Format{SampleRate: 44100, ChannelsPerFrame: 2, BytesPerFrame: 4, BytesPerPacket: 4, FramesPerPacket: 2, BitsPerChannel: 16}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.format.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFormatString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "44100Hz 2ch 16/16-bit int le interleaved", Build(44100, 2, 16, 16, false, false, false).String())
	assert.Equal(t, "signed|packed", Build(44100, 2, 16, 16, false, false, false).FormatFlags.String())
}
