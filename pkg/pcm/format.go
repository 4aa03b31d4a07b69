// Package pcm describes uncompressed linear PCM layouts.
package pcm

import (
	"fmt"
	"math"
	"strings"
)

// FormatFlags are linear PCM layout flags. The bit values match the
// CoreAudio kAudioFormatFlag constants so descriptors can cross a cgo
// boundary unchanged.
type FormatFlags uint32

const (
	FlagIsFloat          FormatFlags = 1 << 0
	FlagIsBigEndian      FormatFlags = 1 << 1
	FlagIsSignedInteger  FormatFlags = 1 << 2
	FlagIsPacked         FormatFlags = 1 << 3
	FlagIsAlignedHigh    FormatFlags = 1 << 4
	FlagIsNonInterleaved FormatFlags = 1 << 5
)

// Has reports whether every bit in f2 is set.
func (f FormatFlags) Has(f2 FormatFlags) bool {
	return f&f2 == f2
}

func (f FormatFlags) String() string {
	var parts []string
	names := []struct {
		flag FormatFlags
		name string
	}{
		{FlagIsFloat, "float"},
		{FlagIsBigEndian, "big-endian"},
		{FlagIsSignedInteger, "signed"},
		{FlagIsPacked, "packed"},
		{FlagIsAlignedHigh, "aligned-high"},
		{FlagIsNonInterleaved, "non-interleaved"},
	}
	for _, n := range names {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Format is a linear PCM stream descriptor.
type Format struct {
	SampleRate       float64
	FormatFlags      FormatFlags
	BytesPerPacket   uint32
	FramesPerPacket  uint32
	BytesPerFrame    uint32
	ChannelsPerFrame uint32
	BitsPerChannel   uint32 // valid bits per channel
}

// Default format parameters used when a device format cannot be queried.
const (
	DefaultSampleRate = 44100.0
	DefaultChannels   = 2
	DefaultBits       = 32
)

// Build computes a packed-frame linear PCM descriptor.
//
// Packed is set only for integer samples whose valid bits fill the
// container; every other layout is aligned high. FramesPerPacket is always 1.
func Build(sampleRate float64, channels, validBits, totalBits uint32, isFloat, isBigEndian, isNonInterleaved bool) Format {
	var flags FormatFlags
	if isFloat {
		flags |= FlagIsFloat
	} else {
		flags |= FlagIsSignedInteger
	}
	if isBigEndian {
		flags |= FlagIsBigEndian
	}
	if !isFloat && validBits == totalBits {
		flags |= FlagIsPacked
	} else {
		flags |= FlagIsAlignedHigh
	}
	if isNonInterleaved {
		flags |= FlagIsNonInterleaved
	}

	perFrame := channels
	if isNonInterleaved {
		perFrame = 1
	}
	bytesPerFrame := perFrame * (totalBits / 8)

	return Format{
		SampleRate:       sampleRate,
		FormatFlags:      flags,
		BytesPerPacket:   bytesPerFrame,
		FramesPerPacket:  1,
		BytesPerFrame:    bytesPerFrame,
		ChannelsPerFrame: channels,
		BitsPerChannel:   validBits,
	}
}

// DefaultFormat returns 44.1 kHz stereo 32-bit float little-endian interleaved.
func DefaultFormat() Format {
	return Build(DefaultSampleRate, DefaultChannels, DefaultBits, DefaultBits, true, false, false)
}

// IsFloat reports whether samples are IEEE floats.
func (f Format) IsFloat() bool { return f.FormatFlags.Has(FlagIsFloat) }

// IsBigEndian reports whether samples are big-endian.
func (f Format) IsBigEndian() bool { return f.FormatFlags.Has(FlagIsBigEndian) }

// IsNonInterleaved reports whether each channel lives in its own buffer.
func (f Format) IsNonInterleaved() bool { return f.FormatFlags.Has(FlagIsNonInterleaved) }

// IsPacked reports whether valid bits fill the sample container.
func (f Format) IsPacked() bool { return f.FormatFlags.Has(FlagIsPacked) }

// SamplesPerFrame is the number of samples stored in one frame of one buffer.
func (f Format) SamplesPerFrame() uint32 {
	if f.IsNonInterleaved() {
		return 1
	}
	return f.ChannelsPerFrame
}

// BytesPerSample is the container size of one sample.
func (f Format) BytesPerSample() uint32 {
	spf := f.SamplesPerFrame()
	if spf == 0 {
		return 0
	}
	return f.BytesPerFrame / spf
}

// TotalBitsPerChannel is the container size of one sample in bits.
func (f Format) TotalBitsPerChannel() uint32 {
	return f.BytesPerSample() * 8
}

// ByteRate is the number of bytes per second in one buffer.
func (f Format) ByteRate() float64 {
	return float64(f.BytesPerFrame) * f.SampleRate
}

// Validate checks that the descriptor is usable for conversion.
func (f Format) Validate() error {
	switch {
	case math.IsNaN(f.SampleRate) || math.IsInf(f.SampleRate, 0) || f.SampleRate <= 0:
		return fmt.Errorf("pcm: invalid sample rate %v", f.SampleRate)
	case f.ChannelsPerFrame == 0:
		return fmt.Errorf("pcm: channel count must be positive")
	case f.BytesPerFrame == 0:
		return fmt.Errorf("pcm: bytes per frame must be positive")
	case f.FramesPerPacket != 1:
		return fmt.Errorf("pcm: %d frames per packet, only uncompressed PCM is supported", f.FramesPerPacket)
	case f.BytesPerPacket != f.BytesPerFrame:
		return fmt.Errorf("pcm: bytes per packet %d differs from bytes per frame %d", f.BytesPerPacket, f.BytesPerFrame)
	case f.BytesPerFrame%f.SamplesPerFrame() != 0:
		return fmt.Errorf("pcm: bytes per frame %d not divisible by %d samples", f.BytesPerFrame, f.SamplesPerFrame())
	case f.BitsPerChannel == 0 || f.BitsPerChannel > f.TotalBitsPerChannel():
		return fmt.Errorf("pcm: %d valid bits in a %d-bit container", f.BitsPerChannel, f.TotalBitsPerChannel())
	case f.IsFloat() && f.FormatFlags.Has(FlagIsSignedInteger):
		return fmt.Errorf("pcm: float and signed integer flags are exclusive")
	}
	return nil
}

func (f Format) String() string {
	kind := "int"
	if f.IsFloat() {
		kind = "float"
	}
	endian := "le"
	if f.IsBigEndian() {
		endian = "be"
	}
	layout := "interleaved"
	if f.IsNonInterleaved() {
		layout = "planar"
	}
	return fmt.Sprintf("%gHz %dch %d/%d-bit %s %s %s",
		f.SampleRate, f.ChannelsPerFrame, f.BitsPerChannel, f.TotalBitsPerChannel(), kind, endian, layout)
}

// Ratio returns the byte-rate ratio app/device used to size application-side
// scratch buffers from device-side buffer lengths. The order is the same for
// input and output streams.
func Ratio(app, device Format) (float64, error) {
	num := app.ByteRate()
	den := device.ByteRate()
	if !(num > 0) || !(den > 0) {
		return 0, fmt.Errorf("pcm: non-positive byte rate (app %v, device %v)", num, den)
	}
	return num / den, nil
}

// ScratchBytes converts a device-side byte length into an application-side
// byte length using ratio, truncated to whole application frames.
func ScratchBytes(deviceBytes int, ratio float64, appBytesPerFrame uint32) int {
	if deviceBytes <= 0 || !(ratio > 0) || appBytesPerFrame == 0 {
		return 0
	}
	n := int(math.Floor(float64(deviceBytes) * ratio))
	return n - n%int(appBytesPerFrame)
}
