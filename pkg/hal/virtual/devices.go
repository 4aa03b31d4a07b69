package virtual

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// UIDs of the devices returned by DemoDevices.
const (
	DemoSpeakersUID   = "virtual-speakers"
	DemoMicrophoneUID = "virtual-microphone"
)

// DemoDevices returns a clocked stereo output and mono input pair running at
// 48 kHz float32 with 10 ms cycles. The microphone captures a 440 Hz tone.
func DemoDevices() []DeviceSpec {
	stereo := pcm.Build(48000, 2, 32, 32, true, false, false)
	mono := pcm.Build(48000, 1, 32, 32, true, false, false)

	return []DeviceSpec{
		{
			UID:            DemoSpeakersUID,
			Name:           "Virtual Speakers",
			ModelUID:       "audiohal:virtual:out",
			Transport:      hal.TransportVirtual,
			OutputChannels: []uint32{2},
			OutputFormat:   &stereo,
			NominalRate:    48000,
			RateRanges:     []hal.SampleRateRange{{Minimum: 44100, Maximum: 48000}},
			OutputVolume:   map[uint32]float32{hal.ElementMaster: 0.75},
			Period:         10 * time.Millisecond,
			FramesPerCycle: 480,
		},
		{
			UID:            DemoMicrophoneUID,
			Name:           "Virtual Microphone",
			ModelUID:       "audiohal:virtual:in",
			Transport:      hal.TransportVirtual,
			InputChannels:  []uint32{1},
			InputFormat:    &mono,
			NominalRate:    48000,
			RateRanges:     []hal.SampleRateRange{{Minimum: 48000, Maximum: 48000}},
			InputVolume:    map[uint32]float32{1: 0.5, 2: 0.5},
			Period:         10 * time.Millisecond,
			FramesPerCycle: 480,
			InputSource:    Sine(440, mono),
		},
	}
}

// Sine returns an InputSource producing a continuous tone at freq Hz for a
// float32 little-endian interleaved format. Every channel carries the same
// sample. The returned func keeps phase between calls and is not safe for
// concurrent use.
func Sine(freq float64, f pcm.Format) func(buf []byte) {
	var phase float64
	step := 2 * math.Pi * freq / f.SampleRate
	channels := int(f.SamplesPerFrame())
	frameBytes := int(f.BytesPerFrame)

	return func(buf []byte) {
		for off := 0; off+frameBytes <= len(buf); off += frameBytes {
			v := math.Float32bits(float32(0.5 * math.Sin(phase)))
			for c := range channels {
				binary.LittleEndian.PutUint32(buf[off+c*4:], v)
			}
			phase += step
			if phase > 2*math.Pi {
				phase -= 2 * math.Pi
			}
		}
	}
}
