package probe

import (
	"encoding/binary"
	"math"
)

// Sine generates an interleaved float32 little-endian test tone. Fill is an
// output stream DataFunc; a Sine must only be used by one stream.
type Sine struct {
	Frequency  float64
	SampleRate float64
	Channels   int
	Amplitude  float64

	phase float64
}

// NewSine returns a tone at -6 dBFS.
func NewSine(frequency, sampleRate float64, channels int) *Sine {
	return &Sine{Frequency: frequency, SampleRate: sampleRate, Channels: channels, Amplitude: 0.5}
}

// Fill writes whole frames into buf and zeroes any trailing partial frame.
func (s *Sine) Fill(buf []byte) {
	frameBytes := 4 * max(s.Channels, 1)
	frames := len(buf) / frameBytes
	step := 2 * math.Pi * s.Frequency / s.SampleRate
	for f := range frames {
		v := math.Float32bits(float32(s.Amplitude * math.Sin(s.phase)))
		for ch := range max(s.Channels, 1) {
			binary.LittleEndian.PutUint32(buf[f*frameBytes+ch*4:], v)
		}
		s.phase += step
		if s.phase >= 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
	clear(buf[frames*frameBytes:])
}

// Samples returns n mono samples of the tone, continuing its phase.
func (s *Sine) Samples(n int) []float64 {
	out := make([]float64, n)
	step := 2 * math.Pi * s.Frequency / s.SampleRate
	for i := range out {
		out[i] = s.Amplitude * math.Sin(s.phase)
		s.phase = math.Mod(s.phase+step, 2*math.Pi)
	}
	return out
}
