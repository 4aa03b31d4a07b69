// Package probe measures captured audio: level, clipping and the dominant
// frequency. It backs the --probe flag of the record command and the
// loopback check of the tone command.
package probe

import (
	"encoding/binary"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/pkg/hal/softconv"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// Silence is reported for levels of all-zero input.
const Silence = -120.0

// maxFFTSize bounds the analysis window.
const maxFFTSize = 1 << 16

// clipThreshold is the absolute sample value counted as clipped.
const clipThreshold = 0.999

// Result summarizes one analyzed block.
type Result struct {
	Frames     int
	PeakDBFS   float64
	RMSDBFS    float64
	DominantHz float64
	Clipped    int
}

// Analyze measures mono samples in [-1, 1] at sampleRate.
func Analyze(samples []float64, sampleRate float64) Result {
	r := Result{Frames: len(samples), PeakDBFS: Silence, RMSDBFS: Silence}
	if len(samples) == 0 {
		return r
	}

	var peak, sum float64
	for _, s := range samples {
		a := math.Abs(s)
		peak = max(peak, a)
		sum += s * s
		if a >= clipThreshold {
			r.Clipped++
		}
	}
	r.PeakDBFS = toDBFS(peak)
	r.RMSDBFS = toDBFS(math.Sqrt(sum / float64(len(samples))))
	r.DominantHz = dominant(samples, sampleRate)
	return r
}

func toDBFS(v float64) float64 {
	if v <= 0 {
		return Silence
	}
	return max(20*math.Log10(v), Silence)
}

// dominant returns the frequency of the strongest non-DC bin, refined by
// parabolic interpolation over its neighbours.
func dominant(samples []float64, sampleRate float64) float64 {
	n := 1
	for n*2 <= len(samples) && n*2 <= maxFFTSize {
		n *= 2
	}
	if n < 4 || !(sampleRate > 0) {
		return 0
	}

	w := window.Hann(n)
	buf := make([]float64, n)
	for i := range buf {
		buf[i] = samples[i] * w[i]
	}
	spectrum := fft.FFTReal(buf)

	half := n / 2
	mags := make([]float64, half)
	best := 1
	for i := 1; i < half; i++ {
		mags[i] = cmplx.Abs(spectrum[i])
		if mags[i] > mags[best] {
			best = i
		}
	}
	if mags[best] == 0 {
		return 0
	}

	bin := float64(best)
	if best > 1 && best < half-1 {
		a, b, c := mags[best-1], mags[best], mags[best+1]
		if d := a - 2*b + c; d != 0 {
			bin += 0.5 * (a - c) / d
		}
	}
	return bin * sampleRate / float64(n)
}

// AnalyzePCM converts data from f to float, mixes channels down to mono and
// analyzes the result.
func AnalyzePCM(data []byte, f pcm.Format) (Result, error) {
	mono, err := Mono(data, f)
	if err != nil {
		return Result{}, err
	}
	return Analyze(mono, f.SampleRate), nil
}

// Mono decodes interleaved data in format f into mono float samples.
func Mono(data []byte, f pcm.Format) ([]float64, error) {
	if f.IsNonInterleaved() {
		return nil, errors.Newf("probe: planar formats are not supported").
			Component("probe").
			Category(errors.CategoryFormat).
			Context("format", f.String()).
			Build()
	}
	dst := pcm.Build(f.SampleRate, f.ChannelsPerFrame, 32, 32, true, false, false)
	conv, err := softconv.New(f, dst)
	if err != nil {
		return nil, err
	}
	defer conv.Dispose()

	frames := len(data) / int(f.BytesPerFrame)
	out := make([]byte, frames*int(dst.BytesPerFrame))
	n, err := conv.Convert(data[:frames*int(f.BytesPerFrame)], out)
	if err != nil {
		return nil, err
	}

	channels := int(dst.ChannelsPerFrame)
	mono := make([]float64, 0, n/int(dst.BytesPerFrame))
	for off := 0; off+int(dst.BytesPerFrame) <= n; off += int(dst.BytesPerFrame) {
		var sum float64
		for ch := range channels {
			bits := binary.LittleEndian.Uint32(out[off+ch*4:])
			sum += float64(math.Float32frombits(bits))
		}
		mono = append(mono, sum/float64(channels))
	}
	return mono, nil
}
