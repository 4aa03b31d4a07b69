// Package softconv is a software implementation of hal.ConverterService for
// linear PCM. It converts between integer and float sample encodings of any
// container size from 8 to 64 bits, swaps endianness, maps channel counts and
// resamples with linear interpolation. Planar formats are converted one plane
// per call.
package softconv

import (
	"fmt"
	"math"

	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// Service creates software converters.
type Service struct{}

var _ hal.ConverterService = Service{}

// NewService returns the software converter service.
func NewService() Service { return Service{} }

// NewConverter returns a converter from src to dst. It fails with
// hal.StatusUnsupportedFormat when either format cannot be handled.
func (Service) NewConverter(src, dst pcm.Format) (hal.Converter, error) {
	c, err := New(src, dst)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Converter converts one stream of samples. It keeps resampler state between
// calls, separately for every buffer index, and is not safe for concurrent
// use.
type Converter struct {
	src, dst     pcm.Format
	srcCodec     codec
	dstCodec     codec
	srcCh, dstCh int
	srcFrame     int
	dstFrame     int
	step         float64 // source frames advanced per destination frame
	resample     bool
	disposed     bool

	states  []resampler // indexed by buffer
	decoded []float64   // decoded source frames, grown on demand
	frame   []float64   // one source-channel frame
}

// resampler is the interpolation state of one buffer stream.
type resampler struct {
	pos     float64   // read position relative to the first decoded frame
	prev    []float64 // last source frame of the previous call
	hasPrev bool
}

var _ hal.BufferConverter = (*Converter)(nil)

// New validates both formats and builds a converter.
func New(src, dst pcm.Format) (*Converter, error) {
	if err := src.Validate(); err != nil {
		return nil, unsupported(src, dst, err)
	}
	if err := dst.Validate(); err != nil {
		return nil, unsupported(src, dst, err)
	}
	sc, err := newCodec(src)
	if err != nil {
		return nil, unsupported(src, dst, err)
	}
	dc, err := newCodec(dst)
	if err != nil {
		return nil, unsupported(src, dst, err)
	}

	c := &Converter{
		src:      src,
		dst:      dst,
		srcCodec: sc,
		dstCodec: dc,
		srcCh:    int(src.SamplesPerFrame()),
		dstCh:    int(dst.SamplesPerFrame()),
		srcFrame: int(src.BytesPerFrame),
		dstFrame: int(dst.BytesPerFrame),
		step:     src.SampleRate / dst.SampleRate,
		resample: src.SampleRate != dst.SampleRate,
	}
	c.frame = make([]float64, c.srcCh)
	return c, nil
}

func unsupported(src, dst pcm.Format, err error) error {
	return hal.NewStatusError("new_converter", hal.StatusUnsupportedFormat,
		fmt.Errorf("%s -> %s: %w", src, dst, err))
}

// Convert converts every whole source frame of in and writes at most
// len(out) bytes, returning the count written. Frames that do not fit in out
// are dropped.
func (c *Converter) Convert(in, out []byte) (int, error) {
	return c.ConvertBuffer(0, in, out)
}

// ConvertBuffer is Convert for the device buffer at index. Each index
// resamples from its own history, so planar buffers converted one after the
// other within a cycle do not bleed into each other.
func (c *Converter) ConvertBuffer(index int, in, out []byte) (int, error) {
	if index < 0 {
		return 0, hal.NewStatusError("convert", hal.StatusIllegalOperation, fmt.Errorf("negative buffer index %d", index))
	}
	if c.disposed {
		return 0, hal.NewStatusError("convert", hal.StatusIllegalOperation, fmt.Errorf("converter disposed"))
	}
	if len(in)%c.srcFrame != 0 {
		return 0, hal.NewStatusError("convert", hal.StatusIllegalOperation,
			fmt.Errorf("%d input bytes is not a multiple of %d-byte frames", len(in), c.srcFrame))
	}
	if len(in) == 0 {
		return 0, nil
	}
	if !c.resample {
		return c.convertFrames(in, out), nil
	}
	return c.convertResampled(c.state(index), in, out), nil
}

func (c *Converter) state(index int) *resampler {
	for len(c.states) <= index {
		c.states = append(c.states, resampler{prev: make([]float64, c.srcCh)})
	}
	return &c.states[index]
}

// convertFrames maps frames one to one.
func (c *Converter) convertFrames(in, out []byte) int {
	n := min(len(in)/c.srcFrame, len(out)/c.dstFrame)
	for i := range n {
		c.decodeFrame(in[i*c.srcFrame:], c.frame)
		c.encodeFrame(out[i*c.dstFrame:], c.frame)
	}
	return n * c.dstFrame
}

// convertResampled interpolates linearly between consecutive source frames.
// The last source frame is carried into the next call so cycle boundaries
// do not produce discontinuities.
func (c *Converter) convertResampled(r *resampler, in, out []byte) int {
	frames := len(in) / c.srcFrame
	offset := 0
	if r.hasPrev {
		offset = 1
	}
	total := frames + offset

	need := total * c.srcCh
	if cap(c.decoded) < need {
		c.decoded = make([]float64, need)
	}
	buf := c.decoded[:need]
	if r.hasPrev {
		copy(buf, r.prev)
	}
	for i := range frames {
		c.decodeFrame(in[i*c.srcFrame:], buf[(i+offset)*c.srcCh:])
	}

	written := 0
	frame := c.frame
	for {
		idx := int(math.Floor(r.pos))
		if idx+1 >= total {
			break
		}
		frac := r.pos - float64(idx)
		a := buf[idx*c.srcCh : (idx+1)*c.srcCh]
		b := buf[(idx+1)*c.srcCh : (idx+2)*c.srcCh]
		for ch := range frame {
			frame[ch] = a[ch]*(1-frac) + b[ch]*frac
		}
		if written+c.dstFrame <= len(out) {
			c.encodeFrame(out[written:], frame)
			written += c.dstFrame
		}
		r.pos += c.step
	}

	r.pos -= float64(total - 1)
	copy(r.prev, buf[(total-1)*c.srcCh:])
	r.hasPrev = true
	return written
}

func (c *Converter) decodeFrame(b []byte, dst []float64) {
	size := c.srcCodec.size
	for ch := range c.srcCh {
		dst[ch] = c.srcCodec.decode(b[ch*size:])
	}
}

// encodeFrame writes one destination frame from a source-channel frame.
// Downmixing to mono averages every source channel; otherwise destination
// channel n takes source channel n modulo the source channel count.
func (c *Converter) encodeFrame(b []byte, frame []float64) {
	size := c.dstCodec.size
	if c.dstCh == 1 && c.srcCh > 1 {
		var sum float64
		for _, v := range frame[:c.srcCh] {
			sum += v
		}
		c.dstCodec.encode(b, sum/float64(c.srcCh))
		return
	}
	for ch := range c.dstCh {
		c.dstCodec.encode(b[ch*size:], frame[ch%c.srcCh])
	}
}

// Reset clears resampler state, as after a discontinuity in the source.
func (c *Converter) Reset() {
	c.states = c.states[:0]
}

// Dispose releases the converter. Later Convert calls fail.
func (c *Converter) Dispose() error {
	if c.disposed {
		return hal.NewStatusError("dispose", hal.StatusIllegalOperation, fmt.Errorf("converter already disposed"))
	}
	c.disposed = true
	c.decoded = nil
	return nil
}

// Source returns the source format.
func (c *Converter) Source() pcm.Format { return c.src }

// Destination returns the destination format.
func (c *Converter) Destination() pcm.Format { return c.dst }
