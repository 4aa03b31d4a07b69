package stream

import (
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// handleOutput is the IO proc of output streams. The application fills a
// scratch buffer sized from the first device buffer, the result is converted
// into that buffer and then replicated into every further buffer. When no
// data is produced the further buffers are silenced.
func (s *Stream) handleOutput(_, out *hal.BufferList) {
	if out == nil || len(out.Buffers) == 0 {
		return
	}
	primary := &out.Buffers[0]

	if !s.mu.TryLock() {
		// Stop holds the guard: report that nothing was produced.
		s.obs.ObserveContention()
		primary.Data = primary.Data[:0]
		replicate(out)
		return
	}
	defer s.mu.Unlock()

	if s.reg == nil {
		s.obs.ObserveStopped()
		primary.Data = primary.Data[:0]
		replicate(out)
		return
	}
	s.obs.ObserveCycle()

	n := pcm.ScratchBytes(len(primary.Data), s.ratio, s.app.BytesPerFrame)
	bp := s.scratch.get(n)
	scratch := *bp
	s.fn(scratch)

	written, err := s.converter.Convert(scratch, primary.Data)
	s.scratch.put(bp)
	if err != nil {
		clear(primary.Data)
		s.obs.ObserveConversionFailure()
		s.rt.Warn("output conversion failed, playing silence",
			logger.Int("app_bytes", n),
			logger.Int("device_bytes", len(primary.Data)),
			logger.Error(err))
	} else {
		primary.Data = primary.Data[:written]
		s.obs.ObserveBytes(n)
	}

	replicate(out)
}

// replicate copies the first buffer into every other buffer, zero-filling
// capacity beyond the copied bytes.
func replicate(out *hal.BufferList) {
	src := out.Buffers[0].Data
	for i := 1; i < len(out.Buffers); i++ {
		dst := out.Buffers[i].Data
		n := copy(dst, src)
		clear(dst[n:])
	}
}

// handleInput is the IO proc of input streams. Every non-empty device buffer
// is converted into a scratch buffer and handed to the application. A failed
// conversion ends the cycle.
func (s *Stream) handleInput(in, _ *hal.BufferList) {
	if in == nil || len(in.Buffers) == 0 {
		return
	}

	if !s.mu.TryLock() {
		s.obs.ObserveContention()
		return
	}
	defer s.mu.Unlock()

	if s.reg == nil {
		s.obs.ObserveStopped()
		return
	}
	s.obs.ObserveCycle()

	for i := range in.Buffers {
		data := in.Buffers[i].Data
		if len(data) == 0 {
			continue
		}

		n := pcm.ScratchBytes(len(data), s.ratio, s.app.BytesPerFrame)
		bp := s.scratch.get(n)
		scratch := *bp

		written, err := s.convert(i, data, scratch)
		if err != nil {
			s.scratch.put(bp)
			s.obs.ObserveConversionFailure()
			s.rt.Warn("input conversion failed, dropping cycle",
				logger.Int("buffer", i),
				logger.Int("device_bytes", len(data)),
				logger.Error(err))
			return
		}

		s.fn(scratch[:written])
		s.obs.ObserveBytes(written)
		s.scratch.put(bp)
	}
}

// convert runs the converter over the device buffer at index, keeping
// per-buffer state apart when the converter supports it.
func (s *Stream) convert(index int, in, out []byte) (int, error) {
	if bc, ok := s.converter.(hal.BufferConverter); ok {
		return bc.ConvertBuffer(index, in, out)
	}
	return s.converter.Convert(in, out)
}
