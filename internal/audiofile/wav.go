package audiofile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// wavSource emits 16-bit files as int16 and deeper files as float32.
type wavSource struct {
	file     *os.File
	dec      *wav.Decoder
	format   pcm.Format
	bitDepth int
	divisor  float32
	buf      *audio.IntBuffer
	floats   []float32
}

func newWAVSource(f *os.File) (*wavSource, error) {
	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, decodeError("wav", errors.NewStd("invalid WAV file format"))
	}
	if dec.WavAudioFormat != 1 {
		return nil, decodeError("wav", fmt.Errorf("unsupported WAV encoding %d", dec.WavAudioFormat))
	}

	bitDepth := int(dec.BitDepth)
	channels := uint32(dec.NumChans)
	rate := float64(dec.SampleRate)

	s := &wavSource{file: f, dec: dec, bitDepth: bitDepth}
	switch bitDepth {
	case 16:
		s.format = pcm.Build(rate, channels, 16, 16, false, false, false)
	case 24, 32:
		s.format = pcm.Build(rate, channels, 32, 32, true, false, false)
		s.divisor = float32(int64(1) << (bitDepth - 1))
	default:
		return nil, decodeError("wav", fmt.Errorf("unsupported bit depth: %d", bitDepth))
	}
	if channels == 0 {
		return nil, decodeError("wav", errors.NewStd("WAV file has no channels"))
	}

	s.buf = &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: int(channels), SampleRate: int(dec.SampleRate)},
		SourceBitDepth: bitDepth,
	}
	return s, nil
}

func (s *wavSource) Format() pcm.Format { return s.format }

func (s *wavSource) Read(p []byte) (int, error) {
	frames := len(p) / int(s.format.BytesPerFrame)
	if frames == 0 {
		return 0, nil
	}
	samples := frames * int(s.format.ChannelsPerFrame)
	if cap(s.buf.Data) < samples {
		s.buf.Data = make([]int, samples)
	}
	s.buf.Data = s.buf.Data[:samples]

	n, err := s.dec.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, decodeError("wav", err)
	}
	// Drop a trailing partial frame.
	n -= n % int(s.format.ChannelsPerFrame)
	if n == 0 {
		return 0, io.EOF
	}

	if s.bitDepth == 16 {
		for i, v := range s.buf.Data[:n] {
			binary.LittleEndian.PutUint16(p[i*2:], uint16(int16(v)))
		}
		return n * 2, nil
	}

	if cap(s.floats) < n {
		s.floats = make([]float32, n)
	}
	s.floats = s.floats[:n]
	for i, v := range s.buf.Data[:n] {
		s.floats[i] = float32(v) / s.divisor
	}
	putFloat32s(p, s.floats)
	return n * 4, nil
}

func (s *wavSource) Close() error { return s.file.Close() }

// WAVWriter writes interleaved 16-bit little-endian PCM to a WAV file.
type WAVWriter struct {
	enc      *wav.Encoder
	format   *audio.Format
	channels int
	pending  []byte
	ints     []int
}

// NewWAVWriter creates a 16-bit PCM WAV encoder for rate and channels.
func NewWAVWriter(w io.WriteSeeker, rate, channels int) *WAVWriter {
	return &WAVWriter{
		enc:      wav.NewEncoder(w, rate, 16, channels, 1),
		format:   &audio.Format{SampleRate: rate, NumChannels: channels},
		channels: channels,
	}
}

// Format is the PCM layout Write expects.
func (w *WAVWriter) Format() pcm.Format {
	return pcm.Build(float64(w.format.SampleRate), uint32(w.channels), 16, 16, false, false, false)
}

// Write encodes whole frames of p. A trailing partial frame is held until
// the next call.
func (w *WAVWriter) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)
	frameBytes := 2 * w.channels
	usable := len(w.pending) - len(w.pending)%frameBytes
	if usable == 0 {
		return len(p), nil
	}

	samples := usable / 2
	if cap(w.ints) < samples {
		w.ints = make([]int, samples)
	}
	w.ints = w.ints[:samples]
	for i := range w.ints {
		w.ints[i] = int(int16(binary.LittleEndian.Uint16(w.pending[i*2:])))
	}
	if err := w.enc.Write(&audio.IntBuffer{Data: w.ints, Format: w.format, SourceBitDepth: 16}); err != nil {
		return 0, errors.New(err).
			Component("audiofile").
			Category(errors.CategoryFileIO).
			Context("operation", "wav_write").
			Build()
	}
	w.pending = append(w.pending[:0], w.pending[usable:]...)
	return len(p), nil
}

// Close finalizes the WAV header. The underlying writer is not closed.
func (w *WAVWriter) Close() error {
	return w.enc.Close()
}
