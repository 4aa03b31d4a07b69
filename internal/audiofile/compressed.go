package audiofile

import (
	"io"
	"os"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// mp3Source passes through the decoder's stereo int16 output.
type mp3Source struct {
	file   *os.File
	dec    *gomp3.Decoder
	format pcm.Format
}

func newMP3Source(f *os.File) (*mp3Source, error) {
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		return nil, decodeError("mp3", err)
	}
	return &mp3Source{
		file:   f,
		dec:    dec,
		format: pcm.Build(float64(dec.SampleRate()), 2, 16, 16, false, false, false),
	}, nil
}

func (s *mp3Source) Format() pcm.Format { return s.format }

func (s *mp3Source) Read(p []byte) (int, error) {
	p = p[:len(p)-len(p)%int(s.format.BytesPerFrame)]
	if len(p) == 0 {
		return 0, nil
	}
	n, err := io.ReadFull(s.dec, p)
	n -= n % int(s.format.BytesPerFrame)
	switch {
	case n > 0:
		return n, nil
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return 0, io.EOF
	case err != nil:
		return 0, decodeError("mp3", err)
	}
	return 0, io.EOF
}

func (s *mp3Source) Close() error { return s.file.Close() }

// vorbisSource emits interleaved float32.
type vorbisSource struct {
	file   *os.File
	dec    *oggvorbis.Reader
	format pcm.Format
	floats []float32
}

func newVorbisSource(f *os.File) (*vorbisSource, error) {
	dec, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, decodeError("vorbis", err)
	}
	return &vorbisSource{
		file:   f,
		dec:    dec,
		format: pcm.Build(float64(dec.SampleRate()), uint32(dec.Channels()), 32, 32, true, false, false),
	}, nil
}

func (s *vorbisSource) Format() pcm.Format { return s.format }

func (s *vorbisSource) Read(p []byte) (int, error) {
	channels := int(s.format.ChannelsPerFrame)
	samples := len(p) / int(s.format.BytesPerFrame) * channels
	if samples == 0 {
		return 0, nil
	}
	if cap(s.floats) < samples {
		s.floats = make([]float32, samples)
	}
	s.floats = s.floats[:samples]

	// Read returns interleaved samples; stop on whole frames.
	n, err := s.dec.Read(s.floats)
	n -= n % channels
	if n > 0 {
		putFloat32s(p, s.floats[:n])
		return n * 4, nil
	}
	switch {
	case err == nil:
		return 0, nil
	case errors.Is(err, io.EOF):
		return 0, io.EOF
	}
	return 0, decodeError("vorbis", err)
}

func (s *vorbisSource) Close() error { return s.file.Close() }
