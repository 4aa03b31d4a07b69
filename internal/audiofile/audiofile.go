// Package audiofile decodes WAV, MP3 and Ogg Vorbis files into interleaved
// little-endian PCM and writes captured 16-bit PCM to WAV. Decoded sources
// report their native format; the stream layer converts to the device.
package audiofile

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// Source is a decoded audio file. Read returns whole frames of Format.
type Source interface {
	io.Reader
	Format() pcm.Format
	Close() error
}

// Open decodes path, choosing the decoder by file extension.
func Open(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("audiofile").
			Category(errors.CategoryFileIO).
			Context("operation", "open").
			Context("path", path).
			Build()
	}

	var src Source
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		src, err = newWAVSource(f)
	case ".mp3":
		src, err = newMP3Source(f)
	case ".ogg", ".oga":
		src, err = newVorbisSource(f)
	default:
		err = errors.Newf("unsupported audio file type %q", ext).
			Component("audiofile").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

func decodeError(kind string, err error) error {
	return errors.New(err).
		Component("audiofile").
		Category(errors.CategoryFormat).
		Context("operation", "decode").
		Context("decoder", kind).
		Build()
}

// putFloat32s encodes samples as little-endian float32 into dst.
func putFloat32s(dst []byte, samples []float32) {
	for i, v := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}
