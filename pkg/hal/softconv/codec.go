package softconv

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tphakala/audiohal/pkg/pcm"
)

// codec reads and writes single samples of one linear PCM layout as float64
// values in [-1, 1).
type codec struct {
	float     bool
	size      int  // container bytes
	shift     uint // unused low bits of an aligned-high integer container
	scale     float64
	order     binary.ByteOrder
	bigEndian bool
}

func newCodec(f pcm.Format) (codec, error) {
	size := int(f.BytesPerSample())
	c := codec{
		float:     f.IsFloat(),
		size:      size,
		order:     binary.LittleEndian,
		bigEndian: f.IsBigEndian(),
	}
	if c.bigEndian {
		c.order = binary.BigEndian
	}

	if c.float {
		if size != 4 && size != 8 {
			return codec{}, fmt.Errorf("%d-byte float samples", size)
		}
		return c, nil
	}

	if size < 1 || size > 4 {
		return codec{}, fmt.Errorf("%d-byte integer samples", size)
	}
	valid := f.BitsPerChannel
	total := uint32(size * 8)
	if valid == 0 || valid > total {
		return codec{}, fmt.Errorf("%d valid bits in %d-bit container", valid, total)
	}
	c.shift = uint(total - valid)
	c.scale = math.Ldexp(1, int(valid)-1)
	return c, nil
}

func (c codec) decode(b []byte) float64 {
	if c.float {
		if c.size == 4 {
			return float64(math.Float32frombits(c.order.Uint32(b)))
		}
		return math.Float64frombits(c.order.Uint64(b))
	}

	var raw int32
	switch c.size {
	case 1:
		raw = int32(int8(b[0]))
	case 2:
		raw = int32(int16(c.order.Uint16(b)))
	case 3:
		var u uint32
		if c.bigEndian {
			u = uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
		} else {
			u = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
		}
		// sign extend from bit 23
		raw = int32(u<<8) >> 8
	case 4:
		raw = int32(c.order.Uint32(b))
	}
	return float64(raw>>c.shift) / c.scale
}

func (c codec) encode(b []byte, v float64) {
	if c.float {
		if c.size == 4 {
			c.order.PutUint32(b, math.Float32bits(float32(v)))
		} else {
			c.order.PutUint64(b, math.Float64bits(v))
		}
		return
	}

	iv := math.Round(v * c.scale)
	if iv > c.scale-1 {
		iv = c.scale - 1
	} else if iv < -c.scale {
		iv = -c.scale
	}
	raw := int32(iv) << c.shift

	switch c.size {
	case 1:
		b[0] = byte(int8(raw))
	case 2:
		c.order.PutUint16(b, uint16(int16(raw)))
	case 3:
		u := uint32(raw)
		if c.bigEndian {
			b[0], b[1], b[2] = byte(u>>16), byte(u>>8), byte(u)
		} else {
			b[0], b[1], b[2] = byte(u), byte(u>>8), byte(u>>16)
		}
	case 4:
		c.order.PutUint32(b, uint32(raw))
	}
}
