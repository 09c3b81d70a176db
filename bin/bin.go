// Package bin implements the low level primitives shared by the format
// codecs: LEB128 style variable length integers and fixed width little
// endian values.
//
// Decoding is lenient. A truncated buffer yields the value assembled from
// the bytes that were present and an offset clamped to len(b). Callers
// treat implausible downstream values as a parse quality signal instead of
// relying on decoder failure.
package bin

import "math"

type (
	Decoder struct{}

	Encoder struct{}
)

func (d Decoder) Byte(b []byte, st int) (v byte, i int) {
	if st >= len(b) {
		return 0, len(b)
	}

	return b[st], st + 1
}

func (d Decoder) Int(b []byte, st int) (v, i int) {
	x, i := d.Uint(b, st)
	return int(x), i
}

func (d Decoder) Uint(b []byte, st int) (v uint64, i int) {
	var s uint
	i = st

	for i < len(b) {
		if s < 64 {
			v |= uint64(b[i]&0x7f) << s
		}
		i++
		s += 7

		if b[i-1]&0x80 == 0 {
			return v, i
		}
	}

	return v, len(b)
}

func (d Decoder) Sint(b []byte, st int) (v int64, i int) {
	var s uint
	i = st

	for i < len(b) {
		if s < 64 {
			v |= int64(b[i]&0x7f) << s
		}
		i++
		s += 7

		if b[i-1]&0x80 == 0 {
			if s < 64 {
				v = v << (64 - s) >> (64 - s)
			}

			return v, i
		}
	}

	return v, len(b)
}

func (d Decoder) Uint16(b []byte, st int) (v uint16, i int) {
	i = st

	for s := uint(0); s < 16 && i < len(b); s += 8 {
		v |= uint16(b[i]) << s
		i++
	}

	return v, i
}

func (d Decoder) Uint32(b []byte, st int) (v uint32, i int) {
	i = st

	for s := uint(0); s < 32 && i < len(b); s += 8 {
		v |= uint32(b[i]) << s
		i++
	}

	return v, i
}

func (d Decoder) Uint64(b []byte, st int) (v uint64, i int) {
	i = st

	for s := uint(0); s < 64 && i < len(b); s += 8 {
		v |= uint64(b[i]) << s
		i++
	}

	return v, i
}

func (d Decoder) Float64(b []byte, st int) (v float64, i int) {
	x, i := d.Uint64(b, st)

	return math.Float64frombits(x), i
}

// Bytes reads a length prefixed byte string. A length pointing past the
// end of the buffer is clamped to the available bytes.
func (d Decoder) Bytes(b []byte, st int) (v []byte, i int) {
	l, i := d.Int(b, st)

	if l < 0 || i+l > len(b) {
		l = len(b) - i
	}

	v = b[i : i+l]
	i += l

	return v, i
}

func (d Decoder) Name(b []byte, st int) (v string, i int) {
	r, i := d.Bytes(b, st)

	return string(r), i
}

func (e Encoder) Int(b []byte, v int) []byte {
	return e.Uint(b, uint64(v))
}

func (e Encoder) Uint(b []byte, v uint64) []byte {
	for {
		x := byte(v) & 0x7f
		v >>= 7

		if v != 0 {
			x |= 0x80
		}

		b = append(b, x)

		if x&0x80 == 0 {
			break
		}
	}

	return b
}

func (e Encoder) Sint(b []byte, v int64) []byte {
	for {
		x := byte(v) & 0x7f
		s := byte(v) & 0x40
		v >>= 7

		if s == 0 && v != 0 || s != 0 && v != -1 {
			x |= 0x80
		}

		b = append(b, x)

		if x&0x80 == 0 {
			break
		}
	}

	return b
}

func (e Encoder) Uint16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

func (e Encoder) Uint32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (e Encoder) Uint64(b []byte, v uint64) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24), byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

func (e Encoder) Float64(b []byte, v float64) []byte {
	return e.Uint64(b, math.Float64bits(v))
}

func (e Encoder) Bytes(b, v []byte) []byte {
	b = e.Int(b, len(v))
	return append(b, v...)
}

func (e Encoder) Name(b []byte, v string) []byte {
	b = e.Int(b, len(v))
	return append(b, v...)
}
