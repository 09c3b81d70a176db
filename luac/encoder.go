package luac

import "math"

// Serialize re-encodes the chunk from the model. A chunk that never parsed
// completely is returned as the original bytes untouched.
func (c *Chunk) Serialize() []byte {
	if !c.ok {
		return c.Raw
	}

	b := make([]byte, 0, len(c.Raw)+16)

	b = append(b, Magic...)
	b = append(b, c.Version, c.Format)
	b = append(b, CheckData...)

	b = append(b, instrSize, intSize, numSize)
	b = appendLE64(b, uint64(checkInt))
	b = appendLE64(b, math.Float64bits(checkNum))

	b = append(b, byte(len(c.Main.Upvals)))

	b = appendFunc(b, &c.Main)

	return b
}

func appendFunc(b []byte, f *Func) []byte {
	b = appendStr(b, f.Source)
	b = appendUvarint(b, f.LineDefined)
	b = appendUvarint(b, f.LastLineDefined)

	b = append(b, f.NumParams, f.IsVararg, f.MaxStack)

	b = appendUvarint(b, len(f.Code))

	for _, ins := range f.Code {
		b = append(b, byte(ins), byte(ins>>8), byte(ins>>16), byte(ins>>24))
	}

	b = appendUvarint(b, len(f.Consts))

	for _, k := range f.Consts {
		b = append(b, k.Tag)

		switch k.Tag {
		case KNil, KFalse, KTrue:
		case KInt:
			b = appendLE64(b, uint64(k.Int))
		case KFlt:
			b = appendLE64(b, math.Float64bits(k.Num))
		case KShortStr, KLongStr:
			b = appendStr(b, k.Str)
		}
	}

	b = appendUvarint(b, len(f.Upvals))

	for _, u := range f.Upvals {
		b = append(b, u.InStack, u.Index, u.Kind)
	}

	b = appendUvarint(b, len(f.Protos))

	for n := range f.Protos {
		b = appendFunc(b, &f.Protos[n])
	}

	b = appendUvarint(b, len(f.LineInfo))
	b = append(b, f.LineInfo...)

	if f.DebugRest == nil {
		// empty absolute lines, locals and upvalue names
		b = appendUvarint(b, 0)
		b = appendUvarint(b, 0)
		b = appendUvarint(b, 0)
	} else {
		b = append(b, f.DebugRest...)
	}

	return b
}

// appendUvarint encodes the dump size format: big endian 7 bit groups, the
// last byte marked with the high bit.
func appendUvarint(b []byte, v int) []byte {
	if v < 0 {
		panic("luac: negative length")
	}

	var tmp [10]byte
	n := 0

	for {
		tmp[n] = byte(v) & 0x7f
		n++
		v >>= 7

		if v == 0 {
			break
		}
	}

	for j := n - 1; j >= 0; j-- {
		x := tmp[j]
		if j == 0 {
			x |= 0x80
		}

		b = append(b, x)
	}

	return b
}

func appendStr(b []byte, s string) []byte {
	if s == "" {
		return appendUvarint(b, 0)
	}

	b = appendUvarint(b, len(s)+1)
	return append(b, s...)
}

func appendLE64(b []byte, v uint64) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24), byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}
