package luac

import (
	"bytes"
	stderrors "errors"
	"math"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"
)

var (
	ErrMagic         = stderrors.New("magic mismatch")
	ErrUnexpectedEOF = stderrors.New("unexpected end of chunk")
)

// Parse reads a binary chunk. Parsing is lenient: a malformed chunk yields
// a partial model and the original buffer is kept so Serialize can still
// emit something loadable.
func Parse(b []byte) *Chunk {
	c := &Chunk{Raw: b}

	i, err := c.parse(b)
	if err != nil {
		tlog.V("luac").Printw("partial chunk", "pos", i, "err", err)
		return c
	}

	if i != len(b) {
		tlog.V("luac").Printw("trailing bytes", "pos", i, "len", len(b))
	}

	c.ok = true

	return c
}

func (c *Chunk) parse(b []byte) (i int, err error) {
	if len(b) < len(Magic)+2 || !bytes.Equal(b[:len(Magic)], Magic) {
		return 0, ErrMagic
	}

	i = len(Magic)

	c.Version = b[i]
	c.Format = b[i+1]
	i += 2

	if i+len(CheckData) > len(b) || !bytes.Equal(b[i:i+len(CheckData)], CheckData) {
		return i, errors.New("compatibility check sequence mismatch")
	}

	i += len(CheckData)

	// size descriptors: instruction, integer, number
	if i+3 > len(b) {
		return i, ErrUnexpectedEOF
	}

	isz, nsz := int(b[i+1]), int(b[i+2])
	i += 3

	// sample int and float values, skipped by declared size
	if i+isz+nsz > len(b) {
		return i, ErrUnexpectedEOF
	}

	i += isz + nsz

	// upvalue count of the main function
	if i >= len(b) {
		return i, ErrUnexpectedEOF
	}

	i++

	c.Main, i, err = parseFunc(b, i)
	if err != nil {
		return i, errors.Wrap(err, "main function")
	}

	return i, nil
}

func parseFunc(b []byte, st int) (f Func, i int, err error) {
	i = st

	f.Source, i, err = str(b, i)
	if err != nil {
		return f, i, errors.Wrap(err, "source")
	}

	f.LineDefined, i, err = uvarint(b, i)
	if err == nil {
		f.LastLineDefined, i, err = uvarint(b, i)
	}
	if err != nil {
		return f, i, errors.Wrap(err, "line range")
	}

	if i+3 > len(b) {
		return f, i, ErrUnexpectedEOF
	}

	f.NumParams = b[i]
	f.IsVararg = b[i+1]
	f.MaxStack = b[i+2]
	i += 3

	l, i, err := uvarint(b, i)
	if err != nil {
		return f, i, errors.Wrap(err, "code size")
	}

	// division form, i+l*instrSize could overflow on a hostile count
	if l < 0 || l > (len(b)-i)/instrSize {
		return f, i, ErrUnexpectedEOF
	}

	f.Code = make([]uint32, l)

	for n := 0; n < l; n++ {
		f.Code[n] = uint32(b[i]) | uint32(b[i+1])<<8 | uint32(b[i+2])<<16 | uint32(b[i+3])<<24
		i += instrSize
	}

	f.Consts, i, err = parseConsts(b, i)
	if err != nil {
		return f, i, errors.Wrap(err, "constants")
	}

	f.Upvals, i, err = parseUpvals(b, i)
	if err != nil {
		return f, i, errors.Wrap(err, "upvalues")
	}

	l, i, err = uvarint(b, i)
	if err != nil {
		return f, i, errors.Wrap(err, "prototypes")
	}

	for n := 0; n < l; n++ {
		var p Func

		p, i, err = parseFunc(b, i)
		if err != nil {
			return f, i, errors.Wrap(err, "proto %d", n)
		}

		f.Protos = append(f.Protos, p)
	}

	f.LineInfo, f.DebugRest, i, err = parseDebug(b, i)
	if err != nil {
		return f, i, errors.Wrap(err, "debug")
	}

	return f, i, nil
}

func parseConsts(b []byte, st int) (r []Const, i int, err error) {
	l, i, err := uvarint(b, st)
	if err != nil {
		return nil, i, err
	}

	for n := 0; n < l; n++ {
		var k Const

		k.Tag, i, err = byteAt(b, i)
		if err != nil {
			return r, i, err
		}

		switch k.Tag {
		case KNil, KFalse, KTrue:
		case KInt:
			if i+intSize > len(b) {
				return r, i, ErrUnexpectedEOF
			}

			k.Int = int64(le64(b[i:]))
			i += intSize
		case KFlt:
			if i+numSize > len(b) {
				return r, i, ErrUnexpectedEOF
			}

			k.Num = math.Float64frombits(le64(b[i:]))
			i += numSize
		case KShortStr, KLongStr:
			k.Str, i, err = str(b, i)
			if err != nil {
				return r, i, err
			}
		default:
			return r, i, errors.New("constant %d: unsupported tag: 0x%02x", n, k.Tag)
		}

		r = append(r, k)
	}

	return r, i, nil
}

func parseUpvals(b []byte, st int) (r []Upval, i int, err error) {
	l, i, err := uvarint(b, st)
	if err != nil {
		return nil, i, err
	}

	if l < 0 || l > (len(b)-i)/3 {
		return nil, i, ErrUnexpectedEOF
	}

	for n := 0; n < l; n++ {
		r = append(r, Upval{InStack: b[i], Index: b[i+1], Kind: b[i+2]})
		i += 3
	}

	return r, i, nil
}

// parseDebug reads the line info blob and measures the remaining debug
// sections (absolute lines, locals, upvalue names) without modeling them.
func parseDebug(b []byte, st int) (line, rest []byte, i int, err error) {
	l, i, err := uvarint(b, st)
	if err != nil {
		return nil, nil, i, err
	}

	if l < 0 || l > len(b)-i {
		return nil, nil, i, ErrUnexpectedEOF
	}

	line = b[i : i+l]
	i += l

	restSt := i

	// absolute line info: pairs of varints
	l, i, err = uvarint(b, i)
	if err != nil {
		return line, nil, i, err
	}

	for n := 0; n < 2*l; n++ {
		_, i, err = uvarint(b, i)
		if err != nil {
			return line, nil, i, err
		}
	}

	// local variables: name and two varints each
	l, i, err = uvarint(b, i)
	if err != nil {
		return line, nil, i, err
	}

	for n := 0; n < l; n++ {
		_, i, err = str(b, i)
		if err == nil {
			_, i, err = uvarint(b, i)
		}
		if err == nil {
			_, i, err = uvarint(b, i)
		}
		if err != nil {
			return line, nil, i, err
		}
	}

	// upvalue names
	l, i, err = uvarint(b, i)
	if err != nil {
		return line, nil, i, err
	}

	for n := 0; n < l; n++ {
		_, i, err = str(b, i)
		if err != nil {
			return line, nil, i, err
		}
	}

	return line, b[restSt:i], i, nil
}

// uvarint reads the dump size format: big endian 7 bit groups, the last
// byte marked with the high bit. This is not LEB128.
func uvarint(b []byte, st int) (v, i int, err error) {
	i = st

	for i < len(b) {
		x := b[i]
		i++

		v = v<<7 | int(x&0x7f)

		if x&0x80 != 0 {
			return v, i, nil
		}
	}

	return 0, st, ErrUnexpectedEOF
}

// str reads a dumped string: size zero means absent, otherwise size-1
// bytes follow.
func str(b []byte, st int) (s string, i int, err error) {
	l, i, err := uvarint(b, st)
	if err != nil {
		return "", i, err
	}

	if l == 0 {
		return "", i, nil
	}

	l--

	if i+l > len(b) {
		return "", i, ErrUnexpectedEOF
	}

	s = string(b[i : i+l])
	i += l

	return s, i, nil
}

func byteAt(b []byte, st int) (v byte, i int, err error) {
	if st >= len(b) {
		return 0, st, ErrUnexpectedEOF
	}

	return b[st], st + 1, nil
}

func le64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}
