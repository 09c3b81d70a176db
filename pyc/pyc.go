// Package pyc implements a best effort codec for compiled Python files:
// the 16 byte header, a magic to version lookup, and a shallow decode of
// the top level code object good enough for in place wordcode patching.
package pyc

import (
	"tlog.app/go/tlog"

	"nikand.dev/go/bytec/bin"
)

type (
	File struct {
		MagicNum  uint16
		Version   string
		Flags     uint32
		Timestamp uint32
		Size      uint32

		// Bytecode is the top level code object wordcode, nil when the
		// shallow decode gave up. Absence must not fail serialization.
		Bytecode []byte

		// Consts is the decoded prefix of the constant pool: leading
		// small ints only, enough for the folder.
		Consts []int64

		Raw []byte

		codeOff int
		hdr     bool
		patched bool
	}
)

const headerSize = 16

// Incomplete by design: versions the transforms were exercised against.
var versions = map[uint16]string{
	3394: "3.7",
	3413: "3.8",
	3425: "3.9",
	3439: "3.10",
	3495: "3.11",
	3531: "3.12",
}

// marshal type codes, ref flag masked off
const (
	typeCode       = 'c'
	typeString     = 's'
	typeSmallTuple = ')'
	typeInt        = 'i'
)

func Parse(b []byte) *File {
	var d bin.Decoder

	f := &File{Raw: b}

	if len(b) < headerSize || b[2] != '\r' || b[3] != '\n' {
		tlog.V("pyc").Printw("no pyc header", "len", len(b))
		return f
	}

	f.MagicNum, _ = d.Uint16(b, 0)
	f.Version = versions[f.MagicNum]
	f.Flags, _ = d.Uint32(b, 4)
	f.Timestamp, _ = d.Uint32(b, 8)
	f.Size, _ = d.Uint32(b, 12)
	f.hdr = true

	f.decodeCode(b[headerSize:])

	return f
}

// decodeCode walks the marshal payload far enough to find the top level
// wordcode and the leading small int constants. Anything unexpected stops
// the walk, the fields just stay empty.
func (f *File) decodeCode(p []byte) {
	var d bin.Decoder

	if len(p) == 0 || p[0]&0x7f != typeCode {
		return
	}

	// w_long header fields before co_code; 3.8 added posonlyargcount,
	// 3.11 restructured the whole object and is left undecoded
	var fields int

	switch {
	case f.MagicNum == 3394:
		fields = 5
	case f.MagicNum >= 3413 && f.MagicNum < 3495:
		fields = 6
	default:
		return
	}

	i := 1 + 4*fields

	if i >= len(p) || p[i]&0x7f != typeString {
		return
	}

	l, j := d.Uint32(p, i+1)

	end := j + int(l)
	if end > len(p) {
		return
	}

	f.Bytecode = append([]byte{}, p[j:end]...)
	f.codeOff = headerSize + j

	f.decodeConsts(p, end)

	tlog.V("pyc").Printw("code object", "version", f.Version, "code", len(f.Bytecode), "consts", len(f.Consts))
}

func (f *File) decodeConsts(p []byte, i int) {
	var d bin.Decoder

	if i >= len(p) || p[i]&0x7f != typeSmallTuple {
		return
	}

	n, i := d.Byte(p, i+1)

	for k := 0; k < int(n) && i < len(p); k++ {
		if p[i]&0x7f != typeInt {
			return
		}

		v, j := d.Uint32(p, i+1)

		f.Consts = append(f.Consts, int64(int32(v)))
		i = j
	}
}

// Serialize returns the original bytes with the wordcode region patched in
// when a transform touched it.
func (f *File) Serialize() []byte {
	if !f.patched || f.Bytecode == nil {
		return f.Raw
	}

	out := append([]byte{}, f.Raw...)
	copy(out[f.codeOff:], f.Bytecode)

	return out
}
