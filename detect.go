// Package bytec is a multi-format bytecode transformation pipeline.
// It detects a container format from leading magic bytes, dispatches a
// transform directive to the matching codec, and returns re-serialized
// bytes. Parsing is lenient throughout: codecs keep the original buffer
// and fall back to it when a structure cannot be decoded.
package bytec

import "bytes"

type (
	Format int
)

const (
	Unknown Format = iota
	Wasm
	Luac
	Pyc
	Dex
	CIL
	V8Snapshot
	IR
)

var (
	wasmMagic = []byte{0x00, 0x61, 0x73, 0x6d}
	dexMagic  = []byte{0x64, 0x65, 0x78, 0x0a}
	luacMagic = []byte{0x1b, 0x4c, 0x75, 0x61}
)

// Detect classifies a buffer by its leading bytes.
// Rules are checked in priority order. Anything shorter
// than 4 bytes is Unknown.
func Detect(b []byte) Format {
	if len(b) < 4 {
		return Unknown
	}

	switch {
	case bytes.HasPrefix(b, wasmMagic):
		return Wasm
	case bytes.HasPrefix(b, dexMagic):
		return Dex
	case b[0] == 0xa7 || b[0] == 0x6f: // pyc magic heuristic, the version table is incomplete
		return Pyc
	case bytes.HasPrefix(b, luacMagic):
		return Luac
	case b[0] == 'B' && b[1] == 'C':
		return IR
	case b[0] == 'M' && b[1] == 'Z':
		return CIL
	}

	return Unknown
}

// ParseFormat maps a format name back to its tag. Unrecognized names,
// "auto" included, map to Unknown.
func ParseFormat(s string) Format {
	for f := Wasm; f <= IR; f++ {
		if f.String() == s {
			return f
		}
	}

	return Unknown
}

func (f Format) String() string {
	switch f {
	case Wasm:
		return "wasm"
	case Luac:
		return "luac"
	case Pyc:
		return "pyc"
	case Dex:
		return "dex"
	case CIL:
		return "cil"
	case V8Snapshot:
		return "v8s"
	case IR:
		return "ir"
	}

	return "unknown"
}
