// Package dex implements a best effort codec for Android DEX containers:
// fixed offset header field extraction, a metadata level optimize mark and
// structural class def injection stubs.
package dex

import (
	"bytes"

	"tlog.app/go/tlog"

	"nikand.dev/go/bytec/bin"
)

type (
	File struct {
		VersionTag string // "035", "039", ...

		FileSize uint32

		// Header counts, descriptive metadata only.
		Strings uint32
		Types   uint32
		Methods uint32
		Classes uint32

		Optimized bool

		Injected []ClassDef

		Raw []byte

		hdr bool
	}

	ClassDef struct {
		Name string
	}

	Stats struct {
		Marked   bool
		Injected int
	}

	Options struct {
		MarkOptimized bool
		InjectClass   string
	}
)

var Magic = []byte{0x64, 0x65, 0x78, 0x0a} // "dex\n"

// Header field offsets.
const (
	offFileSize  = 32
	offStringIds = 56
	offTypeIds   = 64
	offMethodIds = 88
	offClassDefs = 96

	classDefSize = 32
)

func Parse(b []byte) *File {
	var d bin.Decoder

	f := &File{Raw: b}

	if len(b) < 8 || !bytes.Equal(b[:4], Magic) {
		tlog.V("dex").Printw("no dex header", "len", len(b))
		return f
	}

	f.VersionTag = string(bytes.TrimRight(b[4:8], "\x00"))
	f.hdr = true

	f.FileSize, _ = d.Uint32(b, offFileSize)
	f.Strings, _ = d.Uint32(b, offStringIds)
	f.Types, _ = d.Uint32(b, offTypeIds)
	f.Methods, _ = d.Uint32(b, offMethodIds)
	f.Classes, _ = d.Uint32(b, offClassDefs)

	tlog.V("dex").Printw("header", "version", f.VersionTag,
		"strings", f.Strings, "types", f.Types, "methods", f.Methods, "classes", f.Classes)

	return f
}

func (f *File) Transform(opt Options) (st Stats) {
	if opt.MarkOptimized {
		f.Optimized = true
		st.Marked = true
	}

	if opt.InjectClass != "" {
		f.Injected = append(f.Injected, ClassDef{Name: opt.InjectClass})
		st.Injected = len(f.Injected)
	}

	tlog.V("pass").Printw("dex transform", "marked", st.Marked, "injected", st.Injected)

	return st
}

// Serialize falls back to the original raw payload unless a class def was
// injected, in which case stub records are appended and the header counts
// patched. The stubs are recorded, not linked into the id tables.
func (f *File) Serialize() []byte {
	if !f.hdr || len(f.Injected) == 0 {
		return f.Raw
	}

	var e bin.Encoder

	out := append([]byte{}, f.Raw...)

	for range f.Injected {
		out = append(out, make([]byte, classDefSize)...)
	}

	patch := e.Uint32(nil, uint32(len(out)))
	copy(out[offFileSize:], patch)

	patch = e.Uint32(patch[:0], f.Classes+uint32(len(f.Injected)))
	copy(out[offClassDefs:], patch)

	return out
}
