package wasm

import (
	"bytes"
	"encoding/binary"

	"tlog.app/go/tlog"

	"nikand.dev/go/bytec/bin"
)

// Parse reads a module into the raw section model. It never fails: a buffer
// without the 8 byte header yields a model that serializes back to the
// original bytes, and a truncated trailing section is read short.
func Parse(b []byte) *Module {
	var d bin.Decoder

	m := &Module{Raw: b}

	if len(b) < 8 || !bytes.Equal(b[:4], Magic) {
		tlog.V("section").Printw("no wasm header", "len", len(b))
		return m
	}

	m.Version = binary.LittleEndian.Uint32(b[4:])
	m.hdr = true

	i := 8

	for i < len(b) {
		id := b[i]

		size, j := d.Int(b, i+1)

		end := j + size
		if size < 0 || end > len(b) {
			end = len(b)
		}

		tlog.V("section").Printw("section", "id", id, "name", SectionName(id), "size", size, "have", end-j)

		m.Sections = append(m.Sections, Section{ID: id, Payload: b[j:end]})

		i = end
	}

	return m
}

// ParseExports decodes the export section payload. Garbage entries end the
// walk instead of failing it.
func ParseExports(p []byte) (r []Export) {
	var d bin.Decoder

	l, i := d.Int(p, 0)

	for n := 0; n < l && i < len(p); n++ {
		name, j := d.Name(p, i)

		kind, j := d.Byte(p, j)

		idx, j := d.Int(p, j)
		if j <= i {
			break
		}

		r = append(r, Export{Name: name, Kind: kind, Index: idx})
		i = j
	}

	return r
}

// ParseCustom splits a custom section payload into name and data.
func ParseCustom(p []byte) Custom {
	var d bin.Decoder

	name, i := d.Name(p, 0)

	return Custom{Name: name, Data: p[i:]}
}
