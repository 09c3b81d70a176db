// Package cil implements a best effort codec for managed bytecode
// assemblies embedded in PE images: header metadata extraction, a tiny IL
// mnemonic assembler for method injection, and passthrough serialization.
package cil

import (
	"strconv"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"nikand.dev/go/bytec/bin"
)

type (
	Assembly struct {
		FrameworkTag string

		Metadata map[string]string

		Injected []Method

		Raw []byte

		hdr bool
	}

	Method struct {
		Name string
		Body []byte
	}

	Stats struct {
		Injected  int
		Annotated int
	}

	Options struct {
		FrameworkTag string

		// InjectSource is IL source for the injected method: one mnemonic
		// per line, an optional integer operand after the mnemonic.
		InjectName   string
		InjectSource string

		Annotate map[string]string
	}
)

// One byte IL opcodes plus the two operand forms the assembler knows.
var mnemonics = map[string]struct {
	op      byte
	operand int // operand size in bytes
}{
	"nop":      {0x00, 0},
	"ldarg.0":  {0x02, 0},
	"ldarg.1":  {0x03, 0},
	"ldc.i4.0": {0x16, 0},
	"ldc.i4.1": {0x17, 0},
	"ldc.i4.s": {0x1f, 1},
	"ldc.i4":   {0x20, 4},
	"pop":      {0x26, 0},
	"ret":      {0x2a, 0},
	"add":      {0x58, 0},
	"sub":      {0x59, 0},
	"mul":      {0x5a, 0},
}

func Parse(b []byte) *Assembly {
	var d bin.Decoder

	a := &Assembly{Raw: b, Metadata: map[string]string{}}

	if len(b) < 0x40 || b[0] != 'M' || b[1] != 'Z' {
		tlog.V("cil").Printw("no pe header", "len", len(b))
		return a
	}

	a.hdr = true

	peOff, _ := d.Uint32(b, 0x3c)

	if int(peOff)+6 <= len(b) && b[peOff] == 'P' && b[peOff+1] == 'E' {
		machine, _ := d.Uint16(b, int(peOff)+4)
		a.Metadata["machine"] = "0x" + strconv.FormatUint(uint64(machine), 16)
	}

	a.Metadata["pe_offset"] = strconv.FormatUint(uint64(peOff), 10)

	return a
}

func (a *Assembly) Transform(opt Options) (st Stats, err error) {
	if opt.FrameworkTag != "" {
		a.FrameworkTag = opt.FrameworkTag
	}

	for k, v := range opt.Annotate {
		a.Metadata[k] = v
		st.Annotated++
	}

	if opt.InjectName != "" {
		body, err := Assemble(opt.InjectSource)
		if err != nil {
			return st, errors.Wrap(err, "method %v", opt.InjectName)
		}

		a.Injected = append(a.Injected, Method{Name: opt.InjectName, Body: body})
		st.Injected = len(a.Injected)
	}

	tlog.V("pass").Printw("cil transform", "annotated", st.Annotated, "injected", st.Injected)

	return st, nil
}

// Assemble turns mnemonic lines into IL bytes.
func Assemble(src string) (b []byte, err error) {
	var e bin.Encoder

	for n, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		name, rest, _ := strings.Cut(line, " ")

		m, ok := mnemonics[name]
		if !ok {
			return nil, errors.New("line %d: unknown mnemonic: %v", n+1, name)
		}

		b = append(b, m.op)

		if m.operand == 0 {
			continue
		}

		v, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "line %d: operand", n+1)
		}

		switch m.operand {
		case 1:
			b = append(b, byte(v))
		case 4:
			b = e.Uint32(b, uint32(v))
		}
	}

	return b, nil
}

// Serialize defaults to raw payload passthrough. Injected methods are
// recorded in the model, not linked into the binary layout.
func (a *Assembly) Serialize() []byte {
	return a.Raw
}
