// Package v8s implements a heuristic codec for script bytecode snapshot
// blobs: function bodies are located by a fixed two byte marker, each
// carries parameter and register counts and a length prefixed bytecode
// array.
package v8s

import (
	"bytes"

	"tlog.app/go/tlog"

	"nikand.dev/go/bytec/bin"
)

type (
	Snapshot struct {
		Funcs []Func

		Raw []byte
	}

	Func struct {
		Params byte
		Regs   byte
		Code   []byte

		// extent of the original record in Raw
		off    int
		rawEnd int
	}

	Stats struct {
		StoresElided int
		JumpsFlipped int
	}

	Options struct {
		Peephole bool
	}
)

// Marker precedes every serialized function header.
var Marker = []byte{0x2b, 0x95}

const funcHeader = 6 // marker, params, regs, u16 length

// Ignition style opcodes the peepholes look for.
const (
	opNop         = 0x00
	opLdar        = 0x0b
	opStar        = 0x18
	opLogicalNot  = 0x4c
	opJump        = 0x8a
	opJumpIfTrue  = 0x8e
	opJumpIfFalse = 0x8f
)

// Parse scans for function markers. A marker whose declared length runs
// past the buffer is ignored, the scan continues after it.
func Parse(b []byte) *Snapshot {
	var d bin.Decoder

	s := &Snapshot{Raw: b}

	for i := 0; i+funcHeader <= len(b); {
		j := bytes.Index(b[i:], Marker)
		if j < 0 {
			break
		}

		st := i + j

		if st+funcHeader > len(b) {
			break
		}

		l, k := d.Uint16(b, st+4)

		end := k + int(l)
		if end > len(b) {
			i = st + len(Marker)
			continue
		}

		s.Funcs = append(s.Funcs, Func{
			Params: b[st+2],
			Regs:   b[st+3],
			Code:   append([]byte{}, b[k:end]...),
			off:    st,
			rawEnd: end,
		})

		i = end
	}

	tlog.V("v8s").Printw("snapshot", "funcs", len(s.Funcs))

	return s
}

// Transform runs the in place peepholes over every function body.
func (s *Snapshot) Transform(opt Options) (st Stats) {
	if !opt.Peephole {
		return st
	}

	for n := range s.Funcs {
		peephole(s.Funcs[n].Code, &st)
	}

	tlog.V("pass").Printw("v8s transform", "stores", st.StoresElided, "jumps", st.JumpsFlipped)

	return st
}

// peephole elides Star r; Ldar r reloads and folds LogicalNot into the
// polarity of a following conditional jump. All rewrites keep widths.
func peephole(c []byte, st *Stats) {
	for i := 0; i+1 < len(c); i += 2 {
		op, arg := c[i], c[i+1]

		switch {
		case op == opStar && i+3 < len(c) && c[i+2] == opLdar && c[i+3] == arg:
			c[i+2] = opNop
			c[i+3] = 0
			st.StoresElided++

		case op == opLogicalNot && i+2 < len(c) && (c[i+2] == opJumpIfTrue || c[i+2] == opJumpIfFalse):
			if c[i+2] == opJumpIfTrue {
				c[i+2] = opJumpIfFalse
			} else {
				c[i+2] = opJumpIfTrue
			}

			c[i] = opNop
			c[i+1] = 0
			st.JumpsFlipped++
		}
	}
}

// Serialize rebuilds the buffer around the functions. A function's length
// field always equals its current bytecode length.
func (s *Snapshot) Serialize() []byte {
	var e bin.Encoder

	if len(s.Funcs) == 0 {
		return s.Raw
	}

	b := make([]byte, 0, len(s.Raw))
	prev := 0

	for _, f := range s.Funcs {
		if len(f.Code) > 0xffff {
			panic("v8s: bytecode length over the length field")
		}

		b = append(b, s.Raw[prev:f.off]...)

		b = append(b, Marker...)
		b = append(b, f.Params, f.Regs)
		b = e.Uint16(b, uint16(len(f.Code)))
		b = append(b, f.Code...)

		prev = f.rawEnd
	}

	b = append(b, s.Raw[prev:]...)

	return b
}
