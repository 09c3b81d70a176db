package wasm

import (
	"fmt"

	"nikand.dev/go/bytec/bin"
)

type (
	Op byte

	// Body is one entry of the code section: locals declarations and the
	// expression bytes, still encoded.
	Body []byte
)

const opNop = 0x01

// Opcodes, the subset the scanner tells apart. Anything else is reported as
// its hex value.
const (
	OpUnreachable Op = 0x00
	OpNop         Op = 0x01

	OpBlock   Op = 0x02
	OpLoop    Op = 0x03
	OpIf      Op = 0x04
	OpElse    Op = 0x05
	OpEnd     Op = 0x0b
	OpBr      Op = 0x0c
	OpBrIf    Op = 0x0d
	OpBrTable Op = 0x0e
	OpRet     Op = 0x0f

	OpCall      Op = 0x10
	OpCallIndir Op = 0x11

	OpDrop   Op = 0x1a
	OpSelect Op = 0x1b

	OpLocalGet  Op = 0x20
	OpLocalSet  Op = 0x21
	OpLocalTee  Op = 0x22
	OpGlobalGet Op = 0x23
	OpGlobalSet Op = 0x24

	OpLoadFirst Op = 0x28 // i32.load
	OpStoreLast Op = 0x3e // i64.store32

	OpMemorySize Op = 0x3f
	OpMemoryGrow Op = 0x40

	OpI32Const Op = 0x41
	OpI64Const Op = 0x42
	OpF32Const Op = 0x43
	OpF64Const Op = 0x44

	OpNumFirst Op = 0x45 // i32.eqz
	OpNumLast  Op = 0xa6 // f64.copysign
)

// Bodies splits the code section payload into function bodies. A body whose
// declared size runs past the buffer is cut short.
func (m *Module) Bodies() (r []Body) {
	var d bin.Decoder

	s := m.Section(CodeSection)
	if s == nil {
		return nil
	}

	p := s.Payload

	l, i := d.Int(p, 0)

	for n := 0; n < l && i < len(p); n++ {
		size, j := d.Int(p, i)

		end := j + size
		if size < 0 || end > len(p) {
			end = len(p)
		}

		r = append(r, Body(p[j:end]))
		i = end
	}

	return r
}

// Walk visits each instruction of an encoded expression, passing the offset,
// the opcode and the raw instruction bytes including immediates. It stops at
// the End closing the outermost block, at an opcode it can not size, or at
// the end of the buffer, and returns the next offset.
func Walk(b []byte, st int, f func(off int, op Op, raw []byte)) (i int) {
	var d bin.Decoder

	i = st
	depth := 0

	for i < len(b) {
		opst := i
		op := Op(b[i])
		i++

		switch {
		case op <= OpNop || op == OpElse || op == OpRet:
		case op == OpBlock || op == OpLoop || op == OpIf:
			depth++
		case op == OpEnd:
			depth--
		case op == OpBr || op == OpBrIf || op == OpCall:
			_, i = d.Sint(b, i)
		case op == OpBrTable:
			var l int
			l, i = d.Int(b, i)

			for j := 0; j < l+1; j++ {
				_, i = d.Int(b, i)
			}
		case op == OpCallIndir:
			_, i = d.Sint(b, i)
			i++
		case op == OpDrop || op == OpSelect:
		case op >= OpLocalGet && op <= OpGlobalSet:
			_, i = d.Sint(b, i)
		case op >= OpLoadFirst && op <= OpStoreLast:
			_, i = d.Sint(b, i)
			_, i = d.Sint(b, i)
		case op == OpMemorySize || op == OpMemoryGrow:
		case op == OpI32Const || op == OpI64Const:
			_, i = d.Sint(b, i)
		case op == OpF32Const:
			i += 4
		case op == OpF64Const:
			i += 8
		case op >= OpNumFirst && op <= OpNumLast:
		default:
			if f != nil {
				f(opst, op, b[opst:i])
			}

			return i
		}

		if i > len(b) {
			i = len(b)
		}

		if f != nil {
			f(opst, op, b[opst:i])
		}

		if depth < 0 {
			return i
		}
	}

	return i
}

func (op Op) String() string {
	if n := opNames[op]; n != "" {
		return n
	}

	return fmt.Sprintf("0x%02x", int(op))
}

var opNames = map[Op]string{
	OpUnreachable: "unreachable",
	OpNop:         "nop",
	OpBlock:       "block",
	OpLoop:        "loop",
	OpIf:          "if",
	OpElse:        "else",
	OpEnd:         "end",
	OpBr:          "br",
	OpBrIf:        "br_if",
	OpBrTable:     "br_table",
	OpRet:         "return",
	OpCall:        "call",
	OpCallIndir:   "call_indirect",
	OpDrop:        "drop",
	OpSelect:      "select",
	OpLocalGet:    "local.get",
	OpLocalSet:    "local.set",
	OpLocalTee:    "local.tee",
	OpGlobalGet:   "global.get",
	OpGlobalSet:   "global.set",
	OpMemorySize:  "memory.size",
	OpMemoryGrow:  "memory.grow",
	OpI32Const:    "i32.const",
	OpI64Const:    "i64.const",
	OpF32Const:    "f32.const",
	OpF64Const:    "f64.const",
}
