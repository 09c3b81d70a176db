// Package luac implements the Lua 5.4 binary chunk codec: recursive
// prototype parsing, a few instruction level passes and re-serialization.
package luac

type (
	Chunk struct {
		Version byte
		Format  byte

		Main Func

		// Raw is the original buffer, the serialization fallback for
		// chunks that did not parse completely.
		Raw []byte

		ok bool
	}

	// Func is one function prototype. The tree is strictly owned: a parent
	// holds its nested prototypes by value.
	Func struct {
		Source          string
		LineDefined     int
		LastLineDefined int

		NumParams byte
		IsVararg  byte
		MaxStack  byte

		Code   []uint32
		Consts []Const
		Upvals []Upval
		Protos []Func

		// LineInfo is the debug line blob. DebugRest keeps the remaining
		// debug sections (absolute lines, locals, upvalue names) encoded,
		// they are not modeled beyond their extent.
		LineInfo  []byte
		DebugRest []byte

		Inlinable bool
	}

	Const struct {
		Tag byte

		Int int64
		Num float64
		Str string
	}

	Upval struct {
		InStack byte
		Index   byte
		Kind    byte
	}

	Stats struct {
		Folded       int
		Peephole     int
		InlineMarked int
		Stripped     int
	}
)

// Chunk header.
var (
	Magic     = []byte("\x1bLua")
	CheckData = []byte("\x19\x93\r\n\x1a\n")
)

const (
	Version54 = 0x54

	instrSize = 4
	intSize   = 8
	numSize   = 8

	checkInt = 0x5678
	checkNum = 370.5
)

// Constant tags.
const (
	KNil      = 0x00
	KFalse    = 0x01
	KInt      = 0x03
	KShortStr = 0x04
	KTrue     = 0x11
	KFlt      = 0x13
	KLongStr  = 0x14
)

// Opcodes the passes care about.
const (
	OpMove    = 0
	OpLoadI   = 1
	OpAdd     = 34
	OpSub     = 35
	OpMul     = 36
	OpClose   = 54
	OpJmp     = 56
	OpReturn0 = 71
	OpClosure = 79
)

// Instruction layout: op 0:7, A 7:15, k 15:16, B 16:24, C 24:32.
// iAsBx packs sBx into 15:32 with excess offsetSBx, isJ packs sJ into 7:32
// with excess offsetSJ.
const (
	offsetSBx = 1<<16 - 1
	offsetSJ  = 1<<24 - 1
)

// nopIns is the semantically neutral MOVE r0, r0 used as a pass
// placeholder. Rewriting in place keeps instruction counts and jump
// targets intact.
const nopIns uint32 = 0

func opcode(ins uint32) byte { return byte(ins & 0x7f) }
func argA(ins uint32) int    { return int(ins >> 7 & 0xff) }
func argB(ins uint32) int    { return int(ins >> 16 & 0xff) }
func argC(ins uint32) int    { return int(ins >> 24 & 0xff) }
func argBx(ins uint32) int   { return int(ins >> 15) }
func argSBx(ins uint32) int  { return int(ins>>15) - offsetSBx }
func argSJ(ins uint32) int   { return int(ins>>7) - offsetSJ }

func iABC(op byte, a, b, c int) uint32 {
	return uint32(op) | uint32(a)<<7 | uint32(b)<<16 | uint32(c)<<24
}

func iAsBx(op byte, a, v int) uint32 {
	return uint32(op) | uint32(a)<<7 | uint32(v+offsetSBx)<<15
}

func fitsSBx(v int) bool {
	return v >= -offsetSBx && v <= 1<<17-1-offsetSBx
}
