package luac

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunk(main Func) *Chunk {
	return &Chunk{Version: Version54, Main: main, ok: true}
}

func TestRoundTrip(tb *testing.T) {
	c := testChunk(Func{
		Source:          "@test.lua",
		LineDefined:     0,
		LastLineDefined: 10,
		NumParams:       1,
		IsVararg:        1,
		MaxStack:        4,
		Code:            []uint32{iAsBx(OpLoadI, 1, 3), iABC(OpReturn0, 0, 0, 0)},
		Consts: []Const{
			{Tag: KNil},
			{Tag: KTrue},
			{Tag: KInt, Int: -42},
			{Tag: KFlt, Num: 0.5},
			{Tag: KShortStr, Str: "hello"},
		},
		Upvals: []Upval{{InStack: 1, Index: 0, Kind: 0}},
		Protos: []Func{{
			MaxStack: 2,
			Code:     []uint32{iABC(OpReturn0, 0, 0, 0)},
		}},
		LineInfo: []byte{1, 1},
	})

	b := c.Serialize()

	p := Parse(b)
	require.True(tb, p.ok)

	assert.Equal(tb, c.Main.Source, p.Main.Source)
	assert.Equal(tb, c.Main.Code, p.Main.Code)
	assert.Equal(tb, c.Main.Consts, p.Main.Consts)
	assert.Equal(tb, c.Main.Upvals, p.Main.Upvals)
	require.Len(tb, p.Main.Protos, 1)
	assert.Equal(tb, c.Main.Protos[0].Code, p.Main.Protos[0].Code)
	assert.Equal(tb, c.Main.LineInfo, p.Main.LineInfo)

	assert.Equal(tb, b, p.Serialize())
}

func TestParseGarbage(tb *testing.T) {
	raw := []byte("not a chunk at all")

	c := Parse(raw)

	assert.False(tb, c.ok)
	assert.Equal(tb, raw, c.Serialize())

	// passes on a partial model are a no-op
	st := c.Transform(Options{Fold: true, Peephole: true, StripDebug: true})
	assert.Equal(tb, Stats{}, st)
	assert.Equal(tb, raw, c.Serialize())
}

func TestParseTruncated(tb *testing.T) {
	c := testChunk(Func{MaxStack: 2, Code: []uint32{iABC(OpReturn0, 0, 0, 0)}})

	b := c.Serialize()

	p := Parse(b[:len(b)-3])

	assert.False(tb, p.ok)
	assert.Equal(tb, b[:len(b)-3], p.Serialize())
}

func TestParseHugeCounts(tb *testing.T) {
	// header through the main function fixed fields
	head := func() []byte {
		b := append([]byte{}, Magic...)
		b = append(b, Version54, 0)
		b = append(b, CheckData...)
		b = append(b, instrSize, intSize, numSize)
		b = appendLE64(b, uint64(checkInt))
		b = appendLE64(b, math.Float64bits(checkNum))
		b = append(b, 0)        // main upvalue count
		b = appendUvarint(b, 0) // source absent
		b = appendUvarint(b, 0)
		b = appendUvarint(b, 0)
		return append(b, 0, 0, 2) // params, vararg, maxstack
	}

	for _, tc := range []struct {
		N string
		B []byte
	}{
		// counts big enough that count*size overflows a naive bound check
		{"CodeSize", appendUvarint(head(), 1<<61)},
		{"UpvalCount", func() []byte {
			b := appendUvarint(head(), 1) // one instruction
			b = append(b, 0, 0, 0, 0)
			b = appendUvarint(b, 0) // constants
			return appendUvarint(b, 1<<62)
		}()},
		{"LineInfoSize", func() []byte {
			b := appendUvarint(head(), 0) // no code
			b = appendUvarint(b, 0)       // constants
			b = appendUvarint(b, 0)       // upvalues
			b = appendUvarint(b, 0)       // prototypes
			return appendUvarint(b, 1<<62)
		}()},
	} {
		tc := tc

		tb.Run(tc.N, func(tb *testing.T) {
			c := Parse(tc.B)

			assert.False(tb, c.ok)
			assert.Equal(tb, tc.B, c.Serialize())
		})
	}
}

func TestFoldPreservesCount(tb *testing.T) {
	c := testChunk(Func{
		MaxStack: 4,
		Code: []uint32{
			iAsBx(OpLoadI, 1, 3),
			iAsBx(OpLoadI, 2, 5),
			iABC(OpAdd, 3, 1, 2),
			iABC(OpReturn0, 0, 0, 0),
		},
	})

	st := c.Transform(Options{Fold: true})

	assert.Equal(tb, 1, st.Folded)
	require.Len(tb, c.Main.Code, 4)

	assert.Equal(tb, iAsBx(OpLoadI, 3, 8), c.Main.Code[0])
	assert.Equal(tb, nopIns, c.Main.Code[1])
	assert.Equal(tb, nopIns, c.Main.Code[2])
}

func TestFoldSubMul(tb *testing.T) {
	c := testChunk(Func{
		MaxStack: 4,
		Code: []uint32{
			iAsBx(OpLoadI, 1, 7),
			iAsBx(OpLoadI, 2, 3),
			iABC(OpSub, 3, 1, 2),
			iAsBx(OpLoadI, 1, 6),
			iAsBx(OpLoadI, 2, 7),
			iABC(OpMul, 3, 1, 2),
		},
	})

	st := c.Transform(Options{Fold: true})

	assert.Equal(tb, 2, st.Folded)
	assert.Equal(tb, iAsBx(OpLoadI, 3, 4), c.Main.Code[0])
	assert.Equal(tb, iAsBx(OpLoadI, 3, 42), c.Main.Code[3])
}

func TestFoldRegisterMismatch(tb *testing.T) {
	c := testChunk(Func{
		MaxStack: 4,
		Code: []uint32{
			iAsBx(OpLoadI, 1, 3),
			iAsBx(OpLoadI, 2, 5),
			iABC(OpAdd, 3, 2, 1), // operands swapped relative to the loads
		},
	})

	st := c.Transform(Options{Fold: true})

	assert.Equal(tb, 0, st.Folded)
	assert.Equal(tb, iAsBx(OpLoadI, 1, 3), c.Main.Code[0])
}

func TestPeephole(tb *testing.T) {
	jmp0 := uint32(OpJmp) | uint32(0+offsetSJ)<<7 // zero offset jump, isJ encoding

	c := testChunk(Func{
		MaxStack: 4,
		Code: []uint32{
			iABC(OpMove, 1, 2, 0),
			iABC(OpMove, 2, 1, 0), // redundant back-copy
			jmp0,
		},
	})

	st := c.Transform(Options{Peephole: true})

	assert.Equal(tb, 2, st.Peephole)
	assert.Equal(tb, iABC(OpMove, 1, 2, 0), c.Main.Code[0])
	assert.Equal(tb, nopIns, c.Main.Code[1])
	assert.Equal(tb, nopIns, c.Main.Code[2])
}

func TestPeepholeCloseReturn(tb *testing.T) {
	c := testChunk(Func{
		MaxStack: 2,
		Code: []uint32{
			iABC(OpClose, 0, 0, 0),
			iABC(OpReturn0, 0, 0, 0),
		},
	})

	st := c.Transform(Options{Peephole: true})

	assert.Equal(tb, 1, st.Peephole)
	assert.Equal(tb, nopIns, c.Main.Code[0])
	assert.Equal(tb, iABC(OpReturn0, 0, 0, 0), c.Main.Code[1])
}

func TestPeepholeSkipsFoldedSlots(tb *testing.T) {
	c := testChunk(Func{
		MaxStack: 4,
		Code: []uint32{
			iAsBx(OpLoadI, 1, 3),
			iAsBx(OpLoadI, 2, 5),
			iABC(OpAdd, 3, 1, 2),
		},
	})

	st := c.Transform(Options{Fold: true, Peephole: true})

	assert.Equal(tb, 1, st.Folded)
	assert.Equal(tb, 0, st.Peephole)
}

func TestInlineMark(tb *testing.T) {
	c := testChunk(Func{
		MaxStack: 4,
		Code: []uint32{
			uint32(OpClosure) | 1<<7 | 0<<15, // CLOSURE r1, proto 0
			iABC(OpReturn0, 0, 0, 0),
		},
		Protos: []Func{
			{NumParams: 1, MaxStack: 2, Code: []uint32{iABC(OpReturn0, 0, 0, 0)}},
			{NumParams: 3, MaxStack: 8, Code: make([]uint32, 20)},
		},
	})

	st := c.Transform(Options{Inline: true})

	assert.Equal(tb, 1, st.InlineMarked)
	assert.True(tb, c.Main.Protos[0].Inlinable)
	assert.False(tb, c.Main.Protos[1].Inlinable)
	assert.Equal(tb, nopIns, c.Main.Code[0])
}

func TestStripDebug(tb *testing.T) {
	c := testChunk(Func{
		Source:   "@x.lua",
		MaxStack: 2,
		Code:     []uint32{iABC(OpReturn0, 0, 0, 0)},
		LineInfo: []byte{1},
		Protos: []Func{{
			Source:   "@x.lua",
			MaxStack: 2,
			Code:     []uint32{iABC(OpReturn0, 0, 0, 0)},
			LineInfo: []byte{2},
		}},
	})

	st := c.Transform(Options{StripDebug: true})

	assert.Equal(tb, 2, st.Stripped)
	assert.Empty(tb, c.Main.Source)
	assert.Nil(tb, c.Main.LineInfo)
	assert.Nil(tb, c.Main.Protos[0].LineInfo)

	// stripping is visible in the serialized bytes
	p := Parse(c.Serialize())
	require.True(tb, p.ok)
	assert.Empty(tb, p.Main.Source)
	assert.Empty(tb, p.Main.LineInfo)
}

func TestVarint(tb *testing.T) {
	var b []byte

	for _, x := range []int{0, 1, 127, 128, 300, 1 << 20} {
		b = appendUvarint(b[:0], x)

		v, i, err := uvarint(b, 0)
		require.NoError(tb, err)
		assert.Equal(tb, len(b), i)
		assert.Equal(tb, x, v)
	}

	assert.Panics(tb, func() { appendUvarint(nil, -1) })
}
