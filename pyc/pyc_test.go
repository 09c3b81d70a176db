package pyc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nikand.dev/go/bytec/bin"
)

func testFile(tb *testing.T, code []byte, consts []int32) []byte {
	var e bin.Encoder

	b := e.Uint16(nil, 3425) // 3.9
	b = append(b, '\r', '\n')
	b = e.Uint32(b, 0)          // flags
	b = e.Uint32(b, 0x5f000000) // timestamp
	b = e.Uint32(b, uint32(len(code)))

	b = append(b, typeCode|0x80)

	for i := 0; i < 6; i++ { // argcount .. flags
		b = e.Uint32(b, 0)
	}

	b = append(b, typeString|0x80)
	b = e.Uint32(b, uint32(len(code)))
	b = append(b, code...)

	b = append(b, typeSmallTuple|0x80, byte(len(consts)))

	for _, v := range consts {
		b = append(b, typeInt|0x80)
		b = e.Uint32(b, uint32(v))
	}

	return b
}

func TestParse(tb *testing.T) {
	code := []byte{opLoadConst, 0, opStoreName, 0}

	f := Parse(testFile(tb, code, []int32{1, 2, 3}))

	require.True(tb, f.hdr)
	assert.Equal(tb, "3.9", f.Version)
	assert.Equal(tb, code, f.Bytecode)
	assert.Equal(tb, []int64{1, 2, 3}, f.Consts)
}

func TestParseUnknownMagic(tb *testing.T) {
	var e bin.Encoder

	b := e.Uint16(nil, 9999)
	b = append(b, '\r', '\n')
	b = append(b, make([]byte, 12)...)
	b = append(b, 0xde, 0xad)

	f := Parse(b)

	require.True(tb, f.hdr)
	assert.Empty(tb, f.Version)
	assert.Nil(tb, f.Bytecode)

	// undecoded fields must not fail serialization
	assert.Equal(tb, b, f.Serialize())
	f.Transform(Options{StripAsserts: true, Fold: true})
	assert.Equal(tb, b, f.Serialize())
}

func TestParseGarbage(tb *testing.T) {
	raw := []byte{1, 2}

	f := Parse(raw)

	assert.False(tb, f.hdr)
	assert.Equal(tb, raw, f.Serialize())
}

func TestStripDocstring(tb *testing.T) {
	code := []byte{opLoadConst, 0, opStoreName, 0, opLoadConst, 1, opStoreName, 1}

	f := Parse(testFile(tb, code, nil))

	st := f.Transform(Options{StripDocstring: true})

	assert.True(tb, st.DocstringStripped)
	assert.Equal(tb, []byte{opNop, 0, opNop, 0, opLoadConst, 1, opStoreName, 1}, f.Bytecode)

	// patch lands in the output bytes at the same offset
	out := Parse(f.Serialize())
	assert.Equal(tb, f.Bytecode, out.Bytecode)
}

func TestStripAsserts(tb *testing.T) {
	code := []byte{
		114, 4, // POP_JUMP_IF_FALSE-ish guard, left alone
		opLoadAssertionError, 0,
		opRaiseVarargs, 1,
		opLoadConst, 0,
	}

	f := Parse(testFile(tb, code, nil))

	st := f.Transform(Options{StripAsserts: true})

	assert.Equal(tb, 1, st.AssertsStripped)
	assert.Equal(tb, []byte{
		114, 4,
		opNop, 0,
		opNop, 0,
		opLoadConst, 0,
	}, f.Bytecode)
}

func TestFold(tb *testing.T) {
	code := []byte{
		opLoadConst, 0, // 2
		opLoadConst, 1, // 3
		opBinaryAdd, 0,
		opLoadConst, 2,
	}

	f := Parse(testFile(tb, code, []int32{2, 3, 5}))

	st := f.Transform(Options{Fold: true})

	assert.Equal(tb, 1, st.Folded)
	assert.Equal(tb, []byte{
		opLoadConst, 2, // 5, found in the pool
		opNop, 0,
		opNop, 0,
		opLoadConst, 2,
	}, f.Bytecode)
}

func TestFoldNoResultConst(tb *testing.T) {
	code := []byte{
		opLoadConst, 0,
		opLoadConst, 1,
		opBinaryMultiply, 0,
	}

	f := Parse(testFile(tb, code, []int32{2, 3}))

	st := f.Transform(Options{Fold: true})

	// 6 is not in the pool, the triple stays
	assert.Equal(tb, 0, st.Folded)
	assert.Equal(tb, code, f.Bytecode)
}
