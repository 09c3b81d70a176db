package bytec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nikand.dev/go/bytec/wasm"
)

var wasmHeader = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func testWasm() []byte {
	b := append([]byte{}, wasmHeader...)

	// custom section: name "x", one data byte
	return append(b, 0x00, 0x03, 0x01, 'x', 0x99)
}

func TestAutoUnknownPassthrough(tb *testing.T) {
	raw := []byte{0xca, 0xfe, 0xba, 0xbe, 1, 2, 3}

	out, err := AutoTransform(raw)
	require.NoError(tb, err)

	assert.Equal(tb, raw, out)
}

func TestAutoWasmShrink(tb *testing.T) {
	p := New(&Config{DisableExternal: true})

	out, err := p.AutoTransform(testWasm())
	require.NoError(tb, err)

	assert.Equal(tb, wasmHeader, out)
	assert.Empty(tb, wasm.Parse(out).Customs())
}

func TestUnknownTransform(tb *testing.T) {
	_, err := Transform(Directive{Format: Unknown}, []byte{1, 2, 3})
	assert.ErrorIs(tb, err, ErrUnknownTransform)

	_, err = Transform(Directive{Format: Wasm, Pass: "frobnicate"}, testWasm())
	assert.ErrorIs(tb, err, ErrUnknownTransform)
}

func TestPassAlias(tb *testing.T) {
	p := New(&Config{
		Aliases:         map[string]string{"O1": "optimize"},
		DisableExternal: true,
	})

	d := Directive{Format: Wasm, Pass: "O1"}

	out, err := p.Transform(d, testWasm())
	require.NoError(tb, err)

	assert.Equal(tb, wasmHeader, out)
}

func TestExternalToolFallback(tb *testing.T) {
	// the binary does not exist, the result must match the in-memory path
	ext := New(&Config{Tools: map[string]string{"wasm": "/nonexistent/wasm-opt"}})
	mem := New(&Config{DisableExternal: true})

	d := DefaultDirective(Wasm)

	got, err := ext.Transform(d, testWasm())
	require.NoError(tb, err)

	want, err := mem.Transform(d, testWasm())
	require.NoError(tb, err)

	assert.Equal(tb, want, got)
}

func TestToolArgs(tb *testing.T) {
	assert.Equal(tb, []string{"-O", "in", "-o", "out"}, toolArgs(Wasm, 0, "in", "out"))
	assert.Equal(tb, []string{"-O", "in", "-o", "out"}, toolArgs(Wasm, 1, "in", "out"))
	assert.Equal(tb, []string{"-O3", "in", "-o", "out"}, toolArgs(Wasm, 3, "in", "out"))
	assert.Equal(tb, []string{"-O1", "-S", "in", "-o", "out"}, toolArgs(IR, 0, "in", "out"))
}

func TestDirectiveDispatch(tb *testing.T) {
	p := New(&Config{DisableExternal: true})

	for _, tc := range []struct {
		N string
		D Directive
		B []byte
	}{
		{"luac", Directive{Format: Luac}, []byte("garbage")},
		{"pyc", Directive{Format: Pyc}, []byte{0xa7, 0x0d}},
		{"dex", Directive{Format: Dex}, []byte("dex\n")},
		{"cil", Directive{Format: CIL}, []byte("MZ")},
		{"v8s", Directive{Format: V8Snapshot}, []byte{1, 2, 3}},
		{"ir", Directive{Format: IR}, []byte("ret void")},
	} {
		tc := tc

		tb.Run(tc.N, func(tb *testing.T) {
			// lenient codecs pass unparsable input through
			out, err := p.Transform(tc.D, tc.B)
			require.NoError(tb, err)
			assert.Equal(tb, tc.B, out)
		})
	}
}
