package bytec

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(tb *testing.T) {
	for _, tc := range []struct {
		N string
		B []byte
		F Format
	}{
		{"wasm", []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0, 0, 0}, Wasm},
		{"dex", []byte("dex\n039\x00"), Dex},
		{"pyc_a7", []byte{0xa7, 0x0d, 0x0d, 0x0a}, Pyc},
		{"pyc_6f", []byte{0x6f, 0x0d, 0x0d, 0x0a}, Pyc},
		{"luac", []byte("\x1bLua\x54"), Luac},
		{"bitcode", []byte("BC\xc0\xde"), IR},
		{"pe", []byte("MZ\x90\x00"), CIL},
		{"short", []byte{0x00, 0x61, 0x73}, Unknown},
		{"empty", nil, Unknown},
		{"garbage", []byte("\xff\xfe\xfd\xfc"), Unknown},
	} {
		tc := tc

		tb.Run(tc.N, func(tb *testing.T) {
			assert.Equal(tb, tc.F, Detect(tc.B))
		})
	}
}
