package pyc

import "tlog.app/go/tlog"

type (
	Options struct {
		StripAsserts   bool
		StripDocstring bool
		Fold           bool
	}

	Stats struct {
		AssertsStripped   int
		DocstringStripped bool
		Folded            int
	}
)

// Wordcode opcodes (3.8-3.10 numbering). Instructions are a fixed two
// bytes, rewrites keep jump targets valid.
const (
	opNop                = 9
	opBinaryMultiply     = 20
	opBinaryAdd          = 23
	opBinarySubtract     = 24
	opLoadAssertionError = 74
	opStoreName          = 90
	opLoadConst          = 100
	opRaiseVarargs       = 130
)

// Transform patches the decoded wordcode in place. Without a decoded code
// object it does nothing, the container still serializes.
func (f *File) Transform(opt Options) (st Stats) {
	if f.Bytecode == nil {
		return st
	}

	if opt.StripDocstring {
		st.DocstringStripped = f.stripDocstring()
	}

	if opt.StripAsserts {
		st.AssertsStripped = f.stripAsserts()
	}

	if opt.Fold {
		st.Folded = f.fold()
	}

	if st.AssertsStripped > 0 || st.DocstringStripped || st.Folded > 0 {
		f.patched = true
	}

	tlog.V("pass").Printw("pyc transform",
		"asserts", st.AssertsStripped, "docstring", st.DocstringStripped, "folded", st.Folded)

	return st
}

func (f *File) nop(i int) {
	f.Bytecode[i] = opNop
	f.Bytecode[i+1] = 0
}

// stripDocstring blanks the module level LOAD_CONST 0; STORE_NAME pair.
func (f *File) stripDocstring() bool {
	c := f.Bytecode

	if len(c) < 4 || c[0] != opLoadConst || c[1] != 0 || c[2] != opStoreName {
		return false
	}

	f.nop(0)
	f.nop(2)

	return true
}

// stripAsserts blanks everything from LOAD_ASSERTION_ERROR through the
// RAISE_VARARGS that ends the assert arm. The guarding conditional jump is
// left alone: taken it skips the arm, not taken it falls through the no-ops.
func (f *File) stripAsserts() (n int) {
	c := f.Bytecode

	for i := 0; i+1 < len(c); i += 2 {
		if c[i] != opLoadAssertionError {
			continue
		}

		for j := i; j+1 < len(c); j += 2 {
			op := c[j]
			f.nop(j)

			if op == opRaiseVarargs {
				break
			}
		}

		n++
	}

	return n
}

// fold rewrites LOAD_CONST a; LOAD_CONST b; BINARY_* when both operands
// are known small ints and the result already exists in the decoded pool
// prefix. The pool itself is never rewritten.
func (f *File) fold() (n int) {
	c := f.Bytecode

	for i := 0; i+5 < len(c); i += 2 {
		if c[i] != opLoadConst || c[i+2] != opLoadConst {
			continue
		}

		a, b := int(c[i+1]), int(c[i+3])
		if a >= len(f.Consts) || b >= len(f.Consts) {
			continue
		}

		var v int64

		switch c[i+4] {
		case opBinaryAdd:
			v = f.Consts[a] + f.Consts[b]
		case opBinarySubtract:
			v = f.Consts[a] - f.Consts[b]
		case opBinaryMultiply:
			v = f.Consts[a] * f.Consts[b]
		default:
			continue
		}

		idx := -1

		for k, x := range f.Consts {
			if x == v {
				idx = k
				break
			}
		}

		if idx < 0 || idx > 0xff {
			continue
		}

		c[i] = opLoadConst
		c[i+1] = byte(idx)
		f.nop(i + 2)
		f.nop(i + 4)

		n++
		i += 4
	}

	return n
}
