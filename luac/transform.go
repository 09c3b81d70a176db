package luac

import (
	"github.com/willf/bitset"
	"tlog.app/go/tlog"
)

type Options struct {
	Fold       bool
	Peephole   bool
	Inline     bool
	StripDebug bool
}

// Transform runs the selected passes over the prototype tree. All passes
// rewrite instruction words in place, instruction counts and addressing are
// preserved.
func (c *Chunk) Transform(opt Options) (st Stats) {
	if !c.ok {
		return st
	}

	transformFunc(&c.Main, opt, &st)

	tlog.V("pass").Printw("luac transform",
		"folded", st.Folded, "peephole", st.Peephole,
		"inlinable", st.InlineMarked, "stripped", st.Stripped)

	return st
}

func transformFunc(f *Func, opt Options, st *Stats) {
	// done marks slots the folder rewrote, the peephole pass skips them
	done := bitset.New(uint(len(f.Code)))

	if opt.Fold {
		fold(f, done, st)
	}

	if opt.Peephole {
		peephole(f, done, st)
	}

	if opt.Inline {
		markInlinable(f, st)
	}

	if opt.StripDebug {
		stripDebug(f, st)
	}

	for n := range f.Protos {
		transformFunc(&f.Protos[n], opt, st)
	}
}

// fold rewrites LOADI a; LOADI b; ADD/SUB/MUL c,a,b triples to a single
// LOADI c with the computed value. The two consumed slots become neutral
// no-ops so addressing stays valid.
func fold(f *Func, done *bitset.BitSet, st *Stats) {
	for j := 0; j+2 < len(f.Code); j++ {
		i0, i1, i2 := f.Code[j], f.Code[j+1], f.Code[j+2]

		if opcode(i0) != OpLoadI || opcode(i1) != OpLoadI {
			continue
		}

		var v int

		switch opcode(i2) {
		case OpAdd:
			v = argSBx(i0) + argSBx(i1)
		case OpSub:
			v = argSBx(i0) - argSBx(i1)
		case OpMul:
			v = argSBx(i0) * argSBx(i1)
		default:
			continue
		}

		if argB(i2) != argA(i0) || argC(i2) != argA(i1) || !fitsSBx(v) {
			continue
		}

		f.Code[j] = iAsBx(OpLoadI, argA(i2), v)
		f.Code[j+1] = nopIns
		f.Code[j+2] = nopIns

		done.Set(uint(j)).Set(uint(j + 1)).Set(uint(j + 2))

		st.Folded++
		j += 2
	}
}

func peephole(f *Func, done *bitset.BitSet, st *Stats) {
	for j := 0; j < len(f.Code); j++ {
		if done.Test(uint(j)) {
			continue
		}

		ins := f.Code[j]

		switch {
		case opcode(ins) == OpJmp && argSJ(ins) == 0:
			f.Code[j] = nopIns
			st.Peephole++

		case opcode(ins) == OpMove && j+1 < len(f.Code) && !done.Test(uint(j+1)):
			next := f.Code[j+1]

			if opcode(next) != OpMove || ins == nopIns {
				continue
			}

			// MOVE a, b; MOVE b, a: the second copy is redundant
			if argA(next) == argB(ins) && argB(next) == argA(ins) {
				f.Code[j+1] = nopIns
				done.Set(uint(j + 1))
				st.Peephole++
			}

		case opcode(ins) == OpClose && argA(ins) == 0 && j+1 < len(f.Code) && opcode(f.Code[j+1]) == OpReturn0:
			f.Code[j] = nopIns
			st.Peephole++
		}
	}
}

// markInlinable flags small leaf prototypes and replaces their CLOSURE
// sites with a placeholder no-op. Splicing the callee body into the caller
// is not done here.
func markInlinable(f *Func, st *Stats) {
	for n := range f.Protos {
		p := &f.Protos[n]

		if len(p.Code) > 5 || p.NumParams > 2 || len(p.Upvals) != 0 {
			continue
		}

		p.Inlinable = true
		st.InlineMarked++

		for j, ins := range f.Code {
			if opcode(ins) == OpClosure && argBx(ins) == n {
				f.Code[j] = nopIns
			}
		}
	}
}

func stripDebug(f *Func, st *Stats) {
	f.Source = ""
	f.LineInfo = nil
	f.DebugRest = nil

	st.Stripped++
}
