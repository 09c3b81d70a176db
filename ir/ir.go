// Package ir implements a line oriented codec for textual LLVM style IR:
// integer constant folding with use substitution, and comment/metadata
// stripping.
package ir

import (
	"strconv"
	"strings"

	"tlog.app/go/tlog"
)

type (
	Unit struct {
		Lines []string
	}

	Options struct {
		Fold          bool
		StripComments bool
		StripMetadata bool
	}

	Stats struct {
		Folded   int
		Stripped int
	}
)

func Parse(b []byte) *Unit {
	return &Unit{Lines: strings.Split(string(b), "\n")}
}

func (u *Unit) Transform(opt Options) (st Stats) {
	if opt.Fold {
		st.Folded = u.fold()
	}

	if opt.StripComments || opt.StripMetadata {
		st.Stripped = u.strip(opt)
	}

	tlog.V("pass").Printw("ir transform", "folded", st.Folded, "stripped", st.Stripped)

	return st
}

// fold rewrites `%x = add i32 A, B` with literal operands into nothing,
// substituting the computed value at every later use of %x.
func (u *Unit) fold() (n int) {
	for i, line := range u.Lines {
		name, v, ok := foldLine(line)
		if !ok {
			continue
		}

		u.Lines[i] = ""

		lit := strconv.FormatInt(v, 10)
		for j := i + 1; j < len(u.Lines); j++ {
			u.Lines[j] = replaceToken(u.Lines[j], name, lit)
		}

		n++
	}

	return n
}

func foldLine(line string) (name string, v int64, ok bool) {
	f := strings.Fields(strings.TrimSpace(line))

	if len(f) != 6 || f[1] != "=" || !strings.HasPrefix(f[0], "%") {
		return "", 0, false
	}

	a, err := strconv.ParseInt(strings.TrimSuffix(f[4], ","), 10, 64)
	if err != nil {
		return "", 0, false
	}

	b, err := strconv.ParseInt(f[5], 10, 64)
	if err != nil {
		return "", 0, false
	}

	switch f[2] {
	case "add":
		v = a + b
	case "sub":
		v = a - b
	case "mul":
		v = a * b
	default:
		return "", 0, false
	}

	return f[0], v, true
}

// replaceToken substitutes name only where it is not a prefix of a longer
// identifier.
func replaceToken(line, name, lit string) string {
	var b strings.Builder

	for {
		i := strings.Index(line, name)
		if i < 0 {
			break
		}

		end := i + len(name)

		if end < len(line) && isIdent(line[end]) {
			b.WriteString(line[:end])
			line = line[end:]
			continue
		}

		b.WriteString(line[:i])
		b.WriteString(lit)
		line = line[end:]
	}

	b.WriteString(line)

	return b.String()
}

func isIdent(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '.'
}

func (u *Unit) strip(opt Options) (n int) {
	out := u.Lines[:0]

	for _, line := range u.Lines {
		t := strings.TrimSpace(line)

		switch {
		case opt.StripComments && strings.HasPrefix(t, ";"):
			n++
			continue
		case opt.StripMetadata && strings.HasPrefix(t, "!"):
			n++
			continue
		}

		if opt.StripMetadata {
			if i := strings.Index(line, ", !"); i >= 0 {
				line = line[:i]
				n++
			}
		}

		out = append(out, line)
	}

	u.Lines = out

	return n
}

func (u *Unit) Serialize() []byte {
	return []byte(strings.Join(u.Lines, "\n"))
}
