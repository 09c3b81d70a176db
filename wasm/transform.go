package wasm

import (
	"github.com/willf/bitset"
	"tlog.app/go/tlog"

	"nikand.dev/go/bytec/bin"
)

type Options struct {
	// OptimizeLevel selects the level the external optimizer is invoked
	// with. The in-memory passes are gated individually.
	OptimizeLevel int
	ShrinkLevel   int

	// Memory limits in pages. Zero InitialMemory leaves the section alone.
	InitialMemory int
	MaxMemory     int

	AddCustom *Custom
	AddExport *Export
}

// Transform applies the structural passes selected by opt. The model is
// mutated in place.
func (m *Module) Transform(opt Options) (st Stats) {
	if opt.ShrinkLevel > 0 {
		st.CustomsDropped = m.dropCustoms()
	}

	st.NopsStripped = m.stripNops()

	if opt.InitialMemory > 0 || opt.MaxMemory > 0 {
		st.MemoryPatched = m.patchMemory(opt.InitialMemory, opt.MaxMemory)
	}

	if opt.AddCustom != nil {
		m.Sections = append(m.Sections, Section{
			ID:      CustomSection,
			Payload: AppendCustomPayload(nil, *opt.AddCustom),
		})
	}

	if opt.AddExport != nil {
		m.addExport(*opt.AddExport)
		st.ExportsPatched = true
	}

	tlog.V("pass").Printw("wasm transform",
		"nops", st.NopsStripped, "customs", st.CustomsDropped,
		"memory", st.MemoryPatched, "exports", st.ExportsPatched)

	return st
}

func (m *Module) dropCustoms() int {
	drop := bitset.New(uint(len(m.Sections)))

	for i := range m.Sections {
		if m.Sections[i].ID == CustomSection {
			drop.Set(uint(i))
		}
	}

	if drop.Count() == 0 {
		return 0
	}

	keep := m.Sections[:0]

	for i := range m.Sections {
		if !drop.Test(uint(i)) {
			keep = append(keep, m.Sections[i])
		}
	}

	m.Sections = keep

	return int(drop.Count())
}

// stripNops removes single byte Nop opcodes (0x01) from the code section
// payload. The scan is byte level, not instruction boundary aware.
func (m *Module) stripNops() int {
	s := m.Section(CodeSection)
	if s == nil {
		return 0
	}

	out := make([]byte, 0, len(s.Payload))
	n := 0

	for _, x := range s.Payload {
		if x == opNop {
			n++
			continue
		}

		out = append(out, x)
	}

	if n == 0 {
		return 0
	}

	s.Payload = out

	return n
}

func (m *Module) patchMemory(initial, max int) bool {
	s := m.Section(MemorySection)
	if s == nil {
		return false
	}

	if max == 0 {
		max = -1
	}

	s.Payload = AppendMemory(nil, initial, max)

	return true
}

// addExport re-encodes the leading entry count and appends one triple. A
// module without an export section gets a fresh one.
func (m *Module) addExport(x Export) {
	s := m.Section(ExportSection)
	if s == nil {
		m.Sections = append(m.Sections, Section{
			ID:      ExportSection,
			Payload: appendExport(bin.Encoder{}.Int(nil, 1), x),
		})

		return
	}

	var d bin.Decoder
	var e bin.Encoder

	l, i := d.Int(s.Payload, 0)
	if l < 0 {
		l = 0
	}

	p := e.Int(nil, l+1)
	p = append(p, s.Payload[i:]...)
	p = appendExport(p, x)

	s.Payload = p
}
