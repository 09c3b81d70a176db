// Package wasm implements the WASM container codec: a raw section model,
// lenient parsing, a few structural transform passes and re-serialization.
package wasm

type (
	Module struct {
		Version uint32

		Sections []Section

		// Raw is the original buffer. Serialize falls back to it when the
		// header never parsed.
		Raw []byte

		hdr bool
	}

	Section struct {
		ID      byte
		Payload []byte
	}

	Custom struct {
		Name string
		Data []byte
	}

	Export struct {
		Name  string
		Kind  byte
		Index int
	}

	Stats struct {
		NopsStripped   int
		CustomsDropped int
		MemoryPatched  bool
		ExportsPatched bool
	}
)

var Magic = []byte("\000asm")

const Version1 = 1

// Section ids.
const (
	CustomSection = iota
	TypeSection
	ImportSection
	FunctionSection
	TableSection
	MemorySection
	GlobalSection
	ExportSection
	StartSection
	ElementSection
	CodeSection
	DataSection
	DataCountSection
)

// Limit kinds.
const (
	LimitLo   = 0x00
	LimitLoHi = 0x01
)

func (m *Module) Section(id byte) *Section {
	for i := range m.Sections {
		if m.Sections[i].ID == id {
			return &m.Sections[i]
		}
	}

	return nil
}

func (m *Module) Customs() (r []int) {
	for i := range m.Sections {
		if m.Sections[i].ID == CustomSection {
			r = append(r, i)
		}
	}

	return r
}

func SectionName(id byte) string {
	names := [...]string{
		CustomSection:    "custom",
		TypeSection:      "type",
		ImportSection:    "import",
		FunctionSection:  "function",
		TableSection:     "table",
		MemorySection:    "memory",
		GlobalSection:    "global",
		ExportSection:    "export",
		StartSection:     "start",
		ElementSection:   "element",
		CodeSection:      "code",
		DataSection:      "data",
		DataCountSection: "data_count",
	}

	if int(id) < len(names) {
		return names[id]
	}

	return "unknown"
}
