package wasm

import "nikand.dev/go/bytec/bin"

// Serialize re-emits the header and each section in current list order.
func (m *Module) Serialize() []byte {
	var e bin.Encoder

	if !m.hdr {
		return m.Raw
	}

	b := make([]byte, 0, len(m.Raw)+16)

	b = append(b, Magic...)
	b = e.Uint32(b, m.Version)

	for _, s := range m.Sections {
		b = appendSection(b, s.ID, s.Payload)
	}

	return b
}

func appendSection(b []byte, id byte, payload []byte) []byte {
	var e bin.Encoder

	b = append(b, id)
	b = e.Int(b, len(payload))
	b = append(b, payload...)

	return b
}

// AppendMemory encodes a minimal single-memory-with-max payload.
func AppendMemory(b []byte, initial, max int) []byte {
	var e bin.Encoder

	b = e.Int(b, 1)

	if max < 0 {
		b = append(b, LimitLo)
		return e.Int(b, initial)
	}

	b = append(b, LimitLoHi)
	b = e.Int(b, initial)
	b = e.Int(b, max)

	return b
}

// AppendCustomPayload encodes a custom section payload (name then data).
func AppendCustomPayload(b []byte, c Custom) []byte {
	var e bin.Encoder

	b = e.Name(b, c.Name)
	return append(b, c.Data...)
}

func appendExport(b []byte, x Export) []byte {
	var e bin.Encoder

	b = e.Name(b, x.Name)
	b = append(b, x.Kind)
	b = e.Int(b, x.Index)

	return b
}
