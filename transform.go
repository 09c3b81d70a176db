package bytec

import (
	stderrors "errors"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"nikand.dev/go/bytec/cil"
	"nikand.dev/go/bytec/dex"
	"nikand.dev/go/bytec/ir"
	"nikand.dev/go/bytec/luac"
	"nikand.dev/go/bytec/pyc"
	"nikand.dev/go/bytec/v8s"
	"nikand.dev/go/bytec/wasm"
)

type (
	// Directive declares the target format and the pass parameters for one
	// pipeline invocation. Pass, when set, is a named pass (or a configured
	// alias) that fills the per-format options before dispatch.
	Directive struct {
		Format Format
		Pass   string

		Wasm wasm.Options
		Lua  luac.Options
		Py   pyc.Options
		Dex  dex.Options
		CIL  cil.Options
		V8   v8s.Options
		IR   ir.Options
	}

	Pipeline struct {
		cfg *Config
	}
)

var ErrUnknownTransform = stderrors.New("unknown transform")

var defaultPipeline = New(nil)

func New(cfg *Config) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Pipeline{cfg: cfg}
}

// Transform runs parse, transform, serialize for the directive's format.
// A format with no matching codec is the only error path; codecs
// themselves are lenient and always produce bytes.
func Transform(d Directive, b []byte) ([]byte, error) {
	return defaultPipeline.Transform(d, b)
}

// AutoTransform detects the format and applies its default pass.
// Unrecognized input is returned unchanged.
func AutoTransform(b []byte) ([]byte, error) {
	return defaultPipeline.AutoTransform(b)
}

func (p *Pipeline) Transform(d Directive, b []byte) ([]byte, error) {
	if d.Pass != "" {
		err := p.applyPass(&d)
		if err != nil {
			return nil, err
		}
	}

	tlog.V("dispatch").Printw("transform", "format", d.Format, "pass", d.Pass, "len", len(b))

	switch d.Format {
	case Wasm:
		if out, ok := p.runExternal(Wasm, b, d.Wasm.OptimizeLevel, d.externalOK()); ok {
			return out, nil
		}

		m := wasm.Parse(b)
		m.Transform(d.Wasm)

		return m.Serialize(), nil
	case Luac:
		c := luac.Parse(b)
		c.Transform(d.Lua)

		return c.Serialize(), nil
	case Pyc:
		f := pyc.Parse(b)
		f.Transform(d.Py)

		return f.Serialize(), nil
	case Dex:
		f := dex.Parse(b)
		f.Transform(d.Dex)

		return f.Serialize(), nil
	case CIL:
		a := cil.Parse(b)

		_, err := a.Transform(d.CIL)
		if err != nil {
			return nil, errors.Wrap(err, "cil transform")
		}

		return a.Serialize(), nil
	case V8Snapshot:
		s := v8s.Parse(b)
		s.Transform(d.V8)

		return s.Serialize(), nil
	case IR:
		if out, ok := p.runExternal(IR, b, 0, d.externalOK()); ok {
			return out, nil
		}

		u := ir.Parse(b)
		u.Transform(d.IR)

		return u.Serialize(), nil
	}

	return nil, errors.Wrap(ErrUnknownTransform, "format %v", d.Format)
}

func (p *Pipeline) AutoTransform(b []byte) ([]byte, error) {
	f := Detect(b)
	if f == Unknown {
		return b, nil
	}

	return p.Transform(DefaultDirective(f), b)
}

// DefaultDirective is the pass the auto path applies per detected format.
func DefaultDirective(f Format) Directive {
	d := Directive{Format: f}

	switch f {
	case Wasm:
		d.Wasm.ShrinkLevel = 1
	case Luac:
		d.Lua.Fold = true
		d.Lua.Peephole = true
	case Pyc:
		d.Py.StripAsserts = true
		d.Py.Fold = true
	case Dex:
		d.Dex.MarkOptimized = true
	case V8Snapshot:
		d.V8.Peephole = true
	case IR:
		d.IR.Fold = true
	}

	return d
}

func (p *Pipeline) applyPass(d *Directive) error {
	name := d.Pass

	if a, ok := p.cfg.Aliases[name]; ok {
		name = a
	}

	switch name {
	case "optimize":
		f := d.Format
		pass := d.Pass

		*d = DefaultDirective(f)
		d.Pass = pass
	case "fold":
		d.Wasm.OptimizeLevel = 1
		d.Lua.Fold = true
		d.Py.Fold = true
		d.IR.Fold = true
	case "strip":
		d.Wasm.ShrinkLevel = 1
		d.Lua.StripDebug = true
		d.Py.StripAsserts = true
		d.Py.StripDocstring = true
		d.IR.StripComments = true
		d.IR.StripMetadata = true
	default:
		return errors.Wrap(ErrUnknownTransform, "pass %v", d.Pass)
	}

	return nil
}

// externalOK reports whether the directive is a plain optimization that an
// external tool could perform. Structural injections must go in-memory.
func (d *Directive) externalOK() bool {
	return d.Wasm.AddCustom == nil && d.Wasm.AddExport == nil &&
		d.Wasm.InitialMemory == 0 && d.Wasm.MaxMemory == 0
}
