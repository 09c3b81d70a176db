package main

import (
	"io"
	"net"
	"net/http"
	"os"

	"nikand.dev/go/cli"
	"nikand.dev/go/cli/flag"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/ext/tlflag"
	"tlog.app/go/tlog/tlio"
	"tlog.app/go/tlog/tlwire"

	"nikand.dev/go/bytec"
	"nikand.dev/go/bytec/bin"
	"nikand.dev/go/bytec/wasm"
)

type (
	bytearr []byte
)

func main() {
	detect := &cli.Command{
		Name:        "detect",
		Description: "classify files by magic bytes",
		Args:        cli.Args{},
		Action:      detectRun,
	}

	dump := &cli.Command{
		Name:        "dump",
		Description: "dump wasm sections and code",
		Args:        cli.Args{},
		Action:      dumpRun,
	}

	transform := &cli.Command{
		Name:        "transform",
		Description: "apply a named pass to a file",
		Args:        cli.Args{},
		Action:      transformRun,
		Flags: []*cli.Flag{
			cli.NewFlag("format,f", "", "input format (wasm, luac, pyc, dex, cil, v8s, ir)"),
			cli.NewFlag("pass,p", "optimize", "pass name or alias"),
			cli.NewFlag("output,o", "", "output file (input overwritten if empty)"),
		},
	}

	auto := &cli.Command{
		Name:        "auto",
		Description: "detect the format and apply its default pass",
		Args:        cli.Args{},
		Action:      autoRun,
		Flags: []*cli.Flag{
			cli.NewFlag("output,o", "", "output file (input overwritten if empty)"),
		},
	}

	app := &cli.Command{
		Name:        "bytectool",
		Description: "tool to inspect and transform bytecode containers",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("config,c", "", "config file (toml)"),
			cli.NewFlag("log", "stderr?dm", "log output file (or stderr)"),
			cli.NewFlag("verbosity,v", "", "logger verbosity topics"),
			cli.NewFlag("debug", "", "debug address", flag.Hidden),
			cli.FlagfileFlag,
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			detect,
			dump,
			transform,
			auto,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	w, err := tlflag.OpenWriter(c.String("log"))
	if err != nil {
		return errors.Wrap(err, "open log file")
	}

	err = tlio.WalkWriter(w, func(w io.Writer) error {
		c, ok := w.(*tlog.ConsoleWriter)
		if !ok {
			return nil
		}

		c.StringOnNewLineMinLen = 16

		return nil
	})
	if err != nil {
		return errors.Wrap(err, "walk writer")
	}

	tlog.DefaultLogger = tlog.New(w)

	tlog.SetVerbosity(c.String("verbosity"))

	if q := c.String("debug"); q != "" {
		l, err := net.Listen("tcp", q)
		if err != nil {
			return errors.Wrap(err, "listen debug")
		}

		tlog.Printw("start debug interface", "addr", l.Addr())

		go func() {
			err := http.Serve(l, nil)
			if err != nil {
				tlog.Printw("debug", "addr", q, "err", err, "", tlog.Fatal)
				panic(err)
			}
		}()
	}

	return nil
}

func pipeline(c *cli.Command) (*bytec.Pipeline, error) {
	cfg, err := bytec.LoadConfig(c.String("config"))
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	return bytec.New(cfg), nil
}

func detectRun(c *cli.Command) error {
	for _, a := range c.Args {
		data, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}

		tlog.Printw("detected", "file", a, "format", bytec.Detect(data).String(), "len", len(data))
	}

	return nil
}

func dumpRun(c *cli.Command) error {
	for _, a := range c.Args {
		data, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}

		m := wasm.Parse(data)

		tlog.Printw("module", "file", a, "version", m.Version, "sections", len(m.Sections))

		for _, s := range m.Sections {
			tlog.Printw("section", "id", s.ID, "name", wasm.SectionName(s.ID), "size", len(s.Payload))

			if s.ID == wasm.CustomSection {
				cs := wasm.ParseCustom(s.Payload)
				tlog.Printw("custom", "name", cs.Name, "data", bytearr(cs.Data))
			}
		}

		if s := m.Section(wasm.ExportSection); s != nil {
			for i, e := range wasm.ParseExports(s.Payload) {
				tlog.Printw("export", "i", i, "name", e.Name, "kind", e.Kind, "index", e.Index)
			}
		}

		for i, body := range m.Bodies() {
			decls, st := localsEnd(body)

			tlog.Printw("body", "i", i, "size", len(body), "locals", decls)

			wasm.Walk(body, st, func(off int, op wasm.Op, raw []byte) {
				tlog.V("opcode").Printw("op", "off", off, "op", op, "raw", bytearr(raw))
			})
		}
	}

	return nil
}

func transformRun(c *cli.Command) error {
	p, err := pipeline(c)
	if err != nil {
		return err
	}

	d := bytec.Directive{
		Format: bytec.ParseFormat(c.String("format")),
		Pass:   c.String("pass"),
	}

	for _, a := range c.Args {
		data, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}

		if d.Format == bytec.Unknown {
			d.Format = bytec.Detect(data)
		}

		out, err := p.Transform(d, data)
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}

		err = writeOut(c.String("output"), a, out)
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}

		tlog.Printw("transformed", "file", a, "format", d.Format.String(), "in", len(data), "out", len(out))
	}

	return nil
}

func autoRun(c *cli.Command) error {
	p, err := pipeline(c)
	if err != nil {
		return err
	}

	for _, a := range c.Args {
		data, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}

		out, err := p.AutoTransform(data)
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}

		err = writeOut(c.String("output"), a, out)
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}

		tlog.Printw("transformed", "file", a, "format", bytec.Detect(data).String(), "in", len(data), "out", len(out))
	}

	return nil
}

func writeOut(out, in string, data []byte) error {
	if out == "" {
		out = in
	}

	return os.WriteFile(out, data, 0o644)
}

// localsEnd skips the locals declarations at the start of a body and
// returns the declaration count and the expression offset.
func localsEnd(body []byte) (decls, i int) {
	var d bin.Decoder

	decls, i = d.Int(body, 0)

	for k := 0; k < decls && i < len(body); k++ {
		_, i = d.Int(body, i)
		i++ // value type
	}

	if i > len(body) {
		i = len(body)
	}

	return decls, i
}

func (a bytearr) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendArray(b, len(a))

	for _, v := range a {
		b = e.AppendInt(b, int(v))
	}

	return b
}
