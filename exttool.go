package bytec

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"tlog.app/go/tlog"
)

// DefaultToolTimeout bounds one external optimizer run.
// There is no retry; on timeout the subprocess is killed
// and the in-memory path takes over.
const DefaultToolTimeout = 30 * time.Second

// runExternal shells out to the configured optimizer for the format,
// passing input and output through temp files. Any failure (missing
// binary, non-zero exit, timeout) falls back silently: the caller
// proceeds with the in-memory transform.
func (p *Pipeline) runExternal(f Format, b []byte, level int, ok bool) ([]byte, bool) {
	if !ok || p.cfg.DisableExternal {
		return nil, false
	}

	bin := p.cfg.Tools[f.String()]
	if bin == "" {
		return nil, false
	}

	out, err := p.runTool(f, bin, level, b)
	if err != nil {
		tlog.V("exttool").Printw("external tool fallback", "format", f, "bin", bin, "err", err)

		return nil, false
	}

	tlog.V("exttool").Printw("external tool", "format", f, "bin", bin, "in", len(b), "out", len(out))

	return out, true
}

func (p *Pipeline) runTool(f Format, bin string, level int, b []byte) ([]byte, error) {
	in, err := os.CreateTemp("", "bytec-in-*")
	if err != nil {
		return nil, err
	}

	defer os.Remove(in.Name())

	_, err = in.Write(b)
	if cerr := in.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	outName := in.Name() + ".out"

	defer os.Remove(outName)

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, toolArgs(f, level, in.Name(), outName)...)

	err = cmd.Run()
	if err != nil {
		return nil, err
	}

	return os.ReadFile(outName)
}

func toolArgs(f Format, level int, in, out string) []string {
	if f == IR {
		return []string{"-O1", "-S", in, "-o", out}
	}

	if level > 1 {
		return []string{fmt.Sprintf("-O%d", level), in, "-o", out}
	}

	return []string{"-O", in, "-o", out}
}
