// Package compiler is the boundary between the dispatcher and the external
// font compiler. The core only consumes success or failure plus any text the
// compiler produced; everything the compiler does on disk is its own concern.
package compiler

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"unicode/utf8"

	"github.com/ChuLiYu/fontmake-mp/pkg/types"
	"github.com/cockroachdb/errors"
)

// DefaultBinary is the fontmake executable looked up on PATH.
const DefaultBinary = "fontmake"

// maxOutputTail bounds how much compiler output is folded into an error.
const maxOutputTail = 4096

// Compiler turns one UFO source into font binaries.
type Compiler interface {
	// Compile builds the requested kinds for sourcePath. It returns whatever
	// the compiler printed, and a non-nil error on any failure.
	Compile(ctx context.Context, sourcePath string, kinds types.OutputKinds) ([]byte, error)
}

// Func adapts a plain function to the Compiler interface.
type Func func(ctx context.Context, sourcePath string, kinds types.OutputKinds) ([]byte, error)

// Compile calls f.
func (f Func) Compile(ctx context.Context, sourcePath string, kinds types.OutputKinds) ([]byte, error) {
	return f(ctx, sourcePath, kinds)
}

// Fontmake runs the fontmake command line tool as a subprocess per job.
// Subprocesses give true parallelism and keep one compile's crash from
// touching any other.
type Fontmake struct {
	Binary    string   // executable name or path, DefaultBinary when empty
	ExtraArgs []string // prepended before the source and output arguments
	Dir       string   // working directory; master_ttf/master_otf land here
}

// NewFontmake creates a Fontmake compiler for the given binary.
func NewFontmake(binary string, extraArgs ...string) *Fontmake {
	return &Fontmake{Binary: binary, ExtraArgs: extraArgs}
}

// Compile runs `fontmake <extra> -u <sourcePath> -o <kinds...>` and captures
// its combined output.
func (f *Fontmake) Compile(ctx context.Context, sourcePath string, kinds types.OutputKinds) ([]byte, error) {
	binary := f.binary()
	cmd := exec.CommandContext(ctx, binary, f.args(sourcePath, kinds)...)
	cmd.Dir = f.Dir

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out.Bytes(), errors.Wrapf(ctxErr, "%s interrupted while compiling %s", binary, sourcePath)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out.Bytes(), errors.Newf("%s exited with status %d while compiling %s%s",
				binary, exitErr.ExitCode(), sourcePath, formatTail(out.Bytes()))
		}
		return out.Bytes(), errors.Wrapf(err, "failed to run %s", binary)
	}
	return out.Bytes(), nil
}

func (f *Fontmake) binary() string {
	if f.Binary == "" {
		return DefaultBinary
	}
	return f.Binary
}

func (f *Fontmake) args(sourcePath string, kinds types.OutputKinds) []string {
	args := make([]string, 0, len(f.ExtraArgs)+3+len(kinds))
	args = append(args, f.ExtraArgs...)
	args = append(args, "-u", sourcePath)
	if len(kinds) > 0 {
		args = append(args, "-o")
		args = append(args, kinds.Strings()...)
	}
	return args
}

func formatTail(out []byte) string {
	text := strings.TrimSpace(string(out))
	if text == "" {
		return ""
	}
	if len(text) > maxOutputTail {
		cut := len(text) - maxOutputTail
		for cut < len(text) && !utf8.RuneStart(text[cut]) {
			cut++
		}
		text = "..." + text[cut:]
	}
	return ":\n" + text
}
