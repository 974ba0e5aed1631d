// ============================================================================
// fontmake-mp Reporter - Serialized Console Output
// ============================================================================
//
// Package: internal/reporter
// File: reporter.go
// Purpose: Single write point shared by every worker so that multi-line
//          diagnostics from concurrent compiles never interleave.
//
// Streams:
//   - out:    progress lines and successful compiler output (stdout)
//   - errOut: failure diagnostics (stderr)
//
// Both streams sit behind one mutex. A block is written while the lock is
// held and the lock is always released through defer, including when the
// writer returns an error or the callback panics.
//
// ============================================================================

package reporter

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Reporter serializes human-readable output from all workers.
type Reporter struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
}

// New creates a Reporter writing progress to out and diagnostics to errOut.
func New(out, errOut io.Writer) *Reporter {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}
	return &Reporter{out: out, errOut: errOut}
}

// Progress writes one formatted status line to the progress stream.
func (r *Reporter) Progress(format string, args ...any) {
	_ = r.Critical(func(out, _ io.Writer) error {
		_, err := fmt.Fprintf(out, format+"\n", args...)
		return err
	})
}

// Block writes lines to the progress stream as one contiguous unit.
func (r *Reporter) Block(lines ...string) error {
	text := join(lines)
	return r.Critical(func(out, _ io.Writer) error {
		_, err := io.WriteString(out, text)
		return err
	})
}

// Diagnostic writes lines to the diagnostic stream as one contiguous unit.
func (r *Reporter) Diagnostic(lines ...string) error {
	text := join(lines)
	return r.Critical(func(_, errOut io.Writer) error {
		_, err := io.WriteString(errOut, text)
		return err
	})
}

// Critical runs fn with exclusive access to both streams. fn may issue any
// number of writes; no other Reporter output can land between them.
func (r *Reporter) Critical(fn func(out, errOut io.Writer) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.out, r.errOut)
}

// join terminates every line with a newline.
func join(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
