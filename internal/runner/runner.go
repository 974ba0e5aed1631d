// Package runner executes a single compile job and converts every kind of
// compiler failure, panics included, into a JobOutcome. Nothing raised by the
// compiler escapes Run.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ChuLiYu/fontmake-mp/internal/compiler"
	"github.com/ChuLiYu/fontmake-mp/internal/metrics"
	"github.com/ChuLiYu/fontmake-mp/internal/reporter"
	"github.com/ChuLiYu/fontmake-mp/pkg/types"
	"github.com/cockroachdb/errors"
)

// Runner is the per-job unit of work invoked by every worker.
type Runner struct {
	compiler   compiler.Compiler
	reporter   *reporter.Reporter
	metrics    *metrics.Collector
	timeout    time.Duration
	trace      bool
	echoOutput bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records dispatch/success/failure on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// WithTimeout bounds every compile. Zero disables the deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithTrace includes the detailed error rendering, with stack, in diagnostics.
func WithTrace(enabled bool) Option {
	return func(r *Runner) { r.trace = enabled }
}

// WithCompilerOutput echoes the compiler's output on success.
func WithCompilerOutput(enabled bool) Option {
	return func(r *Runner) { r.echoOutput = enabled }
}

// New creates a Runner. Trace and compiler output echo are on by default.
func New(c compiler.Compiler, rep *reporter.Reporter, opts ...Option) *Runner {
	if rep == nil {
		rep = reporter.New(nil, nil)
	}
	r := &Runner{
		compiler:   c,
		reporter:   rep,
		trace:      true,
		echoOutput: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle matches worker.Handler.
func (r *Runner) Handle(ctx context.Context, job types.Job, workerID int) types.JobOutcome {
	outcome := r.Run(ctx, job)
	outcome.Worker = workerID
	return outcome
}

// Run compiles job and always returns an outcome. On failure the diagnostic
// is written through the Reporter before Run returns.
func (r *Runner) Run(ctx context.Context, job types.Job) types.JobOutcome {
	start := time.Now()
	if r.metrics != nil {
		r.metrics.RecordDispatch()
	}

	output, err := r.compile(ctx, job)
	outcome := types.JobOutcome{
		SourcePath: job.SourcePath,
		Succeeded:  err == nil,
		Duration:   time.Since(start),
	}

	if err == nil {
		if r.metrics != nil {
			r.metrics.RecordSucceeded(outcome.Duration.Seconds())
		}
		if r.echoOutput && len(strings.TrimSpace(string(output))) > 0 {
			if werr := r.reporter.Block(string(output)); werr != nil {
				slog.WarnContext(ctx, "failed to write compiler output", "source", job.SourcePath, "error", werr)
			}
		}
		slog.DebugContext(ctx, "compile succeeded", "source", job.SourcePath, "duration", outcome.Duration)
		return outcome
	}

	outcome.Diagnostic, outcome.Trace = describe(err, r.trace)
	if r.metrics != nil {
		r.metrics.RecordFailed(outcome.Duration.Seconds())
	}
	if werr := r.reporter.Diagnostic(r.diagnosticBlock(outcome)...); werr != nil {
		slog.ErrorContext(ctx, "failed to write diagnostic", "source", job.SourcePath, "error", werr)
	}
	slog.DebugContext(ctx, "compile failed", "source", job.SourcePath, "duration", outcome.Duration, "error", outcome.Diagnostic)
	return outcome
}

// compile calls the compiler and converts a panic into an error.
func (r *Runner) compile(ctx context.Context, job types.Job) (output []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			output = nil
			if perr, ok := p.(error); ok {
				err = errors.Wrap(perr, "compiler panicked")
			} else {
				err = errors.Newf("compiler panicked: %v", p)
			}
		}
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	output, err = r.compiler.Compile(ctx, job.SourcePath, job.OutputKinds)
	if err != nil {
		// Attach a stack if the compiler returned a plain error.
		err = errors.WithStack(err)
	}
	return output, err
}

func (r *Runner) diagnosticBlock(o types.JobOutcome) []string {
	lines := []string{
		" ",
		fmt.Sprintf("[ERROR] The fontmake compile for %s failed with the following error:", o.SourcePath),
		"",
	}
	if o.Trace != "" {
		lines = append(lines, o.Trace, "")
	}
	return append(lines, o.Diagnostic)
}

// describe renders err as the outcome message and, when trace is set, its
// detailed form. The message is never empty, even when err's Error method
// panics (a typed nil pointer, for instance).
func describe(err error, trace bool) (msg, detail string) {
	var cause error
	defer func() {
		if p := recover(); p != nil {
			msg = fmt.Sprintf("compiler failed with %T", cause)
			detail = ""
		}
	}()
	cause = errors.UnwrapAll(err)

	msg = strings.TrimSpace(err.Error())
	if msg == "" {
		msg = fmt.Sprintf("compiler failed with %T", cause)
	}
	if trace {
		detail = fmt.Sprintf("%+v", err)
	}
	return msg, detail
}
