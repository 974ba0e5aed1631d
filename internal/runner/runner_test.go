package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ChuLiYu/fontmake-mp/internal/compiler"
	"github.com/ChuLiYu/fontmake-mp/internal/metrics"
	"github.com/ChuLiYu/fontmake-mp/internal/reporter"
	"github.com/ChuLiYu/fontmake-mp/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func job(path string) types.Job {
	return types.Job{SourcePath: path, OutputKinds: types.DefaultOutputKinds()}
}

func newTestRunner(c compiler.Compiler, opts ...Option) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return New(c, reporter.New(&out, &errOut), opts...), &out, &errOut
}

func TestRunSuccess(t *testing.T) {
	var gotKinds types.OutputKinds
	c := compiler.Func(func(_ context.Context, path string, kinds types.OutputKinds) ([]byte, error) {
		gotKinds = kinds
		return []byte("INFO:fontmake:Saving master_ttf/" + path + "\n"), nil
	})
	r, out, errOut := newTestRunner(c)

	outcome := r.Run(context.Background(), job("Sans.ufo"))

	assert.True(t, outcome.Succeeded)
	assert.Equal(t, "Sans.ufo", outcome.SourcePath)
	assert.Empty(t, outcome.Diagnostic)
	assert.Equal(t, types.DefaultOutputKinds(), gotKinds)
	assert.Contains(t, out.String(), "Saving master_ttf/Sans.ufo")
	assert.Empty(t, errOut.String())
}

func TestRunSuccessQuiet(t *testing.T) {
	c := compiler.Func(func(context.Context, string, types.OutputKinds) ([]byte, error) {
		return []byte("noise"), nil
	})
	r, out, _ := newTestRunner(c, WithCompilerOutput(false))

	assert.True(t, r.Run(context.Background(), job("Sans.ufo")).Succeeded)
	assert.Empty(t, out.String())
}

func TestRunFailureReportsDiagnostic(t *testing.T) {
	c := compiler.Func(func(context.Context, string, types.OutputKinds) ([]byte, error) {
		return nil, errors.New("bad glyph")
	})
	r, out, errOut := newTestRunner(c)

	outcome := r.Run(context.Background(), job("b.ufo"))

	assert.False(t, outcome.Succeeded)
	assert.Contains(t, outcome.Diagnostic, "bad glyph")
	assert.NotEmpty(t, outcome.Trace)

	text := errOut.String()
	assert.Contains(t, text, "[ERROR] The fontmake compile for b.ufo failed with the following error:")
	assert.Contains(t, text, "bad glyph")
	assert.True(t, strings.HasSuffix(text, "bad glyph\n"), "message must close the block")
	assert.Empty(t, out.String())
}

func TestRunFailureWithoutTrace(t *testing.T) {
	c := compiler.Func(func(context.Context, string, types.OutputKinds) ([]byte, error) {
		return nil, errors.New("bad glyph")
	})
	r, _, errOut := newTestRunner(c, WithTrace(false))

	outcome := r.Run(context.Background(), job("b.ufo"))

	assert.Empty(t, outcome.Trace)
	assert.Equal(t, " \n[ERROR] The fontmake compile for b.ufo failed with the following error:\n\nbad glyph\n", errOut.String())
}

func TestRunRecoversPanic(t *testing.T) {
	testCases := []struct {
		name  string
		value any
		want  string
	}{
		{"string panic", "glyph table exploded", "glyph table exploded"},
		{"error panic", errors.New("nil pointer in kerning"), "nil pointer in kerning"},
		{"int panic", 42, "42"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := compiler.Func(func(context.Context, string, types.OutputKinds) ([]byte, error) {
				panic(tc.value)
			})
			r, _, errOut := newTestRunner(c)

			var outcome types.JobOutcome
			require.NotPanics(t, func() {
				outcome = r.Run(context.Background(), job("p.ufo"))
			})

			assert.False(t, outcome.Succeeded)
			assert.Contains(t, outcome.Diagnostic, "compiler panicked")
			assert.Contains(t, outcome.Diagnostic, tc.want)
			assert.Contains(t, errOut.String(), "p.ufo")
		})
	}
}

func TestRunEmptyErrorMessage(t *testing.T) {
	c := compiler.Func(func(context.Context, string, types.OutputKinds) ([]byte, error) {
		return nil, errors.New("")
	})
	r, _, _ := newTestRunner(c)

	outcome := r.Run(context.Background(), job("e.ufo"))
	assert.False(t, outcome.Succeeded)
	assert.NotEmpty(t, outcome.Diagnostic)
}

type glyphError struct{ glyph string }

func (e *glyphError) Error() string { return "bad glyph " + e.glyph }

type explodingError struct{}

func (explodingError) Error() string { panic("no message available") }

func TestRunErrorWithBrokenErrorMethod(t *testing.T) {
	testCases := []struct {
		name string
		err  func() error
		want string
	}{
		{"typed nil pointer", func() error {
			var e *glyphError
			return e
		}, "glyphError"},
		{"panicking Error", func() error { return explodingError{} }, "explodingError"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := compiler.Func(func(context.Context, string, types.OutputKinds) ([]byte, error) {
				return nil, tc.err()
			})
			r, _, errOut := newTestRunner(c)

			var outcome types.JobOutcome
			require.NotPanics(t, func() {
				outcome = r.Run(context.Background(), job("t.ufo"))
			})

			assert.False(t, outcome.Succeeded)
			assert.Contains(t, outcome.Diagnostic, tc.want)
			assert.Contains(t, errOut.String(), "[ERROR] The fontmake compile for t.ufo failed with the following error:")
			assert.Contains(t, errOut.String(), outcome.Diagnostic)
		})
	}
}

func TestRunTimeout(t *testing.T) {
	c := compiler.Func(func(ctx context.Context, _ string, _ types.OutputKinds) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	r, _, _ := newTestRunner(c, WithTimeout(20*time.Millisecond))

	outcome := r.Run(context.Background(), job("slow.ufo"))
	assert.False(t, outcome.Succeeded)
	assert.Contains(t, outcome.Diagnostic, "deadline exceeded")
}

func TestHandleSetsWorker(t *testing.T) {
	c := compiler.Func(func(context.Context, string, types.OutputKinds) ([]byte, error) {
		return nil, nil
	})
	r, _, _ := newTestRunner(c)

	outcome := r.Handle(context.Background(), job("w.ufo"), 3)
	assert.True(t, outcome.Succeeded)
	assert.Equal(t, 3, outcome.Worker)
}

// gathered returns the value of a counter or the sample count of a histogram.
func gathered(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		m := mf.GetMetric()[0]
		if h := m.GetHistogram(); h != nil {
			return float64(h.GetSampleCount())
		}
		return m.GetCounter().GetValue()
	}
	t.Fatalf("metric %s not gathered", name)
	return 0
}

func TestRunRecordsMetrics(t *testing.T) {
	fail := true
	c := compiler.Func(func(context.Context, string, types.OutputKinds) ([]byte, error) {
		if fail {
			return nil, errors.New("broken")
		}
		return nil, nil
	})
	reg := prometheus.NewRegistry()
	r, _, _ := newTestRunner(c, WithMetrics(metrics.NewCollectorWith(reg, reg)))

	r.Run(context.Background(), job("a.ufo"))
	fail = false
	r.Run(context.Background(), job("b.ufo"))
	r.Run(context.Background(), job("c.ufo"))

	assert.Equal(t, 3.0, gathered(t, reg, "fontmake_jobs_dispatched_total"))
	assert.Equal(t, 2.0, gathered(t, reg, "fontmake_jobs_succeeded_total"))
	assert.Equal(t, 1.0, gathered(t, reg, "fontmake_jobs_failed_total"))
	assert.Equal(t, 3.0, gathered(t, reg, "fontmake_job_duration_seconds"))
}

func TestNewWithNilReporter(t *testing.T) {
	c := compiler.Func(func(context.Context, string, types.OutputKinds) ([]byte, error) {
		return nil, errors.New("broken")
	})
	r := New(c, nil)
	assert.NotPanics(t, func() {
		assert.False(t, r.Run(context.Background(), job("n.ufo")).Succeeded)
	})
}
