// ============================================================================
// fontmake-mp Dispatcher - Batch Compile Coordinator
// ============================================================================
//
// Package: internal/dispatcher
// File: dispatcher.go
// Purpose: Decide the worker count, run one job per source path, and block
//          until every job has produced an outcome
//
// Paths:
//   - Single source: compiled on the calling goroutine, no pool is created
//   - Several sources: a worker.Pool of EffectiveWorkers(...) goroutines,
//     every job submitted up front, outcomes gathered as they complete
//
// Failure isolation:
//   A failing job never cancels, retries, or otherwise touches its siblings.
//   Job failures come back as data (JobOutcome.Succeeded == false); the only
//   error Dispatch returns is the empty-input precondition.
//
// Limitations:
//   There is no per-job timeout unless one is configured. A compiler that
//   hangs holds its worker forever and can stall the batch.
//
// ============================================================================

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/ChuLiYu/fontmake-mp/internal/compiler"
	"github.com/ChuLiYu/fontmake-mp/internal/metrics"
	"github.com/ChuLiYu/fontmake-mp/internal/reporter"
	"github.com/ChuLiYu/fontmake-mp/internal/runner"
	"github.com/ChuLiYu/fontmake-mp/internal/worker"
	"github.com/ChuLiYu/fontmake-mp/pkg/types"
	"github.com/google/uuid"
)

// ErrNoSources is returned when Dispatch is called with no source paths.
var ErrNoSources = errors.New("no source paths to compile")

// Config configures a Dispatcher.
type Config struct {
	Compiler      compiler.Compiler  // required
	Reporter      *reporter.Reporter // shared by every worker; discards when nil
	Metrics       *metrics.Collector // optional
	Workers       int                // requested worker count, 0 means one per CPU
	Parallelism   func() int         // available parallelism, runtime.NumCPU when nil
	JobTimeout    time.Duration      // per-compile deadline, 0 means none
	Trace         bool               // include stack traces in diagnostics
	QuietCompiler bool               // do not echo compiler output on success
}

// Dispatcher runs a batch of compile jobs.
type Dispatcher struct {
	config   Config
	reporter *reporter.Reporter
	runner   *runner.Runner
}

// New creates a Dispatcher.
func New(config Config) (*Dispatcher, error) {
	if config.Compiler == nil {
		return nil, errors.New("dispatcher requires a compiler")
	}
	if config.Workers < 0 {
		return nil, fmt.Errorf("invalid worker count %d", config.Workers)
	}
	if config.Parallelism == nil {
		config.Parallelism = runtime.NumCPU
	}
	rep := config.Reporter
	if rep == nil {
		rep = reporter.New(nil, nil)
	}

	opts := []runner.Option{
		runner.WithTimeout(config.JobTimeout),
		runner.WithTrace(config.Trace),
		runner.WithCompilerOutput(!config.QuietCompiler),
	}
	if config.Metrics != nil {
		opts = append(opts, runner.WithMetrics(config.Metrics))
	}

	return &Dispatcher{
		config:   config,
		reporter: rep,
		runner:   runner.New(config.Compiler, rep, opts...),
	}, nil
}

// EffectiveWorkers clamps the worker count to [1, jobs]. A requested count
// of 0 means "use the available parallelism".
func EffectiveWorkers(requested, available, jobs int) int {
	n := requested
	if n <= 0 {
		n = available
	}
	if n > jobs {
		n = jobs
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Dispatch compiles every path with the given output kinds and returns once
// all jobs have finished. Duplicate paths produce independent jobs.
func (d *Dispatcher) Dispatch(ctx context.Context, paths []string, kinds types.OutputKinds) (types.RunResult, error) {
	if len(paths) == 0 {
		return types.RunResult{}, ErrNoSources
	}

	result := types.RunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		Kinds:     kinds,
	}

	jobs := make([]types.Job, len(paths))
	for i, p := range paths {
		jobs[i] = types.Job{SourcePath: p, OutputKinds: kinds}
	}

	d.reporter.Progress(" ")
	d.reporter.Progress("[*] Beginning fontmake-mp font compile...")

	if len(jobs) == 1 {
		d.reporter.Progress("[*] Single font compile requested. Concurrency is not necessary.  No additional processes spawned...")
		d.reporter.Progress(" ")
		result.Workers = 1
		d.recordWorkers(1)
		result.Outcomes = []types.JobOutcome{d.runner.Run(ctx, jobs[0])}
	} else {
		result.Pooled = true
		outcomes, started, err := d.runPool(ctx, jobs, d.workerCount(len(jobs)))
		if err != nil {
			return result, err
		}
		result.Workers = started
		d.recordWorkers(started)
		result.Outcomes = outcomes
	}

	result.Duration = time.Since(result.StartedAt)
	if d.config.Metrics != nil {
		d.config.Metrics.RecordRun(float64(time.Now().Unix()), result.Failed())
	}
	slog.InfoContext(ctx, "dispatch finished",
		"run_id", result.RunID,
		"jobs", len(result.Outcomes),
		"failed", result.Failed(),
		"workers", result.Workers,
		"duration", result.Duration)
	return result, nil
}

// workerCount derives the effective pool size and prints the decision.
func (d *Dispatcher) workerCount(jobs int) int {
	available := d.config.Parallelism()
	planned := d.config.Workers
	if planned == 0 {
		d.reporter.Progress("[*] Detected %d cores...", available)
		planned = available
	} else {
		d.reporter.Progress("[*] Spawning %d processes for the compile...", planned)
	}

	workers := EffectiveWorkers(d.config.Workers, available, jobs)
	if workers < planned {
		d.reporter.Progress("[*] Limiting spawned process number to the number of font compiles needed (%d)...", workers)
	}
	d.reporter.Progress("[*] Output from the fontmake compiler will appear out of order below. This is expected...")
	d.reporter.Progress(" ")
	d.reporter.Progress(" ")
	return workers
}

// runPool fans the jobs out over a fixed-size pool and returns the outcomes
// in input order along with the number of workers the pool started.
func (d *Dispatcher) runPool(ctx context.Context, jobs []types.Job, workers int) ([]types.JobOutcome, int, error) {
	// Outcomes carry only the source path. Jobs for a repeated path are
	// interchangeable, so each outcome fills the next free slot for its path.
	indexed := make(map[int]types.JobOutcome, len(jobs))
	positions := make(map[string][]int, len(jobs))
	for i, j := range jobs {
		positions[j.SourcePath] = append(positions[j.SourcePath], i)
	}

	pool := worker.NewPool(len(jobs), d.runner.Handle)
	if err := pool.Start(ctx, workers); err != nil {
		return nil, 0, fmt.Errorf("failed to start worker pool: %w", err)
	}
	defer pool.Stop()
	started := pool.GetWorkerCount()

	for _, j := range jobs {
		if err := pool.Submit(j); err != nil {
			return nil, started, fmt.Errorf("failed to submit %s: %w", j.SourcePath, err)
		}
	}

	for range jobs {
		outcome, err := pool.ReceiveResult()
		if err != nil {
			return nil, started, fmt.Errorf("failed to receive outcome: %w", err)
		}
		slot := positions[outcome.SourcePath]
		indexed[slot[0]] = outcome
		positions[outcome.SourcePath] = slot[1:]
	}

	outcomes := make([]types.JobOutcome, len(jobs))
	for i := range jobs {
		outcomes[i] = indexed[i]
	}
	return outcomes, started, nil
}

func (d *Dispatcher) recordWorkers(n int) {
	if d.config.Metrics != nil {
		d.config.Metrics.SetWorkers(n)
	}
}
