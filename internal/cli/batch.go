package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChuLiYu/fontmake-mp/internal/compiler"
	"github.com/ChuLiYu/fontmake-mp/internal/dispatcher"
	"github.com/ChuLiYu/fontmake-mp/internal/history"
	"github.com/ChuLiYu/fontmake-mp/internal/metrics"
	"github.com/ChuLiYu/fontmake-mp/internal/report"
	"github.com/ChuLiYu/fontmake-mp/internal/reporter"
	"github.com/ChuLiYu/fontmake-mp/internal/status"
	"github.com/ChuLiYu/fontmake-mp/pkg/types"
	"github.com/spf13/cobra"
)

// newCompiler builds the compiler for a run. Tests replace it.
var newCompiler = func(cfg *Config) compiler.Compiler {
	c := compiler.NewFontmake(cfg.Compiler.Binary, cfg.Compiler.Args...)
	c.Dir = cfg.Compiler.Dir
	return c
}

// runBatch validates the sources, dispatches one compile per path, and
// persists the run. Only ErrJobsFailed or a precondition error is returned.
func runBatch(cmd *cobra.Command, opts *options, paths []string) error {
	cfg, err := resolveConfig(opts, cmd.Flags(), os.LookupEnv)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.LogLevel, cmd.ErrOrStderr()); err != nil {
		return err
	}

	if err := validateSources(paths); err != nil {
		return err
	}
	kinds, err := cfg.outputKinds()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector()
	d, err := dispatcher.New(dispatcher.Config{
		Compiler:      newCompiler(cfg),
		Reporter:      reporter.New(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		Metrics:       collector,
		Workers:       cfg.Workers,
		JobTimeout:    cfg.Compiler.Timeout,
		Trace:         cfg.Trace,
		QuietCompiler: cfg.Compiler.Quiet,
	})
	if err != nil {
		return err
	}

	var statusSrv *status.Server
	if cfg.Status.Addr != "" {
		statusSrv = status.NewServer()
		addr, err := statusSrv.Listen(cfg.Status.Addr)
		if err != nil {
			return err
		}
		defer statusSrv.Stop()
		slog.InfoContext(ctx, "status endpoint ready", "addr", addr.String(), "service", status.Service)
		statusSrv.MarkRunning()
	}

	slog.DebugContext(ctx, "dispatching", "sources", len(paths), "kinds", kinds.String(), "workers", cfg.Workers)
	result, err := d.Dispatch(ctx, paths, kinds)
	if statusSrv != nil {
		statusSrv.MarkDone()
	}
	if err != nil {
		return err
	}

	persistRun(ctx, cfg, result, collector)

	if ctx.Err() != nil {
		slog.WarnContext(ctx, "run interrupted", "failed", result.Failed())
	}
	if result.AnyFailed() {
		return ErrJobsFailed
	}
	return nil
}

// persistRun writes the optional report, history row and metrics textfile.
// Failures are logged and never change the exit status.
func persistRun(ctx context.Context, cfg *Config, result types.RunResult, collector *metrics.Collector) {
	if cfg.Report.Path != "" {
		if err := report.NewWriter(cfg.Report.Path).Write(result); err != nil {
			slog.ErrorContext(ctx, "failed to write build report", "path", cfg.Report.Path, "error", err)
		}
	}

	if cfg.History.Path != "" {
		if err := recordHistory(context.WithoutCancel(ctx), cfg.History.Path, result); err != nil {
			slog.ErrorContext(ctx, "failed to record build history", "path", cfg.History.Path, "error", err)
		}
	}

	if cfg.Metrics.Textfile != "" {
		if err := collector.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			slog.ErrorContext(ctx, "failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
		}
	}
}

func recordHistory(ctx context.Context, path string, result types.RunResult) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Record(ctx, result); err != nil {
		return fmt.Errorf("record run %s: %w", result.RunID, err)
	}
	return nil
}
