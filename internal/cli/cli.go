// ============================================================================
// fontmake-mp CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra front-end for the parallel font compile dispatcher
//
// Command Structure:
//   fontmake-mp [flags] UFO...      # Compile every UFO source in parallel
//   ├── --ttf / --otf               # Build only one format (default: both)
//   ├── -j, --workers               # Worker count (default: one per CPU)
//   ├── -c, --config                # YAML config file
//   ├── --usage                     # Print usage line
//   ├── -v, --version               # Print version
//   └── history                     # Show past runs from the history database
//
// Configuration Management:
//   defaults < YAML file (--config) < .env / FMP_* environment < flags
//
// Exit status:
//   0  every compile succeeded
//   1  a precondition failed before dispatch, or any compile failed
//
// Signal Handling:
//   SIGINT/SIGTERM cancel the run context. Running compiler subprocesses
//   are killed and their jobs are recorded as failures.
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	Version   = "1.0.0"
	usageLine = "fontmake-mp (--ttf|--otf) [UFO file path 1] (UFO file path ...)"
)

const longHelp = `fontmake-mp compiles *.otf and/or *.ttf font binaries from UFO source files in parallel.

One fontmake compile runs per UFO source path. Compiles are spread over a fixed
pool of workers, one per CPU unless --workers says otherwise. A failing compile
is reported on stderr and never stops the others.

Fonts are compiled in the working directory on the directory path(s) master_otf
and/or master_ttf.`

// ErrJobsFailed is returned by the root command when at least one compile failed.
// Diagnostics have already been written when it is returned.
var ErrJobsFailed = errors.New("one or more font compiles failed")

// options holds the raw flag values of one invocation.
type options struct {
	configFile      string
	envFile         string
	ttf             bool
	otf             bool
	workers         int
	usage           bool
	quiet           bool
	noTrace         bool
	logLevel        string
	timeout         string
	reportPath      string
	historyPath     string
	metricsTextfile string
	statusAddr      string
}

// BuildCLI assembles the command tree writing to stdout and stderr.
func BuildCLI(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "fontmake-mp [flags] UFO...",
		Short:         "Parallel font compilation from UFO source files with fontmake",
		Long:          longHelp,
		Version:       Version,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.usage {
				fmt.Fprintln(cmd.OutOrStdout(), usageLine)
				return nil
			}
			return runBatch(cmd, opts, args)
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetVersionTemplate("fontmake-mp v{{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "YAML config file")
	pf.StringVar(&opts.envFile, "env-file", ".env", "dotenv file with FMP_* overrides, ignored when missing")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&opts.historyPath, "history", "", "SQLite build history database")

	f := rootCmd.Flags()
	f.BoolVar(&opts.ttf, "ttf", false, "build *.ttf files only (default: *.otf and *.ttf)")
	f.BoolVar(&opts.otf, "otf", false, "build *.otf files only (default: *.otf and *.ttf)")
	f.IntVarP(&opts.workers, "workers", "j", 0, "number of concurrent compiles, 0 means one per CPU")
	f.BoolVar(&opts.usage, "usage", false, "display application usage")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "do not echo fontmake output of successful compiles")
	f.BoolVar(&opts.noTrace, "no-trace", false, "omit stack traces from failure diagnostics")
	f.StringVar(&opts.timeout, "timeout", "", "per-compile deadline, e.g. 10m (default: none)")
	f.StringVar(&opts.reportPath, "report", "", "write a JSON build report to this file")
	f.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this textfile")
	f.StringVar(&opts.statusAddr, "status-addr", "", "serve gRPC health status on host:port while running")

	rootCmd.AddCommand(buildHistoryCommand(opts))

	return rootCmd
}

// Execute runs the CLI and returns the process exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := BuildCLI(stdout, stderr)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrJobsFailed):
		return 1
	default:
		fmt.Fprintf(stderr, "[ERROR] %s\n", err)
		return 1
	}
}

// resolveConfig layers file, environment and flags over the defaults.
func resolveConfig(opts *options, flags *pflag.FlagSet, lookup func(string) (string, bool)) (*Config, error) {
	if err := loadDotEnv(opts.envFile); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if opts.configFile != "" {
		loaded, err := loadConfig(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	changed := func(name string) bool {
		fl := flags.Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("workers") {
		cfg.Workers = opts.workers
	}
	if changed("ttf") || changed("otf") {
		cfg.Formats = nil
		if opts.ttf {
			cfg.Formats = append(cfg.Formats, "ttf")
		}
		if opts.otf {
			cfg.Formats = append(cfg.Formats, "otf")
		}
	}
	if changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if changed("quiet") {
		cfg.Compiler.Quiet = opts.quiet
	}
	if changed("no-trace") {
		cfg.Trace = !opts.noTrace
	}
	if changed("timeout") {
		d, err := time.ParseDuration(opts.timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout: %w", err)
		}
		cfg.Compiler.Timeout = d
	}
	if changed("report") {
		cfg.Report.Path = opts.reportPath
	}
	if changed("history") {
		cfg.History.Path = opts.historyPath
	}
	if changed("metrics-textfile") {
		cfg.Metrics.Textfile = opts.metricsTextfile
	}
	if changed("status-addr") {
		cfg.Status.Addr = opts.statusAddr
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging installs the process-wide slog handler on w.
func setupLogging(level string, w io.Writer) error {
	lvl, err := parseLogLevel(level)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
	return nil
}
