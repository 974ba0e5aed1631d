package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ChuLiYu/fontmake-mp/internal/history"
	"github.com/ChuLiYu/fontmake-mp/internal/report"
	"github.com/ChuLiYu/fontmake-mp/pkg/types"
	"github.com/spf13/cobra"
)

func buildHistoryCommand(opts *options) *cobra.Command {
	var (
		limit      int
		runID      string
		reportFile string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past compile runs",
		Long: `List recent runs recorded with --history, or the per-font outcomes of one run with --run.
With --report the outcomes are read from a JSON build report instead.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(opts, cmd.Flags(), os.LookupEnv)
			if err != nil {
				return err
			}
			if err := setupLogging(cfg.LogLevel, cmd.ErrOrStderr()); err != nil {
				return err
			}
			if reportFile != "" {
				return showReport(cmd.OutOrStdout(), reportFile)
			}
			if cfg.History.Path == "" {
				return errors.New("no history database configured (use --history or history.path)")
			}
			return showHistory(cmd, cfg.History.Path, limit, runID)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list, 0 for all")
	cmd.Flags().StringVar(&runID, "run", "", "show the outcomes of this run ID")
	cmd.Flags().StringVar(&reportFile, "report", "", "show the outcomes stored in this JSON build report")

	return cmd
}

func showHistory(cmd *cobra.Command, path string, limit int, runID string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("history database %s: %w", path, err)
	}

	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if runID != "" {
		outcomes, err := store.Outcomes(cmd.Context(), runID)
		if err != nil {
			return err
		}
		return printOutcomes(out, outcomes)
	}

	runs, err := store.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return printRuns(out, runs)
}

func showReport(out io.Writer, path string) error {
	doc, err := report.Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Run %s, %s, %d workers, %d of %d failed\n\n",
		doc.Run.RunID,
		doc.Run.StartedAt.Local().Format(time.DateTime),
		doc.Run.Workers,
		doc.Failed,
		len(doc.Run.Outcomes),
	)
	return printOutcomes(out, doc.Run.Outcomes)
}

func printRuns(out io.Writer, runs []history.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "No runs recorded.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tDURATION\tWORKERS\tFORMATS\tJOBS\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d\t%d\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration.Round(time.Millisecond),
			r.Workers,
			r.Kinds,
			r.Jobs,
			r.Failed,
		)
	}
	return tw.Flush()
}

func printOutcomes(out io.Writer, outcomes []types.JobOutcome) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tRESULT\tDURATION\tWORKER\tERROR")
	for _, o := range outcomes {
		result := "ok"
		if !o.Succeeded {
			result = "FAILED"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			o.SourcePath, result, o.Duration.Round(time.Millisecond), o.Worker, firstLine(o.Diagnostic))
	}
	return tw.Flush()
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
