package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cyclegen/internal/collector"
	"cyclegen/internal/results"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Limit int
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs <results.db>",
		Short: "List runs stored in a results database",
		Args:  cobra.ExactArgs(1),
		Example: `  cyclegen runs results.db
  cyclegen runs --limit 5 --format json results.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs, 0 for all")

	return cmd
}

func runRuns(opts *RunsOptions, path string, cmd *cobra.Command) error {
	store, err := results.Open(path, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return WrapExitError(ExitError, "failed to open results", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(context.Background(), opts.Limit)
	if err != nil {
		return WrapExitError(ExitError, "failed to list runs", err)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs stored")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSESSION\tOPS\tFAILED\tOPS/SEC\tP99\tRESULT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.1f\t%s\t%s\n",
			r.ID, r.StartedAt.Format(time.DateTime), r.Session, r.TotalOps, r.FailureCount,
			r.OpsPerSec, collector.FormatDuration(r.P99), verdict(r))
	}
	return tw.Flush()
}

func verdict(r *results.Run) string {
	switch {
	case r.FinishedAt.IsZero():
		return "unfinished"
	case r.Passed == nil:
		return "-"
	case *r.Passed:
		return "passed"
	}
	return "failed"
}
