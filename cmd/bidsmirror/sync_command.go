package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bidsmirror/internal/batch"
	"bidsmirror/internal/syncrun"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var workers int
	var limit int
	var branch string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one batch pass over the catalog",
		Long: `Run one batch pass: enumerate the catalog, and for each unit ensure its
mirror exists, skip it when the published manifest is current, otherwise
convert and publish. A failing unit writes a failure record and never stops
the pass.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg := base.WithRunOverrides(workers, limit, branch)
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			summary, err := syncrun.Execute(cmd.Context(), &cfg, logger)
			if summary.RunID != "" {
				printSummary(cmd.OutOrStdout(), summary, cfg.Paths.FailuresDir)
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&workers, "workers", "w", -1, "Concurrent units (1 = sequential, 0 = one per CPU; default from config)")
	cmd.Flags().IntVarP(&limit, "limit", "n", -1, "Process only the first N units after sorting (0 = all; default from config)")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Target branch label (default from config)")
	return cmd
}

func printSummary(out io.Writer, summary batch.Summary, failuresDir string) {
	c := summary.Counts
	fmt.Fprintf(out, "Run %s: %d units (%d completed, %d skipped, %d abstained, %d failed)\n",
		summary.RunID, c.Total, c.Completed, c.Skipped, c.Abstained, c.Failed)
	if !summary.FinishedAt.IsZero() && !summary.StartedAt.IsZero() {
		fmt.Fprintf(out, "Elapsed: %s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Second))
	}
	if len(summary.Failures) > 0 {
		fmt.Fprintf(out, "Failure records in %s:\n", failuresDir)
		fmt.Fprintf(out, "  %s\n", strings.Join(summary.Failures, "\n  "))
	}
}
