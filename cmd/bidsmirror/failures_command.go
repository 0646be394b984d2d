package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bidsmirror/internal/failures"
)

func newFailuresCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var showTrace bool

	cmd := &cobra.Command{
		Use:   "failures [UNIT...]",
		Short: "List failure records left by previous passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			records, skipped, err := failures.NewStore(cfg.Paths.FailuresDir).List()
			if err != nil {
				return err
			}
			records = filterRecords(records, args)

			if asJSON {
				return writeJSON(cmd, records)
			}
			out := cmd.OutOrStdout()
			for _, name := range skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "warn: unreadable failure record %s\n", name)
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No failure records")
				return nil
			}

			if showTrace {
				for _, r := range records {
					fmt.Fprintf(out, "== %s [%s] %s ==\n", r.UnitID, r.Label, r.FaultKind)
					fmt.Fprintf(out, "run %s at %s\n%s\n\n%s\n\n", r.RunID, r.OccurredAt.Local().Format(timeLayout), r.Message, r.Trace)
				}
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.UnitID,
					dash(r.Label),
					r.FaultKind,
					truncate(r.Message, 60),
					r.OccurredAt.Local().Format(timeLayout),
				})
			}
			fmt.Fprintln(out, renderTable([]column{textCol("Unit"), textCol("Label"), textCol("Fault"), textCol("Message"), textCol("When")}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.Flags().BoolVar(&showTrace, "trace", false, "Print full messages and traces")
	return cmd
}

func filterRecords(records []failures.Record, units []string) []failures.Record {
	if len(units) == 0 {
		return records
	}
	want := make(map[string]struct{}, len(units))
	for _, u := range units {
		want[u] = struct{}{}
	}
	out := records[:0:0]
	for _, r := range records {
		if _, ok := want[r.UnitID]; ok {
			out = append(out, r)
		}
	}
	return out
}
