package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bidsmirror/internal/ledger"
)

const timeLayout = "2006-01-02 15:04:05"

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var runID string
	var unitID string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent passes and unit outcomes from the run ledger",
		Long: `Show recent batch passes. With --run, list every unit outcome of one pass
("latest" selects the newest). With --unit, show one unit's history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID != "" && unitID != "" {
				return fmt.Errorf("specify only one of --run or --unit")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ledger.Open(cfg.LedgerPath())
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			switch {
			case unitID != "":
				history, err := store.UnitHistory(cmd.Context(), unitID, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, history)
				}
				if len(history) == 0 {
					fmt.Fprintf(out, "No outcomes recorded for unit %s\n", unitID)
					return nil
				}
				fmt.Fprintln(out, renderOutcomes(history, true, colorize))
				return nil

			case runID != "":
				if runID == "latest" {
					latest, err := store.LatestRun(cmd.Context())
					if err != nil {
						return err
					}
					if latest == nil {
						fmt.Fprintln(out, "No passes recorded")
						return nil
					}
					runID = latest.RunID
				}
				outcomes, err := store.Outcomes(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, outcomes)
				}
				if len(outcomes) == 0 {
					fmt.Fprintf(out, "No outcomes recorded for run %s\n", runID)
					return nil
				}
				fmt.Fprintln(out, renderOutcomes(outcomes, false, colorize))
				return nil
			}

			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No passes recorded")
				return nil
			}
			fmt.Fprintln(out, renderRuns(runs, colorize))
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Show unit outcomes for a run id (or \"latest\")")
	cmd.Flags().StringVar(&unitID, "unit", "", "Show the outcome history of one unit")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum rows to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func renderRuns(runs []ledger.Run, colorize bool) string {
	cols := []column{
		textCol("Run"), textCol("Started"), numCol("Elapsed"), textCol("Branch"), textCol("Tool"),
		numCol("Done"), numCol("Skip"), numCol("Abst"), numCol("Fail"), textCol("State"),
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		elapsed := "-"
		state := paint("running", statusInfo, colorize)
		if r.Finished() {
			elapsed = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
			state = paint("finished", statusOK, colorize)
			if r.Error != "" {
				state = paint("error: "+truncate(r.Error, 40), statusError, colorize)
			} else if r.Counts.Failed > 0 {
				state = paint("finished", statusWarn, colorize)
			}
		}
		rows = append(rows, []string{
			r.RunID,
			r.StartedAt.Local().Format(timeLayout),
			elapsed,
			r.Branch,
			dash(r.ToolVersion),
			strconv.Itoa(r.Counts.Completed),
			strconv.Itoa(r.Counts.Skipped),
			strconv.Itoa(r.Counts.Abstained),
			strconv.Itoa(r.Counts.Failed),
			state,
		})
	}
	return renderTable(cols, rows)
}

func renderOutcomes(outcomes []ledger.Outcome, withRun bool, colorize bool) string {
	cols := []column{
		textCol("Unit"), textCol("Label"), textCol("Status"), numCol("Sessions"), numCol("Total"),
		textCol("Fault"), numCol("Elapsed"),
	}
	if withRun {
		cols = append([]column{textCol("Run")}, cols...)
	}
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		sessions := "-"
		if o.SessionsConverted != nil {
			sessions = strconv.Itoa(*o.SessionsConverted)
		}
		row := []string{
			o.UnitID,
			o.Label,
			paint(string(o.Status), outcomeKind(o.Status), colorize),
			sessions,
			dash(o.TotalSessions),
			dash(o.FaultKind),
			o.Duration.Round(time.Millisecond).String(),
		}
		if withRun {
			row = append([]string{o.RunID}, row...)
		}
		rows = append(rows, row)
	}
	return renderTable(cols, rows)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
