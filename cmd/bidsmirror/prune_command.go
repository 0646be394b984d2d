package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"bidsmirror/internal/vcs"
	"bidsmirror/internal/workspace"
)

// annexBranch is the git-annex bookkeeping branch, always kept.
const annexBranch = "git-annex"

func newPruneBranchesCommand(ctx *commandContext) *cobra.Command {
	var keep []string
	var yes bool
	var all bool

	cmd := &cobra.Command{
		Use:   "prune-branches UNIT...",
		Short: "Delete remote branches other than the kept labels",
		Long: `Delete every remote branch of each unit's mirror except the kept labels,
the repository's default branch, and git-annex. Uses the unit's working
copy, so sync must have cloned it first. Nothing is deleted without --yes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			units, err := ctx.resolveUnits(cmd.Context(), args, all)
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.hostingClient()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			if len(keep) == 0 {
				keep = []string{cfg.Run.Branch}
			}
			git := vcs.New(vcs.WithSecrets(client.Token()))
			ws := workspace.NewManager(git, client, workspace.OptionsFrom(cfg), logger)
			out := cmd.OutOrStdout()

			var errs []error
			for _, id := range units {
				dir := ws.Path(id)
				if _, err := os.Stat(dir); err != nil {
					errs = append(errs, fmt.Errorf("unit %s: no working copy at %s; run sync first", id, dir))
					continue
				}
				repo, err := client.Repository(cmd.Context(), id)
				if err != nil {
					errs = append(errs, fmt.Errorf("unit %s: %w", id, err))
					continue
				}
				remote, err := git.RemoteBranches(cmd.Context(), dir)
				if err != nil {
					errs = append(errs, fmt.Errorf("unit %s: %w", id, err))
					continue
				}
				excess := branchesToPrune(remote, slices.Concat(keep, []string{repo.DefaultBranch, annexBranch}))
				if len(excess) == 0 {
					fmt.Fprintf(out, "%s: nothing to prune\n", id)
					continue
				}
				if !yes {
					fmt.Fprintf(out, "%s: would delete %s\n", id, strings.Join(excess, ", "))
					continue
				}
				for _, branch := range excess {
					if err := git.DeleteRemoteBranch(cmd.Context(), dir, branch); err != nil {
						errs = append(errs, fmt.Errorf("unit %s: %w", id, err))
						continue
					}
					fmt.Fprintf(out, "%s: deleted %s\n", id, branch)
				}
			}
			if !yes && len(errs) == 0 {
				fmt.Fprintln(out, "Dry run; pass --yes to delete")
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().StringSliceVar(&keep, "keep", nil, "Branch labels to keep (default: run.branch)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")
	cmd.Flags().BoolVar(&all, "all", false, "Prune every unit in the catalog")
	return cmd
}

// branchesToPrune returns the remote branches not named in keep, sorted.
func branchesToPrune(remote, keep []string) []string {
	var out []string
	for _, b := range remote {
		b = strings.TrimSpace(b)
		if b == "" || slices.Contains(keep, b) {
			continue
		}
		out = append(out, b)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
