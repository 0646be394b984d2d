package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bidsmirror/internal/superdataset"
	"bidsmirror/internal/vcs"
)

func newSuperDatasetCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "super-dataset [UNIT...]",
		Short: "Link mirrors into the super-dataset as submodules",
		Long: `Register each unit's mirror as a submodule of the super-dataset repository
(super_dataset.repository in hosting.organization), then commit and push.
Mirrors already linked are left alone; mirrors that are missing or not
readable are skipped. Without arguments every catalog unit is considered.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			units, err := ctx.resolveUnits(cmd.Context(), args, all || len(args) == 0)
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
			if cfg.Run.Limit > 0 && len(units) > cfg.Run.Limit {
				units = units[:cfg.Run.Limit]
			}

			git := vcs.New(vcs.WithSecrets(client.Token()))
			updater := superdataset.NewUpdater(git, client, superdataset.OptionsFrom(cfg), logger)
			report, err := updater.Update(cmd.Context(), units)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Linked: %d, already linked: %d, unavailable: %d\n", len(report.Added), len(report.Present), len(report.Unavailable))
			if len(report.Unavailable) > 0 {
				fmt.Fprintf(out, "Unavailable: %s\n", strings.Join(report.Unavailable, ", "))
			}
			if err != nil {
				return err
			}
			if report.Committed {
				fmt.Fprintf(out, "Pushed %s to %s/%s\n", cfg.SuperDataset.Branch, client.Organization(), cfg.SuperDataset.Repository)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Link every unit in the catalog (the default without arguments)")
	return cmd
}
