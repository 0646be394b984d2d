package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bidsmirror/internal/failures"
	"bidsmirror/internal/logging"
	"bidsmirror/internal/services"
	"bidsmirror/internal/workspace"
)

func newResetCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	var all bool

	cmd := &cobra.Command{
		Use:   "reset UNIT...",
		Short: "Delete mirror repositories and local working copies",
		Long: `Delete each unit's mirror repository on the host, its local working copy,
and its failure record, so the next sync recreates the mirror from scratch.
Nothing is deleted without --yes.`,
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
			out := cmd.OutOrStdout()
			ws := workspace.NewManager(nil, nil, workspace.OptionsFrom(cfg), logger)

			if !yes {
				for _, id := range units {
					fmt.Fprintf(out, "Would delete %s/%s and %s\n", client.Organization(), id, ws.Path(id))
				}
				return errors.New("refusing to delete without --yes")
			}

			store := failures.NewStore(cfg.Paths.FailuresDir)
			var errs []error
			for _, id := range units {
				if err := client.DeleteRepository(cmd.Context(), id); err != nil && !errors.Is(err, services.ErrNotFound) {
					errs = append(errs, fmt.Errorf("unit %s: delete mirror: %w", id, err))
					continue
				}
				if err := ws.Remove(id); err != nil {
					errs = append(errs, fmt.Errorf("unit %s: %w", id, err))
					continue
				}
				if _, err := store.ClearUnit(id); err != nil {
					logger.Warn("failure records not cleared", logging.String(logging.FieldUnitID, id), logging.Error(err))
				}
				fmt.Fprintf(out, "Reset %s\n", id)
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")
	cmd.Flags().BoolVar(&all, "all", false, "Reset every unit in the catalog")
	return cmd
}
