package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bidsmirror/internal/hosting"
	"bidsmirror/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks (directories, binaries, hosting token)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var pinger preflight.Pinger
			if !offline {
				pinger = hosting.NewClient(hosting.ConfigFrom(cfg))
			}

			results := preflight.RunAll(cmd.Context(), cfg, pinger)
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if !preflight.Passed(results) {
				return errors.New("preflight checks failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the hosting API probe")
	return cmd
}
