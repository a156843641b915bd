package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func createScriptsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "scripts",
		Short: "List the scripts that load from the configured directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, stop, err := g.startApp(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			scripts := a.Scripts().Scripts()
			if len(scripts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No scripts loaded.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tLANGUAGE\tHOOKS\tSUBSCRIPTIONS\tLOADED")
			for _, s := range scripts {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", s.Path, s.Language, s.Hooks, s.Subscriptions, s.LoadedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}
