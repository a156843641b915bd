package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/event"
)

type historyOptions struct {
	pattern     string
	correlation string
	since       time.Duration
	limit       int
	field       string
}

func createHistoryCmd(g *globals) *cobra.Command {
	o := &historyOptions{}
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Query stored events",
		Long: `Print stored events as JSON lines. Requires a persistence
backend other than "none".

Examples:
  conductor history --pattern 'agent.**' --limit 20
  conductor history --correlation 3f2a... --field data.tool`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, stop, err := g.startApp(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			q := event.Query{
				Pattern:       o.pattern,
				CorrelationID: core.CorrelationID(o.correlation),
				Limit:         o.limit,
			}
			if o.since > 0 {
				q.Since = time.Now().Add(-o.since)
			}
			events, err := a.Bus().Query(cmd.Context(), q)
			if err != nil {
				return fmt.Errorf("query history: %w", err)
			}
			for _, e := range events {
				b, err := event.Encode(e)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), project(b, o.field))
			}
			return nil
		},
	}

	historyCmd.Flags().StringVarP(&o.pattern, "pattern", "p", "", "Event type pattern")
	historyCmd.Flags().StringVar(&o.correlation, "correlation", "", "Correlation id")
	historyCmd.Flags().DurationVar(&o.since, "since", 0, "Only events newer than this")
	historyCmd.Flags().IntVarP(&o.limit, "limit", "n", 100, "Maximum number of events")
	historyCmd.Flags().StringVar(&o.field, "field", "", "Print only this JSON path of each event")
	return historyCmd
}
