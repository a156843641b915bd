package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/event"
)

type publishOptions struct {
	data        string
	sets        []string
	persistent  bool
	correlation string
	ttl         time.Duration
}

func createPublishCmd(g *globals) *cobra.Command {
	o := &publishOptions{}
	publishCmd := &cobra.Command{
		Use:   "publish <type>",
		Short: "Publish an event",
		Long: `Publish one event on the bus and print it. Loaded scripts see it, and it is
stored when marked persistent or matched by a persistence pattern.

Examples:
  conductor publish agent.started --data '{"name":"planner"}' --persistent`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := buildData(o.data, o.sets)
			if err != nil {
				return err
			}

			a, stop, err := g.startApp(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()

			opts := []event.PublishOption{event.WithSource("cli")}
			if o.persistent {
				opts = append(opts, event.WithPersistent())
			}
			if o.correlation != "" {
				opts = append(opts, event.WithCorrelation(core.CorrelationID(o.correlation)))
			}
			if o.ttl > 0 {
				opts = append(opts, event.WithTTL(o.ttl))
			}

			e := event.NewEvent(args[0], data, opts...)
			if err := a.Bus().PublishEvent(cmd.Context(), e); err != nil {
				return fmt.Errorf("publish %s: %w", args[0], err)
			}
			b, err := event.Encode(e)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}

	publishCmd.Flags().StringVarP(&o.data, "data", "d", "", "Event data as a JSON object")
	publishCmd.Flags().StringArrayVar(&o.sets, "set", nil, "Set a data field (path=value, repeatable)")
	publishCmd.Flags().BoolVar(&o.persistent, "persistent", false, "Store the event in history")
	publishCmd.Flags().StringVar(&o.correlation, "correlation", "", "Correlation id")
	publishCmd.Flags().DurationVar(&o.ttl, "ttl", 0, "Discard the event if not received within this duration")
	return publishCmd
}
