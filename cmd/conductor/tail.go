package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dshills/conductor/internal/event"
)

func createTailCmd(g *globals) *cobra.Command {
	var field string
	tailCmd := &cobra.Command{
		Use:   "tail <pattern>...",
		Short: "Stream matching events",
		Long: `Print events matching any pattern as JSON lines until interrupted. Events
come from the loaded scripts and from the hook executor.

Examples:
  conductor tail 'hook.**' 'agent.*'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, stop, err := g.startApp(ctx)
			if err != nil {
				return err
			}
			defer stop()

			sub, err := a.Bus().SubscribeAll(args, event.WithOwner("cli.tail"))
			if err != nil {
				return err
			}
			return tail(ctx, a.Bus(), sub, cmd.OutOrStdout(), field)
		},
	}
	tailCmd.Flags().StringVar(&field, "field", "", "Print only this JSON path of each event")
	return tailCmd
}

// tail writes every event received on sub to w until ctx is done.
func tail(ctx context.Context, bus *event.Bus, sub *event.Subscription, w io.Writer, field string) error {
	var mu sync.Mutex
	fwd := event.NewForwarder(ctx, bus)
	fwd.Forward(sub, func(_ context.Context, e *event.UniversalEvent) error {
		b, err := event.Encode(e)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		_, err = fmt.Fprintln(w, project(b, field))
		return err
	})
	return fwd.Wait()
}
