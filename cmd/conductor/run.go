package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/conductor/internal/core"
	"github.com/dshills/conductor/internal/hook"
)

type runOptions struct {
	data        string
	sets        []string
	component   string
	kind        string
	correlation string
}

// runOutput is what run prints.
type runOutput struct {
	Result  map[string]any `json:"result"`
	Context contextOutput  `json:"context"`
}

type contextOutput struct {
	Point         string         `json:"point"`
	Component     map[string]any `json:"component_id"`
	CorrelationID string         `json:"correlation_id"`
	Data          map[string]any `json:"data"`
}

func createRunCmd(g *globals) *cobra.Command {
	o := &runOptions{}
	runCmd := &cobra.Command{
		Use:   "run <point>",
		Short: "Run the hook chain at a point",
		Long: `Load the configured scripts, run the chain registered at a hook point and
print the effective result and the final context as JSON.

Examples:
  conductor run BeforeToolExecution --data '{"tool":"rm"}'
  conductor run Custom:deploy --set env=prod --set replicas=3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			point, err := hook.ParsePoint(args[0])
			if err != nil {
				return err
			}
			data, err := buildData(o.data, o.sets)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, stop, err := g.startApp(ctx)
			if err != nil {
				return err
			}
			defer stop()

			hc := hook.NewContext(point, core.NewComponentID(o.component, core.ParseComponentKind(o.kind))).WithData(data)
			if o.correlation != "" {
				hc.WithCorrelation(core.CorrelationID(o.correlation))
			}
			res, out, err := a.Executor().Run(ctx, point, hc)
			if err != nil {
				return fmt.Errorf("run %s: %w", point, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(runOutput{
				Result: hook.ToMap(res),
				Context: contextOutput{
					Point:         string(out.Point),
					Component:     out.Component.Map(),
					CorrelationID: string(out.CorrelationID),
					Data:          out.Data,
				},
			})
		},
	}

	runCmd.Flags().StringVarP(&o.data, "data", "d", "", "Context data as a JSON object")
	runCmd.Flags().StringArrayVar(&o.sets, "set", nil, "Set a data field (path=value, repeatable)")
	runCmd.Flags().StringVar(&o.component, "component", "cli", "Component name")
	runCmd.Flags().StringVar(&o.kind, "kind", "custom", "Component kind (agent, tool, workflow, system, custom)")
	runCmd.Flags().StringVar(&o.correlation, "correlation", "", "Correlation id (generated when empty)")
	return runCmd
}
