// Package main provides the conductor command-line interface: it loads
// guest scripts, runs hook chains, publishes events and reads event
// history.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/conductor/internal/app"
	"github.com/dshills/conductor/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

const shutdownTimeout = 5 * time.Second

// globals holds the persistent flags.
type globals struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	rootCmd := &cobra.Command{
		Use:   "conductor",
		Short: "Conductor - hook pipeline and event bus host",
		Long: `Conductor runs hook chains contributed by Lua, JavaScript and Starlark
scripts and routes events between them.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to a YAML or TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		createRunCmd(g),
		createPublishCmd(g),
		createHistoryCmd(g),
		createTailCmd(g),
		createScriptsCmd(g),
		createConfigCmd(g),
	)
	return rootCmd
}

// loadConfig reads the configuration file, then the environment, then the
// flags.
func (g *globals) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	return cfg, nil
}

// startApp builds and starts the application. The returned stop function
// shuts it down.
func (g *globals) startApp(ctx context.Context) (*app.Application, func(), error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close(context.WithoutCancel(ctx))
		return nil, nil, err
	}
	stop := func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.Shutdown(sctx); err != nil {
			a.Logger().Warn(sctx, "shutdown incomplete", "err", err)
		}
	}
	return a, stop, nil
}
