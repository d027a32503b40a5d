package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "convbench",
		Short: "Convergence benchmark for flowsheet strategies",
		Long: `convbench measures how fast sequential modular and phenomena oriented
flowsheet convergence approach steady state.

It estimates a cached reference steady state per system and algorithm,
tracks error profiles against wall-clock time, and reduces repeated trials
to mean curves and relative times to steady state.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.convbench/config.yaml)")
	rootCmd.PersistentFlags().String("cache-dir", "", "Cache directory (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: error, warn, info, debug, trace")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSystemsCmd(),
		newEstimateCmd(),
		newAgreeCmd(),
		newProfileCmd(),
		newBenchmarkCmd(),
		newMeanCmd(),
		newChartCmd(),
		newExportCmd(),
		newCacheCmd(),
		newConfigCmd(),
	)
	return rootCmd
}
