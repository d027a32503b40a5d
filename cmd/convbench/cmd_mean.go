package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nvandessel/convbench/internal/profile"
	"github.com/nvandessel/convbench/internal/reduce"
)

func newMeanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mean <system>",
		Short: "Reduce trials to mean error curves",
		Long: `Run (or reuse) trials of a system under both algorithms and reduce each
algorithm's trials to mean and standard deviation curves on a common time
grid. Points where any trial is undefined are reported as null.

Examples:
  convbench mean light_ends_cascade
  convbench mean light_ends_cascade --signal temperature_error --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			sig, err := signalFlag(cmd)
			if err != nil {
				return err
			}

			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.trialCount(cmd)
			if err != nil {
				return err
			}
			sm, po, err := rt.runner().Means(cmd.Context(), args[0], n, sig)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"system":     args[0],
					"signal":     sig.Short(),
					"sequential": sm,
					"phenomena":  po,
				})
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %s\n", args[0], sig)
			for _, m := range []*reduce.MeanProfile{sm, po} {
				printMean(w, m, sig)
			}
			return nil
		},
	}

	cmd.Flags().IntP("trials", "n", 0, "Trials per algorithm (default from config)")
	cmd.Flags().StringP("signal", "s", profile.FlowError.Short(), "Signal to reduce")
	return cmd
}

func printMean(w io.Writer, m *reduce.MeanProfile, sig profile.Signal) {
	c := m.Curve(sig)
	fmt.Fprintf(w, "\n%s (N=%d, diverged steps per trial %v)\n", m.Algorithm, m.Trials, m.Diverged)
	fmt.Fprintf(w, "%12s %10s %10s %6s\n", "TIME [s]", "MEAN", "STD", "N")
	for i, t := range m.Time {
		fmt.Fprintf(w, "%12.6f %10.3f %10.3f %6d\n", t, c.Mean[i], c.Std[i], c.Count[i])
	}
}

// signalFlag resolves --signal.
func signalFlag(cmd *cobra.Command) (profile.Signal, error) {
	name, _ := cmd.Flags().GetString("signal")
	return profile.ParseSignal(name)
}
