package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/convbench/internal/profile"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile <system>",
		Short: "Track error profiles of a system",
		Long: `Track trials of a system, reusing cached trials, and summarize each one:
iterations run, tracked time, final errors and divergent steps.

Examples:
  convbench profile light_ends_cascade --algorithm sm --trials 3
  convbench profile wide_boiling_cascade --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			algs, err := algorithms(cmd)
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
			runner := rt.runner()

			type summary struct {
				Algorithm        string  `json:"algorithm"`
				Trial            int     `json:"trial"`
				Iterations       int     `json:"iterations"`
				Time             float64 `json:"time"`
				FlowError        float64 `json:"flow_error"`
				TemperatureError float64 `json:"temperature_error"`
				Diverged         int     `json:"diverged"`
			}
			var rows []summary
			for _, alg := range algs {
				ps, err := runner.Profiles(cmd.Context(), args[0], alg, n)
				if err != nil {
					return err
				}
				for _, p := range ps {
					rows = append(rows, summary{
						Algorithm:        alg.Short(),
						Trial:            p.Trial,
						Iterations:       p.Len(),
						Time:             p.FinalTime(),
						FlowError:        last(p.Series(profile.FlowError)),
						TemperatureError: last(p.Series(profile.TemperatureError)),
						Diverged:         p.DivergedCount(),
					})
				}
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"system":   args[0],
					"profiles": rows,
				})
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-4s %5s %10s %10s %10s %10s %8s\n", "ALG", "TRIAL", "ITERS", "TIME", "FLOW", "TEMP", "DIVERGED")
			for _, r := range rows {
				fmt.Fprintf(w, "%-4s %5d %10d %9.4gs %10.3f %10.3f %8d\n",
					r.Algorithm, r.Trial, r.Iterations, r.Time, r.FlowError, r.TemperatureError, r.Diverged)
			}
			return nil
		},
	}

	cmd.Flags().StringP("algorithm", "a", "", "Algorithm: sm or po (default both)")
	cmd.Flags().IntP("trials", "n", 0, "Trials per algorithm (default from config)")
	return cmd
}

// last returns the final value of xs, or 0 for an empty series.
func last(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return xs[len(xs)-1]
}
