package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/convbench/internal/convergence"
	"github.com/nvandessel/convbench/internal/flowsheet"
)

func newAgreeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agree <system>",
		Short: "Check that both algorithms reach the same steady state",
		Long: `Compare the reference flows of the sequential modular and phenomena
oriented references of a system entry by entry. Entries differing by more
than atol + rtol*|po| are listed and the command fails.

Tolerances default to tolerance.agreement_relative and
tolerance.agreement_absolute from the configuration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			pairs, _ := cmd.Flags().GetStringSlice("param")
			params, err := flowsheet.ParseParams(pairs)
			if err != nil {
				return err
			}

			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			def, err := rt.registry.Get(args[0])
			if err != nil {
				return err
			}
			sm, _, err := rt.reference(cmd, def, flowsheet.SequentialModular, params)
			if err != nil {
				return err
			}
			po, _, err := rt.reference(cmd, def, flowsheet.PhenomenaOriented, params)
			if err != nil {
				return err
			}

			rtol := rt.cfg.Tolerance.AgreementRelative
			atol := rt.cfg.Tolerance.AgreementAbsolute
			if cmd.Flags().Changed("rtol") {
				rtol, _ = cmd.Flags().GetFloat64("rtol")
			}
			if cmd.Flags().Changed("atol") {
				atol, _ = cmd.Flags().GetFloat64("atol")
			}
			diffs, err := convergence.Agreement(sm, po, rtol, atol)
			if err != nil {
				return err
			}

			if jsonOut {
				if diffs == nil {
					diffs = []convergence.Disagreement{}
				}
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"system":        def.Name,
					"agree":         len(diffs) == 0,
					"rtol":          rtol,
					"atol":          atol,
					"disagreements": diffs,
				}); err != nil {
					return err
				}
			} else if len(diffs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: references agree (rtol=%g, atol=%g)\n", def.Name, rtol, atol)
			} else {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s: %d flow entries disagree (rtol=%g, atol=%g)\n", def.Name, len(diffs), rtol, atol)
				for _, d := range diffs {
					tag := d.NodeTag
					if d.Phase != "" {
						tag += "[" + d.Phase + "]"
					}
					fmt.Fprintf(w, "  %-16s #%d  sm=%.6g  po=%.6g\n", tag, d.Index, d.A, d.B)
				}
			}

			if len(diffs) > 0 {
				return fmt.Errorf("%s: references disagree on %d entries", def.Name, len(diffs))
			}
			return nil
		},
	}

	cmd.Flags().Float64("rtol", 0, "Relative tolerance (default from config)")
	cmd.Flags().Float64("atol", 0, "Absolute tolerance (default from config)")
	cmd.Flags().StringSlice("param", nil, "System parameter override key=value (repeatable)")
	return cmd
}
