package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/convbench/internal/export"
	"github.com/nvandessel/convbench/internal/pathutil"
	"github.com/nvandessel/convbench/internal/profile"
	"github.com/nvandessel/convbench/internal/reduce"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <system>",
		Short: "Export trials as Arrow IPC files",
		Long: `Write every trial of a system, or with --mean the reduced mean curves of
each algorithm, as Arrow IPC files for analysis in other tools.

Files are named {alg}_{system}_trial_{i}.arrow and {alg}_{system}_mean.arrow.

Examples:
  convbench export light_ends_cascade --out data
  convbench export light_ends_cascade --mean --trials 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outDir, _ := cmd.Flags().GetString("out")
			mean, _ := cmd.Flags().GetBool("mean")

			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			def, err := rt.registry.Get(args[0])
			if err != nil {
				return err
			}
			n, err := rt.trialCount(cmd)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}

			runner := rt.runner()
			batch, err := runner.Batch(cmd.Context(), def.Name, n)
			if err != nil {
				return err
			}

			var written []string
			if mean {
				sm, po, err := runner.MeansOf(batch, profile.Signals...)
				if err != nil {
					return err
				}
				for _, m := range []*reduce.MeanProfile{sm, po} {
					name := fmt.Sprintf("%s_%s_mean.arrow", m.Algorithm.Short(), def.Name)
					path, err := writeArrow(outDir, name, func(f *os.File) error { return export.WriteMean(f, m) })
					if err != nil {
						return err
					}
					written = append(written, path)
				}
			} else {
				for _, ps := range [][]*profile.Profile{batch.Sequential, batch.Phenomena} {
					for _, p := range ps {
						name := fmt.Sprintf("%s_%s_trial_%d.arrow", p.Algorithm.Short(), def.Name, p.Trial)
						path, err := writeArrow(outDir, name, func(f *os.File) error { return export.WriteProfile(f, p) })
						if err != nil {
							return err
						}
						written = append(written, path)
					}
				}
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"system": def.Name,
					"files":  written,
				})
			}
			for _, path := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().IntP("trials", "n", 0, "Trials per algorithm (default from config)")
	cmd.Flags().Bool("mean", false, "Export mean curves instead of individual trials")
	cmd.Flags().StringP("out", "o", ".", "Output directory")
	return cmd
}

// writeArrow creates name under dir and fills it with write.
func writeArrow(dir, name string, write func(*os.File) error) (string, error) {
	path, err := pathutil.ResolveWithin(dir, name)
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to export %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	return path, nil
}
