package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/convbench/internal/chart"
	"github.com/nvandessel/convbench/internal/constants"
	"github.com/nvandessel/convbench/internal/pathutil"
	"github.com/nvandessel/convbench/internal/profile"
)

func newChartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart <system>",
		Short: "Render mean error curves of a system",
		Long: `Render the mean curves of one signal for both algorithms, with markers at
the point each curve settles within one decade of its lowest value.

The file is written to --out as {system}_{signal}.{format}.

Examples:
  convbench chart light_ends_cascade
  convbench chart alkane_recycle_cascade --signal material_balance --format svg --out charts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			outDir, _ := cmd.Flags().GetString("out")
			format, ok := constants.ParseChartFormat(formatName)
			if !ok {
				return fmt.Errorf("invalid format %q (valid: png, svg, pdf)", formatName)
			}
			sig, err := signalFlag(cmd)
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
			n, err := rt.trialCount(cmd)
			if err != nil {
				return err
			}
			sm, po, err := rt.runner().Means(cmd.Context(), def.Name, n, sig)
			if err != nil {
				return err
			}
			curves, err := chart.MeanCurves(sm, po, sig)
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			path, err := pathutil.ResolveWithin(outDir, def.Name+"_"+sig.Short()+format.Ext())
			if err != nil {
				return err
			}
			if err := chart.Render(path, def.Title, string(sig)+" [log10]", curves...); err != nil {
				return fmt.Errorf("failed to render chart: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Chart written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().IntP("trials", "n", 0, "Trials per algorithm (default from config)")
	cmd.Flags().StringP("signal", "s", profile.FlowError.Short(), "Signal to plot")
	cmd.Flags().String("format", string(constants.ChartPNG), "Output format: png, svg or pdf")
	cmd.Flags().StringP("out", "o", ".", "Output directory")
	return cmd
}
