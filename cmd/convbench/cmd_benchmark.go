package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/convbench/internal/cache"
	"github.com/nvandessel/convbench/internal/chart"
	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/ratelimit"
	"github.com/nvandessel/convbench/internal/reduce"
	"github.com/nvandessel/convbench/internal/trials"
)

func newBenchmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark [system...]",
		Short: "Compare times to steady state of both algorithms",
		Long: `Run trials of each system under both algorithms and report the time the
faster algorithm needs to reach the common steady-state cutoff as a
percentage of the slower one's. With no systems, every system is run in
order of stage count.

With --follow nothing is tracked: the comparison is recomputed from the
cache every time another process lands a new trial.

Examples:
  convbench benchmark
  convbench benchmark light_ends_cascade --trials 10 --chart bench.png
  convbench benchmark --follow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			chartPath, _ := cmd.Flags().GetString("chart")
			follow, _ := cmd.Flags().GetBool("follow")

			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()

			defs, err := rt.registry.Select(args)
			if err != nil {
				return err
			}
			n, err := rt.trialCount(cmd)
			if err != nil {
				return err
			}
			runner := rt.runner()
			names := make([]string, 0, len(defs))
			for _, d := range defs {
				names = append(names, d.Name)
			}

			if follow {
				return followBenchmark(cmd, rt, runner, names, n, jsonOut)
			}

			comparisons := make([]*reduce.Comparison, 0, len(defs))
			for _, name := range names {
				c, err := runner.Benchmark(cmd.Context(), name, n)
				if err != nil {
					return err
				}
				comparisons = append(comparisons, c)
			}

			if chartPath != "" {
				if err := chart.RenderBenchmark(chartPath, comparisons); err != nil {
					return fmt.Errorf("failed to render chart: %w", err)
				}
				rt.logger.Info("benchmark: chart written", "path", chartPath)
			}
			return printComparisons(cmd.OutOrStdout(), comparisons, jsonOut)
		},
	}

	cmd.Flags().IntP("trials", "n", 0, "Trials per algorithm (default from config)")
	cmd.Flags().String("chart", "", "Render the relative times to this file (png, svg or pdf)")
	cmd.Flags().Bool("follow", false, "Recompute from the cache whenever new trials land")
	return cmd
}

// followReportRate bounds how often one system is re-reported while its
// trials are landing.
const followReportRate = 1.0

// followBenchmark prints the cached comparisons, then re-reports a system
// whenever one of its trials lands until the context is cancelled.
func followBenchmark(cmd *cobra.Command, rt *runtime, runner *trials.Runner, names []string, n int, jsonOut bool) error {
	var mu sync.Mutex
	report := func(systems ...string) {
		mu.Lock()
		defer mu.Unlock()
		if err := printComparisons(cmd.OutOrStdout(), cachedComparisons(runner, systems, n), jsonOut); err != nil {
			rt.logger.Warn("benchmark: printing comparisons failed", "error", err)
		}
	}
	report(names...)

	ctx := cmd.Context()
	limiter := ratelimit.NewLimiter(followReportRate, 1)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if due := limiter.Due(); len(due) > 0 {
					report(due...)
				}
			}
		}
	}()

	return cache.Watch(ctx, rt.store.Dir(), func(blob string) {
		for _, system := range names {
			if !strings.Contains(blob, "_"+system+"_profile_") {
				continue
			}
			if limiter.Allow(system) {
				report(system)
			} else {
				rt.logger.Debug("benchmark: report deferred", "system", system)
			}
		}
	})
}

// cachedComparisons compares the cached trials of every system that has
// at least one trial per algorithm.
func cachedComparisons(runner *trials.Runner, systems []string, n int) []*reduce.Comparison {
	var out []*reduce.Comparison
	for _, system := range systems {
		sm, err := runner.Cached(system, flowsheet.SequentialModular, n)
		if err != nil || len(sm) == 0 {
			continue
		}
		po, err := runner.Cached(system, flowsheet.PhenomenaOriented, n)
		if err != nil || len(po) == 0 {
			continue
		}
		c, err := runner.Compare(&trials.Batch{System: system, Sequential: sm, Phenomena: po})
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

func printComparisons(w io.Writer, comparisons []*reduce.Comparison, jsonOut bool) error {
	if jsonOut {
		if comparisons == nil {
			comparisons = []*reduce.Comparison{}
		}
		return json.NewEncoder(w).Encode(map[string]interface{}{
			"comparisons": comparisons,
		})
	}
	if len(comparisons) == 0 {
		fmt.Fprintln(w, "No complete comparisons yet.")
		return nil
	}
	fmt.Fprintf(w, "%-26s %8s %14s %14s %16s  %s\n", "SYSTEM", "CUTOFF", "SM [s]", "PO [s]", "RELATIVE [%]", "FASTER")
	for _, c := range comparisons {
		faster := "po"
		if c.SequentialFaster {
			faster = "sm"
		}
		fmt.Fprintf(w, "%-26s %8.2f %14.4g %14.4g %8.1f ± %-5.1f  %s\n",
			c.System, c.Cutoff, c.SequentialStats[0], c.PhenomenaStats[0], c.RelativeTime, c.RelativeStd, faster)
	}
	return nil
}
