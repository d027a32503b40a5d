package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nvandessel/convbench/internal/cache"
	"github.com/nvandessel/convbench/internal/config"
	"github.com/nvandessel/convbench/internal/convergence"
	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/logging"
	"github.com/nvandessel/convbench/internal/systems"
	"github.com/nvandessel/convbench/internal/telemetry"
	"github.com/nvandessel/convbench/internal/tracker"
	"github.com/nvandessel/convbench/internal/trials"
)

// newRegistry builds the system registry. Tests replace it.
var newRegistry = systems.Builtin

// loadConfig resolves the configuration: file (--config or the default
// location), then environment, then global flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if dir, _ := cmd.Flags().GetString("cache-dir"); dir != "" {
		cfg.Cache.Dir = dir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if file, _ := cmd.Flags().GetString("metrics-file"); file != "" {
		cfg.Metrics.File = file
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// runtime bundles what the benchmarking commands share.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	trace    *logging.TraceLogger
	metrics  *telemetry.Metrics
	store    *cache.Store
	registry *systems.Registry
}

func openRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	trace := logging.NewTraceLogger(cfg.Cache.Dir, cfg.Logging.Level)
	metrics := telemetry.New()

	store, err := cache.Open(cmd.Context(), cfg.Cache.Dir,
		cache.WithLogger(logger), cache.WithTrace(trace), cache.WithMetrics(metrics))
	if err != nil {
		trace.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	return &runtime{
		cfg:      cfg,
		logger:   logger,
		trace:    trace,
		metrics:  metrics,
		store:    store,
		registry: newRegistry(),
	}, nil
}

// Close writes the metrics file, if configured, and releases the cache.
func (r *runtime) Close() error {
	var firstErr error
	if r.cfg.Metrics.File != "" {
		if err := r.metrics.WriteFile(r.cfg.Metrics.File); err != nil {
			firstErr = err
		}
	}
	r.trace.Close()
	if err := r.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (r *runtime) estimator() *convergence.Estimator {
	return convergence.NewEstimator(r.store,
		convergence.WithLogger(r.logger),
		convergence.WithTrace(r.trace),
		convergence.WithMetrics(r.metrics))
}

func (r *runtime) trackerOptions(params flowsheet.Params) tracker.Options {
	return tracker.Options{
		RelativeTolerance: r.cfg.Tolerance.Relative,
		AbsoluteTolerance: r.cfg.Tolerance.Absolute,
		TimeBudget:        r.cfg.Benchmark.TimeBudget,
		Params:            params,
	}
}

func (r *runtime) runner() *trials.Runner {
	return trials.NewRunner(r.registry, r.estimator(), r.store,
		trials.WithLoad(r.cfg.Cache.Load),
		trials.WithSave(r.cfg.Cache.Save),
		trials.WithDiscardWarmup(r.cfg.Benchmark.DiscardWarmup),
		trials.WithSteadyStateOffset(r.cfg.Benchmark.SteadyStateOffset),
		trials.WithTrackerOptions(r.trackerOptions(nil)),
		trials.WithLogger(r.logger),
		trials.WithTrace(r.trace),
		trials.WithMetrics(r.metrics))
}

// reference estimates the reference of system under alg.
func (r *runtime) reference(cmd *cobra.Command, def systems.Definition, alg flowsheet.Algorithm, params flowsheet.Params) (*convergence.Reference, convergence.Key, error) {
	tol := r.trackerOptions(params).Tolerances()
	key := convergence.Key{
		System:      def.Name,
		Algorithm:   alg,
		Params:      params,
		Fingerprint: def.FingerprintFor(tol),
	}
	ref, err := r.estimator().Estimate(cmd.Context(), key, func() (flowsheet.Simulation, error) {
		return def.Factory(alg, tol, params)
	})
	return ref, key, err
}

// trialCount returns the --trials flag or the configured default.
func (r *runtime) trialCount(cmd *cobra.Command) (int, error) {
	n, _ := cmd.Flags().GetInt("trials")
	if n == 0 {
		return r.cfg.Benchmark.Trials, nil
	}
	if n < 0 {
		return 0, fmt.Errorf("--trials must be positive, got %d", n)
	}
	return n, nil
}

// algorithms resolves the --algorithm flag; empty selects both.
func algorithms(cmd *cobra.Command) ([]flowsheet.Algorithm, error) {
	name, _ := cmd.Flags().GetString("algorithm")
	if name == "" {
		return flowsheet.Algorithms, nil
	}
	alg, err := flowsheet.ParseAlgorithm(name)
	if err != nil {
		return nil, err
	}
	return []flowsheet.Algorithm{alg}, nil
}
