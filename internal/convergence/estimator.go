// Package convergence obtains reference steady states: the cached,
// extended-iteration approximation of the converged plant that tracked runs
// are measured against.
package convergence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/convbench/internal/cache"
	"github.com/nvandessel/convbench/internal/collect"
	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/logging"
	"github.com/nvandessel/convbench/internal/metrics"
	"github.com/nvandessel/convbench/internal/telemetry"
)

// Forced iteration budgets run after the warm-start solve.
const (
	PhenomenaSteps  = 500
	SequentialSteps = 50
)

// Steps returns the forced iteration budget for alg.
func Steps(alg flowsheet.Algorithm) int {
	if alg == flowsheet.PhenomenaOriented {
		return PhenomenaSteps
	}
	return SequentialSteps
}

// Builder constructs the simulation to estimate from. It is only called on a
// cache miss.
type Builder func() (flowsheet.Simulation, error)

// Estimator computes references and caches them in a Store. A nil store
// disables caching.
type Estimator struct {
	store   *cache.Store
	logger  *slog.Logger
	trace   *logging.TraceLogger
	metrics *telemetry.Metrics
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Estimator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTrace sets the JSONL trace logger.
func WithTrace(t *logging.TraceLogger) Option {
	return func(e *Estimator) { e.trace = t }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Estimator) { e.metrics = m }
}

// NewEstimator returns an estimator backed by store.
func NewEstimator(store *cache.Store, opts ...Option) *Estimator {
	e := &Estimator{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate returns the reference for key. A cached reference is returned
// as-is without building a simulation. On a miss the simulation is built,
// driven to an approximate steady state and the result persisted.
func (e *Estimator) Estimate(ctx context.Context, key Key, build Builder) (*Reference, error) {
	if !key.Algorithm.Valid() {
		return nil, fmt.Errorf("estimating %s: %w", key, flowsheet.ErrInvalidAlgorithm)
	}
	name := key.Name()
	if e.store != nil {
		lookup := cache.Load[Reference](e.store, name, cache.KindReference, key.Fingerprint)
		if lookup.Hit {
			return &lookup.Value, nil
		}
		e.logger.Info("convergence: estimating steady state", "key", key.String(), "reason", lookup.Reason)
	}

	sim, err := build()
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", key, err)
	}
	if sim.Algorithm() != key.Algorithm {
		return nil, fmt.Errorf("building %s: simulation uses %v", key, sim.Algorithm())
	}

	ref, err := Compute(ctx, sim, e.logger)
	if err != nil {
		return nil, fmt.Errorf("estimating %s: %w", key, err)
	}
	steps := Steps(key.Algorithm) + 1
	e.metrics.EstimatorSteps(key.System, key.Algorithm.Short(), steps)
	benchmark := ref.Benchmark
	e.trace.Log(logging.TraceEvent{
		Event:      "estimate",
		Name:       name,
		System:     key.System,
		Algorithm:  key.Algorithm.Short(),
		Iterations: steps,
		Benchmark:  &benchmark,
	})
	e.logger.Info("convergence: reference estimated", "key", key.String(), "benchmark", ref.Benchmark)

	if e.store != nil {
		entry := cache.Entry{
			Name:        name,
			Kind:        cache.KindReference,
			System:      key.System,
			Algorithm:   key.Algorithm.Short(),
			Key:         key.String(),
			Fingerprint: key.Fingerprint,
		}
		if err := e.store.Save(ctx, entry, ref); err != nil {
			return nil, err
		}
	}
	return ref, nil
}

// Compute drives sim to an approximate steady state and snapshots it. The
// warm-start Simulate is best effort: a failure is logged and the forced
// iterations proceed from whatever state it left.
func Compute(ctx context.Context, sim flowsheet.Simulation, logger *slog.Logger) (*Reference, error) {
	if logger == nil {
		logger = slog.Default()
	}
	step, err := flowsheet.Step(sim)
	if err != nil {
		return nil, err
	}

	sim.Flowsheet().Clear()
	if err := sim.Simulate(); err != nil {
		logger.Warn("convergence: warm-start simulate failed, continuing with forced iterations", "error", err)
	}

	n := Steps(sim.Algorithm())
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := step(); err != nil {
			return nil, fmt.Errorf("forced iteration %d: %w", i+1, err)
		}
	}

	obs := collect.Collect(sim)
	phases := metrics.PhaseLayout(obs.Streams)
	flows, err := metrics.FlowVector(obs.Streams, phases)
	if err != nil {
		return nil, err
	}

	if _, err := step(); err != nil {
		return nil, fmt.Errorf("final iteration: %w", err)
	}

	flowErr, tempErr := metrics.StageErrors(obs.Stages)
	newFlows, err := metrics.FlowVector(obs.Streams, phases)
	if err != nil {
		return nil, err
	}
	return &Reference{
		Flows:        newFlows,
		Temperatures: metrics.Temperatures(obs.Streams),
		NodeTags:     obs.NodeTags(),
		Phases:       phases,
		Benchmark:    flowErr + tempErr + metrics.Deviation(newFlows, flows),
	}, nil
}
