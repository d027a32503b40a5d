// Package tracker runs one (system, algorithm) simulation step by step and
// records its Profile: the distance of every iterate from the reference
// steady state, plus per-step movement and balance residuals, against
// accumulated wall-clock time.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/nvandessel/convbench/internal/collect"
	"github.com/nvandessel/convbench/internal/constants"
	"github.com/nvandessel/convbench/internal/convergence"
	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/logging"
	"github.com/nvandessel/convbench/internal/metrics"
	"github.com/nvandessel/convbench/internal/profile"
	"github.com/nvandessel/convbench/internal/systems"
	"github.com/nvandessel/convbench/internal/telemetry"
)

// Default solver tolerances handed to the simulation.
const (
	DefaultRelativeTolerance = constants.DefaultRelativeTolerance
	DefaultAbsoluteTolerance = constants.DefaultAbsoluteTolerance
)

// Options selects what to track.
type Options struct {
	System    string
	Algorithm string

	// RelativeTolerance and AbsoluteTolerance are the molar tolerances the
	// simulation is built with. Zero means the default.
	RelativeTolerance float64
	AbsoluteTolerance float64

	Params flowsheet.Params

	// TimeBudget overrides the system's profile time when positive.
	TimeBudget time.Duration
}

// Tracker owns one simulation and the fixed observation set collected from
// it at construction.
type Tracker struct {
	def       systems.Definition
	alg       flowsheet.Algorithm
	params    flowsheet.Params
	tol       flowsheet.Tolerances
	budget    time.Duration
	sim       flowsheet.Simulation
	step      func() (bool, error)
	obs       collect.Observation
	estimator *convergence.Estimator

	now     func() time.Time
	logger  *slog.Logger
	trace   *logging.TraceLogger
	metrics *telemetry.Metrics
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock used to time iterations.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithTrace sets the JSONL trace logger.
func WithTrace(tl *logging.TraceLogger) Option {
	return func(t *Tracker) { t.trace = tl }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// Tolerances returns the solver tolerances for opts.
func (o Options) Tolerances() flowsheet.Tolerances {
	tol := flowsheet.RigorousTolerances()
	tol.RelativeMolarTolerance = DefaultRelativeTolerance
	tol.MolarTolerance = DefaultAbsoluteTolerance
	if o.RelativeTolerance > 0 {
		tol.RelativeMolarTolerance = o.RelativeTolerance
	}
	if o.AbsoluteTolerance > 0 {
		tol.MolarTolerance = o.AbsoluteTolerance
	}
	return tol
}

// New resolves the algorithm and system, builds the simulation, clears its
// flowsheet registry and collects the observation set. An unknown algorithm
// fails with flowsheet.ErrInvalidAlgorithm before anything is built.
func New(reg *systems.Registry, est *convergence.Estimator, opts Options, options ...Option) (*Tracker, error) {
	alg, err := flowsheet.ParseAlgorithm(opts.Algorithm)
	if err != nil {
		return nil, err
	}
	def, err := reg.Get(opts.System)
	if err != nil {
		return nil, err
	}
	if est == nil {
		est = convergence.NewEstimator(nil)
	}

	t := &Tracker{
		def:       def,
		alg:       alg,
		params:    opts.Params,
		tol:       opts.Tolerances(),
		budget:    time.Duration(def.ProfileTime * float64(time.Second)),
		estimator: est,
		now:       time.Now,
		logger:    slog.Default(),
	}
	if opts.TimeBudget > 0 {
		t.budget = opts.TimeBudget
	}
	for _, o := range options {
		o(t)
	}

	sim, err := def.Factory(alg, t.tol, opts.Params)
	if err != nil {
		return nil, fmt.Errorf("building %s: %w", def.Name, err)
	}
	sim.Flowsheet().Clear()
	step, err := flowsheet.Step(sim)
	if err != nil {
		return nil, err
	}
	t.sim = sim
	t.step = step
	t.obs = collect.Collect(sim)
	return t, nil
}

// Algorithm returns the resolved algorithm.
func (t *Tracker) Algorithm() flowsheet.Algorithm { return t.alg }

// System returns the system definition.
func (t *Tracker) System() systems.Definition { return t.def }

// Budget returns the wall-clock budget of Profile.
func (t *Tracker) Budget() time.Duration { return t.budget }

// Observation returns the fixed observation set.
func (t *Tracker) Observation() collect.Observation { return t.obs }

// Simulation returns the tracked simulation.
func (t *Tracker) Simulation() flowsheet.Simulation { return t.sim }

// Key returns the reference cache key of this run.
func (t *Tracker) Key() convergence.Key {
	return convergence.Key{
		System:      t.def.Name,
		Algorithm:   t.alg,
		Params:      t.params,
		Fingerprint: t.def.FingerprintFor(t.tol),
	}
}

// Run advances exactly one iteration and reports whether the simulator
// flagged it as divergent.
func (t *Tracker) Run() (bool, error) {
	return t.step()
}

// Reference returns the reference steady state for this run, estimating it
// from a freshly built simulation on a cache miss.
func (t *Tracker) Reference(ctx context.Context) (*convergence.Reference, error) {
	return t.estimator.Estimate(ctx, t.Key(), func() (flowsheet.Simulation, error) {
		return t.def.Factory(t.alg, t.tol, t.params)
	})
}

// Profile obtains the reference, asserts that the tracked streams match it,
// then repeatedly times one Run and records a sample until the accumulated
// iteration time reaches the budget. Only time spent inside Run counts.
func (t *Tracker) Profile(ctx context.Context) (*profile.Profile, error) {
	key := t.Key()
	ref, err := t.Reference(ctx)
	if err != nil {
		return nil, err
	}
	if err := convergence.CheckTags(key.Name(), ref, t.obs.NodeTags()); err != nil {
		t.trace.Log(logging.TraceEvent{Event: "consistency_error", Name: key.Name(), Error: err.Error()})
		return nil, err
	}

	streams := t.obs.Streams
	flows, err := metrics.FlowVector(streams, ref.Phases)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", convergence.ErrLayoutMismatch, err)
	}
	if len(flows) != len(ref.Flows) {
		return nil, fmt.Errorf("%w: %d flows tracked, reference has %d", convergence.ErrLayoutMismatch, len(flows), len(ref.Flows))
	}
	temps := metrics.Temperatures(streams)

	p := &profile.Profile{System: t.def.Name, Algorithm: t.alg}
	budget := t.budget.Seconds()
	system, alg := t.def.Name, t.alg.Short()
	var elapsed float64
	for elapsed < budget {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := t.now()
		diverged, err := t.step()
		d := t.now().Sub(start).Seconds()
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", p.Len()+1, err)
		}
		next := elapsed + d
		if !(next > elapsed) {
			next = math.Nextafter(elapsed, math.Inf(1))
		}
		elapsed = next

		newFlows, err := metrics.FlowVector(streams, ref.Phases)
		if err != nil {
			return nil, err
		}
		newTemps := metrics.Temperatures(streams)
		s := profile.Sample{
			Time:              elapsed,
			FlowError:         metrics.LogError(metrics.Deviation(ref.Flows, newFlows)),
			TemperatureError:  metrics.LogError(metrics.Deviation(ref.Temperatures, newTemps)),
			FlowChange:        metrics.LogError(metrics.Deviation(flows, newFlows)),
			TemperatureChange: metrics.LogError(metrics.Deviation(temps, newTemps)),
			EnergyBalance:     metrics.EnergyError(t.obs.AdiabaticStages),
			MaterialBalance:   metrics.MaterialError(t.obs.Stages),
			Diverged:          diverged,
		}
		p.Append(s)
		flows, temps = newFlows, newTemps

		t.metrics.ObserveIteration(system, alg, d, diverged)
		t.logger.Log(ctx, logging.LevelTrace, "tracker: iteration",
			"system", system, "algorithm", alg, "n", p.Len(), "time", elapsed,
			"flow_error", s.FlowError, "temperature_error", s.TemperatureError)
	}

	t.trace.Log(logging.TraceEvent{
		Event:      "profile",
		System:     system,
		Algorithm:  alg,
		Iterations: p.Len(),
		Seconds:    elapsed,
	})
	t.logger.Debug("tracker: profile complete", "system", system, "algorithm", alg,
		"iterations", p.Len(), "diverged", p.DivergedCount())
	return p, nil
}
