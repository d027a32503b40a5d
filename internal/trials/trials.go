// Package trials runs repeated tracked profiles of a system under both
// algorithms, reusing cached trials one by one, and reduces them into
// benchmarks.
package trials

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nvandessel/convbench/internal/cache"
	"github.com/nvandessel/convbench/internal/convergence"
	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/logging"
	"github.com/nvandessel/convbench/internal/profile"
	"github.com/nvandessel/convbench/internal/reduce"
	"github.com/nvandessel/convbench/internal/systems"
	"github.com/nvandessel/convbench/internal/telemetry"
	"github.com/nvandessel/convbench/internal/tracker"
)

// ProfileName returns the cache name of one trial:
// {sm|po}_{seconds}_{system}_profile_{trial}.
func ProfileName(alg flowsheet.Algorithm, seconds float64, system string, trial int) string {
	return fmt.Sprintf("%s_%s_%s_profile_%d", alg.Short(), strconv.FormatFloat(seconds, 'g', -1, 64), system, trial)
}

// Batch holds the trials of one system under both algorithms.
type Batch struct {
	System     string
	Sequential []*profile.Profile
	Phenomena  []*profile.Profile
}

// Trials returns the trials run with alg.
func (b *Batch) Trials(alg flowsheet.Algorithm) []*profile.Profile {
	if alg == flowsheet.SequentialModular {
		return b.Sequential
	}
	return b.Phenomena
}

// WithoutWarmup drops the first trial of ps when there is more than one.
func WithoutWarmup(ps []*profile.Profile) []*profile.Profile {
	if len(ps) > 1 {
		return ps[1:]
	}
	return ps
}

// Runner produces trials. Profiles found in the store are reused when
// loading is enabled; freshly tracked ones are saved when saving is.
type Runner struct {
	registry  *systems.Registry
	estimator *convergence.Estimator
	store     *cache.Store

	load, save    bool
	discardWarmup bool
	offset        float64
	opts          tracker.Options

	now     func() time.Time
	logger  *slog.Logger
	trace   *logging.TraceLogger
	metrics *telemetry.Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithLoad enables reuse of cached trials.
func WithLoad(load bool) Option { return func(r *Runner) { r.load = load } }

// WithSave enables persisting freshly tracked trials.
func WithSave(save bool) Option { return func(r *Runner) { r.save = save } }

// WithDiscardWarmup drops the first trial from mean curves when more than
// one trial is run.
func WithDiscardWarmup(discard bool) Option {
	return func(r *Runner) { r.discardWarmup = discard }
}

// WithSteadyStateOffset sets the cutoff offset used by Benchmark.
func WithSteadyStateOffset(offset float64) Option {
	return func(r *Runner) { r.offset = offset }
}

// WithTrackerOptions sets tolerances, parameters and the time budget of
// every tracked trial. System and Algorithm are ignored.
func WithTrackerOptions(o tracker.Options) Option {
	return func(r *Runner) { r.opts = o }
}

// WithClock replaces the wall clock handed to trackers.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTrace sets the JSONL trace logger.
func WithTrace(t *logging.TraceLogger) Option { return func(r *Runner) { r.trace = t } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option { return func(r *Runner) { r.metrics = m } }

// NewRunner returns a runner. A nil store disables both loading and saving.
func NewRunner(reg *systems.Registry, est *convergence.Estimator, store *cache.Store, opts ...Option) *Runner {
	r := &Runner{
		registry:  reg,
		estimator: est,
		store:     store,
		load:      true,
		save:      true,
		offset:    reduce.DefaultSteadyStateOffset,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// budget returns the tracked seconds of system.
func (r *Runner) budget(def systems.Definition) float64 {
	if r.opts.TimeBudget > 0 {
		return r.opts.TimeBudget.Seconds()
	}
	return def.ProfileTime
}

// Profiles returns n trials of system under alg. Each trial is looked up
// individually, so a partially populated cache only reruns what is
// missing.
func (r *Runner) Profiles(ctx context.Context, system string, alg flowsheet.Algorithm, n int) ([]*profile.Profile, error) {
	def, err := r.registry.Get(system)
	if err != nil {
		return nil, err
	}
	if !alg.Valid() {
		return nil, flowsheet.ErrInvalidAlgorithm
	}
	out := make([]*profile.Profile, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := ProfileName(alg, r.budget(def), def.Name, i)
		if p := r.cached(name, def); p != nil {
			r.metrics.ProfileProduced(def.Name, alg.Short(), true)
			out = append(out, p)
			continue
		}

		p, err := r.track(ctx, def, alg)
		if err != nil {
			return nil, fmt.Errorf("%s trial %d: %w", name, i, err)
		}
		p.Trial = i
		r.metrics.ProfileProduced(def.Name, alg.Short(), false)
		r.logger.Info("trials: profile tracked", "name", name, "iterations", p.Len(), "diverged", p.DivergedCount())

		if r.save && r.store != nil {
			entry := cache.Entry{
				Name:        name,
				Kind:        cache.KindProfile,
				System:      def.Name,
				Algorithm:   alg.Short(),
				Key:         fmt.Sprintf("%s/%s/%d", def.Name, alg.Short(), i),
				Fingerprint: def.FingerprintFor(r.opts.Tolerances()),
			}
			if err := r.store.Save(ctx, entry, p); err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// Cached returns the cached trials 0..n-1 of system under alg, stopping at
// the first one that is missing. Nothing is tracked.
func (r *Runner) Cached(system string, alg flowsheet.Algorithm, n int) ([]*profile.Profile, error) {
	def, err := r.registry.Get(system)
	if err != nil {
		return nil, err
	}
	var out []*profile.Profile
	for i := 0; i < n; i++ {
		p := r.cached(ProfileName(alg, r.budget(def), def.Name, i), def)
		if p == nil {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *Runner) cached(name string, def systems.Definition) *profile.Profile {
	if !r.load || r.store == nil {
		return nil
	}
	lookup := cache.Load[profile.Profile](r.store, name, cache.KindProfile, def.FingerprintFor(r.opts.Tolerances()))
	if !lookup.Hit {
		return nil
	}
	if err := lookup.Value.Validate(); err != nil {
		r.logger.Warn("trials: ignoring invalid cached profile", "name", name, "error", err)
		return nil
	}
	return &lookup.Value
}

func (r *Runner) track(ctx context.Context, def systems.Definition, alg flowsheet.Algorithm) (*profile.Profile, error) {
	opts := r.opts
	opts.System = def.Name
	opts.Algorithm = alg.String()
	options := []tracker.Option{
		tracker.WithLogger(r.logger),
		tracker.WithTrace(r.trace),
		tracker.WithMetrics(r.metrics),
	}
	if r.now != nil {
		options = append(options, tracker.WithClock(r.now))
	}
	t, err := tracker.New(r.registry, r.estimator, opts, options...)
	if err != nil {
		return nil, err
	}
	return t.Profile(ctx)
}

// Batch runs n trials of system under both algorithms, sequential modular
// first.
func (r *Runner) Batch(ctx context.Context, system string, n int) (*Batch, error) {
	sm, err := r.Profiles(ctx, system, flowsheet.SequentialModular, n)
	if err != nil {
		return nil, err
	}
	po, err := r.Profiles(ctx, system, flowsheet.PhenomenaOriented, n)
	if err != nil {
		return nil, err
	}
	return &Batch{System: system, Sequential: sm, Phenomena: po}, nil
}

// Benchmark runs n trials per algorithm and compares their times to the
// common steady-state cutoff.
func (r *Runner) Benchmark(ctx context.Context, system string, n int) (*reduce.Comparison, error) {
	b, err := r.Batch(ctx, system, n)
	if err != nil {
		return nil, err
	}
	return r.Compare(b)
}

// Compare reduces an existing batch to a comparison.
func (r *Runner) Compare(b *Batch) (*reduce.Comparison, error) {
	return reduce.Compare(b.System, b.Sequential, b.Phenomena, r.offset)
}

// Means runs n trials per algorithm and reduces each set to mean curves of
// signals, dropping the warm-up trial when configured.
func (r *Runner) Means(ctx context.Context, system string, n int, signals ...profile.Signal) (sm, po *reduce.MeanProfile, err error) {
	b, err := r.Batch(ctx, system, n)
	if err != nil {
		return nil, nil, err
	}
	return r.MeansOf(b, signals...)
}

// MeansOf reduces an existing batch to mean curves.
func (r *Runner) MeansOf(b *Batch, signals ...profile.Signal) (sm, po *reduce.MeanProfile, err error) {
	seq, phen := b.Sequential, b.Phenomena
	if r.discardWarmup {
		seq, phen = WithoutWarmup(seq), WithoutWarmup(phen)
	}
	if sm, err = reduce.Mean(seq, signals...); err != nil {
		return nil, nil, fmt.Errorf("%s sm: %w", b.System, err)
	}
	if po, err = reduce.Mean(phen, signals...); err != nil {
		return nil, nil, fmt.Errorf("%s po: %w", b.System, err)
	}
	return sm, po, nil
}
