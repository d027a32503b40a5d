// Package telemetry exposes run counters as Prometheus metrics on a private
// registry. A nil *Metrics is valid and records nothing, so components can
// take one unconditionally.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors recorded during a run.
type Metrics struct {
	registry *prometheus.Registry

	iterations      *prometheus.CounterVec
	iterationTime   *prometheus.HistogramVec
	diverged        *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	forcedSteps     *prometheus.CounterVec
	profilesWritten *prometheus.CounterVec
}

// New registers the convbench collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convbench_iterations_total",
			Help: "Single-step iterations executed by trackers",
		}, []string{"system", "algorithm"}),
		iterationTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "convbench_iteration_duration_seconds",
			Help:    "Wall-clock duration of one tracked iteration",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12), // 1µs to ~4s
		}, []string{"system", "algorithm"}),
		diverged: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convbench_diverged_iterations_total",
			Help: "Iterations the simulator flagged as divergent",
		}, []string{"system", "algorithm"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convbench_cache_lookups_total",
			Help: "Cache lookups by blob kind and result",
		}, []string{"kind", "result"}), // result is "hit" or "miss"
		forcedSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convbench_estimator_steps_total",
			Help: "Forced iterations run while estimating reference steady states",
		}, []string{"system", "algorithm"}),
		profilesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "convbench_profiles_total",
			Help: "Profiles produced by trial runs",
		}, []string{"system", "algorithm", "source"}), // source is "cache" or "run"
	}
}

// Registry returns the underlying registry, or nil for a nil receiver.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveIteration records one tracked iteration.
func (m *Metrics) ObserveIteration(system, algorithm string, seconds float64, diverged bool) {
	if m == nil {
		return
	}
	m.iterations.WithLabelValues(system, algorithm).Inc()
	m.iterationTime.WithLabelValues(system, algorithm).Observe(seconds)
	if diverged {
		m.diverged.WithLabelValues(system, algorithm).Inc()
	}
}

// CacheLookup records a cache hit or miss.
func (m *Metrics) CacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// EstimatorSteps records forced estimator iterations.
func (m *Metrics) EstimatorSteps(system, algorithm string, n int) {
	if m == nil {
		return
	}
	m.forcedSteps.WithLabelValues(system, algorithm).Add(float64(n))
}

// ProfileProduced records a trial profile and whether it came from the cache.
func (m *Metrics) ProfileProduced(system, algorithm string, cached bool) {
	if m == nil {
		return
	}
	source := "run"
	if cached {
		source = "cache"
	}
	m.profilesWritten.WithLabelValues(system, algorithm, source).Inc()
}

// WriteFile writes all metrics in the text exposition format, suitable for
// the node_exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteFile(path string) error {
	if m == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics file: %w", err)
	}
	return nil
}
