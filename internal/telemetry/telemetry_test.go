package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveIteration("s", "sm", 0.1, true)
	m.CacheLookup("reference", true)
	m.EstimatorSteps("s", "po", 500)
	m.ProfileProduced("s", "po", false)
	if m.Registry() != nil {
		t.Error("nil Metrics returned a registry")
	}
	if err := m.WriteFile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Errorf("WriteFile on nil: %v", err)
	}
}

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveIteration("demo", "sm", 0.01, false)
	m.ObserveIteration("demo", "sm", 0.02, true)
	m.CacheLookup("profile", false)
	m.CacheLookup("profile", true)
	m.CacheLookup("profile", true)
	m.EstimatorSteps("demo", "po", 501)

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			key := f.GetName()
			for _, l := range metric.GetLabel() {
				key += "," + l.GetName() + "=" + l.GetValue()
			}
			switch {
			case metric.GetCounter() != nil:
				got[key] = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				got[key] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	want := map[string]float64{
		"convbench_iterations_total,algorithm=sm,system=demo":           2,
		"convbench_iteration_duration_seconds,algorithm=sm,system=demo": 2,
		"convbench_diverged_iterations_total,algorithm=sm,system=demo":  1,
		"convbench_cache_lookups_total,kind=profile,result=hit":         2,
		"convbench_cache_lookups_total,kind=profile,result=miss":        1,
		"convbench_estimator_steps_total,algorithm=po,system=demo":      501,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %g, want %g", k, got[k], v)
		}
	}
}

func TestWriteFile(t *testing.T) {
	m := New()
	m.CacheLookup("reference", false)
	path := filepath.Join(t.TempDir(), "nested", "convbench.prom")
	if err := m.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `convbench_cache_lookups_total{kind="reference",result="miss"} 1`) {
		t.Errorf("metrics file missing lookup counter:\n%s", data)
	}
}
