package chart

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/profile"
	"github.com/nvandessel/convbench/internal/reduce"
)

func decaying(alg flowsheet.Algorithm, rate float64) *profile.Profile {
	p := &profile.Profile{System: "demo", Algorithm: alg}
	for i := 0; i < 20; i++ {
		v := -rate * float64(i)
		p.Append(profile.Sample{Time: 0.01 * float64(i+1), FlowError: max(v, -8), TemperatureError: -30})
	}
	return p
}

func means(t *testing.T) (*reduce.MeanProfile, *reduce.MeanProfile) {
	t.Helper()
	sm, err := reduce.Mean([]*profile.Profile{decaying(flowsheet.SequentialModular, 0.25)}, profile.FlowError)
	if err != nil {
		t.Fatal(err)
	}
	po, err := reduce.Mean([]*profile.Profile{decaying(flowsheet.PhenomenaOriented, 1)}, profile.FlowError)
	if err != nil {
		t.Fatal(err)
	}
	return sm, po
}

func nonEmpty(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Errorf("%s is empty", path)
	}
}

func TestMeanCurves(t *testing.T) {
	sm, po := means(t)
	curves, err := MeanCurves(sm, po, profile.FlowError)
	if err != nil {
		t.Fatal(err)
	}
	if len(curves) != 2 {
		t.Fatalf("curves = %d, want 2", len(curves))
	}
	// sm reaches -4.75 at its last sample, so the cutoff is -3.75, first
	// reached at index 15. po is below it from index 4 on.
	if curves[0].Settled != 15 {
		t.Errorf("sm settled = %d, want 15", curves[0].Settled)
	}
	if curves[1].Settled != 4 {
		t.Errorf("po settled = %d, want 4", curves[1].Settled)
	}
	if curves[0].Color != AlgorithmColor(flowsheet.SequentialModular) {
		t.Error("sm curve color")
	}
	if _, err := MeanCurves(sm, po, profile.EnergyBalance); err == nil {
		t.Error("MeanCurves with unreduced signal succeeded")
	}
}

func TestRender(t *testing.T) {
	sm, po := means(t)
	curves, err := MeanCurves(sm, po, profile.FlowError)
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	for _, name := range []string{"profile.png", "nested/profile.svg"} {
		path := filepath.Join(dir, name)
		if err := Render(path, "demo", "Flow rate error", curves...); err != nil {
			t.Fatalf("Render(%s): %v", name, err)
		}
		nonEmpty(t, path)
	}
}

func TestRender_SkipsUndefinedPoints(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gaps.png")
	c := Curve{Label: "gaps", Time: []float64{1, 2, 3}, Values: []float64{math.NaN(), -1, -2}, Settled: 0}
	if err := Render(path, "gaps", "error", c); err != nil {
		t.Fatal(err)
	}
	nonEmpty(t, path)

	empty := Curve{Label: "empty", Time: []float64{1}, Values: []float64{math.NaN()}, Settled: -1}
	if err := Render(path, "none", "error", empty); !errors.Is(err, ErrNoData) {
		t.Errorf("Render(all NaN) = %v, want ErrNoData", err)
	}
}

func TestRenderBenchmark(t *testing.T) {
	comps := []*reduce.Comparison{
		{System: "light", RelativeTime: 40, RelativeStd: 5},
		{System: "wide", RelativeTime: 80, RelativeStd: 10, SequentialFaster: true},
	}
	path := filepath.Join(t.TempDir(), "benchmark.png")
	if err := RenderBenchmark(path, comps); err != nil {
		t.Fatal(err)
	}
	nonEmpty(t, path)
	if err := RenderBenchmark(path, nil); !errors.Is(err, ErrNoData) {
		t.Errorf("RenderBenchmark(nil) = %v, want ErrNoData", err)
	}
}
