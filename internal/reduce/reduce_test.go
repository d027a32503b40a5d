package reduce

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/profile"
)

// trial builds a profile whose every signal equals values.
func trial(times, values []float64) *profile.Profile {
	p := &profile.Profile{System: "demo", Algorithm: flowsheet.PhenomenaOriented}
	for i, t := range times {
		v := values[i]
		p.Append(profile.Sample{
			Time: t, FlowError: v, TemperatureError: v, FlowChange: v,
			TemperatureChange: v, EnergyBalance: v, MaterialBalance: v,
		})
	}
	return p
}

// settling builds a profile with the given flow error and a negligible
// temperature error, so the combined error follows flow.
func settling(times, flow []float64) *profile.Profile {
	p := &profile.Profile{System: "demo"}
	for i, t := range times {
		p.Append(profile.Sample{Time: t, FlowError: flow[i], TemperatureError: -40})
	}
	return p
}

var approx = cmpopts.EquateApprox(0, 1e-12)
var approxNaN = cmp.Options{approx, cmpopts.EquateNaNs()}

func TestGrid(t *testing.T) {
	tests := []struct {
		name   string
		trials [][]float64
		want   []float64
	}{
		{"identical", [][]float64{{0, 1, 2}, {0, 1, 2}}, []float64{0, 1, 2}},
		{"truncated to shortest", [][]float64{{0, 2, 4, 6}, {0, 1, 2}}, []float64{0, 1.5}},
		{"bounded by earliest end", [][]float64{{0, 1, 2}, {0, 1, 10, 11}}, []float64{0, 1}},
		{"single trial unchanged", [][]float64{{0.1, 0.3, 0.35}}, []float64{0.1, 0.3, 0.35}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ps []*profile.Profile
			for _, times := range tt.trials {
				ps = append(ps, trial(times, make([]float64, len(times))))
			}
			got, err := Grid(ps)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("Grid mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGrid_Errors(t *testing.T) {
	if _, err := Grid(nil); !errors.Is(err, ErrNoProfiles) {
		t.Errorf("Grid(nil) = %v, want ErrNoProfiles", err)
	}
	if _, err := Grid([]*profile.Profile{{}}); !errors.Is(err, profile.ErrInvalidProfile) {
		t.Errorf("Grid(empty trial) = %v, want ErrInvalidProfile", err)
	}
}

func TestMean_TwoTrials(t *testing.T) {
	ps := []*profile.Profile{
		trial([]float64{0, 1, 2}, []float64{-5, -6, -7}),
		trial([]float64{0, 1, 2}, []float64{-5, -6.5, -7}),
	}
	m, err := Mean(ps, profile.FlowError)
	if err != nil {
		t.Fatal(err)
	}
	c := m.Curve(profile.FlowError)
	if diff := cmp.Diff([]float64{-5, -6.25, -7}, []float64(c.Mean), approx); diff != "" {
		t.Errorf("mean (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0, 0.25, 0}, []float64(c.Std), approx); diff != "" {
		t.Errorf("std (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 2, 2}, c.Count); diff != "" {
		t.Errorf("count (-want +got):\n%s", diff)
	}
	if m.Curve(profile.TemperatureError) != nil {
		t.Error("unrequested signal was reduced")
	}
	if m.Trials != 2 || m.System != "demo" {
		t.Errorf("header = %d trials, system %q", m.Trials, m.System)
	}
}

func TestMean_SingleTrialUnchanged(t *testing.T) {
	p := trial([]float64{0.01, 0.02, 0.04, 0.07}, []float64{-1, -2.5, -3.25, -9})
	m, err := Mean([]*profile.Profile{p})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64(p.Time), []float64(m.Time)); diff != "" {
		t.Errorf("time (-want +got):\n%s", diff)
	}
	for _, sig := range profile.Signals {
		c := m.Curve(sig)
		if diff := cmp.Diff(p.Series(sig), []float64(c.Mean), approx); diff != "" {
			t.Errorf("%s mean (-want +got):\n%s", sig, diff)
		}
		for i, s := range c.Std {
			if s != 0 {
				t.Errorf("%s std[%d] = %g, want 0", sig, i, s)
			}
		}
	}
	if diff := cmp.Diff(profile.Signals, m.Signals()); diff != "" {
		t.Errorf("Signals (-want +got):\n%s", diff)
	}
}

func TestMean_UndefinedBeforeLatestStart(t *testing.T) {
	ps := []*profile.Profile{
		trial([]float64{0, 1, 2, 3}, []float64{0, -1, -2, -3}),
		trial([]float64{1, 2, 3, 4}, []float64{-1, -2, -3, -4}),
	}
	m, err := Mean(ps, profile.FlowError)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{0.5, 1.5, 2.5}, []float64(m.Time), approx); diff != "" {
		t.Fatalf("grid (-want +got):\n%s", diff)
	}
	c := m.Curve(profile.FlowError)
	want := []float64{math.NaN(), -1.5, -2.5}
	if diff := cmp.Diff(want, []float64(c.Mean), approxNaN); diff != "" {
		t.Errorf("mean (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{0, 2, 2}, c.Count); diff != "" {
		t.Errorf("count (-want +got):\n%s", diff)
	}
	if !math.IsNaN(c.Std[0]) {
		t.Errorf("std[0] = %g, want NaN", c.Std[0])
	}
}

func TestMean_SinglePointTrials(t *testing.T) {
	ps := []*profile.Profile{
		trial([]float64{1}, []float64{-3}),
		trial([]float64{1, 2}, []float64{-5, -6}),
	}
	m, err := Mean(ps, profile.FlowError)
	if err != nil {
		t.Fatal(err)
	}
	c := m.Curve(profile.FlowError)
	if diff := cmp.Diff([]float64{-4}, []float64(c.Mean), approx); diff != "" {
		t.Errorf("mean (-want +got):\n%s", diff)
	}
}

func TestMean_DivergedCounts(t *testing.T) {
	a := trial([]float64{0, 1, 2}, []float64{0, 0, 0})
	b := trial([]float64{0, 1, 2}, []float64{0, 0, 0})
	a.Diverged[1] = true
	b.Diverged[1] = true
	b.Diverged[2] = true
	m, err := Mean([]*profile.Profile{a, b})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{0, 2, 1}, m.Diverged); diff != "" {
		t.Errorf("diverged (-want +got):\n%s", diff)
	}
}

func TestMean_Errors(t *testing.T) {
	if _, err := Mean(nil); !errors.Is(err, ErrNoProfiles) {
		t.Errorf("Mean(nil) = %v", err)
	}
	bad := trial([]float64{0, 1}, []float64{0, 0})
	bad.FlowError = bad.FlowError[:1]
	if _, err := Mean([]*profile.Profile{bad}); !errors.Is(err, profile.ErrInvalidProfile) {
		t.Errorf("Mean(misaligned) = %v, want ErrInvalidProfile", err)
	}
	ok := trial([]float64{0, 1}, []float64{0, 0})
	if _, err := Mean([]*profile.Profile{ok}, profile.Signal("Stripping factor")); err == nil {
		t.Error("Mean with unknown signal succeeded")
	}
}

func TestSteadyStateError(t *testing.T) {
	p := settling([]float64{1, 2}, []float64{-3, -8})
	p.TemperatureError[1] = -8
	want := math.Log10(2e-8) + 1
	if got := SteadyStateError(p, DefaultSteadyStateOffset); math.Abs(got-want) > 1e-12 {
		t.Errorf("SteadyStateError = %g, want %g", got, want)
	}
	if got := SteadyStateError(&profile.Profile{}, 1); !math.IsNaN(got) {
		t.Errorf("empty profile cutoff = %g, want NaN", got)
	}
}

func TestSteadyStateError_Monotonic(t *testing.T) {
	times := []float64{1, 2, 3}
	var prev float64 = math.Inf(-1)
	for _, final := range []float64{-12, -9, -6, -3} {
		got := SteadyStateError(settling(times, []float64{0, -1, final}), 1)
		if !(got > prev) {
			t.Errorf("cutoff %g for final %g not above previous %g", got, final, prev)
		}
		prev = got
	}
	p := settling(times, []float64{0, -1, -5})
	prev = math.Inf(-1)
	for _, offset := range []float64{0, 0.5, 1, 2} {
		got := SteadyStateError(p, offset)
		if !(got > prev) {
			t.Errorf("cutoff %g for offset %g not above previous %g", got, offset, prev)
		}
		prev = got
	}
}

func TestFirstCrossing(t *testing.T) {
	times := []float64{0, 1, 2, 3, 4, 5}
	tests := []struct {
		name   string
		errs   []float64
		cutoff float64
		want   float64
		ok     bool
	}{
		{"midpoint between 2 and 3", []float64{-2, -3, -4, -6, -6, -6}, -5, 2.5, true},
		{"exact sample", []float64{-2, -3, -4, -5, -6, -6}, -5, 3, true},
		{"already below", []float64{-7, -3, -4, -6, -6, -6}, -5, 0, true},
		{"first crossing wins", []float64{-2, -6, -2, -2, -6, -6}, -5, 0.75, true},
		{"never", []float64{-2, -3, -4, -4, -4, -4}, -5, math.NaN(), false},
		{"nan before crossing", []float64{-2, math.NaN(), -6, -6, -6, -6}, -5, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FirstCrossing(times, tt.errs, tt.cutoff)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if diff := cmp.Diff(tt.want, got, approxNaN); diff != "" {
				t.Errorf("crossing (-want +got):\n%s", diff)
			}
		})
	}
	if _, ok := FirstCrossing(nil, nil, 0); ok {
		t.Error("empty series crossed")
	}
}

func TestBenchmark_OwnCutoffAlwaysReached(t *testing.T) {
	p := settling([]float64{0.1, 0.2, 0.3, 0.4}, []float64{-1, -2, -3, -3.5})
	got, ok := Benchmark(p, SteadyStateError(p, 1))
	if !ok {
		t.Fatal("profile never reached its own cutoff")
	}
	if want := 0.25; math.Abs(got-want) > 1e-9 {
		t.Errorf("Benchmark = %g, want %g", got, want)
	}
}

func TestCommonCutoffIsLoosest(t *testing.T) {
	a := settling([]float64{1, 2}, []float64{-1, -9})
	b := settling([]float64{1, 2}, []float64{-1, -4})
	got := CommonCutoff(1, a, b)
	if want := SteadyStateError(b, 1); got != want {
		t.Errorf("CommonCutoff = %g, want %g", got, want)
	}
}

func TestSettledIndex(t *testing.T) {
	values := []float64{-2, -3, -4, -6, -6, -6}
	cutoff := SettledCutoff(values)
	if cutoff != -5 {
		t.Fatalf("SettledCutoff = %g, want -5", cutoff)
	}
	if got := SettledIndex(values, cutoff); got != 3 {
		t.Errorf("SettledIndex = %d, want 3", got)
	}
	if got := SettledIndex([]float64{0, -1}, cutoff); got != 2 {
		t.Errorf("unsettled SettledIndex = %d, want 2", got)
	}
	if got := SettledCutoff([]float64{-2, math.NaN()}, []float64{-8}); got != -7 {
		t.Errorf("SettledCutoff across curves = %g, want -7", got)
	}
}

func TestDivisionMeanStd(t *testing.T) {
	tests := []struct {
		name        string
		means, stds [2]float64
		want        [2]float64
	}{
		{"zero over zero", [2]float64{0, 0}, [2]float64{5, 1}, [2]float64{1, 0}},
		{"zero numerator", [2]float64{0, 4}, [2]float64{1, 0}, [2]float64{0, 0}},
		{"exact", [2]float64{2, 4}, [2]float64{0, 0}, [2]float64{0.5, 0}},
		{"propagated", [2]float64{2, 4}, [2]float64{0.2, 0.4}, [2]float64{0.5, 0.5 * math.Sqrt(0.02)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DivisionMeanStd(tt.means, tt.stds)
			if diff := cmp.Diff(tt.want, got, approxNaN); diff != "" {
				t.Errorf("DivisionMeanStd (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDivisionMeanStd_ZeroDenominatorUnguarded(t *testing.T) {
	got := DivisionMeanStd([2]float64{3, 0}, [2]float64{0, 2})
	if !math.IsInf(got[0], 1) {
		t.Errorf("mean = %g, want +Inf", got[0])
	}
}

func TestRatio(t *testing.T) {
	got := Ratio([2]float64{2, 0.2}, [2]float64{4, 0.4})
	want := DivisionMeanStd([2]float64{2, 4}, [2]float64{0.2, 0.4})
	if got != want {
		t.Errorf("Ratio = %v, want %v", got, want)
	}
}

func TestMeanStd(t *testing.T) {
	got := MeanStd([]float64{1, 3})
	if diff := cmp.Diff([2]float64{2, 1}, got, approx); diff != "" {
		t.Errorf("MeanStd (-want +got):\n%s", diff)
	}
	if got := MeanStd([]float64{7}); got != [2]float64{7, 0} {
		t.Errorf("MeanStd single = %v", got)
	}
	if got := MeanStd(nil); !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Errorf("MeanStd(nil) = %v, want NaNs", got)
	}
}

func TestCompare(t *testing.T) {
	times := []float64{1, 2, 3, 4}
	slow := func() *profile.Profile { return settling(times, []float64{-1, -2, -3, -4}) }
	fast := func() *profile.Profile { return settling(times, []float64{-1, -3, -5, -5}) }

	t.Run("phenomena faster", func(t *testing.T) {
		c, err := Compare("demo", []*profile.Profile{slow(), slow()}, []*profile.Profile{fast(), fast()}, 1)
		if err != nil {
			t.Fatal(err)
		}
		if c.SequentialFaster {
			t.Error("SequentialFaster set")
		}
		if math.Abs(c.Cutoff-(-3)) > 1e-9 {
			t.Errorf("Cutoff = %g, want -3", c.Cutoff)
		}
		if math.Abs(c.RelativeTime-100*2.0/3.0) > 1e-6 {
			t.Errorf("RelativeTime = %g, want 66.67", c.RelativeTime)
		}
		if math.Abs(c.RelativeStd) > 1e-9 {
			t.Errorf("RelativeStd = %g, want 0", c.RelativeStd)
		}
		if len(c.Sequential) != 2 || len(c.Phenomena) != 2 {
			t.Errorf("crossings = %v / %v", c.Sequential, c.Phenomena)
		}
	})

	t.Run("sequential faster", func(t *testing.T) {
		c, err := Compare("demo", []*profile.Profile{fast()}, []*profile.Profile{slow()}, 1)
		if err != nil {
			t.Fatal(err)
		}
		if !c.SequentialFaster {
			t.Error("SequentialFaster not set")
		}
		if math.Abs(c.RelativeTime-100*2.0/3.0) > 1e-6 {
			t.Errorf("RelativeTime = %g, want 66.67", c.RelativeTime)
		}
	})

	t.Run("inverted spread keeps relative error", func(t *testing.T) {
		// sm crosses at 2 and 1.5, po at 3: PO/SM = 12/7 ± 12/49.
		quick := settling(times, []float64{-1, -5, -5, -5})
		c, err := Compare("demo", []*profile.Profile{fast(), quick}, []*profile.Profile{slow(), slow()}, 1)
		if err != nil {
			t.Fatal(err)
		}
		if !c.SequentialFaster {
			t.Fatal("SequentialFaster not set")
		}
		if math.Abs(c.RelativeTime-700.0/12) > 1e-6 {
			t.Errorf("RelativeTime = %g, want %g", c.RelativeTime, 700.0/12)
		}
		if math.Abs(c.RelativeStd-100.0/12) > 1e-6 {
			t.Errorf("RelativeStd = %g, want %g (not the uninverted %g)", c.RelativeStd, 100.0/12, 1200.0/49)
		}
		if rel := c.RelativeStd / c.RelativeTime; math.Abs(rel-1.0/7) > 1e-9 {
			t.Errorf("relative error = %g, want 1/7", rel)
		}
	})

	t.Run("spread propagates", func(t *testing.T) {
		quick := settling(times, []float64{-1, -5, -5, -5})
		c, err := Compare("demo", []*profile.Profile{slow(), slow()}, []*profile.Profile{fast(), quick}, 1)
		if err != nil {
			t.Fatal(err)
		}
		if !(c.RelativeStd > 0) {
			t.Errorf("RelativeStd = %g, want positive", c.RelativeStd)
		}
	})
}

func TestCompare_Errors(t *testing.T) {
	p := settling([]float64{1, 2}, []float64{-1, -2})
	if _, err := Compare("demo", nil, []*profile.Profile{p}, 1); !errors.Is(err, ErrNoProfiles) {
		t.Errorf("Compare without sm = %v, want ErrNoProfiles", err)
	}
	if _, err := Compare("demo", []*profile.Profile{p}, []*profile.Profile{p}, -5); !errors.Is(err, ErrNoCrossing) {
		t.Errorf("Compare with unreachable cutoff = %v, want ErrNoCrossing", err)
	}
}
