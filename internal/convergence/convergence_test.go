package convergence

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvandessel/convbench/internal/cache"
	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/flowsheet/flowsheettest"
	"github.com/nvandessel/convbench/internal/logging"
)

func openStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKeyName(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			"no params",
			Key{System: "light_ends_cascade", Algorithm: flowsheet.PhenomenaOriented},
			"phenomena-oriented_light_ends_cascade_steady_state",
		},
		{
			"sorted params",
			Key{System: "demo", Algorithm: flowsheet.SequentialModular, Params: flowsheet.Params{"stages": 8, "feed_stage": 3}},
			"sequential-modular_demo_feed_stage_3_stages_8_steady_state",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.Name(); got != tt.want {
				t.Errorf("Name() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSteps(t *testing.T) {
	if Steps(flowsheet.PhenomenaOriented) != 500 || Steps(flowsheet.SequentialModular) != 50 {
		t.Errorf("Steps = %d/%d, want 500/50", Steps(flowsheet.PhenomenaOriented), Steps(flowsheet.SequentialModular))
	}
}

func TestCompute_RunsBudgetPlusOne(t *testing.T) {
	for _, alg := range flowsheet.Algorithms {
		t.Run(alg.Short(), func(t *testing.T) {
			sim := flowsheettest.Relaxing(alg, 3, 0.01)
			ref, err := Compute(context.Background(), sim, nil)
			if err != nil {
				t.Fatal(err)
			}
			if sim.Steps != Steps(alg)+1 {
				t.Errorf("steps = %d, want %d", sim.Steps, Steps(alg)+1)
			}
			if sim.SimulateCalls != 1 {
				t.Errorf("Simulate called %d times, want 1", sim.SimulateCalls)
			}
			if sim.Registry.Clears != 1 {
				t.Errorf("registry cleared %d times, want 1", sim.Registry.Clears)
			}
			if diff := cmp.Diff([]string{"s00", "s01", "s02", "s03"}, ref.NodeTags); diff != "" {
				t.Errorf("NodeTags (-want +got):\n%s", diff)
			}
			if len(ref.Flows) != 8 || len(ref.Temperatures) != 4 || len(ref.Phases) != 4 {
				t.Errorf("shape = %d flows, %d temperatures, %d phases", len(ref.Flows), len(ref.Temperatures), len(ref.Phases))
			}
			if !(ref.Benchmark > 0) {
				t.Errorf("Benchmark = %g, want > 0 while still relaxing", ref.Benchmark)
			}
		})
	}
}

func TestCompute_BenchmarkSumsStageErrorsAndLastMove(t *testing.T) {
	sim := flowsheettest.Relaxing(flowsheet.SequentialModular, 2, 0.05)
	for _, u := range sim.Units {
		st := u.Stages()[0].(*flowsheettest.Stage)
		st.FlowErr = 1
		st.TempErr = 0.5
	}
	ref, err := Compute(context.Background(), sim, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Stream i relaxes from [10,0] toward [10-i,i]; after 50 forced steps
	// the gap is i·0.95^50 per entry and the final step closes 5% of it.
	move := 0.0
	for i := 0; i <= 2; i++ {
		move += 2 * float64(i) * 0.05 * math.Pow(0.95, 50)
	}
	want := 2*1 + 2*0.5 + move
	if math.Abs(ref.Benchmark-want) > 1e-12 {
		t.Errorf("Benchmark = %.17g, want %.17g", ref.Benchmark, want)
	}
}

func TestCompute_WarmStartFailureIsBestEffort(t *testing.T) {
	sim := flowsheettest.Relaxing(flowsheet.PhenomenaOriented, 1, 0.1)
	sim.SimulateErr = flowsheet.ErrNotConverged

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	if _, err := Compute(context.Background(), sim, logger); err != nil {
		t.Fatalf("Compute returned %v, want best-effort success", err)
	}
	if !strings.Contains(buf.String(), "warm-start simulate failed") {
		t.Errorf("expected warning, log was %q", buf.String())
	}
	if sim.Steps != PhenomenaSteps+1 {
		t.Errorf("steps = %d, want %d", sim.Steps, PhenomenaSteps+1)
	}
}

func TestCompute_StepErrorPropagates(t *testing.T) {
	boom := errors.New("flash failed")
	sim := flowsheettest.Relaxing(flowsheet.SequentialModular, 1, 0.1)
	sim.OnStep = func(n int) (bool, error) {
		if n == 7 {
			return false, boom
		}
		return false, nil
	}
	if _, err := Compute(context.Background(), sim, nil); !errors.Is(err, boom) {
		t.Errorf("Compute = %v, want %v", err, boom)
	}
}

func TestCompute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sim := flowsheettest.Relaxing(flowsheet.SequentialModular, 1, 0.1)
	if _, err := Compute(ctx, sim, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Compute = %v, want context.Canceled", err)
	}
	if sim.Steps != 0 {
		t.Errorf("steps = %d after cancel, want 0", sim.Steps)
	}
}

func TestEstimate_SecondCallIsPureCacheHit(t *testing.T) {
	store := openStore(t)
	est := NewEstimator(store)
	key := Key{System: "demo", Algorithm: flowsheet.PhenomenaOriented, Fingerprint: "demo@1"}

	var built []*flowsheettest.Simulation
	build := func() (flowsheet.Simulation, error) {
		sim := flowsheettest.Relaxing(flowsheet.PhenomenaOriented, 2, 0.05)
		built = append(built, sim)
		return sim, nil
	}

	first, err := est.Estimate(context.Background(), key, build)
	if err != nil {
		t.Fatal(err)
	}
	blob, err := os.ReadFile(store.Path(key.Name()))
	if err != nil {
		t.Fatalf("reference not persisted: %v", err)
	}

	second, err := est.Estimate(context.Background(), key, build)
	if err != nil {
		t.Fatal(err)
	}
	if len(built) != 1 {
		t.Fatalf("simulation built %d times, want 1", len(built))
	}
	if built[0].Steps != PhenomenaSteps+1 {
		t.Errorf("first estimate ran %d steps, want %d", built[0].Steps, PhenomenaSteps+1)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached reference differs (-first +second):\n%s", diff)
	}
	again, _ := os.ReadFile(store.Path(key.Name()))
	if !bytes.Equal(blob, again) {
		t.Error("cache hit rewrote the blob")
	}
}

func TestEstimate_FingerprintChangeRecomputes(t *testing.T) {
	store := openStore(t)
	est := NewEstimator(store)
	builds := 0
	build := func() (flowsheet.Simulation, error) {
		builds++
		return flowsheettest.Relaxing(flowsheet.SequentialModular, 1, 0.5), nil
	}
	key := Key{System: "demo", Algorithm: flowsheet.SequentialModular, Fingerprint: "demo@1"}
	if _, err := est.Estimate(context.Background(), key, build); err != nil {
		t.Fatal(err)
	}
	key.Fingerprint = "demo@2"
	if _, err := est.Estimate(context.Background(), key, build); err != nil {
		t.Fatal(err)
	}
	if builds != 2 {
		t.Errorf("builds = %d, want 2 after fingerprint change", builds)
	}
}

func TestEstimate_WithoutStoreAlwaysComputes(t *testing.T) {
	est := NewEstimator(nil)
	builds := 0
	build := func() (flowsheet.Simulation, error) {
		builds++
		return flowsheettest.Relaxing(flowsheet.SequentialModular, 1, 0.5), nil
	}
	key := Key{System: "demo", Algorithm: flowsheet.SequentialModular}
	for i := 0; i < 2; i++ {
		if _, err := est.Estimate(context.Background(), key, build); err != nil {
			t.Fatal(err)
		}
	}
	if builds != 2 {
		t.Errorf("builds = %d, want 2", builds)
	}
}

func TestEstimate_AlgorithmMismatch(t *testing.T) {
	est := NewEstimator(nil)
	key := Key{System: "demo", Algorithm: flowsheet.PhenomenaOriented}
	_, err := est.Estimate(context.Background(), key, func() (flowsheet.Simulation, error) {
		return flowsheettest.Relaxing(flowsheet.SequentialModular, 1, 0.5), nil
	})
	if err == nil {
		t.Error("expected error when builder returns the other algorithm")
	}
	if _, err := est.Estimate(context.Background(), Key{System: "demo"}, nil); !errors.Is(err, flowsheet.ErrInvalidAlgorithm) {
		t.Errorf("Estimate with zero algorithm = %v, want ErrInvalidAlgorithm", err)
	}
}

func TestEstimate_TracesEstimate(t *testing.T) {
	dir := t.TempDir()
	trace := logging.NewTraceLogger(dir, "debug")
	est := NewEstimator(nil, WithTrace(trace))
	key := Key{System: "demo", Algorithm: flowsheet.SequentialModular}
	if _, err := est.Estimate(context.Background(), key, func() (flowsheet.Simulation, error) {
		return flowsheettest.Relaxing(flowsheet.SequentialModular, 1, 0.5), nil
	}); err != nil {
		t.Fatal(err)
	}
	trace.Close()
	data, err := os.ReadFile(dir + "/" + logging.TraceFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"event":"estimate"`) || !strings.Contains(string(data), `"iterations":51`) {
		t.Errorf("trace = %s", data)
	}
}

func TestCheckTags(t *testing.T) {
	ref := &Reference{NodeTags: []string{"s001", "s002", "s003"}}
	if err := CheckTags("k", ref, []string{"s001", "s002", "s003"}); err != nil {
		t.Errorf("CheckTags on equal tags: %v", err)
	}

	err := CheckTags("k", ref, []string{"s001", "s009", "s003"})
	var ce *ConsistencyError
	if !errors.As(err, &ce) || !errors.Is(err, ErrNodeTagMismatch) {
		t.Fatalf("CheckTags = %v, want ConsistencyError", err)
	}
	if ce.Index != 1 || ce.Want != "s002" || ce.Got != "s009" {
		t.Errorf("ConsistencyError = %+v", ce)
	}

	err = CheckTags("k", ref, []string{"s001"})
	if !errors.As(err, &ce) || ce.Index != -1 {
		t.Errorf("length mismatch = %v", err)
	}
}

func TestAgreement(t *testing.T) {
	a := &Reference{
		NodeTags: []string{"s001", "s002"},
		Phases:   [][]string{{"l"}, {"g", "l"}},
		Flows:    []float64{1, 2, 3, 4, 5, 6},
	}
	b := &Reference{
		NodeTags: []string{"s001", "s002"},
		Phases:   [][]string{{"l"}, {"g", "l"}},
		Flows:    []float64{1.005, 2, 3, 4, 5.5, 6},
	}
	got, err := Agreement(a, b, DefaultAgreementTolerance, DefaultAgreementTolerance)
	if err != nil {
		t.Fatal(err)
	}
	want := []Disagreement{{NodeTag: "s002", Phase: "l", Index: 0, A: 5, B: 5.5}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Agreement (-want +got):\n%s", diff)
	}

	b.NodeTags = []string{"s001", "s003"}
	if _, err := Agreement(a, b, 0.01, 0.01); !errors.Is(err, ErrNodeTagMismatch) {
		t.Errorf("Agreement with different tags = %v", err)
	}
}
