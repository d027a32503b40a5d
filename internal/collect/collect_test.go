package collect

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/flowsheet/flowsheettest"
)

func ptr(v float64) *float64 { return &v }

// buildColumnSim returns a flowsheet with a feed mixer leaf and a three-stage
// composite column whose inter-stage streams are shared between neighbors.
// Units are listed out of tag order on purpose.
func buildColumnSim() (*flowsheettest.Simulation, map[string]*flowsheettest.Stream) {
	s := map[string]*flowsheettest.Stream{}
	for _, tag := range []string{"s01", "s02", "s03", "s04", "s05", "s06", "s07", "s08", "s09"} {
		s[tag] = flowsheettest.NewStream(tag, 1, 2)
	}
	mixer := &flowsheettest.Stage{
		In:  []flowsheet.Stream{s["s01"], s["s02"]},
		Out: []flowsheet.Stream{s["s03"]},
	}
	// Stage 1: condenser with a temperature specification.
	top := &flowsheettest.Stage{
		In:  []flowsheet.Stream{s["s06"]},
		Out: []flowsheet.Stream{s["s04"], s["s05"]},
		T:   ptr(320),
	}
	// Stage 2: feed stage, adiabatic. s05 and s08 alias streams of the
	// neighbors through distinct handles.
	middle := &flowsheettest.Stage{
		In:  []flowsheet.Stream{s["s03"], s["s05"].Alias("s05"), s["s08"]},
		Out: []flowsheet.Stream{s["s06"], s["s07"]},
	}
	// Stage 3: reboiler with a duty specification.
	bottom := &flowsheettest.Stage{
		In:  []flowsheet.Stream{s["s07"].Alias("s07")},
		Out: []flowsheet.Stream{s["s08"], s["s09"]},
		B:   ptr(2.5),
	}
	sim := &flowsheettest.Simulation{
		Alg: flowsheet.PhenomenaOriented,
		Units: []flowsheet.Unit{
			flowsheet.CompositeUnit("u02", top, middle, bottom),
			flowsheet.LeafUnit("u01", mixer),
		},
	}
	return sim, s
}

func TestCollect_OrderAndDedup(t *testing.T) {
	sim, _ := buildColumnSim()
	obs := Collect(sim)

	want := []string{"s01", "s02", "s03", "s04", "s05", "s06", "s07", "s08", "s09"}
	if diff := cmp.Diff(want, obs.NodeTags()); diff != "" {
		t.Errorf("NodeTags() mismatch (-want +got):\n%s", diff)
	}

	seen := map[any]bool{}
	for i, s := range obs.Streams {
		if seen[s.FlowStorage()] {
			t.Errorf("stream %s appears twice", s.NodeTag())
		}
		seen[s.FlowStorage()] = true
		if i > 0 && obs.Streams[i-1].NodeTag() >= s.NodeTag() {
			t.Errorf("streams not strictly increasing at %d: %s >= %s",
				i, obs.Streams[i-1].NodeTag(), s.NodeTag())
		}
	}
}

func TestCollect_StagesAndAdiabatic(t *testing.T) {
	sim, _ := buildColumnSim()
	obs := Collect(sim)

	// Mixer (u01) first, then the three inner column stages.
	if got := len(obs.Stages); got != 4 {
		t.Fatalf("len(Stages) = %d, want 4", got)
	}
	if obs.Stages[0] != sim.Units[1].Stages()[0] {
		t.Error("expected mixer leaf to be traversed first")
	}
	// Mixer and middle stage are adiabatic; condenser and reboiler are not.
	if got := len(obs.AdiabaticStages); got != 2 {
		t.Fatalf("len(AdiabaticStages) = %d, want 2", got)
	}
	column := sim.Units[0].Stages()
	if obs.AdiabaticStages[1] != column[1] {
		t.Error("expected middle column stage to be adiabatic")
	}
	for _, s := range obs.AdiabaticStages {
		if s == column[0] || s == column[2] {
			t.Error("specified stage recorded as adiabatic")
		}
	}
}

func TestCollect_Idempotent(t *testing.T) {
	sim, _ := buildColumnSim()
	first := Collect(sim)
	second := Collect(sim)

	if diff := cmp.Diff(first.NodeTags(), second.NodeTags()); diff != "" {
		t.Errorf("second collection differs (-first +second):\n%s", diff)
	}
	for i := range first.Streams {
		if first.Streams[i] != second.Streams[i] {
			t.Errorf("stream %d differs between collections", i)
		}
	}
	if len(first.Stages) != len(second.Stages) || len(first.AdiabaticStages) != len(second.AdiabaticStages) {
		t.Error("stage lists differ between collections")
	}
}

func TestCollect_AlignedAcrossAlgorithms(t *testing.T) {
	sm := Collect(flowsheettest.Relaxing(flowsheet.SequentialModular, 5, 0.5))
	po := Collect(flowsheettest.Relaxing(flowsheet.PhenomenaOriented, 5, 0.5))
	if diff := cmp.Diff(sm.NodeTags(), po.NodeTags()); diff != "" {
		t.Errorf("independently built flowsheets not aligned (-sm +po):\n%s", diff)
	}
	if got := len(sm.Streams); got != 6 {
		t.Errorf("len(Streams) = %d, want 6", got)
	}
}

func TestCollect_SkipsNilEndpoints(t *testing.T) {
	a := flowsheettest.NewStream("a", 1)
	stage := &flowsheettest.Stage{In: []flowsheet.Stream{nil}, Out: []flowsheet.Stream{a}}
	sim := &flowsheettest.Simulation{Units: []flowsheet.Unit{flowsheet.LeafUnit("u", stage)}}
	obs := Collect(sim)
	if len(obs.Streams) != 1 {
		t.Errorf("len(Streams) = %d, want 1", len(obs.Streams))
	}
}

// sliceIdentity reports its flow storage as a slice, which cannot be a map key.
type sliceIdentity struct {
	*flowsheettest.Stream
}

func (s sliceIdentity) FlowStorage() any { return s.Mol() }

func TestCollect_NonComparableStorage(t *testing.T) {
	bad := sliceIdentity{flowsheettest.NewStream("bad", 1)}
	stage := &flowsheettest.Stage{Out: []flowsheet.Stream{bad}}
	sim := &flowsheettest.Simulation{Units: []flowsheet.Unit{flowsheet.LeafUnit("u", stage)}}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic for non-comparable flow storage")
		}
		if msg := fmt.Sprint(r); !strings.Contains(msg, "bad") || !strings.Contains(msg, "[]float64") {
			t.Errorf("panic = %q, want stream tag and identity type", msg)
		}
	}()
	Collect(sim)
}
