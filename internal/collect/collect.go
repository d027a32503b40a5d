// Package collect walks a simulated flowsheet once and produces the fixed,
// deterministically ordered set of streams and stages a run is observed
// through.
//
// Ordering is load-bearing: two flowsheets built independently for the same
// physical system (for example one per algorithm) must yield index-aligned
// stream lists, so units are visited in node tag order and the stream list
// is sorted by node tag once more at the end.
package collect

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/nvandessel/convbench/internal/flowsheet"
)

// Observation is the observation set of one simulation.
type Observation struct {
	// Streams are unique by flow storage and sorted by node tag.
	Streams []flowsheet.Stream

	// AdiabaticStages are the stages with neither a duty/vapor fraction nor
	// a temperature specification. Only these contribute to the energy
	// balance signal.
	AdiabaticStages []flowsheet.Stage

	// Stages are all stages in traversal order.
	Stages []flowsheet.Stage
}

// Collect traverses sim's unit path in ascending node tag order.
// Composite units contribute their inner stages; leaf units are stages.
func Collect(sim flowsheet.Simulation) Observation {
	units := append([]flowsheet.Unit(nil), sim.UnitPath()...)
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].NodeTag() < units[j].NodeTag()
	})

	var obs Observation
	seen := make(map[any]bool)
	add := func(streams []flowsheet.Stream) {
		for _, s := range streams {
			if s == nil {
				continue
			}
			key := s.FlowStorage()
			if key != nil && !reflect.TypeOf(key).Comparable() {
				panic(fmt.Sprintf("collect: stream %s has non-comparable flow storage identity %T", s.NodeTag(), key))
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			obs.Streams = append(obs.Streams, s)
		}
	}

	for _, unit := range units {
		for _, stage := range unit.Stages() {
			if stage == nil {
				continue
			}
			obs.Stages = append(obs.Stages, stage)
			add(stage.Outs())
			add(stage.Ins())
			if flowsheet.Adiabatic(stage) {
				obs.AdiabaticStages = append(obs.AdiabaticStages, stage)
			}
		}
	}

	sort.SliceStable(obs.Streams, func(i, j int) bool {
		return obs.Streams[i].NodeTag() < obs.Streams[j].NodeTag()
	})
	return obs
}

// NodeTags returns the node tags of the observed streams in order.
func (o Observation) NodeTags() []string {
	tags := make([]string, len(o.Streams))
	for i, s := range o.Streams {
		tags[i] = s.NodeTag()
	}
	return tags
}
