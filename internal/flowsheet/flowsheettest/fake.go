// Package flowsheettest provides in-memory flowsheet fakes for tests.
package flowsheettest

import (
	"fmt"

	"github.com/nvandessel/convbench/internal/flowsheet"
)

// Stream is a mutable fake stream. Handles created with Alias share flow
// storage with their origin.
type Stream struct {
	Tag      string
	Flows    map[string][]float64 // per phase
	Order    []string             // phase order
	Temp     float64
	Enthalpy float64
	Capacity float64

	storage *Stream
}

// NewStream returns a single-phase liquid stream.
func NewStream(tag string, mol ...float64) *Stream {
	s := &Stream{Tag: tag, Flows: map[string][]float64{"l": mol}, Order: []string{"l"}, Temp: 298.15}
	s.storage = s
	return s
}

// NewMultiphase returns a stream carrying the given phases.
func NewMultiphase(tag string, flows map[string][]float64, order ...string) *Stream {
	s := &Stream{Tag: tag, Flows: flows, Order: order, Temp: 298.15}
	s.storage = s
	return s
}

// Alias returns a distinct handle onto the same flow storage, carrying a
// different node tag.
func (s *Stream) Alias(tag string) *Stream {
	return &Stream{Tag: tag, Flows: s.Flows, Order: s.Order, Temp: s.Temp, storage: s.storage}
}

func (s *Stream) NodeTag() string  { return s.Tag }
func (s *Stream) Phases() []string { return s.Order }
func (s *Stream) T() float64       { return s.storage.Temp }
func (s *Stream) H() float64       { return s.storage.Enthalpy }
func (s *Stream) C() float64       { return s.storage.Capacity }
func (s *Stream) FlowStorage() any { return s.storage }

func (s *Stream) Mol() []float64 {
	var total []float64
	for _, phase := range s.Order {
		flows := s.Flows[phase]
		if total == nil {
			total = make([]float64, len(flows))
		}
		for i, f := range flows {
			total[i] += f
		}
	}
	return total
}

func (s *Stream) PhaseMol(phase string) []float64 {
	return s.Flows[phase]
}

func (s *Stream) IsEmpty() bool {
	for _, f := range s.Mol() {
		if f != 0 {
			return false
		}
	}
	return true
}

// Stage is a fake stage with fixed residuals.
type Stage struct {
	In, Out   []flowsheet.Stream
	MassError float64
	FlowErr   float64
	TempErr   float64
	B, T      *float64
}

func (s *Stage) Ins() []flowsheet.Stream   { return s.In }
func (s *Stage) Outs() []flowsheet.Stream  { return s.Out }
func (s *Stage) MassBalanceError() float64 { return s.MassError }
func (s *Stage) SimulationError() (float64, float64) {
	return s.FlowErr, s.TempErr
}

func (s *Stage) BSpecification() (float64, bool) {
	if s.B == nil {
		return 0, false
	}
	return *s.B, true
}

func (s *Stage) TSpecification() (float64, bool) {
	if s.T == nil {
		return 0, false
	}
	return *s.T, true
}

// Registry counts Clear calls.
type Registry struct{ Clears int }

func (r *Registry) Clear() { r.Clears++ }

// Simulation is a scripted simulation. OnStep runs once per single-step call.
type Simulation struct {
	Alg         flowsheet.Algorithm
	Units       []flowsheet.Unit
	SimulateErr error
	OnStep      func(n int) (bool, error)

	Steps         int
	SimulateCalls int
	Registry      Registry
}

func (s *Simulation) Algorithm() flowsheet.Algorithm { return s.Alg }
func (s *Simulation) UnitPath() []flowsheet.Unit     { return s.Units }
func (s *Simulation) Flowsheet() flowsheet.Registry  { return &s.Registry }

func (s *Simulation) Simulate() error {
	s.SimulateCalls++
	return s.SimulateErr
}

func (s *Simulation) RunSequentialModular() (bool, error) {
	return s.step(flowsheet.SequentialModular)
}

func (s *Simulation) RunPhenomena() (bool, error) {
	return s.step(flowsheet.PhenomenaOriented)
}

func (s *Simulation) step(alg flowsheet.Algorithm) (bool, error) {
	if alg != s.Alg {
		return false, fmt.Errorf("flowsheettest: %v step on %v simulation", alg, s.Alg)
	}
	s.Steps++
	if s.OnStep == nil {
		return false, nil
	}
	return s.OnStep(s.Steps)
}

// Relaxing builds a chain of n leaf stages whose streams move a fraction
// rate of the remaining distance toward fixed targets on every step. The
// outlet of stage k aliases the inlet of stage k+1.
func Relaxing(alg flowsheet.Algorithm, n int, rate float64) *Simulation {
	streams := make([]*Stream, n+1)
	targets := make([][]float64, n+1)
	targetT := make([]float64, n+1)
	for i := range streams {
		streams[i] = NewStream(fmt.Sprintf("s%02d", i), 10, 0)
		streams[i].Capacity = 1
		targets[i] = []float64{10 - float64(i), float64(i)}
		targetT[i] = 300 + float64(i)
	}
	sim := &Simulation{Alg: alg}
	for k := 0; k < n; k++ {
		in := streams[k]
		if k > 0 {
			in = streams[k].Alias(fmt.Sprintf("s%02d", k))
		}
		stage := &Stage{In: []flowsheet.Stream{in}, Out: []flowsheet.Stream{streams[k+1]}}
		sim.Units = append(sim.Units, flowsheet.LeafUnit(fmt.Sprintf("u%02d", k), stage))
	}
	sim.OnStep = func(int) (bool, error) {
		for i, s := range streams {
			flows := s.Flows["l"]
			for j := range flows {
				flows[j] += rate * (targets[i][j] - flows[j])
			}
			s.Temp += rate * (targetT[i] - s.Temp)
		}
		return false, nil
	}
	return sim
}
