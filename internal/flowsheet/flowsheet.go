// Package flowsheet defines the boundary to the flowsheet simulator.
//
// The simulator itself (unit operations, phase equilibrium, stream state) is
// an external collaborator. The benchmarking core only ever reads stream and
// stage state through these interfaces and advances a simulation by calling
// its single-step primitives.
package flowsheet

import "errors"

// ErrNotConverged is returned by Simulate when the iteration limit is reached
// before the tolerances are met.
var ErrNotConverged = errors.New("simulation did not converge")

// Stream is a read-only handle to a material stream owned by the simulator.
type Stream interface {
	// NodeTag is a stable identifier used to order streams deterministically
	// across independently built simulations of the same system.
	NodeTag() string

	// Phases lists the phases the stream carries, e.g. ["l"] or ["g", "l"].
	Phases() []string

	// Mol returns the molar flow of every chemical summed over phases.
	Mol() []float64

	// PhaseMol returns the molar flows of a single phase.
	PhaseMol(phase string) []float64

	// T is the stream temperature in K.
	T() float64

	// H is the stream enthalpy flow.
	H() float64

	// C is the stream heat capacity flow.
	C() float64

	// IsEmpty reports whether the stream carries no material.
	IsEmpty() bool

	// FlowStorage returns a comparable identity of the underlying flow
	// storage. Two handles that alias the same physical stream return equal
	// values even when they are distinct objects. The value is used as a map
	// key; a non-comparable value such as a slice makes collection panic.
	FlowStorage() any
}

// Stage is an equilibrium or processing stage.
type Stage interface {
	Ins() []Stream
	Outs() []Stream

	// MassBalanceError is the stage-reported material balance residual.
	MassBalanceError() float64

	// SimulationError estimates how far the stage is from converged, as a
	// flow component and a temperature component.
	SimulationError() (flow, temperature float64)

	// BSpecification returns an externally imposed duty or vapor fraction.
	BSpecification() (float64, bool)

	// TSpecification returns an externally imposed temperature.
	TSpecification() (float64, bool)
}

// Adiabatic reports whether neither a duty/vapor fraction nor a temperature
// is imposed on the stage.
func Adiabatic(s Stage) bool {
	_, hasB := s.BSpecification()
	_, hasT := s.TSpecification()
	return !hasB && !hasT
}

// Registry is the simulator's flowsheet bookkeeping (unit and stream IDs).
type Registry interface {
	Clear()
}

// Simulation is one flowsheet built for a single algorithm.
type Simulation interface {
	Algorithm() Algorithm

	// Simulate attempts a full convergence solve.
	Simulate() error

	// RunSequentialModular advances one sequential modular iteration and
	// reports whether the simulator flagged the step as divergent.
	RunSequentialModular() (diverged bool, err error)

	// RunPhenomena advances one phenomena oriented iteration.
	RunPhenomena() (diverged bool, err error)

	// UnitPath returns the units in simulation order.
	UnitPath() []Unit

	// Flowsheet returns the registry holding cross-run bookkeeping.
	Flowsheet() Registry
}

// Step returns the single-step primitive matching the simulation's own
// algorithm.
func Step(sim Simulation) (func() (bool, error), error) {
	switch alg := sim.Algorithm(); alg {
	case SequentialModular:
		return sim.RunSequentialModular, nil
	case PhenomenaOriented:
		return sim.RunPhenomena, nil
	default:
		return nil, ErrInvalidAlgorithm
	}
}

// Factory builds a fresh simulation of one system.
type Factory func(alg Algorithm, tol Tolerances, params Params) (Simulation, error)
