// Package metrics computes the scalar divergence measures recorded on every
// iteration: flow and temperature deltas, stage energy residuals and stage
// material residuals. All functions are pure and never recover from
// numerical problems; a near-zero heat capacity sum propagates as a large or
// infinite residual rather than being clamped.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/nvandessel/convbench/internal/flowsheet"
)

// Epsilon is added to every absolute deviation before taking log10 so that
// exact zeros map to -25 instead of -Inf.
const Epsilon = 1e-25

// LogError returns log10(|x| + Epsilon).
func LogError(x float64) float64 {
	return math.Log10(math.Abs(x) + Epsilon)
}

// PhaseLayout records which phases each stream carries.
func PhaseLayout(streams []flowsheet.Stream) [][]string {
	layout := make([][]string, len(streams))
	for i, s := range streams {
		layout[i] = append([]string(nil), s.Phases()...)
	}
	return layout
}

// FlowVector flattens the plant composition state into one vector. A stream
// with a single phase contributes its full composition; a multiphase stream
// contributes each phase's composition in layout order.
func FlowVector(streams []flowsheet.Stream, layout [][]string) ([]float64, error) {
	if len(layout) != len(streams) {
		return nil, fmt.Errorf("phase layout has %d entries for %d streams", len(layout), len(streams))
	}
	var flows []float64
	for i, s := range streams {
		phases := layout[i]
		if len(phases) == 1 {
			flows = append(flows, s.Mol()...)
			continue
		}
		for _, phase := range phases {
			flows = append(flows, s.PhaseMol(phase)...)
		}
	}
	return flows, nil
}

// Temperatures returns the stream temperatures in order.
func Temperatures(streams []flowsheet.Stream) []float64 {
	ts := make([]float64, len(streams))
	for i, s := range streams {
		ts[i] = s.T()
	}
	return ts
}

// Deviation is the L1 distance between two equally sized state vectors.
func Deviation(a, b []float64) float64 {
	return floats.Distance(a, b, 1)
}

// EnergyResidual is the temperature-equivalent energy imbalance of a stage,
// (ΣH_out − ΣH_in) / ΣC_out, or zero when every outlet is empty.
func EnergyResidual(stage flowsheet.Stage) float64 {
	outs := stage.Outs()
	empty := true
	for _, s := range outs {
		if !s.IsEmpty() {
			empty = false
			break
		}
	}
	if empty {
		return 0
	}
	var hOut, hIn, cOut float64
	for _, s := range outs {
		hOut += s.H()
		cOut += s.C()
	}
	for _, s := range stage.Ins() {
		hIn += s.H()
	}
	return (hOut - hIn) / cOut
}

// MaterialResidual is the stage-reported mass balance error.
func MaterialResidual(stage flowsheet.Stage) float64 {
	return stage.MassBalanceError()
}

// EnergyError reduces the energy residuals of stages to one log10 scalar.
func EnergyError(stages []flowsheet.Stage) float64 {
	var total float64
	for _, s := range stages {
		total += math.Abs(EnergyResidual(s))
	}
	return LogError(total)
}

// MaterialError reduces the material residuals of stages to one log10 scalar.
func MaterialError(stages []flowsheet.Stage) float64 {
	var total float64
	for _, s := range stages {
		total += math.Abs(MaterialResidual(s))
	}
	return LogError(total)
}

// StageErrors sums the per-stage simulation error estimates.
func StageErrors(stages []flowsheet.Stage) (flow, temperature float64) {
	for _, s := range stages {
		f, t := s.SimulationError()
		flow += f
		temperature += t
	}
	return flow, temperature
}
