package plant

import (
	"math"

	"github.com/nvandessel/convbench/internal/flowsheet"
)

// Stage is one equilibrium or processing stage of the cascade.
type Stage struct {
	ins  []*Stream
	outs []*Stream

	bSpec *float64
	tSpec *float64

	// changes made by the stage's last update
	flowChange float64
	tempChange float64
}

func (s *Stage) Ins() []flowsheet.Stream  { return streams(s.ins...) }
func (s *Stage) Outs() []flowsheet.Stream { return streams(s.outs...) }

// MassBalanceError is total inlet minus total outlet flow.
func (s *Stage) MassBalanceError() float64 {
	var in, out float64
	for _, st := range s.ins {
		in += st.total()
	}
	for _, st := range s.outs {
		out += st.total()
	}
	return in - out
}

// SimulationError reports the flow and temperature change made by the
// stage's most recent update.
func (s *Stage) SimulationError() (float64, float64) {
	return s.flowChange, s.tempChange
}

func (s *Stage) BSpecification() (float64, bool) {
	if s.bSpec == nil {
		return 0, false
	}
	return *s.bSpec, true
}

func (s *Stage) TSpecification() (float64, bool) {
	if s.tSpec == nil {
		return 0, false
	}
	return *s.tSpec, true
}

// record stores the change between the previous and new outlet state.
func (s *Stage) record(prevFlows [][]float64, prevT []float64) {
	s.flowChange, s.tempChange = 0, 0
	for k, st := range s.outs {
		for i := range st.liq {
			s.flowChange += math.Abs(st.liq[i] + st.vap[i] - prevFlows[k][i])
		}
		s.tempChange += math.Abs(st.t - prevT[k])
	}
}

func (s *Stage) snapshot() ([][]float64, []float64) {
	flows := make([][]float64, len(s.outs))
	temps := make([]float64, len(s.outs))
	for k, st := range s.outs {
		flows[k] = st.Mol()
		temps[k] = st.t
	}
	return flows, temps
}
