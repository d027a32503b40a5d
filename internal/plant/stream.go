package plant

import "github.com/nvandessel/convbench/internal/flowsheet"

const (
	liquid = "l"
	vapor  = "g"
)

// Stream is a cascade material stream. Each stream carries a fixed set of
// phases decided when the cascade is built.
type Stream struct {
	tag    string
	phases []string
	liq    []float64
	vap    []float64
	t      float64
	model  *model
}

func newStream(m *model, tag string, phases ...string) *Stream {
	n := len(m.chems)
	return &Stream{
		tag:    tag,
		phases: phases,
		liq:    make([]float64, n),
		vap:    make([]float64, n),
		t:      m.tref,
		model:  m,
	}
}

func (s *Stream) NodeTag() string  { return s.tag }
func (s *Stream) Phases() []string { return s.phases }
func (s *Stream) T() float64       { return s.t }
func (s *Stream) FlowStorage() any { return s }

func (s *Stream) Mol() []float64 {
	out := make([]float64, len(s.liq))
	for i := range out {
		out[i] = s.liq[i] + s.vap[i]
	}
	return out
}

func (s *Stream) PhaseMol(phase string) []float64 {
	switch phase {
	case liquid:
		return append([]float64(nil), s.liq...)
	case vapor:
		return append([]float64(nil), s.vap...)
	}
	return make([]float64, len(s.liq))
}

// H is the enthalpy flow relative to liquid at the reference temperature.
func (s *Stream) H() float64 {
	h := 0.0
	dt := s.t - s.model.tref
	for i, c := range s.model.chems {
		h += (s.liq[i] + s.vap[i]) * c.Cp * dt
		h += s.vap[i] * c.Latent
	}
	return h
}

func (s *Stream) C() float64 {
	cp := 0.0
	for i, c := range s.model.chems {
		cp += (s.liq[i] + s.vap[i]) * c.Cp
	}
	return cp
}

func (s *Stream) IsEmpty() bool {
	for i := range s.liq {
		if s.liq[i] != 0 || s.vap[i] != 0 {
			return false
		}
	}
	return true
}

func (s *Stream) total() float64 {
	sum := 0.0
	for i := range s.liq {
		sum += s.liq[i] + s.vap[i]
	}
	return sum
}

func streams(ss ...*Stream) []flowsheet.Stream {
	out := make([]flowsheet.Stream, 0, len(ss))
	for _, s := range ss {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
