// Package plant is a small built-in flowsheet: a feed mixer, a
// countercurrent equilibrium cascade and a bottoms splitter that recycles
// part of the bottoms to the mixer. It implements the flowsheet interfaces
// with both single-step strategies so the benchmarking core can be exercised
// end to end. It is a toy model; K-values depend on stage temperature only
// and the cascade assumes fixed vapor/liquid flow ratios.
package plant

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/nvandessel/convbench/internal/flowsheet"
)

// ModelRevision changes whenever the cascade equations change, which
// invalidates every cached reference computed with the old model.
const ModelRevision = 1

// MaxStages bounds the cascade length.
const MaxStages = 400

// ErrInvalidConfig is returned for cascade configurations that cannot be
// built.
var ErrInvalidConfig = errors.New("invalid cascade configuration")

// Config describes one cascade system.
type Config struct {
	Chemicals []Chemical `json:"chemicals" yaml:"chemicals"`

	// Feed is the fresh feed molar flow per chemical.
	Feed []float64 `json:"feed" yaml:"feed"`

	FeedTemperature   float64 `json:"feed_temperature" yaml:"feed_temperature"`
	FeedVaporFraction float64 `json:"feed_vapor_fraction" yaml:"feed_vapor_fraction"`

	// Stages is the number of equilibrium stages; FeedStage is 1-based from
	// the top.
	Stages    int `json:"stages" yaml:"stages"`
	FeedStage int `json:"feed_stage" yaml:"feed_stage"`

	// FlowRatio is the vapor/liquid ratio leaving every internal stage and
	// BoilupRatio the one leaving the bottom stage.
	FlowRatio   float64 `json:"flow_ratio" yaml:"flow_ratio"`
	BoilupRatio float64 `json:"boilup_ratio" yaml:"boilup_ratio"`

	// CondenserTemperature fixes the temperature of the top stage.
	CondenserTemperature float64 `json:"condenser_temperature" yaml:"condenser_temperature"`

	// RecycleFraction of the bottoms liquid returns to the mixer.
	RecycleFraction float64 `json:"recycle_fraction" yaml:"recycle_fraction"`

	// ReferenceTemperature anchors K-values and enthalpies.
	ReferenceTemperature float64 `json:"reference_temperature" yaml:"reference_temperature"`
}

// WithParams returns a copy of c with the "stages" and "feed_stage"
// overrides applied. Other keys are rejected.
func (c Config) WithParams(p flowsheet.Params) (Config, error) {
	for k := range p {
		if k != "stages" && k != "feed_stage" {
			return c, fmt.Errorf("%w: unknown parameter %q", ErrInvalidConfig, k)
		}
	}
	out := c
	out.Chemicals = append([]Chemical(nil), c.Chemicals...)
	out.Feed = append([]float64(nil), c.Feed...)
	out.Stages = p.Get("stages", c.Stages)
	if _, ok := p["stages"]; ok {
		if _, hasFeed := p["feed_stage"]; !hasFeed {
			// keep the feed at the same relative height
			out.FeedStage = int(math.Round(float64(c.FeedStage) * float64(out.Stages) / float64(c.Stages)))
			out.FeedStage = max(1, min(out.FeedStage, out.Stages))
		}
	}
	out.FeedStage = p.Get("feed_stage", out.FeedStage)
	return out, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case len(c.Chemicals) == 0:
		return fmt.Errorf("%w: no chemicals", ErrInvalidConfig)
	case len(c.Feed) != len(c.Chemicals):
		return fmt.Errorf("%w: %d feed flows for %d chemicals", ErrInvalidConfig, len(c.Feed), len(c.Chemicals))
	case c.Stages < 2 || c.Stages > MaxStages:
		return fmt.Errorf("%w: stages must be in [2, %d], got %d", ErrInvalidConfig, MaxStages, c.Stages)
	case c.FeedStage < 1 || c.FeedStage > c.Stages:
		return fmt.Errorf("%w: feed stage %d outside [1, %d]", ErrInvalidConfig, c.FeedStage, c.Stages)
	case c.FlowRatio <= 0 || c.BoilupRatio <= 0:
		return fmt.Errorf("%w: flow ratios must be positive", ErrInvalidConfig)
	case c.FeedVaporFraction < 0 || c.FeedVaporFraction > 1:
		return fmt.Errorf("%w: feed vapor fraction must be in [0, 1]", ErrInvalidConfig)
	case c.RecycleFraction < 0 || c.RecycleFraction >= 1:
		return fmt.Errorf("%w: recycle fraction must be in [0, 1)", ErrInvalidConfig)
	case c.ReferenceTemperature <= 0 || c.FeedTemperature <= 0 || c.CondenserTemperature <= 0:
		return fmt.Errorf("%w: temperatures must be positive", ErrInvalidConfig)
	}
	for i, f := range c.Feed {
		if f < 0 {
			return fmt.Errorf("%w: negative feed flow for %s", ErrInvalidConfig, c.Chemicals[i].ID)
		}
	}
	return nil
}

type model struct {
	chems []Chemical
	tref  float64
}

// Flowsheet is the cascade's unit registry.
type Flowsheet struct {
	units map[string]bool
}

func (f *Flowsheet) register(tag string) {
	if f.units == nil {
		f.units = make(map[string]bool)
	}
	f.units[tag] = true
}

// Clear forgets every registered unit.
func (f *Flowsheet) Clear() { f.units = nil }

// Len returns the number of registered units.
func (f *Flowsheet) Len() int { return len(f.units) }

// Simulation is one cascade built for a single algorithm.
type Simulation struct {
	cfg       Config
	alg       flowsheet.Algorithm
	tol       flowsheet.Tolerances
	model     *model
	flowsheet Flowsheet

	fresh, recycle, mixed, product *Stream
	liquids, vapors                []*Stream

	mixer    *Stage
	column   []*Stage
	splitter *Stage

	units    []flowsheet.Unit
	residual float64
}

// New builds a cascade. Stream tags are assigned in creation order:
// fresh feed, recycle, mixed feed, then liquid and vapor of each stage from
// the top, then the bottoms product.
func New(cfg Config, alg flowsheet.Algorithm, tol flowsheet.Tolerances) (*Simulation, error) {
	if !alg.Valid() {
		return nil, flowsheet.ErrInvalidAlgorithm
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &model{chems: cfg.Chemicals, tref: cfg.ReferenceTemperature}
	sim := &Simulation{cfg: cfg, alg: alg, tol: tol, model: m, residual: math.Inf(1)}

	n := 0
	next := func(phases ...string) *Stream {
		n++
		return newStream(m, fmt.Sprintf("s%03d", n), phases...)
	}

	sim.fresh = next(liquid)
	copy(sim.fresh.liq, cfg.Feed)
	sim.fresh.t = cfg.FeedTemperature
	sim.recycle = next(liquid)
	sim.recycle.t = cfg.FeedTemperature
	sim.mixed = next(vapor, liquid)
	sim.mixed.t = cfg.FeedTemperature

	sim.liquids = make([]*Stream, cfg.Stages)
	sim.vapors = make([]*Stream, cfg.Stages)
	for j := 0; j < cfg.Stages; j++ {
		sim.liquids[j] = next(liquid)
		sim.vapors[j] = next(vapor)
		sim.liquids[j].t = cfg.FeedTemperature
		sim.vapors[j].t = cfg.FeedTemperature
	}
	sim.product = next(liquid)
	sim.product.t = cfg.FeedTemperature

	vf := cfg.FeedVaporFraction
	sim.mixer = &Stage{ins: []*Stream{sim.fresh, sim.recycle}, outs: []*Stream{sim.mixed}, bSpec: &vf}

	sim.column = make([]*Stage, cfg.Stages)
	feed := cfg.FeedStage - 1
	for j := range sim.column {
		st := &Stage{outs: []*Stream{sim.liquids[j], sim.vapors[j]}}
		if j > 0 {
			st.ins = append(st.ins, sim.liquids[j-1])
		}
		if j < cfg.Stages-1 {
			st.ins = append(st.ins, sim.vapors[j+1])
		}
		if j == feed {
			st.ins = append(st.ins, sim.mixed)
		}
		sim.column[j] = st
	}
	tc := cfg.CondenserTemperature
	sim.column[0].tSpec = &tc
	sim.liquids[0].t, sim.vapors[0].t = tc, tc
	boilup := cfg.BoilupRatio
	sim.column[cfg.Stages-1].bSpec = &boilup

	bottoms := sim.liquids[cfg.Stages-1]
	sim.splitter = &Stage{ins: []*Stream{bottoms}, outs: []*Stream{sim.recycle, sim.product}}

	columnStages := make([]flowsheet.Stage, len(sim.column))
	for j, st := range sim.column {
		columnStages[j] = st
	}
	sim.units = []flowsheet.Unit{
		flowsheet.LeafUnit("u01", sim.mixer),
		flowsheet.CompositeUnit("u02", columnStages...),
		flowsheet.LeafUnit("u03", sim.splitter),
	}
	for _, u := range sim.units {
		sim.flowsheet.register(u.NodeTag())
	}
	return sim, nil
}

func (s *Simulation) Algorithm() flowsheet.Algorithm { return s.alg }
func (s *Simulation) UnitPath() []flowsheet.Unit     { return s.units }
func (s *Simulation) Flowsheet() flowsheet.Registry  { return &s.flowsheet }

// Config returns the configuration the cascade was built with.
func (s *Simulation) Config() Config { return s.cfg }

// RunSequentialModular updates the mixer, then every column stage in turn
// from the top using the latest neighbour values, then the splitter.
func (s *Simulation) RunSequentialModular() (bool, error) {
	if s.alg != flowsheet.SequentialModular {
		return false, fmt.Errorf("sequential modular step on %v cascade", s.alg)
	}
	s.updateMixer()
	for j := range s.column {
		s.updateStage(j)
	}
	s.updateSplitter()
	return s.checkDivergence(), nil
}

// RunPhenomena updates the mixer, solves the material balances of all
// column stages at once for each chemical at fixed temperatures, then
// updates all stage temperatures jointly, then the splitter.
func (s *Simulation) RunPhenomena() (bool, error) {
	if s.alg != flowsheet.PhenomenaOriented {
		return false, fmt.Errorf("phenomena oriented step on %v cascade", s.alg)
	}
	s.updateMixer()
	if err := s.solveColumn(); err != nil {
		return false, err
	}
	s.updateSplitter()
	return s.checkDivergence(), nil
}

// Simulate iterates the cascade's own strategy until flow changes are
// within MolarTolerance + RelativeMolarTolerance·flow and temperature
// changes within TemperatureTolerance, or returns ErrNotConverged after
// MaxIter iterations.
func (s *Simulation) Simulate() error {
	step, err := flowsheet.Step(s)
	if err != nil {
		return err
	}
	maxIter := s.tol.MaxIter
	if maxIter <= 0 {
		maxIter = flowsheet.RigorousTolerances().MaxIter
	}
	for iter := 0; iter < maxIter; iter++ {
		if _, err := step(); err != nil {
			return err
		}
		if s.converged() {
			return nil
		}
	}
	return fmt.Errorf("%w after %d iterations", flowsheet.ErrNotConverged, maxIter)
}

func (s *Simulation) converged() bool {
	for _, st := range s.stages() {
		var flow float64
		for _, out := range st.outs {
			flow += out.total()
		}
		if st.flowChange > s.tol.MolarTolerance+s.tol.RelativeMolarTolerance*flow {
			return false
		}
		if st.tempChange > s.tol.TemperatureTolerance {
			return false
		}
	}
	return true
}

func (s *Simulation) stages() []*Stage {
	out := make([]*Stage, 0, len(s.column)+2)
	out = append(out, s.mixer)
	out = append(out, s.column...)
	return append(out, s.splitter)
}

// checkDivergence reports whether the total material residual grew during
// the step.
func (s *Simulation) checkDivergence() bool {
	residual := 0.0
	for _, st := range s.stages() {
		residual += math.Abs(st.MassBalanceError())
	}
	diverged := residual > s.residual && residual > s.tol.MolarTolerance
	s.residual = residual
	return diverged
}

func (s *Simulation) updateMixer() {
	flows, temps := s.mixer.snapshot()
	vf := s.cfg.FeedVaporFraction
	var c, h float64
	for i, chem := range s.model.chems {
		total := s.fresh.liq[i] + s.recycle.liq[i]
		s.mixed.vap[i] = vf * total
		s.mixed.liq[i] = total - s.mixed.vap[i]
		c += s.fresh.liq[i]*chem.Cp + s.recycle.liq[i]*chem.Cp
		h += (s.fresh.liq[i]*s.fresh.t + s.recycle.liq[i]*s.recycle.t) * chem.Cp
	}
	if c > 0 {
		s.mixed.t = h / c
	}
	s.mixer.record(flows, temps)
}

func (s *Simulation) updateSplitter() {
	flows, temps := s.splitter.snapshot()
	bottoms := s.liquids[len(s.liquids)-1]
	r := s.cfg.RecycleFraction
	for i := range bottoms.liq {
		s.recycle.liq[i] = r * bottoms.liq[i]
		s.product.liq[i] = bottoms.liq[i] - s.recycle.liq[i]
	}
	s.recycle.t, s.product.t = bottoms.t, bottoms.t
	s.splitter.record(flows, temps)
}

// ratio returns the vapor/liquid flow ratio leaving stage j.
func (s *Simulation) ratio(j int) float64 {
	if j == len(s.column)-1 {
		return s.cfg.BoilupRatio
	}
	return s.cfg.FlowRatio
}

// stageTemperature returns stage j's current temperature.
func (s *Simulation) stageTemperature(j int) float64 {
	return s.liquids[j].t
}

func (s *Simulation) setStageTemperature(j int, t float64) {
	s.liquids[j].t = t
	s.vapors[j].t = t
}

// feedTo returns chemical i's total feed into stage j.
func (s *Simulation) feedTo(j, i int) float64 {
	if j != s.cfg.FeedStage-1 {
		return 0
	}
	return s.mixed.liq[i] + s.mixed.vap[i]
}

// updateStage solves stage j's local balance given its neighbours' current
// outlets, then moves its temperature to the bubble point of its liquid.
func (s *Simulation) updateStage(j int) {
	st := s.column[j]
	flows, temps := st.snapshot()
	t := s.stageTemperature(j)
	r := s.ratio(j)
	for i, chem := range s.model.chems {
		in := s.feedTo(j, i)
		if j > 0 {
			in += s.liquids[j-1].liq[i]
		}
		if j < len(s.column)-1 {
			in += s.vapors[j+1].vap[i]
		}
		strip := chem.K(t, s.model.tref) * r
		l := in / (1 + strip)
		s.liquids[j].liq[i] = l
		s.vapors[j].vap[i] = strip * l
	}
	if spec, ok := st.TSpecification(); ok {
		s.setStageTemperature(j, spec)
	} else {
		s.setStageTemperature(j, bubblePoint(s.model.chems, s.liquids[j].liq, t, s.model.tref))
	}
	st.record(flows, temps)
}

// solveColumn solves, for each chemical, the tridiagonal system
//
//	−l[j−1] + (1 + S[j])·l[j] − S[j+1]·l[j+1] = f[j]
//
// with stripping factors S = K(T)·V/L at the current temperatures, then
// updates every unspecified stage temperature to its bubble point.
func (s *Simulation) solveColumn() error {
	n := len(s.column)
	type snap struct {
		flows [][]float64
		temps []float64
	}
	before := make([]snap, n)
	for j, st := range s.column {
		before[j].flows, before[j].temps = st.snapshot()
	}

	lower := make([]float64, n)
	diag := make([]float64, n)
	upper := make([]float64, n)
	rhs := make([]float64, n)
	strip := make([]float64, n)
	for i, chem := range s.model.chems {
		for j := 0; j < n; j++ {
			strip[j] = chem.K(s.stageTemperature(j), s.model.tref) * s.ratio(j)
		}
		for j := 0; j < n; j++ {
			lower[j], upper[j] = 0, 0
			if j > 0 {
				lower[j] = -1
			}
			diag[j] = 1 + strip[j]
			if j < n-1 {
				upper[j] = -strip[j+1]
			}
			rhs[j] = s.feedTo(j, i)
		}
		l, err := solveTridiagonal(lower, diag, upper, rhs)
		if err != nil {
			return fmt.Errorf("material balance of %s: %w", chem.ID, err)
		}
		for j := 0; j < n; j++ {
			s.liquids[j].liq[i] = l[j]
			s.vapors[j].vap[i] = strip[j] * l[j]
		}
	}
	for j, st := range s.column {
		if spec, ok := st.TSpecification(); ok {
			s.setStageTemperature(j, spec)
			continue
		}
		s.setStageTemperature(j, bubblePoint(s.model.chems, s.liquids[j].liq, s.stageTemperature(j), s.model.tref))
	}
	for j, st := range s.column {
		st.record(before[j].flows, before[j].temps)
	}
	return nil
}

// solveTridiagonal solves a tridiagonal system in banded storage. lower is
// the sub-diagonal (lower[0] unused), diag the diagonal and upper the
// super-diagonal (upper[n-1] unused).
func solveTridiagonal(lower, diag, upper, rhs []float64) ([]float64, error) {
	n := len(diag)
	if n == 1 {
		return []float64{rhs[0] / diag[0]}, nil
	}
	a := mat.NewTridiag(n, lower[1:], diag, upper[:n-1])
	var x mat.VecDense
	if err := a.SolveVecTo(&x, false, mat.NewVecDense(n, rhs)); err != nil {
		return nil, err
	}
	return x.RawVector().Data, nil
}
