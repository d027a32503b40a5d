package flowsheet

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Tolerances is the solver configuration handed to a simulation when it is
// built. Nothing in the process mutates solver settings globally; a
// simulation only sees the tolerances it was constructed with.
type Tolerances struct {
	// MolarTolerance is the absolute flow tolerance (mol/hr).
	MolarTolerance float64 `json:"molar_tolerance" yaml:"molar_tolerance"`

	// RelativeMolarTolerance is the relative flow tolerance.
	RelativeMolarTolerance float64 `json:"relative_molar_tolerance" yaml:"relative_molar_tolerance"`

	// TemperatureTolerance is the absolute temperature tolerance (K).
	TemperatureTolerance float64 `json:"temperature_tolerance" yaml:"temperature_tolerance"`

	// MaxIter bounds Simulate.
	MaxIter int `json:"max_iter" yaml:"max_iter"`
}

// RigorousTolerances returns the tight settings used for benchmarking.
func RigorousTolerances() Tolerances {
	return Tolerances{
		MolarTolerance:         1e-9,
		RelativeMolarTolerance: 1e-16,
		TemperatureTolerance:   1e-12,
		MaxIter:                200,
	}
}

// Key renders the tolerances as "a{abs}_r{rel}_t{temp}_i{maxiter}". Cached
// results computed under different tolerances carry a different key.
func (t Tolerances) Key() string {
	g := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return fmt.Sprintf("a%s_r%s_t%s_i%d", g(t.MolarTolerance), g(t.RelativeMolarTolerance), g(t.TemperatureTolerance), t.MaxIter)
}

// Params are per-system parameter overrides, e.g. {"stages": 12}.
type Params map[string]int

// Key renders the overrides as "k1_v1_k2_v2" with keys sorted, or "" when
// there are none.
func (p Params) Key() string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s_%d", k, p[k]))
	}
	return strings.Join(parts, "_")
}

// Get returns the override for key or def when unset.
func (p Params) Get(key string, def int) int {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// ParseParams parses "key=value" pairs as given on the command line.
func ParseParams(pairs []string) (Params, error) {
	params := Params{}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", pair)
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter %q: value must be an integer", pair)
		}
		params[k] = n
	}
	return params, nil
}
