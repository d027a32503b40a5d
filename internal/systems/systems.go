// Package systems holds the named benchmark systems: how to build each one
// and how long a tracked run of it lasts.
package systems

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/plant"
)

// ErrUnknownSystem is returned for names that are not registered.
var ErrUnknownSystem = errors.New("unknown system")

// Definition describes one benchmark system.
type Definition struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Label string `json:"label"`

	// ProfileTime is the wall-clock budget of one tracked run, in seconds.
	ProfileTime float64 `json:"profile_time"`

	// Tickmarks are suggested time axis ticks for charts.
	Tickmarks []float64 `json:"tickmarks,omitempty"`

	// Stages is the number of equilibrium stages, used for ordering.
	Stages int `json:"stages"`

	// Revision is bumped whenever the system's definition changes.
	Revision int `json:"revision"`

	Factory flowsheet.Factory `json:"-"`
}

// Fingerprint identifies the system revision together with the model
// revision of the built-in cascade. Cached references and profiles carry
// it; a change makes them misses.
func (d Definition) Fingerprint() string {
	return fmt.Sprintf("%s@r%d/m%d", d.Name, d.Revision, plant.ModelRevision)
}

// FingerprintFor extends Fingerprint with the solver tolerances results
// were computed under, so changing them invalidates cached entries.
func (d Definition) FingerprintFor(tol flowsheet.Tolerances) string {
	return d.Fingerprint() + "/" + tol.Key()
}

// Registry maps system names to definitions.
type Registry struct {
	defs map[string]Definition
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition. Names must be unique.
func (r *Registry) Register(d Definition) error {
	switch {
	case d.Name == "":
		return errors.New("system has no name")
	case d.Factory == nil:
		return fmt.Errorf("system %q has no factory", d.Name)
	case d.ProfileTime <= 0:
		return fmt.Errorf("system %q has non-positive profile time", d.Name)
	}
	if _, ok := r.defs[d.Name]; ok {
		return fmt.Errorf("system %q already registered", d.Name)
	}
	r.defs[d.Name] = d
	return nil
}

// Get returns the definition called name.
func (r *Registry) Get(name string) (Definition, error) {
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownSystem, name, r.Names())
	}
	return d, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByStages returns every definition ordered by stage count, then name.
func (r *Registry) ByStages() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stages != out[j].Stages {
			return out[i].Stages < out[j].Stages
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Select resolves names, or returns every system ordered by stages when
// names is empty.
func (r *Registry) Select(names []string) ([]Definition, error) {
	if len(names) == 0 {
		return r.ByStages(), nil
	}
	out := make([]Definition, 0, len(names))
	for _, name := range names {
		d, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Cascade returns a definition whose factory builds the plant cascade cfg
// with per-call parameter overrides applied.
func Cascade(name, title, label string, profileTime float64, tickmarks []float64, cfg plant.Config) Definition {
	return Definition{
		Name:        name,
		Title:       title,
		Label:       label,
		ProfileTime: profileTime,
		Tickmarks:   tickmarks,
		Stages:      cfg.Stages,
		Revision:    1,
		Factory: func(alg flowsheet.Algorithm, tol flowsheet.Tolerances, params flowsheet.Params) (flowsheet.Simulation, error) {
			c, err := cfg.WithParams(params)
			if err != nil {
				return nil, err
			}
			return plant.New(c, alg, tol)
		},
	}
}
