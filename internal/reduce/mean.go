// Package reduce turns many independently tracked profiles into mean
// curves on a common time grid and into scalar time-to-steady-state
// benchmarks.
package reduce

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/nvandessel/convbench/internal/flowsheet"
	"github.com/nvandessel/convbench/internal/profile"
)

// ErrNoProfiles is returned when there is nothing to reduce.
var ErrNoProfiles = errors.New("no profiles")

// Curve is the across-trial statistics of one signal on the grid. Count is
// the number of trials defined at each grid point; Mean and Std are NaN
// where it is zero.
type Curve struct {
	Mean  profile.Series `json:"mean"`
	Std   profile.Series `json:"std"`
	Count []int          `json:"count"`
}

// MeanProfile is the reduction of N trials of one (system, algorithm).
type MeanProfile struct {
	System    string                    `json:"system"`
	Algorithm flowsheet.Algorithm       `json:"algorithm"`
	Trials    int                       `json:"trials"`
	Time      profile.Series            `json:"time"`
	Curves    map[profile.Signal]*Curve `json:"curves"`

	// Diverged counts, per grid index, the trials whose step at that index
	// was flagged divergent.
	Diverged []int `json:"diverged"`
}

// Curve returns the statistics for sig, or nil if it was not reduced.
func (m *MeanProfile) Curve(sig profile.Signal) *Curve {
	return m.Curves[sig]
}

// Signals returns the reduced signals in canonical order.
func (m *MeanProfile) Signals() []profile.Signal {
	var out []profile.Signal
	for _, sig := range profile.Signals {
		if _, ok := m.Curves[sig]; ok {
			out = append(out, sig)
		}
	}
	return out
}

// Grid returns the common time grid of profiles: the element-wise mean of
// their Time arrays truncated to the shortest trial, keeping only points
// no later than the earliest final timestamp. A single profile's grid is
// its own Time.
func Grid(profiles []*profile.Profile) ([]float64, error) {
	if len(profiles) == 0 {
		return nil, ErrNoProfiles
	}
	size := math.MaxInt
	end := math.Inf(1)
	for i, p := range profiles {
		if p.Len() == 0 {
			return nil, fmt.Errorf("%w: trial %d is empty", profile.ErrInvalidProfile, i)
		}
		size = min(size, p.Len())
		end = min(end, p.FinalTime())
	}
	if len(profiles) == 1 {
		return append([]float64(nil), profiles[0].Time...), nil
	}

	n := float64(len(profiles))
	grid := make([]float64, 0, size)
	for i := 0; i < size; i++ {
		var sum float64
		for _, p := range profiles {
			sum += p.Time[i]
		}
		t := sum / n
		if t > end {
			break
		}
		grid = append(grid, t)
	}
	return grid, nil
}

// Mean reduces profiles onto their common grid. Each trial is linearly
// interpolated onto the grid and is undefined outside its own time domain;
// every grid point is averaged over the trials defined there. Grid points
// earlier than the latest trial start are undefined for all trials. With
// no signals given, every signal is reduced.
func Mean(profiles []*profile.Profile, signals ...profile.Signal) (*MeanProfile, error) {
	grid, err := Grid(profiles)
	if err != nil {
		return nil, err
	}
	for i, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("trial %d: %w", i, err)
		}
	}
	if len(signals) == 0 {
		signals = profile.Signals
	}

	start := math.Inf(-1)
	for _, p := range profiles {
		start = max(start, p.Time[0])
	}

	m := &MeanProfile{
		System:    profiles[0].System,
		Algorithm: profiles[0].Algorithm,
		Trials:    len(profiles),
		Time:      grid,
		Curves:    make(map[profile.Signal]*Curve, len(signals)),
		Diverged:  make([]int, len(grid)),
	}
	for _, p := range profiles {
		for i := range grid {
			if p.Diverged[i] {
				m.Diverged[i]++
			}
		}
	}

	for _, sig := range signals {
		values := make([][]float64, len(profiles))
		for k, p := range profiles {
			series := p.Series(sig)
			if series == nil {
				return nil, fmt.Errorf("unknown signal %q", sig)
			}
			v, err := onGrid(p.Time, series, grid)
			if err != nil {
				return nil, fmt.Errorf("trial %d %s: %w", k, sig, err)
			}
			values[k] = v
		}
		m.Curves[sig] = reduceCurve(values, grid, start)
	}
	return m, nil
}

// onGrid interpolates (xs, ys) at every grid point, NaN outside [xs[0],
// xs[last]].
func onGrid(xs, ys, grid []float64) ([]float64, error) {
	out := make([]float64, len(grid))
	lo, hi := xs[0], xs[len(xs)-1]
	if len(xs) == 1 {
		for i, t := range grid {
			out[i] = math.NaN()
			if t == lo {
				out[i] = ys[0]
			}
		}
		return out, nil
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, err
	}
	for i, t := range grid {
		if t < lo || t > hi {
			out[i] = math.NaN()
			continue
		}
		out[i] = pl.Predict(t)
	}
	return out, nil
}

func reduceCurve(values [][]float64, grid []float64, start float64) *Curve {
	c := &Curve{
		Mean:  make(profile.Series, len(grid)),
		Std:   make(profile.Series, len(grid)),
		Count: make([]int, len(grid)),
	}
	defined := make([]float64, 0, len(values))
	for i, t := range grid {
		defined = defined[:0]
		if t >= start {
			for _, v := range values {
				if !math.IsNaN(v[i]) {
					defined = append(defined, v[i])
				}
			}
		}
		c.Count[i] = len(defined)
		if len(defined) == 0 {
			c.Mean[i], c.Std[i] = math.NaN(), math.NaN()
			continue
		}
		c.Mean[i], c.Std[i] = popMeanStd(defined)
	}
	return c
}
