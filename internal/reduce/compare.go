package reduce

import (
	"errors"
	"fmt"

	"github.com/nvandessel/convbench/internal/profile"
)

// ErrNoCrossing is returned when a trial never reaches the common cutoff.
var ErrNoCrossing = errors.New("profile never reaches steady-state cutoff")

// Comparison is the time-to-steady-state benchmark of both algorithms on
// one system.
type Comparison struct {
	System string  `json:"system"`
	Cutoff float64 `json:"cutoff"`

	// Per-trial crossing times, in seconds.
	Sequential []float64 `json:"sequential"`
	Phenomena  []float64 `json:"phenomena"`

	// (mean, population std) of the crossing times.
	SequentialStats [2]float64 `json:"sequential_stats"`
	PhenomenaStats  [2]float64 `json:"phenomena_stats"`

	// RelativeTime is the faster algorithm's time as a percentage of the
	// slower one's, with its propagated standard deviation. It is PO/SM
	// unless SequentialFaster, in which case it is SM/PO. When inverted,
	// RelativeStd is rescaled to keep the relative error, so it differs from
	// historical tables that kept the PO/SM deviation unchanged.
	RelativeTime     float64 `json:"relative_time"`
	RelativeStd      float64 `json:"relative_std"`
	SequentialFaster bool    `json:"sequential_faster"`
}

// Compare benchmarks sm against po trials of the same system. Both sets
// are judged against their common cutoff.
func Compare(system string, sm, po []*profile.Profile, offset float64) (*Comparison, error) {
	if len(sm) == 0 || len(po) == 0 {
		return nil, fmt.Errorf("%w: %s needs trials of both algorithms (sm=%d po=%d)", ErrNoProfiles, system, len(sm), len(po))
	}
	all := append(append([]*profile.Profile(nil), sm...), po...)
	cutoff := CommonCutoff(offset, all...)

	c := &Comparison{System: system, Cutoff: cutoff}
	var err error
	if c.Sequential, err = crossings(sm, cutoff, "sm"); err != nil {
		return nil, err
	}
	if c.Phenomena, err = crossings(po, cutoff, "po"); err != nil {
		return nil, err
	}
	c.SequentialStats = MeanStd(c.Sequential)
	c.PhenomenaStats = MeanStd(c.Phenomena)

	r := Ratio(c.PhenomenaStats, c.SequentialStats)
	if r[0] > 1 {
		c.SequentialFaster = true
		// 1/z keeps the relative error of z.
		r = [2]float64{1 / r[0], r[1] / (r[0] * r[0])}
	}
	c.RelativeTime = 100 * r[0]
	c.RelativeStd = 100 * r[1]
	return c, nil
}

func crossings(profiles []*profile.Profile, cutoff float64, label string) ([]float64, error) {
	out := make([]float64, len(profiles))
	for i, p := range profiles {
		t, ok := Benchmark(p, cutoff)
		if !ok {
			return nil, fmt.Errorf("%w: %s trial %d (cutoff %g)", ErrNoCrossing, label, i, cutoff)
		}
		out[i] = t
	}
	return out, nil
}
