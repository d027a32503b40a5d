package reduce

import (
	"math"

	"github.com/nvandessel/convbench/internal/constants"
	"github.com/nvandessel/convbench/internal/profile"
)

// DefaultSteadyStateOffset is added to a profile's final combined error to
// obtain its steady-state cutoff, in decades.
const DefaultSteadyStateOffset = constants.DefaultSteadyStateOffset

// SteadyStateError returns the cutoff a profile is judged against: its
// final combined flow and temperature error plus offset. An empty profile
// yields NaN.
func SteadyStateError(p *profile.Profile, offset float64) float64 {
	n := p.Len()
	if n == 0 || len(p.FlowError) < n || len(p.TemperatureError) < n {
		return math.NaN()
	}
	return profile.Combine(p.FlowError[n-1], p.TemperatureError[n-1]) + offset
}

// CommonCutoff returns the loosest steady-state cutoff over profiles, so
// every profile is judged against the same bar.
func CommonCutoff(offset float64, profiles ...*profile.Profile) float64 {
	cutoff := math.Inf(-1)
	for _, p := range profiles {
		if c := SteadyStateError(p, offset); c > cutoff {
			cutoff = c
		}
	}
	return cutoff
}

// FirstCrossing returns the time at which errs first reaches cutoff,
// interpolating linearly between the bracketing samples. A series that
// starts at or below the cutoff crosses at times[0]. It reports false if
// the cutoff is never reached.
func FirstCrossing(times, errs []float64, cutoff float64) (float64, bool) {
	n := min(len(times), len(errs))
	if n == 0 {
		return math.NaN(), false
	}
	if errs[0] <= cutoff {
		return times[0], true
	}
	for i := 1; i < n; i++ {
		if !(errs[i] <= cutoff) {
			continue
		}
		prev := errs[i-1]
		if math.IsNaN(prev) || errs[i] == prev {
			return times[i], true
		}
		frac := (cutoff - prev) / (errs[i] - prev)
		return times[i-1] + frac*(times[i]-times[i-1]), true
	}
	return math.NaN(), false
}

// Benchmark returns the wall-clock time at which the combined flow and
// temperature error of p first reaches cutoff.
func Benchmark(p *profile.Profile, cutoff float64) (float64, bool) {
	return FirstCrossing(p.Time, p.CombinedError(), cutoff)
}

// SettledCutoff returns one decade above the smallest finite value across
// curves.
func SettledCutoff(curves ...[]float64) float64 {
	lowest := math.Inf(1)
	for _, c := range curves {
		for _, v := range c {
			if v < lowest {
				lowest = v
			}
		}
	}
	return lowest + 1
}

// SettledIndex returns the number of values strictly above cutoff. For a
// decaying error curve this is the index of the first settled sample; it
// equals len(values) when the curve never settles.
func SettledIndex(values []float64, cutoff float64) int {
	n := 0
	for _, v := range values {
		if v > cutoff {
			n++
		}
	}
	return n
}
