// Package profile defines the time-stamped error history recorded by one
// tracked run.
package profile

import (
	"errors"
	"fmt"
	"math"

	"github.com/nvandessel/convbench/internal/flowsheet"
)

// ErrInvalidProfile is returned by Validate when a profile breaks its
// length or ordering invariants.
var ErrInvalidProfile = errors.New("invalid profile")

// Signal names one recorded series.
type Signal string

const (
	// FlowError is the distance of the flow state from the reference.
	FlowError Signal = "Component flow rate error"
	// TemperatureError is the distance of the temperatures from the reference.
	TemperatureError Signal = "Temperature error"
	// FlowChange is the flow movement caused by one step.
	FlowChange Signal = "Component flow rate"
	// TemperatureChange is the temperature movement caused by one step.
	TemperatureChange Signal = "Stream temperature"
	// EnergyBalance is the summed energy residual of adiabatic stages.
	EnergyBalance Signal = "Energy balance"
	// MaterialBalance is the summed material residual of all stages.
	MaterialBalance Signal = "Material balance"
)

// Signals lists every recorded signal in display order.
var Signals = []Signal{
	FlowError,
	TemperatureError,
	FlowChange,
	TemperatureChange,
	EnergyBalance,
	MaterialBalance,
}

// ParseSignal resolves a signal by its display name or short name.
func ParseSignal(s string) (Signal, error) {
	for _, sig := range Signals {
		if s == string(sig) || s == sig.Short() {
			return sig, nil
		}
	}
	return "", fmt.Errorf("unknown signal %q", s)
}

// Short returns a compact identifier suitable for flags and column names.
func (s Signal) Short() string {
	switch s {
	case FlowError:
		return "flow_error"
	case TemperatureError:
		return "temperature_error"
	case FlowChange:
		return "flow_change"
	case TemperatureChange:
		return "temperature_change"
	case EnergyBalance:
		return "energy_balance"
	case MaterialBalance:
		return "material_balance"
	}
	return string(s)
}

// Sample is one iteration's worth of recorded values.
type Sample struct {
	Time              float64
	FlowError         float64
	TemperatureError  float64
	FlowChange        float64
	TemperatureChange float64
	EnergyBalance     float64
	MaterialBalance   float64
	Diverged          bool
}

// Profile is the error history of one tracked run. Every series has one
// entry per executed iteration and Time is strictly increasing. Error
// values are log10 of an absolute deviation plus a 1e-25 floor.
type Profile struct {
	System    string              `json:"system"`
	Algorithm flowsheet.Algorithm `json:"algorithm"`
	Trial     int                 `json:"trial"`

	Time              Series `json:"time"`
	FlowError         Series `json:"flow_error"`
	TemperatureError  Series `json:"temperature_error"`
	FlowChange        Series `json:"flow_change"`
	TemperatureChange Series `json:"temperature_change"`
	EnergyBalance     Series `json:"energy_balance"`
	MaterialBalance   Series `json:"material_balance"`
	Diverged          []bool `json:"diverged"`
}

// Append records one iteration.
func (p *Profile) Append(s Sample) {
	p.Time = append(p.Time, s.Time)
	p.FlowError = append(p.FlowError, s.FlowError)
	p.TemperatureError = append(p.TemperatureError, s.TemperatureError)
	p.FlowChange = append(p.FlowChange, s.FlowChange)
	p.TemperatureChange = append(p.TemperatureChange, s.TemperatureChange)
	p.EnergyBalance = append(p.EnergyBalance, s.EnergyBalance)
	p.MaterialBalance = append(p.MaterialBalance, s.MaterialBalance)
	p.Diverged = append(p.Diverged, s.Diverged)
}

// Len returns the number of recorded iterations.
func (p *Profile) Len() int { return len(p.Time) }

// Series returns the values recorded for sig, or nil for an unknown signal.
func (p *Profile) Series(sig Signal) []float64 {
	switch sig {
	case FlowError:
		return p.FlowError
	case TemperatureError:
		return p.TemperatureError
	case FlowChange:
		return p.FlowChange
	case TemperatureChange:
		return p.TemperatureChange
	case EnergyBalance:
		return p.EnergyBalance
	case MaterialBalance:
		return p.MaterialBalance
	}
	return nil
}

// CombinedError returns log10(10^flow + 10^temperature) per iteration.
func (p *Profile) CombinedError() []float64 {
	out := make([]float64, len(p.FlowError))
	for i := range out {
		out[i] = Combine(p.FlowError[i], p.TemperatureError[i])
	}
	return out
}

// Combine adds two log10 errors in linear space.
func Combine(flow, temperature float64) float64 {
	return math.Log10(math.Pow(10, flow) + math.Pow(10, temperature))
}

// Validate checks that all series are aligned with Time and that Time is
// strictly increasing.
func (p *Profile) Validate() error {
	n := len(p.Time)
	for _, sig := range Signals {
		if got := len(p.Series(sig)); got != n {
			return fmt.Errorf("%w: %s has %d values for %d timestamps", ErrInvalidProfile, sig, got, n)
		}
	}
	if len(p.Diverged) != n {
		return fmt.Errorf("%w: diverged has %d values for %d timestamps", ErrInvalidProfile, len(p.Diverged), n)
	}
	for i := 1; i < n; i++ {
		if !(p.Time[i] > p.Time[i-1]) {
			return fmt.Errorf("%w: time not strictly increasing at index %d", ErrInvalidProfile, i)
		}
	}
	return nil
}

// DivergedCount returns how many steps the simulator flagged as divergent.
func (p *Profile) DivergedCount() int {
	n := 0
	for _, d := range p.Diverged {
		if d {
			n++
		}
	}
	return n
}

// FinalTime returns the last timestamp, or 0 for an empty profile.
func (p *Profile) FinalTime() float64 {
	if len(p.Time) == 0 {
		return 0
	}
	return p.Time[len(p.Time)-1]
}
