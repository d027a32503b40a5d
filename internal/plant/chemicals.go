package plant

import "math"

// Chemical holds the few properties the cascade model needs. Equilibrium
// ratios follow K(T) = K0·exp(A·(T − Tref)).
type Chemical struct {
	ID     string  `json:"id" yaml:"id"`
	K0     float64 `json:"k0" yaml:"k0"`         // K at the reference temperature
	A      float64 `json:"a" yaml:"a"`           // 1/K
	Cp     float64 `json:"cp" yaml:"cp"`         // heat capacity per mol
	Latent float64 `json:"latent" yaml:"latent"` // vaporization enthalpy per mol
}

// K returns the equilibrium ratio at temperature t.
func (c Chemical) K(t, tref float64) float64 {
	return c.K0 * math.Exp(c.A*(t-tref))
}

// bubblePoint solves Σ x_i·K_i(T) = 1 for T by Newton iteration on
// ln Σ x_i·K_i(T), which is convex and increasing in T. An empty liquid
// keeps the starting temperature.
func bubblePoint(chems []Chemical, liquid []float64, t, tref float64) float64 {
	total := 0.0
	for _, l := range liquid {
		total += l
	}
	if total <= 0 {
		return t
	}
	for iter := 0; iter < 50; iter++ {
		var sum, dsum float64
		for i, c := range chems {
			xk := liquid[i] / total * c.K(t, tref)
			sum += xk
			dsum += xk * c.A
		}
		if sum <= 0 || dsum == 0 {
			return t
		}
		dt := -math.Log(sum) * sum / dsum
		t += dt
		if math.Abs(dt) < 1e-12 {
			break
		}
	}
	return t
}
