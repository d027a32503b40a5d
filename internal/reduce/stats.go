package reduce

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// MeanStd returns the mean and population standard deviation of xs, or
// NaNs when xs is empty.
func MeanStd(xs []float64) [2]float64 {
	if len(xs) == 0 {
		return [2]float64{math.NaN(), math.NaN()}
	}
	mean, std := popMeanStd(xs)
	return [2]float64{mean, std}
}

func popMeanStd(xs []float64) (mean, std float64) {
	if len(xs) == 1 {
		return xs[0], 0
	}
	return stat.PopMeanStdDev(xs, nil)
}

// DivisionMeanStd propagates first-order uncertainty through z = x/y, with
// means = (x, y) and stds = (σx, σy):
//
//	σz = z·sqrt((σx/x)² + (σy/y)²)
//
// A zero mean contributes no relative error, and 0/0 is defined as [1, 0].
// Near-zero denominators are not clamped.
func DivisionMeanStd(means, stds [2]float64) [2]float64 {
	x, y := means[0], means[1]
	dx, dy := stds[0], stds[1]
	if x == 0 && y == 0 {
		return [2]float64{1, 0}
	}
	z := x / y
	var rx, ry float64
	if x != 0 {
		rx = dx / x
	}
	if y != 0 {
		ry = dy / y
	}
	return [2]float64{z, z * math.Sqrt(rx*rx+ry*ry)}
}

// Ratio divides two (mean, std) pairs.
func Ratio(x, y [2]float64) [2]float64 {
	return DivisionMeanStd([2]float64{x[0], y[0]}, [2]float64{x[1], y[1]})
}
