package plot

import (
	"fmt"
	"math"
)

// Sample is one (x, y) observation.
type Sample struct {
	X float64
	Y float64
}

// Zip pairs xs and ys into samples, truncating to the shorter slice.
func Zip(xs, ys []float64) []Sample {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	out := make([]Sample, n)
	for i := 0; i < n; i++ {
		out[i] = Sample{X: xs[i], Y: ys[i]}
	}
	return out
}

// Regression is an ordinary least-squares line y = Slope*x + Intercept.
type Regression struct {
	Slope     float64
	Intercept float64
	N         int
}

// At evaluates the fitted line at x.
func (r Regression) At(x float64) float64 {
	return r.Slope*x + r.Intercept
}

// String renders the fitted equation, e.g. "y = -2.0000x + 7.0000".
func (r Regression) String() string {
	sign := "+"
	b := r.Intercept
	if b < 0 {
		sign = "-"
		b = -b
	}
	return fmt.Sprintf("y = %.4fx %s %.4f", r.Slope, sign, b)
}

// Fit computes the closed-form single-variable OLS fit over samples.
// Means are taken first, as running means so large coordinates cannot
// overflow a sum, and deviations are summed in input order; the same samples
// always yield bit-identical coefficients.
func Fit(samples []Sample) (Regression, error) {
	n := len(samples)
	if n < 2 {
		return Regression{}, &InsufficientDataError{N: n}
	}
	var meanX, meanY float64
	for i, s := range samples {
		if !finite(s.X) || !finite(s.Y) {
			return Regression{}, &DegenerateInputError{Reason: fmt.Sprintf("sample %d is not finite (%v, %v)", i, s.X, s.Y)}
		}
		k := float64(i + 1)
		meanX += (s.X - meanX) / k
		meanY += (s.Y - meanY) / k
	}

	var sxx, sxy float64
	for _, s := range samples {
		dx := s.X - meanX
		sxx += dx * dx
		sxy += dx * (s.Y - meanY)
	}
	if sxx == 0 {
		return Regression{}, &DegenerateInputError{Reason: "x has zero variance"}
	}
	if !finite(sxx) || !finite(sxy) {
		return Regression{}, &DegenerateInputError{Reason: "coordinates too large to fit"}
	}
	slope := sxy / sxx
	intercept := meanY - slope*meanX
	if !finite(slope) || !finite(intercept) {
		return Regression{}, &DegenerateInputError{Reason: fmt.Sprintf("fit is not finite (slope %v, intercept %v)", slope, intercept)}
	}
	return Regression{Slope: slope, Intercept: intercept, N: n}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
