package analysis

import (
	"math"
)

// Summary describes a numeric sample.
type Summary struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
	Std   float64 // sample standard deviation
}

// Describe summarizes the finite values of xs using Welford's update.
func Describe(xs []float64) Summary {
	s := Summary{Min: math.Inf(1), Max: math.Inf(-1)}
	var mean, m2 float64
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		s.Count++
		if x < s.Min {
			s.Min = x
		}
		if x > s.Max {
			s.Max = x
		}
		delta := x - mean
		mean += delta / float64(s.Count)
		m2 += delta * (x - mean)
	}
	if s.Count == 0 {
		return Summary{}
	}
	s.Mean = mean
	if s.Count > 1 {
		s.Std = math.Sqrt(m2 / float64(s.Count-1))
	}
	return s
}

// CompletePairs keeps only positions where both xs[i] and ys[i] are finite.
// Extra trailing values of the longer slice are ignored.
func CompletePairs(xs, ys []float64) ([]float64, []float64) {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	outX := make([]float64, 0, n)
	outY := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if isFinite(xs[i]) && isFinite(ys[i]) {
			outX = append(outX, xs[i])
			outY = append(outY, ys[i])
		}
	}
	return outX, outY
}

// Pearson returns the correlation coefficient of the complete pairs of xs and
// ys. ok is false with fewer than two pairs or when either side is constant.
func Pearson(xs, ys []float64) (r float64, ok bool) {
	xs, ys = CompletePairs(xs, ys)
	n := float64(len(xs))
	if n < 2 {
		return 0, false
	}
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	mx, my := sumX/n, sumY/n
	var sxx, syy, sxy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	denom := math.Sqrt(sxx * syy)
	if denom == 0 {
		return 0, false
	}
	r = sxy / denom
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r, true
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
