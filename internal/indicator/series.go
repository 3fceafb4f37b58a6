// Package indicator implements vectorized technical indicators over float64
// series. Every function returns a slice of the same length as its input,
// front-padded with missing values for bars where the indicator is not yet
// defined.
//
// A missing value (insufficient warm-up, undefined operation such as
// division by zero) is represented by NaN. Code must use Defined/Missing
// rather than comparing against NaN directly.
package indicator

import "math"

// Missing returns the sentinel for an undefined series element.
func Missing() float64 {
	return math.NaN()
}

// Defined reports whether a series element holds a real value.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

// AllMissing returns a series of n missing elements.
func AllMissing(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// Constant returns a series of n copies of v.
func Constant(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Lag shifts a series right by bars: out[i] = v[i-bars]. Elements with no
// predecessor are missing. Negative bars would look ahead and yield an
// all-missing series.
func Lag(v []float64, bars int) []float64 {
	out := AllMissing(len(v))
	if bars < 0 {
		return out
	}
	for i := bars; i < len(v); i++ {
		out[i] = v[i-bars]
	}
	return out
}

// ROC is the rate of change in percent over length bars:
// (v[i] - v[i-length]) / v[i-length] * 100.
func ROC(v []float64, length int) []float64 {
	out := AllMissing(len(v))
	if length <= 0 {
		return out
	}
	for i := length; i < len(v); i++ {
		prev := v[i-length]
		if !Defined(v[i]) || !Defined(prev) || prev == 0 {
			continue
		}
		out[i] = (v[i] - prev) / prev * 100
	}
	return out
}

// Ret is the one-bar simple return in percent, ROC with length 1.
func Ret(v []float64) []float64 {
	return ROC(v, 1)
}

// Crossover is true at i iff a was at or below b at i-1 and strictly above
// at i. Both series must be defined at i-1 and i.
func Crossover(a, b []float64) []bool {
	out := make([]bool, len(a))
	for i := 1; i < len(a) && i < len(b); i++ {
		if !Defined(a[i-1]) || !Defined(b[i-1]) || !Defined(a[i]) || !Defined(b[i]) {
			continue
		}
		out[i] = a[i-1] <= b[i-1] && a[i] > b[i]
	}
	return out
}

// Crossunder is the mirrored test: a at or above b at i-1, strictly below at i.
func Crossunder(a, b []float64) []bool {
	out := make([]bool, len(a))
	for i := 1; i < len(a) && i < len(b); i++ {
		if !Defined(a[i-1]) || !Defined(b[i-1]) || !Defined(a[i]) || !Defined(b[i]) {
			continue
		}
		out[i] = a[i-1] >= b[i-1] && a[i] < b[i]
	}
	return out
}
