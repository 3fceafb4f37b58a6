package indicator

import "math"

// Stddev is the rolling sample standard deviation (denominator length-1,
// minimum 1). Defined only on fully-valid trailing windows.
func Stddev(v []float64, length int) []float64 {
	return rollingApply(v, length, func(i int, sum float64) float64 {
		mean := sum / float64(length)
		var ss float64
		for j := i - length + 1; j <= i; j++ {
			d := v[j] - mean
			ss += d * d
		}
		denom := float64(length - 1)
		if denom < 1 {
			denom = 1
		}
		return math.Sqrt(ss / denom)
	})
}

// ZScore is (v[i] - mean) / stddev over the trailing window; missing when
// the window's deviation is zero.
func ZScore(v []float64, length int) []float64 {
	mean := SMA(v, length)
	std := Stddev(v, length)
	out := AllMissing(len(v))
	for i := range v {
		if !Defined(mean[i]) || !Defined(std[i]) || std[i] == 0 {
			continue
		}
		out[i] = (v[i] - mean[i]) / std[i]
	}
	return out
}

// Bollinger is mean + mult*stddev over the trailing window. A zero mult
// returns the mean itself.
func Bollinger(v []float64, length int, mult float64) []float64 {
	mean := SMA(v, length)
	std := Stddev(v, length)
	out := AllMissing(len(v))
	for i := range v {
		if !Defined(mean[i]) || !Defined(std[i]) {
			continue
		}
		out[i] = mean[i] + mult*std[i]
	}
	return out
}
