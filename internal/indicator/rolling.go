package indicator

// rollingValid computes, for each index, whether the trailing window
// [i-length+1, i] is fully in range with no missing values, together with the
// running sum of the window. fn receives (i, sum) only for valid windows.
func rollingApply(v []float64, length int, fn func(i int, sum float64) float64) []float64 {
	out := AllMissing(len(v))
	if length <= 0 || length > len(v) {
		return out
	}
	sum := 0.0
	valid := 0
	for i := range v {
		if Defined(v[i]) {
			sum += v[i]
			valid++
		}
		if i >= length {
			if old := v[i-length]; Defined(old) {
				sum -= old
				valid--
			}
		}
		if i >= length-1 && valid == length {
			out[i] = fn(i, sum)
		}
	}
	return out
}

// SMA is the simple moving average over a trailing window. Defined at i iff
// the window [i-length+1, i] is fully in range and contains no missing values.
func SMA(v []float64, length int) []float64 {
	return rollingApply(v, length, func(_ int, sum float64) float64 {
		return sum / float64(length)
	})
}

// RollingSum is the trailing window sum with SMA's validity rule.
func RollingSum(v []float64, length int) []float64 {
	return rollingApply(v, length, func(_ int, sum float64) float64 {
		return sum
	})
}

// RollingMax is the trailing window maximum.
func RollingMax(v []float64, length int) []float64 {
	return rollingApply(v, length, func(i int, _ float64) float64 {
		m := v[i]
		for j := i - length + 1; j < i; j++ {
			if v[j] > m {
				m = v[j]
			}
		}
		return m
	})
}

// RollingMin is the trailing window minimum.
func RollingMin(v []float64, length int) []float64 {
	return rollingApply(v, length, func(i int, _ float64) float64 {
		m := v[i]
		for j := i - length + 1; j < i; j++ {
			if v[j] < m {
				m = v[j]
			}
		}
		return m
	})
}
