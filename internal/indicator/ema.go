package indicator

// EMA is the exponential moving average with smoothing k = 2/(length+1).
//
// The seed is the simple average of the first fully-valid window of size
// length — not necessarily the window ending at length-1, so EMA composes
// over series that themselves start with missing values (MACD signal lines,
// indicators of indicators). After seeding, a missing input leaves the
// running state untouched and marks only that output element missing.
func EMA(v []float64, length int) []float64 {
	k := 2.0 / (float64(length) + 1.0)
	return smooth(v, length, func(state, x float64) float64 {
		return x*k + state*(1.0-k)
	})
}

// RMA is Wilder's smoothing: same seeding rule as EMA, recurrence
// rma[i] = (rma[i-1]*(length-1) + v[i]) / length. RSI and ATR build on it.
func RMA(v []float64, length int) []float64 {
	n := float64(length)
	return smooth(v, length, func(state, x float64) float64 {
		return (state*(n-1) + x) / n
	})
}

// smooth seeds from the first fully-valid window of size length and then
// applies step to each subsequent defined input.
func smooth(v []float64, length int, step func(state, x float64) float64) []float64 {
	out := AllMissing(len(v))
	if length <= 0 || length > len(v) {
		return out
	}

	// Find the first index where the trailing window of size length is
	// fully defined; seed with its simple average.
	sum := 0.0
	valid := 0
	seedAt := -1
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
			seedAt = i
			break
		}
	}
	if seedAt == -1 {
		return out
	}

	state := sum / float64(length)
	out[seedAt] = state
	for i := seedAt + 1; i < len(v); i++ {
		if !Defined(v[i]) {
			continue
		}
		state = step(state, v[i])
		out[i] = state
	}
	return out
}
