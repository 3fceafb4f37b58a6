package indicator

// Supertrend computes the supertrend line and direction series.
//
// src defaults to (high+low)/2 when nil. The final bands ratchet: the upper
// band only moves down unless the prior close broke above it, the lower band
// only moves up unless the prior close broke below it. Direction starts at
// +1 (up) on the first bar where ATR is defined and flips when the close
// crosses the band opposite the current direction. The line is the lower
// band while direction is up and the upper band while down.
func Supertrend(high, low, close, src []float64, length int, mult float64) (line, dir []float64) {
	n := len(close)
	line = AllMissing(n)
	dir = AllMissing(n)
	if length <= 0 || n == 0 {
		return line, dir
	}

	if src == nil {
		src = make([]float64, n)
		for i := 0; i < n; i++ {
			if Defined(high[i]) && Defined(low[i]) {
				src[i] = (high[i] + low[i]) / 2
			} else {
				src[i] = Missing()
			}
		}
	}

	atr := ATR(high, low, close, length)

	started := false
	var finalUpper, finalLower, d float64
	for i := 0; i < n; i++ {
		if !Defined(atr[i]) || !Defined(src[i]) || !Defined(close[i]) {
			continue
		}
		basicUpper := src[i] + mult*atr[i]
		basicLower := src[i] - mult*atr[i]

		if !started {
			finalUpper, finalLower = basicUpper, basicLower
			d = 1
			started = true
		} else {
			prevClose := close[i-1]
			if basicUpper < finalUpper || (Defined(prevClose) && prevClose > finalUpper) {
				finalUpper = basicUpper
			}
			if basicLower > finalLower || (Defined(prevClose) && prevClose < finalLower) {
				finalLower = basicLower
			}
			if d > 0 && close[i] < finalLower {
				d = -1
			} else if d < 0 && close[i] > finalUpper {
				d = 1
			}
		}

		dir[i] = d
		if d > 0 {
			line[i] = finalLower
		} else {
			line[i] = finalUpper
		}
	}
	return line, dir
}
