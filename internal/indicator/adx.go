package indicator

import "math"

// ADX is the Average Directional Index. Directional movement is smoothed
// with Wilder's running-sum recurrence (s = s - s/length + x, not RMA); the
// first ADX value at index 2*length is the simple average of the preceding
// length DX values, and RMA-style smoothing applies thereafter.
//
// Fewer than 2*length+1 bars cannot produce a single ADX value, so the whole
// output is missing. OHLC inputs are expected to be gap-free; a missing
// input bar also yields an all-missing output.
func ADX(high, low, close []float64, length int) []float64 {
	n := len(close)
	out := AllMissing(n)
	if length <= 0 || n < 2*length+1 {
		return out
	}
	for i := 0; i < n; i++ {
		if !Defined(high[i]) || !Defined(low[i]) || !Defined(close[i]) {
			return out
		}
	}

	tr := TrueRange(high, low, close)
	pdm := make([]float64, n)
	mdm := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			pdm[i] = up
		}
		if down > up && down > 0 {
			mdm[i] = down
		}
	}

	// Wilder running sums, seeded over indices [1, length].
	var trS, pdmS, mdmS float64
	for i := 1; i <= length; i++ {
		trS += tr[i]
		pdmS += pdm[i]
		mdmS += mdm[i]
	}

	dx := AllMissing(n)
	flen := float64(length)
	for i := length; i < n; i++ {
		if i > length {
			trS = trS - trS/flen + tr[i]
			pdmS = pdmS - pdmS/flen + pdm[i]
			mdmS = mdmS - mdmS/flen + mdm[i]
		}
		var diPlus, diMinus float64
		if trS != 0 {
			diPlus = 100 * pdmS / trS
			diMinus = 100 * mdmS / trS
		}
		if sum := diPlus + diMinus; sum != 0 {
			dx[i] = 100 * math.Abs(diPlus-diMinus) / sum
		} else {
			dx[i] = 0
		}
	}

	// Seed ADX at 2*length with the simple average of the last length DX
	// values, then Wilder-smooth.
	var dxSum float64
	for i := length + 1; i <= 2*length; i++ {
		dxSum += dx[i]
	}
	adx := dxSum / flen
	out[2*length] = adx
	for i := 2*length + 1; i < n; i++ {
		adx = (adx*(flen-1) + dx[i]) / flen
		out[i] = adx
	}
	return out
}
