package indicator

import "math"

// TrueRange computes max(high-low, |high-prevClose|, |low-prevClose|).
// At index 0 the synthetic previous close is close[0] itself.
func TrueRange(high, low, close []float64) []float64 {
	n := len(close)
	out := AllMissing(n)
	for i := 0; i < n; i++ {
		prevClose := math.NaN()
		if i == 0 {
			prevClose = close[0]
		} else {
			prevClose = close[i-1]
		}
		if !Defined(high[i]) || !Defined(low[i]) || !Defined(prevClose) {
			continue
		}
		tr := high[i] - low[i]
		if d := math.Abs(high[i] - prevClose); d > tr {
			tr = d
		}
		if d := math.Abs(low[i] - prevClose); d > tr {
			tr = d
		}
		out[i] = tr
	}
	return out
}

// ATR is the Wilder-smoothed average true range.
func ATR(high, low, close []float64, length int) []float64 {
	return RMA(TrueRange(high, low, close), length)
}
