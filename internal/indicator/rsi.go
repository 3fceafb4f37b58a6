package indicator

// RSI is the Relative Strength Index over closes, Wilder-smoothed.
// RSI is pinned to 100 when the average loss is exactly zero; the division
// never happens on a zero denominator.
func RSI(close []float64, length int) []float64 {
	n := len(close)
	out := AllMissing(n)
	if length <= 0 || n == 0 {
		return out
	}

	gains := AllMissing(n)
	losses := AllMissing(n)
	for i := 1; i < n; i++ {
		if !Defined(close[i]) || !Defined(close[i-1]) {
			continue
		}
		delta := close[i] - close[i-1]
		if delta > 0 {
			gains[i], losses[i] = delta, 0
		} else {
			gains[i], losses[i] = 0, -delta
		}
	}

	avgGain := RMA(gains, length)
	avgLoss := RMA(losses, length)
	for i := 0; i < n; i++ {
		if !Defined(avgGain[i]) || !Defined(avgLoss[i]) {
			continue
		}
		if avgLoss[i] == 0 {
			out[i] = 100
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}
