package indicator

// MACD returns the MACD line EMA(fast) - EMA(slow), its signal line
// EMA(macd, signal), and the histogram macd - signal. The signal EMA seeds
// on the MACD line's first fully-valid window thanks to EMA's flexible
// seeding, so no special-casing is needed for the leading missing span.
func MACD(v []float64, fast, slow, signal int) (macd, signalLine, hist []float64) {
	n := len(v)
	emaFast := EMA(v, fast)
	emaSlow := EMA(v, slow)

	macd = AllMissing(n)
	for i := 0; i < n; i++ {
		if Defined(emaFast[i]) && Defined(emaSlow[i]) {
			macd[i] = emaFast[i] - emaSlow[i]
		}
	}

	signalLine = EMA(macd, signal)

	hist = AllMissing(n)
	for i := 0; i < n; i++ {
		if Defined(macd[i]) && Defined(signalLine[i]) {
			hist[i] = macd[i] - signalLine[i]
		}
	}
	return macd, signalLine, hist
}
