package indicator

import "time"

// OBV is on-balance volume: cumulative, adding volume when the price rises,
// subtracting when it falls, unchanged when equal. A missing input at i
// marks obv[i] missing but never resets the running total; the next defined
// bar compares against the last defined price.
func OBV(price, volume []float64) []float64 {
	n := len(price)
	out := AllMissing(n)
	total := 0.0
	prev := Missing()
	for i := 0; i < n; i++ {
		if !Defined(price[i]) || !Defined(volume[i]) {
			if Defined(price[i]) {
				prev = price[i]
			}
			continue
		}
		if Defined(prev) {
			switch {
			case price[i] > prev:
				total += volume[i]
			case price[i] < prev:
				total -= volume[i]
			}
		}
		out[i] = total
		prev = price[i]
	}
	return out
}

// VWAP is the cumulative volume-weighted average price, resetting at each
// UTC calendar-day boundary inferred from the bar timestamps. Missing inputs
// mark the output missing without disturbing the running sums.
func VWAP(price, volume []float64, times []time.Time) []float64 {
	n := len(price)
	out := AllMissing(n)
	var cumPV, cumV float64
	var day int
	started := false
	for i := 0; i < n && i < len(times); i++ {
		d := times[i].UTC().Year()*1000 + times[i].UTC().YearDay()
		if !started || d != day {
			cumPV, cumV = 0, 0
			day = d
			started = true
		}
		if !Defined(price[i]) || !Defined(volume[i]) {
			continue
		}
		cumPV += price[i] * volume[i]
		cumV += volume[i]
		if cumV != 0 {
			out[i] = cumPV / cumV
		}
	}
	return out
}
