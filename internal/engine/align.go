package engine

import (
	"time"

	"alert-systemv1/internal/indicator"
)

// alignmentMap maps each base-timeframe bar to the index of the most
// recently closed bar of a coarser timeframe: for base bar i it holds the
// largest j with tfCloses[j] <= baseCloses[i], or -1 when no such bar
// exists. A bar that closes after the base bar's close is never used — that
// would be look-ahead.
//
// Both inputs are ascending, so a single monotonic two-pointer scan suffices.
func alignmentMap(baseCloses, tfCloses []time.Time) []int {
	out := make([]int, len(baseCloses))
	j := -1
	for i, t := range baseCloses {
		for j+1 < len(tfCloses) && !tfCloses[j+1].After(t) {
			j++
		}
		out[i] = j
	}
	return out
}

// alignNum projects a coarser-timeframe numeric series onto the base index.
// Boolean series never need this: they are always computed base-indexed,
// after their numeric operands have been aligned.
func alignNum(series []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		if j >= 0 && j < len(series) {
			out[i] = series[j]
		} else {
			out[i] = indicator.Missing()
		}
	}
	return out
}
