package engine

import (
	"math"
	"testing"
	"time"

	"alert-systemv1/internal/candles"
	"alert-systemv1/internal/dsl"
)

// hourlyFrame builds n hourly bars starting at start with close prices
// closes[i]; open/high/low derive from the close.
func hourlyFrame(start time.Time, closes []float64) *candles.Frame {
	n := len(closes)
	f := &candles.Frame{
		Timeframe: "1h",
		Duration:  time.Hour,
		Times:     make([]time.Time, n),
		Open:      make([]float64, n),
		High:      make([]float64, n),
		Low:       make([]float64, n),
		Close:     make([]float64, n),
		Volume:    make([]float64, n),
	}
	for i, c := range closes {
		f.Times[i] = start.Add(time.Duration(i) * time.Hour)
		f.Open[i] = c - 0.5
		f.High[i] = c + 1
		f.Low[i] = c - 1
		f.Close[i] = c
		f.Volume[i] = 100
	}
	return f
}

func dailyFrame(start time.Time, closes []float64) *candles.Frame {
	n := len(closes)
	f := &candles.Frame{
		Timeframe: "1d",
		Duration:  24 * time.Hour,
		Times:     make([]time.Time, n),
		Open:      make([]float64, n),
		High:      make([]float64, n),
		Low:       make([]float64, n),
		Close:     make([]float64, n),
		Volume:    make([]float64, n),
	}
	for i, c := range closes {
		f.Times[i] = start.AddDate(0, 0, i)
		f.Open[i] = c - 1
		f.High[i] = c + 2
		f.Low[i] = c - 2
		f.Close[i] = c
		f.Volume[i] = 1000
	}
	return f
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func closeCall(tf string) *dsl.Call {
	if tf == "" {
		return &dsl.Call{Name: "CLOSE"}
	}
	return &dsl.Call{Name: "CLOSE", Args: []dsl.Node{&dsl.Ident{Name: tf}}}
}

func TestEvaluateCompareOnBase(t *testing.T) {
	frames := map[string]*candles.Frame{
		"1h": hourlyFrame(t0, []float64{100, 102, 104, 106}),
	}
	eng, err := New("1h", frames, dsl.DefaultLimits())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	root := &dsl.Compare{Op: dsl.CmpGT, Left: closeCall(""), Right: &dsl.Number{Value: 103}}
	res, err := eng.Evaluate(root)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := []bool{false, false, true, true}
	if len(res.Bool) != len(want) {
		t.Fatalf("len = %d, want %d", len(res.Bool), len(want))
	}
	for i := range want {
		if res.Bool[i] != want[i] {
			t.Errorf("bar %d = %v, want %v", i, res.Bool[i], want[i])
		}
	}
}

func TestEvaluateCrossesAbove(t *testing.T) {
	frames := map[string]*candles.Frame{
		"1h": hourlyFrame(t0, []float64{100, 104, 106, 103, 106}),
	}
	eng, _ := New("1h", frames, dsl.DefaultLimits())

	root := &dsl.Event{Op: dsl.EventCrossesAbove, Left: closeCall(""), Right: &dsl.Number{Value: 105}}
	res, err := eng.Evaluate(root)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := []bool{false, false, true, false, true}
	for i := range want {
		if res.Bool[i] != want[i] {
			t.Errorf("bar %d = %v, want %v", i, res.Bool[i], want[i])
		}
	}
}

func TestEvaluateMovingUpPercent(t *testing.T) {
	frames := map[string]*candles.Frame{
		"1h": hourlyFrame(t0, []float64{100, 101, 104}),
	}
	eng, _ := New("1h", frames, dsl.DefaultLimits())

	// Fires only when the bar-to-bar rise is at least 2 percent.
	root := &dsl.Event{Op: dsl.EventMovingUp, Left: closeCall(""), Right: &dsl.Number{Value: 2}}
	res, err := eng.Evaluate(root)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := []bool{false, false, true} // +1% then +2.97%
	for i := range want {
		if res.Bool[i] != want[i] {
			t.Errorf("bar %d = %v, want %v", i, res.Bool[i], want[i])
		}
	}
}

func TestCrossTimeframeAlignment(t *testing.T) {
	// 48 hourly bars across two days; the daily close is only visible to
	// hourly bars that close at or after the daily bar's close.
	hourly := make([]float64, 48)
	for i := range hourly {
		hourly[i] = 100
	}
	frames := map[string]*candles.Frame{
		"1h": hourlyFrame(t0, hourly),
		"1d": dailyFrame(t0, []float64{200, 300}),
	}
	eng, _ := New("1h", frames, dsl.DefaultLimits())

	// CLOSE(1d) > 150: false while no daily bar has closed, true afterwards.
	root := &dsl.Compare{Op: dsl.CmpGT, Left: closeCall("1d"), Right: &dsl.Number{Value: 150}}
	res, err := eng.Evaluate(root)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for i := 0; i < 23; i++ {
		if res.Bool[i] {
			t.Fatalf("bar %d sees an unclosed daily bar", i)
		}
	}
	for i := 23; i < 48; i++ {
		if !res.Bool[i] {
			t.Fatalf("bar %d should see the closed daily bar", i)
		}
	}
}

func TestNumericResultAlignedToBase(t *testing.T) {
	hourly := make([]float64, 48)
	for i := range hourly {
		hourly[i] = 100
	}
	frames := map[string]*candles.Frame{
		"1h": hourlyFrame(t0, hourly),
		"1d": dailyFrame(t0, []float64{200, 300}),
	}
	eng, _ := New("1h", frames, dsl.DefaultLimits())

	res, err := eng.Evaluate(closeCall("1d"))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Num) != 48 {
		t.Fatalf("len = %d, want 48", len(res.Num))
	}
	if !math.IsNaN(res.Num[0]) {
		t.Errorf("bar 0 = %v, want missing", res.Num[0])
	}
	if res.Num[23] != 200 {
		t.Errorf("bar 23 = %v, want 200", res.Num[23])
	}
	if res.Num[47] != 300 {
		t.Errorf("bar 47 = %v, want 300", res.Num[47])
	}
}

func TestAlignmentMapSentinel(t *testing.T) {
	base := []time.Time{t0.Add(1 * time.Hour), t0.Add(2 * time.Hour), t0.Add(25 * time.Hour)}
	coarse := []time.Time{t0.Add(24 * time.Hour)}
	idx := alignmentMap(base, coarse)
	want := []int{-1, -1, 0}
	for i := range want {
		if idx[i] != want[i] {
			t.Errorf("idx[%d] = %d, want %d", i, idx[i], want[i])
		}
	}
}

func TestMixedTimeframeRejected(t *testing.T) {
	hourly := make([]float64, 48)
	for i := range hourly {
		hourly[i] = 100
	}
	frames := map[string]*candles.Frame{
		"1h": hourlyFrame(t0, hourly),
		"1d": dailyFrame(t0, []float64{200, 300}),
	}
	eng, _ := New("1h", frames, dsl.DefaultLimits())

	// Arithmetic across pinned timeframes never goes through alignment.
	root := &dsl.Compare{
		Op: dsl.CmpGT,
		Left: &dsl.Binary{
			Op:    dsl.OpAdd,
			Left:  closeCall("1h"),
			Right: closeCall("1d"),
		},
		Right: &dsl.Number{Value: 0},
	}
	if _, err := eng.Evaluate(root); !dsl.IsKind(err, dsl.KindMixedTimeframe) {
		t.Errorf("got %v, want MIXED_TIMEFRAME", err)
	}

	// Comparisons across timeframes are fine; they align at the base index.
	ok := &dsl.Compare{Op: dsl.CmpGT, Left: closeCall("1h"), Right: closeCall("1d")}
	if _, err := eng.Evaluate(ok); err != nil {
		t.Errorf("cross-timeframe compare rejected: %v", err)
	}
}

func TestLowerTimeframeRejected(t *testing.T) {
	frames := map[string]*candles.Frame{
		"1d": dailyFrame(t0, []float64{100, 101}),
	}
	eng, _ := New("1d", frames, dsl.DefaultLimits())

	root := &dsl.Compare{Op: dsl.CmpGT, Left: closeCall("1h"), Right: &dsl.Number{Value: 0}}
	if _, err := eng.Evaluate(root); !dsl.IsKind(err, dsl.KindUnsupportedLowerTimeframe) {
		t.Errorf("got %v, want UNSUPPORTED_LOWER_TIMEFRAME", err)
	}
}

func TestMissingFrameRejected(t *testing.T) {
	frames := map[string]*candles.Frame{
		"1h": hourlyFrame(t0, []float64{100}),
	}
	eng, _ := New("1h", frames, dsl.DefaultLimits())

	root := &dsl.Compare{Op: dsl.CmpGT, Left: closeCall("1d"), Right: &dsl.Number{Value: 0}}
	if _, err := eng.Evaluate(root); !dsl.IsKind(err, dsl.KindUnsupportedTimeframe) {
		t.Errorf("got %v, want UNSUPPORTED_TIMEFRAME", err)
	}

	if _, err := New("4h", frames, dsl.DefaultLimits()); !dsl.IsKind(err, dsl.KindUnsupportedTimeframe) {
		t.Errorf("missing base frame: got %v", err)
	}
}

func TestLimitExceededFailsFast(t *testing.T) {
	frames := map[string]*candles.Frame{
		"1h": hourlyFrame(t0, []float64{100, 101, 102}),
	}
	lim := dsl.DefaultLimits()
	lim.MaxNodes = 3
	eng, _ := New("1h", frames, lim)

	root := &dsl.Logical{Op: dsl.LogicAnd, Children: []dsl.Node{
		&dsl.Compare{Op: dsl.CmpGT, Left: closeCall(""), Right: &dsl.Number{Value: 0}},
		&dsl.Compare{Op: dsl.CmpLT, Left: closeCall(""), Right: &dsl.Number{Value: 1e9}},
	}}
	if _, err := eng.Evaluate(root); !dsl.IsKind(err, dsl.KindLimitExceeded) {
		t.Errorf("got %v, want LIMIT_EXCEEDED", err)
	}
}

func TestEvaluationTimeout(t *testing.T) {
	frames := map[string]*candles.Frame{
		"1h": hourlyFrame(t0, []float64{100, 101, 102}),
	}
	lim := dsl.DefaultLimits()
	lim.Timeout = time.Nanosecond
	eng, _ := New("1h", frames, lim)

	root := &dsl.Compare{Op: dsl.CmpGT, Left: closeCall(""), Right: &dsl.Number{Value: 0}}
	if _, err := eng.Evaluate(root); !dsl.IsKind(err, dsl.KindEvaluationTimeout) {
		t.Errorf("got %v, want EVALUATION_TIMEOUT", err)
	}
}

func TestParamsResolveAsIdentifiers(t *testing.T) {
	frames := map[string]*candles.Frame{
		"1h": hourlyFrame(t0, []float64{100, 101, 102, 103, 104}),
	}
	eng, _ := New("1h", frames, dsl.DefaultLimits(),
		WithParams(map[string]float64{"length": 3, "threshold": 101}))

	root := &dsl.Compare{
		Op:    dsl.CmpGT,
		Left:  &dsl.Call{Name: "SMA", Args: []dsl.Node{&dsl.Ident{Name: "close"}, &dsl.Ident{Name: "length"}}},
		Right: &dsl.Ident{Name: "threshold"},
	}
	res, err := eng.Evaluate(root)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// SMA(close,3) = [_, _, 101, 102, 103]
	want := []bool{false, false, false, true, true}
	for i := range want {
		if res.Bool[i] != want[i] {
			t.Errorf("bar %d = %v, want %v", i, res.Bool[i], want[i])
		}
	}
}

func TestUnknownIdentifier(t *testing.T) {
	frames := map[string]*candles.Frame{
		"1h": hourlyFrame(t0, []float64{100}),
	}
	eng, _ := New("1h", frames, dsl.DefaultLimits())

	root := &dsl.Compare{Op: dsl.CmpGT, Left: &dsl.Ident{Name: "mystery"}, Right: &dsl.Number{Value: 0}}
	if _, err := eng.Evaluate(root); !dsl.IsKind(err, dsl.KindUnknownIdentifier) {
		t.Errorf("got %v, want UNKNOWN_IDENTIFIER", err)
	}
}

func TestSubExpressionMemoization(t *testing.T) {
	frames := map[string]*candles.Frame{
		"1h": hourlyFrame(t0, []float64{100, 101, 102, 103, 104, 105}),
	}
	eng, _ := New("1h", frames, dsl.DefaultLimits())

	sma := func() dsl.Node {
		return &dsl.Call{Name: "SMA", Args: []dsl.Node{&dsl.Ident{Name: "close"}, &dsl.Number{Value: 3}}}
	}
	root := &dsl.Logical{Op: dsl.LogicAnd, Children: []dsl.Node{
		&dsl.Compare{Op: dsl.CmpGT, Left: sma(), Right: &dsl.Number{Value: 0}},
		&dsl.Compare{Op: dsl.CmpLT, Left: sma(), Right: &dsl.Number{Value: 1e9}},
	}}
	if _, err := eng.Evaluate(root); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	// Both comparisons share one SMA series: the cache keys by structural
	// fingerprint, so the duplicated subtree occupies a single entry.
	key := seriesKey{fp: dsl.Fingerprint(sma()), tf: "1h"}
	if _, ok := eng.numCache[key]; !ok {
		t.Error("shared sub-expression not memoized")
	}
}

func TestCrossoverBuiltinAsCondition(t *testing.T) {
	frames := map[string]*candles.Frame{
		"1h": hourlyFrame(t0, []float64{100, 104, 106}),
	}
	eng, _ := New("1h", frames, dsl.DefaultLimits())

	root := &dsl.Call{Name: "CROSSOVER", Args: []dsl.Node{closeCall(""), &dsl.Number{Value: 105}}}
	res, err := eng.Evaluate(root)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	want := []bool{false, false, true}
	for i := range want {
		if res.Bool[i] != want[i] {
			t.Errorf("bar %d = %v, want %v", i, res.Bool[i], want[i])
		}
	}
}

func TestCausalityUnderTruncation(t *testing.T) {
	// Evaluating on a truncated window must reproduce the full window's
	// prefix: no value may depend on bars that close later.
	closes := []float64{100, 102, 101, 105, 104, 108, 107, 110, 109, 112}
	full := hourlyFrame(t0, closes)

	root := &dsl.Compare{
		Op:    dsl.CmpGT,
		Left:  closeCall(""),
		Right: &dsl.Call{Name: "SMA", Args: []dsl.Node{&dsl.Ident{Name: "close"}, &dsl.Number{Value: 3}}},
	}

	engFull, _ := New("1h", map[string]*candles.Frame{"1h": full}, dsl.DefaultLimits())
	fullRes, err := engFull.Evaluate(root)
	if err != nil {
		t.Fatalf("evaluate full: %v", err)
	}

	for n := 3; n <= len(closes); n++ {
		engN, _ := New("1h", map[string]*candles.Frame{"1h": full.Truncate(n)}, dsl.DefaultLimits())
		res, err := engN.Evaluate(root)
		if err != nil {
			t.Fatalf("evaluate %d bars: %v", n, err)
		}
		for i := 0; i < n; i++ {
			if res.Bool[i] != fullRes.Bool[i] {
				t.Fatalf("window %d bar %d = %v, full window says %v", n, i, res.Bool[i], fullRes.Bool[i])
			}
		}
	}
}

func TestAlignmentMapSelfIsIdentity(t *testing.T) {
	closes := []time.Time{t0.Add(1 * time.Hour), t0.Add(2 * time.Hour), t0.Add(3 * time.Hour)}
	idx := alignmentMap(closes, closes)
	for i := range closes {
		if idx[i] != i {
			t.Errorf("idx[%d] = %d, want %d", i, idx[i], i)
		}
	}
}
