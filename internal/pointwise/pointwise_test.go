package pointwise

import (
	"context"
	"math"
	"testing"
	"time"

	"alert-systemv1/internal/candles"
	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/model"
)

var start = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

// sourceWith returns a memory source holding hourly bars with the given
// closes, plus the matching evaluation context ending at the last bar.
func sourceWith(closes []float64) (*candles.MemorySource, Context) {
	src := candles.NewMemorySource()
	bars := make([]model.Candle, len(closes))
	for i, c := range closes {
		bars[i] = model.Candle{
			Symbol:    "RELIANCE",
			Exchange:  "NSE",
			Timeframe: "1h",
			TS:        start.Add(time.Duration(i) * time.Hour),
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	src.Put(bars)
	return src, Context{
		Symbol:    "RELIANCE",
		Exchange:  "NSE",
		Timeframe: "1h",
		End:       start.Add(time.Duration(len(closes)) * time.Hour),
		Lookback:  100,
	}
}

func closeCall() *dsl.Call { return &dsl.Call{Name: "CLOSE"} }

func TestCompareMatchesOnLatestBar(t *testing.T) {
	src, sctx := sourceWith([]float64{100, 102, 104})
	eval := New(src, dsl.DefaultLimits())

	root := &dsl.Compare{Op: dsl.CmpGT, Left: closeCall(), Right: &dsl.Number{Value: 103}}
	out, err := eval.Evaluate(context.Background(), root, sctx, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !out.Matched {
		t.Error("close 104 > 103 should match")
	}
	if out.Snapshot["LHS"] != 104 || out.Snapshot["RHS"] != 103 {
		t.Errorf("snapshot = %v", out.Snapshot)
	}
	if !out.BarTime.Equal(start.Add(2 * time.Hour)) {
		t.Errorf("bar time = %v", out.BarTime)
	}
}

func TestMissingOperandIsFalseNotError(t *testing.T) {
	// Three bars cannot warm up a 10-bar SMA; the comparison quietly fails.
	src, sctx := sourceWith([]float64{100, 102, 104})
	eval := New(src, dsl.DefaultLimits())

	root := &dsl.Compare{
		Op:    dsl.CmpGT,
		Left:  &dsl.Call{Name: "SMA", Args: []dsl.Node{&dsl.Ident{Name: "close"}, &dsl.Number{Value: 10}}},
		Right: &dsl.Number{Value: 0},
	}
	out, err := eval.Evaluate(context.Background(), root, sctx, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Matched {
		t.Error("comparison over a missing operand must not match")
	}
	if !math.IsNaN(out.Snapshot["LHS"]) {
		t.Errorf("snapshot LHS = %v, want missing", out.Snapshot["LHS"])
	}
}

func TestCrossesAboveUsesNowAndPrev(t *testing.T) {
	root := &dsl.Event{Op: dsl.EventCrossesAbove, Left: closeCall(), Right: &dsl.Number{Value: 105}}

	src, sctx := sourceWith([]float64{100, 104, 106})
	eval := New(src, dsl.DefaultLimits())
	out, err := eval.Evaluate(context.Background(), root, sctx, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !out.Matched {
		t.Error("104 -> 106 should cross above 105")
	}

	// Already above on the previous bar: no edge, no match.
	src, sctx = sourceWith([]float64{100, 106, 107})
	out, err = New(src, dsl.DefaultLimits()).Evaluate(context.Background(), root, sctx, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if out.Matched {
		t.Error("106 -> 107 is not a crossing of 105")
	}
}

func TestMovingDownPercent(t *testing.T) {
	src, sctx := sourceWith([]float64{100, 104, 100})
	eval := New(src, dsl.DefaultLimits())

	root := &dsl.Event{Op: dsl.EventMovingDown, Left: closeCall(), Right: &dsl.Number{Value: 3}}
	out, err := eval.Evaluate(context.Background(), root, sctx, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !out.Matched {
		t.Error("104 -> 100 is a 3.8% drop, should match a 3% floor")
	}

	root.Right = &dsl.Number{Value: 5}
	out, _ = eval.Evaluate(context.Background(), root, sctx, nil)
	if out.Matched {
		t.Error("3.8% drop must not match a 5% floor")
	}
}

func TestLogicalEvaluatesAllChildren(t *testing.T) {
	src, sctx := sourceWith([]float64{100, 102, 104})
	eval := New(src, dsl.DefaultLimits())

	// First child is true; a structural error in the second must still
	// surface.
	root := &dsl.Logical{Op: dsl.LogicOr, Children: []dsl.Node{
		&dsl.Compare{Op: dsl.CmpGT, Left: closeCall(), Right: &dsl.Number{Value: 0}},
		&dsl.Compare{Op: dsl.CmpGT, Left: &dsl.Ident{Name: "no_such_metric"}, Right: &dsl.Number{Value: 0}},
	}}
	if _, err := eval.Evaluate(context.Background(), root, sctx, nil); !dsl.IsKind(err, dsl.KindUnknownIdentifier) {
		t.Errorf("got %v, want UNKNOWN_IDENTIFIER", err)
	}
}

func TestCustomIndicatorSubstitution(t *testing.T) {
	src, sctx := sourceWith([]float64{100, 102, 104})
	customs := map[string]CustomIndicator{
		"DOUBLE": {
			Params: []string{"x"},
			Body:   &dsl.Binary{Op: dsl.OpMul, Left: &dsl.Ident{Name: "x"}, Right: &dsl.Number{Value: 2}},
		},
	}
	eval := New(src, dsl.DefaultLimits(), WithCustomIndicators(customs))

	root := &dsl.Compare{
		Op:    dsl.CmpEQ,
		Left:  &dsl.Call{Name: "DOUBLE", Args: []dsl.Node{closeCall()}},
		Right: &dsl.Number{Value: 208},
	}
	out, err := eval.Evaluate(context.Background(), root, sctx, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !out.Matched {
		t.Errorf("DOUBLE(close) = %v, want 208", out.Snapshot["LHS"])
	}
}

func TestCustomIndicatorArityMismatch(t *testing.T) {
	src, sctx := sourceWith([]float64{100})
	customs := map[string]CustomIndicator{
		"DOUBLE": {Params: []string{"x"}, Body: &dsl.Ident{Name: "x"}},
	}
	eval := New(src, dsl.DefaultLimits(), WithCustomIndicators(customs))

	root := &dsl.Compare{
		Op:    dsl.CmpGT,
		Left:  &dsl.Call{Name: "DOUBLE", Args: []dsl.Node{closeCall(), closeCall()}},
		Right: &dsl.Number{Value: 0},
	}
	if _, err := eval.Evaluate(context.Background(), root, sctx, nil); !dsl.IsKind(err, dsl.KindArityMismatch) {
		t.Errorf("got %v, want ARITY_MISMATCH", err)
	}
}

func TestCustomIndicatorDepthLimit(t *testing.T) {
	src, sctx := sourceWith([]float64{100})
	customs := map[string]CustomIndicator{
		"LOOP": {Params: nil, Body: &dsl.Call{Name: "LOOP"}},
	}
	eval := New(src, dsl.DefaultLimits(), WithCustomIndicators(customs))

	root := &dsl.Compare{
		Op:    dsl.CmpGT,
		Left:  &dsl.Call{Name: "LOOP"},
		Right: &dsl.Number{Value: 0},
	}
	if _, err := eval.Evaluate(context.Background(), root, sctx, nil); !dsl.IsKind(err, dsl.KindLimitExceeded) {
		t.Errorf("got %v, want LIMIT_EXCEEDED", err)
	}
}

type stubPortfolio struct {
	metrics      map[string]float64
	lastSym      string
	lastExchange string
}

func (p *stubPortfolio) Metric(symbol, exchange, name string) (float64, bool) {
	p.lastSym, p.lastExchange = symbol, exchange
	v, ok := p.metrics[name]
	return v, ok
}

func TestIdentResolutionOrder(t *testing.T) {
	src, sctx := sourceWith([]float64{100})
	pf := &stubPortfolio{metrics: map[string]float64{"UNREALIZED_PNL_PCT": 7}}
	eval := New(src, dsl.DefaultLimits(), WithPortfolio(pf))

	// Bound parameters shadow portfolio metrics.
	root := &dsl.Compare{
		Op:    dsl.CmpEQ,
		Left:  &dsl.Ident{Name: "UNREALIZED_PNL_PCT"},
		Right: &dsl.Number{Value: 3},
	}
	out, err := eval.Evaluate(context.Background(), root, sctx,
		map[string]float64{"UNREALIZED_PNL_PCT": 3})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !out.Matched {
		t.Error("param binding should shadow the portfolio metric")
	}

	// Without the param the portfolio metric resolves.
	root.Right = &dsl.Number{Value: 7}
	out, err = eval.Evaluate(context.Background(), root, sctx, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !out.Matched {
		t.Error("portfolio metric should resolve")
	}
}

func TestPortfolioMetricBindsToEvaluatedInstrument(t *testing.T) {
	src, sctx := sourceWith([]float64{100})
	pf := &stubPortfolio{metrics: map[string]float64{"POSITION_QTY": 12}}
	eval := New(src, dsl.DefaultLimits(), WithPortfolio(pf))

	root := &dsl.Compare{
		Op:    dsl.CmpGT,
		Left:  &dsl.Ident{Name: "POSITION_QTY"},
		Right: &dsl.Number{Value: 0},
	}
	if _, err := eval.Evaluate(context.Background(), root, sctx, nil); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if pf.lastSym != sctx.Symbol || pf.lastExchange != sctx.Exchange {
		t.Errorf("metric resolved for %s:%s, want %s:%s",
			pf.lastExchange, pf.lastSym, sctx.Exchange, sctx.Symbol)
	}
}

func TestValidationRunsBeforeFetch(t *testing.T) {
	src, sctx := sourceWith([]float64{100})
	lim := dsl.DefaultLimits()
	lim.MaxNodes = 1
	eval := New(src, lim)

	root := &dsl.Compare{Op: dsl.CmpGT, Left: closeCall(), Right: &dsl.Number{Value: 0}}
	if _, err := eval.Evaluate(context.Background(), root, sctx, nil); !dsl.IsKind(err, dsl.KindLimitExceeded) {
		t.Errorf("got %v, want LIMIT_EXCEEDED", err)
	}
}

func TestBadContextTimeframe(t *testing.T) {
	src, sctx := sourceWith([]float64{100})
	sctx.Timeframe = "bogus"
	eval := New(src, dsl.DefaultLimits())

	root := &dsl.Compare{Op: dsl.CmpGT, Left: closeCall(), Right: &dsl.Number{Value: 0}}
	if _, err := eval.Evaluate(context.Background(), root, sctx, nil); !dsl.IsKind(err, dsl.KindUnsupportedTimeframe) {
		t.Errorf("got %v, want UNSUPPORTED_TIMEFRAME", err)
	}
}

func TestIndicatorOverExplicitTimeframe(t *testing.T) {
	// Hourly evaluation with the SMA pinned to daily bars.
	src, sctx := sourceWith([]float64{100, 101, 102})
	daily := make([]model.Candle, 5)
	day0 := time.Date(2023, 12, 28, 0, 0, 0, 0, time.UTC)
	for i := range daily {
		daily[i] = model.Candle{
			Symbol: "RELIANCE", Exchange: "NSE", Timeframe: "1d",
			TS:   day0.AddDate(0, 0, i),
			Open: 200, High: 210, Low: 190, Close: 200 + float64(i), Volume: 1000,
		}
	}
	src.Put(daily)
	eval := New(src, dsl.DefaultLimits())

	root := &dsl.Compare{
		Op: dsl.CmpGT,
		Left: &dsl.Call{Name: "SMA", Args: []dsl.Node{
			&dsl.Ident{Name: "close"}, &dsl.Number{Value: 3}, &dsl.Ident{Name: "1d"},
		}},
		Right: &dsl.Number{Value: 200},
	}
	out, err := eval.Evaluate(context.Background(), root, sctx, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// SMA(close,3,1d) over closes 200..204 ends at (202+203+204)/3 = 203.
	if !out.Matched {
		t.Errorf("snapshot = %v", out.Snapshot)
	}
	if out.Snapshot["LHS"] != 203 {
		t.Errorf("LHS = %v, want 203", out.Snapshot["LHS"])
	}
}
