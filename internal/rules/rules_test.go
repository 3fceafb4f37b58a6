package rules

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"alert-systemv1/internal/candles"
	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/model"
	"alert-systemv1/internal/pointwise"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRule() *Rule {
	return &Rule{
		ID:          "close-above",
		Name:        "Close above threshold",
		Instruments: []Instrument{{Symbol: "RELIANCE", Exchange: "NSE"}},
		Timeframe:   "1h",
		Params:      map[string]float64{"threshold": 103},
		Cooldown:    time.Hour,
		Condition: &dsl.Compare{
			Op:    dsl.CmpGT,
			Left:  &dsl.Call{Name: "CLOSE"},
			Right: &dsl.Ident{Name: "threshold"},
		},
	}
}

func TestRuleJSONRoundTrip(t *testing.T) {
	orig := testRule()
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back Rule
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != orig.ID || back.Timeframe != orig.Timeframe {
		t.Errorf("identity fields lost: %+v", back)
	}
	if back.Cooldown != time.Hour {
		t.Errorf("cooldown = %v, want 1h", back.Cooldown)
	}
	if back.Params["threshold"] != 103 {
		t.Errorf("params = %v", back.Params)
	}
	if !dsl.Equal(back.Condition, orig.Condition) {
		t.Error("condition changed in round trip")
	}
}

func TestRuleUnmarshalRejectsBadCondition(t *testing.T) {
	raw := `{"id":"x","instruments":[{"symbol":"A","exchange":"NSE"}],"timeframe":"1h","condition":{"type":"NOPE"}}`
	var r Rule
	if err := json.Unmarshal([]byte(raw), &r); err == nil {
		t.Error("malformed condition accepted")
	}
}

func TestRuleValidate(t *testing.T) {
	lim := dsl.DefaultLimits()

	if err := testRule().Validate(lim); err != nil {
		t.Errorf("valid rule rejected: %v", err)
	}

	r := testRule()
	r.ID = ""
	if err := r.Validate(lim); err == nil {
		t.Error("empty id accepted")
	}

	r = testRule()
	r.Instruments = nil
	if err := r.Validate(lim); err == nil {
		t.Error("no instruments accepted")
	}

	r = testRule()
	r.Timeframe = "yearly"
	if err := r.Validate(lim); err == nil {
		t.Error("bad timeframe accepted")
	}

	r = testRule()
	r.Condition = nil
	if err := r.Validate(lim); err == nil {
		t.Error("nil condition accepted")
	}

	r = testRule()
	tight := lim
	tight.MaxNodes = 1
	if err := r.Validate(tight); err == nil {
		t.Error("over-limit condition accepted")
	}
}

func TestWatches(t *testing.T) {
	r := testRule()
	if !r.Watches("RELIANCE", "NSE") {
		t.Error("watched instrument not matched")
	}
	if r.Watches("RELIANCE", "BSE") || r.Watches("TCS", "NSE") {
		t.Error("unwatched instrument matched")
	}
}

func TestLibraryRulesAreValid(t *testing.T) {
	lim := dsl.DefaultLimits()
	for _, r := range Library() {
		// Library rules ship unbound; bind one instrument to validate.
		r.Instruments = []Instrument{{Symbol: "RELIANCE", Exchange: "NSE"}}
		if err := r.Validate(lim); err != nil {
			t.Errorf("library rule %s invalid: %v", r.ID, err)
		}
	}
}

// runnerFixture wires a runner over an in-memory candle source preloaded
// with rising hourly bars.
func runnerFixture(t *testing.T) (*Runner, model.Candle) {
	t.Helper()
	src := candles.NewMemorySource()
	start := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	bars := make([]model.Candle, 5)
	for i := range bars {
		bars[i] = model.Candle{
			Symbol: "RELIANCE", Exchange: "NSE", Timeframe: "1h",
			TS:   start.Add(time.Duration(i) * time.Hour),
			Open: 100, High: 106, Low: 99, Close: 100 + float64(i), Volume: 100,
		}
	}
	src.Put(bars)

	eval := pointwise.New(src, dsl.DefaultLimits())
	runner := NewRunner(eval, dsl.DefaultLimits(), discardLogger(), nil, 16)
	return runner, bars[len(bars)-1]
}

func TestRunnerFiresOnMatch(t *testing.T) {
	runner, lastBar := runnerFixture(t)
	if err := runner.Register(testRule()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if runner.Len() != 1 {
		t.Fatalf("len = %d", runner.Len())
	}

	runner.onBar(context.Background(), lastBar) // close 104 > 103

	select {
	case res := <-runner.Alerts():
		if res.RuleID != "close-above" || res.Symbol != "RELIANCE" {
			t.Errorf("alert = %+v", res)
		}
		if res.Snapshot["LHS"] != 104 {
			t.Errorf("snapshot = %v", res.Snapshot)
		}
	default:
		t.Fatal("no alert emitted")
	}
}

func TestRunnerCooldownSuppressesRefire(t *testing.T) {
	runner, lastBar := runnerFixture(t)
	if err := runner.Register(testRule()); err != nil {
		t.Fatalf("register: %v", err)
	}

	runner.onBar(context.Background(), lastBar)
	runner.onBar(context.Background(), lastBar)

	count := 0
	for {
		select {
		case <-runner.Alerts():
			count++
			continue
		default:
		}
		break
	}
	if count != 1 {
		t.Errorf("alerts = %d, want 1 (cooldown)", count)
	}
}

func TestRunnerIgnoresUnwatchedBars(t *testing.T) {
	runner, lastBar := runnerFixture(t)
	if err := runner.Register(testRule()); err != nil {
		t.Fatalf("register: %v", err)
	}

	other := lastBar
	other.Symbol = "TCS"
	runner.onBar(context.Background(), other)

	wrongTF := lastBar
	wrongTF.Timeframe = "5m"
	runner.onBar(context.Background(), wrongTF)

	select {
	case res := <-runner.Alerts():
		t.Errorf("unexpected alert: %+v", res)
	default:
	}
}

func TestRunnerRejectsInvalidRule(t *testing.T) {
	runner, _ := runnerFixture(t)
	r := testRule()
	r.Timeframe = "bogus"
	if err := runner.Register(r); err == nil {
		t.Error("invalid rule registered")
	}
}
