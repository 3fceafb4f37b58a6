package dsl

import (
	"strings"
	"testing"
)

// goldenCross is SMA(close,50) CROSSES_ABOVE SMA(close,200) on the daily
// timeframe; the workhorse fixture for round-trip and validation tests.
func goldenCross() Node {
	return &Event{
		Op: EventCrossesAbove,
		Left: &Call{Name: "SMA", Args: []Node{
			&Ident{Name: "close"}, &Number{Value: 50}, &Ident{Name: "1d"},
		}},
		Right: &Call{Name: "SMA", Args: []Node{
			&Ident{Name: "close"}, &Number{Value: 200}, &Ident{Name: "1d"},
		}},
	}
}

func TestWireRoundTrip(t *testing.T) {
	root := &Logical{
		Op: LogicAnd,
		Children: []Node{
			goldenCross(),
			&Compare{
				Op:   CmpGT,
				Left: &Call{Name: "RSI", Args: []Node{&Ident{Name: "close"}, &Number{Value: 14}}},
				Right: &Binary{
					Op:    OpMul,
					Left:  &Number{Value: 2},
					Right: &Unary{Op: UnaryMinus, Child: &Number{Value: -25}},
				},
			},
			&Not{Child: &Compare{
				Op:    CmpLTE,
				Left:  &Call{Name: "VOLUME", Args: nil},
				Right: &Number{Value: 0},
			}},
		},
	}

	data, err := Marshal(root)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !Equal(root, back) {
		t.Errorf("round trip changed the tree:\n%s", data)
	}

	data2, err := Marshal(back)
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if string(data) != string(data2) {
		t.Errorf("marshal is not canonical:\n%s\n%s", data, data2)
	}
}

func TestUnmarshalRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"missing type tag", `{"value":1}`},
		{"unknown type tag", `{"type":"TERNARY"}`},
		{"number without value", `{"type":"NUMBER"}`},
		{"ident without name", `{"type":"IDENT","name":""}`},
		{"call without name", `{"type":"CALL","args":[]}`},
		{"unknown cmp op", `{"type":"CMP","op":"SPACESHIP","left":{"type":"NUMBER","value":1},"right":{"type":"NUMBER","value":2}}`},
		{"cmp missing right", `{"type":"CMP","op":"GT","left":{"type":"NUMBER","value":1}}`},
		{"unknown event op", `{"type":"EVENT","op":"WIGGLES","left":{"type":"NUMBER","value":1},"right":{"type":"NUMBER","value":2}}`},
		{"logical without children", `{"type":"LOGICAL","op":"AND","children":[]}`},
		{"unknown logical op", `{"type":"LOGICAL","op":"XOR","children":[{"type":"NUMBER","value":1}]}`},
		{"unknown unary op", `{"type":"UNARY","op":"!","child":{"type":"NUMBER","value":1}}`},
		{"not without child", `{"type":"NOT"}`},
		{"bad nested arg", `{"type":"CALL","name":"SMA","args":[{"type":"NUMBER"}]}`},
		{"not json", `{{`},
	}
	for _, tc := range cases {
		if _, err := Unmarshal([]byte(tc.in)); !IsKind(err, KindMalformedAst) {
			t.Errorf("%s: got %v, want MALFORMED_AST", tc.name, err)
		}
	}
}

func TestValidateAcceptsTypicalRule(t *testing.T) {
	if err := Validate(goldenCross(), DefaultLimits()); err != nil {
		t.Fatalf("golden cross rejected: %v", err)
	}
}

func TestValidateNodeCount(t *testing.T) {
	// AND of many comparisons blows past a tiny node ceiling.
	var children []Node
	for i := 0; i < 10; i++ {
		children = append(children, &Compare{
			Op: CmpGT, Left: &Number{Value: float64(i)}, Right: &Number{Value: 0},
		})
	}
	root := &Logical{Op: LogicAnd, Children: children}

	lim := DefaultLimits()
	lim.MaxNodes = 5
	if err := Validate(root, lim); !IsKind(err, KindLimitExceeded) {
		t.Errorf("got %v, want LIMIT_EXCEEDED", err)
	}
	lim.MaxNodes = 256
	if err := Validate(root, lim); err != nil {
		t.Errorf("within limits but rejected: %v", err)
	}
}

func TestValidateCallDepth(t *testing.T) {
	var n Node = &Ident{Name: "close"}
	for i := 0; i < 20; i++ {
		n = &Call{Name: "ABS", Args: []Node{n}}
	}
	root := &Compare{Op: CmpGT, Left: n, Right: &Number{Value: 0}}

	lim := DefaultLimits()
	if err := Validate(root, lim); !IsKind(err, KindLimitExceeded) {
		t.Errorf("depth 20 with limit %d: got %v, want LIMIT_EXCEEDED", lim.MaxCallDepth, err)
	}
	lim.MaxCallDepth = 32
	if err := Validate(root, lim); err != nil {
		t.Errorf("depth 20 with limit 32 rejected: %v", err)
	}
}

func TestValidateTimeframeFanOut(t *testing.T) {
	mk := func(tf string) Node {
		return &Compare{
			Op:    CmpGT,
			Left:  &Call{Name: "SMA", Args: []Node{&Ident{Name: "close"}, &Number{Value: 20}, &Ident{Name: tf}}},
			Right: &Number{Value: 0},
		}
	}
	root := &Logical{Op: LogicAnd, Children: []Node{
		mk("5m"), mk("15m"), mk("1h"), mk("1d"), mk("1w"),
	}}
	if err := Validate(root, DefaultLimits()); !IsKind(err, KindLimitExceeded) {
		t.Errorf("5 timeframes with limit 4: got %v, want LIMIT_EXCEEDED", err)
	}
}

func TestValidateLookbackCap(t *testing.T) {
	root := &Compare{
		Op:    CmpGT,
		Left:  &Call{Name: "SMA", Args: []Node{&Ident{Name: "close"}, &Number{Value: 5000}}},
		Right: &Number{Value: 0},
	}
	err := Validate(root, DefaultLimits())
	if !IsKind(err, KindLimitExceeded) {
		t.Fatalf("got %v, want LIMIT_EXCEEDED", err)
	}
	if !strings.Contains(err.Error(), "lookback") {
		t.Errorf("error should name the lookback: %v", err)
	}
}

func TestValidateBadTimeframeToken(t *testing.T) {
	root := &Compare{
		Op:    CmpGT,
		Left:  &Call{Name: "PRICE", Args: []Node{&Ident{Name: "13x"}}},
		Right: &Number{Value: 0},
	}
	// "13x" is not a timeframe so PRICE sees one positional arg, which it
	// accepts as a source name; validation passes and resolution fails later.
	if err := Validate(root, DefaultLimits()); err != nil {
		t.Errorf("unexpected: %v", err)
	}
}

func TestValidateMistypedTrailingTimeframe(t *testing.T) {
	// SMA takes exactly two positional args; a third digit-leading ident
	// that fails to parse is a typoed timeframe token, not an arity problem.
	root := &Compare{
		Op: CmpGT,
		Left: &Call{Name: "SMA", Args: []Node{
			&Ident{Name: "close"}, &Number{Value: 5}, &Ident{Name: "13x"},
		}},
		Right: &Number{Value: 0},
	}
	err := Validate(root, DefaultLimits())
	if !IsKind(err, KindUnsupportedTimeframe) {
		t.Errorf("got %v, want UNSUPPORTED_TIMEFRAME", err)
	}

	// A non-numeric extra ident stays an evaluation-time arity error.
	root.Left = &Call{Name: "SMA", Args: []Node{
		&Ident{Name: "close"}, &Number{Value: 5}, &Ident{Name: "oops"},
	}}
	if err := Validate(root, DefaultLimits()); err != nil {
		t.Errorf("unexpected: %v", err)
	}
}

func TestShapeCallTrailingTF(t *testing.T) {
	c := &Call{Name: "SMA", Args: []Node{&Ident{Name: "close"}, &Number{Value: 20}, &Ident{Name: "1h"}}}
	shape, err := ShapeCall(c)
	if err != nil {
		t.Fatalf("shape: %v", err)
	}
	if shape.TF != "1h" {
		t.Errorf("tf = %q, want 1h", shape.TF)
	}
	if len(shape.Args) != 2 {
		t.Errorf("positional args = %d, want 2", len(shape.Args))
	}
}

func TestShapeCallArity(t *testing.T) {
	c := &Call{Name: "SMA", Args: []Node{&Ident{Name: "close"}}}
	if _, err := ShapeCall(c); !IsKind(err, KindArityMismatch) {
		t.Errorf("got %v, want ARITY_MISMATCH", err)
	}
	c = &Call{Name: "NO_SUCH_FN", Args: nil}
	if _, err := ShapeCall(c); !IsKind(err, KindUnknownFunction) {
		t.Errorf("got %v, want UNKNOWN_FUNCTION", err)
	}
}

func TestShapeCallSupertrendLeadingSource(t *testing.T) {
	with := &Call{Name: "SUPERTREND_LINE", Args: []Node{
		&Ident{Name: "hl2"}, &Number{Value: 10}, &Number{Value: 3},
	}}
	shape, err := ShapeCall(with)
	if err != nil {
		t.Fatalf("shape: %v", err)
	}
	if !shape.HasLeadingSource() {
		t.Error("3-arg supertrend should report a leading source")
	}
	if idx := shape.LengthArgIndices(); len(idx) != 1 || idx[0] != 1 {
		t.Errorf("length indices = %v, want [1]", idx)
	}

	without := &Call{Name: "SUPERTREND_LINE", Args: []Node{
		&Number{Value: 10}, &Number{Value: 3},
	}}
	shape, err = ShapeCall(without)
	if err != nil {
		t.Fatalf("shape: %v", err)
	}
	if shape.HasLeadingSource() {
		t.Error("2-arg supertrend should not report a leading source")
	}
	if idx := shape.LengthArgIndices(); len(idx) != 1 || idx[0] != 0 {
		t.Errorf("length indices = %v, want [0]", idx)
	}
}

func TestFingerprint(t *testing.T) {
	a := goldenCross()
	b := goldenCross()
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("identical trees must fingerprint equal")
	}

	c := goldenCross().(*Event)
	c.Op = EventCrossesBelow
	if Fingerprint(a) == Fingerprint(c) {
		t.Error("different ops must fingerprint apart")
	}

	// 20 as a literal vs 20 as the string "20" in an ident must differ.
	n1 := &Call{Name: "SMA", Args: []Node{&Ident{Name: "close"}, &Number{Value: 20}}}
	n2 := &Call{Name: "SMA", Args: []Node{&Ident{Name: "close"}, &Ident{Name: "20"}}}
	if Fingerprint(n1) == Fingerprint(n2) {
		t.Error("number and ident leaves must fingerprint apart")
	}
}

func TestParseTimeframe(t *testing.T) {
	cases := []struct {
		in   string
		mins int
	}{
		{"1m", 1}, {"5m", 5}, {"15m", 15}, {"1h", 60}, {"4h", 240},
		{"1d", 1440}, {"1w", 10080}, {"2w", 20160},
	}
	for _, tc := range cases {
		d, err := ParseTimeframe(tc.in)
		if err != nil {
			t.Errorf("%s: %v", tc.in, err)
			continue
		}
		if got := int(d.Minutes()); got != tc.mins {
			t.Errorf("%s = %d minutes, want %d", tc.in, got, tc.mins)
		}
	}

	for _, bad := range []string{"", "m", "1", "0m", "-1h", "1x", "close", "1 d"} {
		if _, err := ParseTimeframe(bad); !IsKind(err, KindUnsupportedTimeframe) {
			t.Errorf("%q: got %v, want UNSUPPORTED_TIMEFRAME", bad, err)
		}
	}
}

func TestWeeklyHelpers(t *testing.T) {
	if !IsWeekly("1w") || !IsWeekly("3w") {
		t.Error("1w/3w should be weekly")
	}
	if IsWeekly("1d") || IsWeekly("w") {
		t.Error("1d/w should not be weekly")
	}
	if got := WeeklySpan("2w"); got != 2 {
		t.Errorf("WeeklySpan(2w) = %d, want 2", got)
	}
	if got := WeeklySpan("1d"); got != 0 {
		t.Errorf("WeeklySpan(1d) = %d, want 0", got)
	}
}

func TestTimeframesCollector(t *testing.T) {
	root := &Logical{Op: LogicAnd, Children: []Node{
		&Compare{
			Op:    CmpGT,
			Left:  &Call{Name: "SMA", Args: []Node{&Ident{Name: "close"}, &Number{Value: 20}, &Ident{Name: "1h"}}},
			Right: &Call{Name: "SMA", Args: []Node{&Ident{Name: "close"}, &Number{Value: 20}, &Ident{Name: "1d"}}},
		},
		&Compare{
			Op:    CmpGT,
			Left:  &Call{Name: "EMA", Args: []Node{&Ident{Name: "close"}, &Number{Value: 9}, &Ident{Name: "1h"}}},
			Right: &Number{Value: 0},
		},
		// Custom call: its timeframe-looking idents still count.
		&Compare{
			Op:    CmpGT,
			Left:  &Call{Name: "MY_CUSTOM", Args: []Node{&Ident{Name: "close"}, &Ident{Name: "5m"}}},
			Right: &Number{Value: 0},
		},
	}}
	got := Timeframes(root)
	want := []string{"1h", "1d", "5m"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if tfs := Timeframes(goldenCross()); len(tfs) != 1 || tfs[0] != "1d" {
		t.Errorf("golden cross timeframes = %v, want [1d]", tfs)
	}
}

func TestIsBoolean(t *testing.T) {
	if IsBoolean(&Number{Value: 1}) || IsBoolean(&Call{Name: "SMA"}) {
		t.Error("numeric nodes reported boolean")
	}
	if !IsBoolean(&Not{Child: &Compare{}}) || !IsBoolean(goldenCross()) {
		t.Error("boolean nodes reported numeric")
	}
}
