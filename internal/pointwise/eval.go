package pointwise

import (
	"alert-systemv1/internal/candles"
	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/engine"
	"alert-systemv1/internal/indicator"
)

// evalBool decides a boolean node. Missing operands make the node false.
func (s *session) evalBool(n dsl.Node) (bool, error) {
	if err := s.checkDeadline(); err != nil {
		return false, err
	}

	switch node := n.(type) {
	case *dsl.Compare:
		l, err := s.evalValue(node.Left)
		if err != nil {
			return false, err
		}
		r, err := s.evalValue(node.Right)
		if err != nil {
			return false, err
		}
		s.record(l, r)
		if !l.Defined() || !r.Defined() {
			return false, nil
		}
		return compare(node.Op, l.Now, r.Now), nil

	case *dsl.Event:
		l, err := s.evalValue(node.Left)
		if err != nil {
			return false, err
		}
		r, err := s.evalValue(node.Right)
		if err != nil {
			return false, err
		}
		s.record(l, r)
		return event(node.Op, l, r), nil

	case *dsl.Logical:
		// Children are all evaluated so a structural error in any branch
		// surfaces regardless of the truth values before it.
		result := node.Op == dsl.LogicAnd
		for _, c := range node.Children {
			v, err := s.evalBool(c)
			if err != nil {
				return false, err
			}
			if node.Op == dsl.LogicAnd {
				result = result && v
			} else {
				result = result || v
			}
		}
		return result, nil

	case *dsl.Not:
		v, err := s.evalBool(node.Child)
		if err != nil {
			return false, err
		}
		return !v, nil

	case *dsl.Call:
		return s.evalBoolCall(node)

	default:
		return false, dsl.Errorf(dsl.KindMalformedAst, "numeric expression where a condition was expected")
	}
}

// evalBoolCall handles the pairwise edge-test builtins in condition
// position: a cross is an edge on the now/prev pair of both operands.
func (s *session) evalBoolCall(c *dsl.Call) (bool, error) {
	shape, err := dsl.ShapeCall(c)
	if err != nil {
		return false, err
	}
	switch c.Name {
	case "CROSSOVER", "CROSSUNDER", "CROSSING_ABOVE", "CROSSING_BELOW":
	default:
		return false, dsl.Errorf(dsl.KindMalformedAst, "%s yields a series, not a boolean condition", c.Name)
	}
	a, err := s.evalValue(shape.Args[0])
	if err != nil {
		return false, err
	}
	b, err := s.evalValue(shape.Args[1])
	if err != nil {
		return false, err
	}
	s.record(a, b)
	if !indicator.Defined(a.Prev) || !indicator.Defined(a.Now) ||
		!indicator.Defined(b.Prev) || !indicator.Defined(b.Now) {
		return false, nil
	}
	switch c.Name {
	case "CROSSOVER", "CROSSING_ABOVE":
		return a.Prev <= b.Prev && a.Now > b.Now, nil
	default:
		return a.Prev >= b.Prev && a.Now < b.Now, nil
	}
}

func compare(op dsl.CmpOp, l, r float64) bool {
	switch op {
	case dsl.CmpGT:
		return l > r
	case dsl.CmpGTE:
		return l >= r
	case dsl.CmpLT:
		return l < r
	case dsl.CmpLTE:
		return l <= r
	case dsl.CmpEQ:
		return l == r
	case dsl.CmpNEQ:
		return l != r
	}
	return false
}

func event(op dsl.EventOp, l, r SeriesValue) bool {
	if !indicator.Defined(l.Prev) || !indicator.Defined(l.Now) || !r.Defined() {
		return false
	}
	switch op {
	case dsl.EventCrossesAbove:
		return indicator.Defined(r.Prev) && l.Prev <= r.Prev && l.Now > r.Now
	case dsl.EventCrossesBelow:
		return indicator.Defined(r.Prev) && l.Prev >= r.Prev && l.Now < r.Now
	case dsl.EventMovingUp:
		return l.Now > l.Prev && l.Prev != 0 && (l.Now-l.Prev)/l.Prev*100 >= r.Now
	case dsl.EventMovingDown:
		return l.Now < l.Prev && l.Prev != 0 && (l.Prev-l.Now)/l.Prev*100 >= r.Now
	}
	return false
}

// evalValue reduces a numeric node to its now/prev pair. Operands of
// arithmetic may come from different timeframes since each side is reduced
// independently before combination.
func (s *session) evalValue(n dsl.Node) (SeriesValue, error) {
	if err := s.checkDeadline(); err != nil {
		return SeriesValue{}, err
	}

	switch node := n.(type) {
	case *dsl.Number:
		return SeriesValue{Now: node.Value, Prev: node.Value}, nil

	case *dsl.Ident:
		v, err := s.resolveIdent(node.Name)
		if err != nil {
			return SeriesValue{}, err
		}
		return SeriesValue{Now: v, Prev: v}, nil

	case *dsl.Unary:
		child, err := s.evalValue(node.Child)
		if err != nil {
			return SeriesValue{}, err
		}
		if node.Op == dsl.UnaryMinus {
			child.Now, child.Prev = negate(child.Now), negate(child.Prev)
		}
		return child, nil

	case *dsl.Binary:
		l, err := s.evalValue(node.Left)
		if err != nil {
			return SeriesValue{}, err
		}
		r, err := s.evalValue(node.Right)
		if err != nil {
			return SeriesValue{}, err
		}
		out := SeriesValue{
			Now:     binaryScalar(node.Op, l.Now, r.Now),
			Prev:    binaryScalar(node.Op, l.Prev, r.Prev),
			BarTime: l.BarTime,
		}
		if out.BarTime.IsZero() {
			out.BarTime = r.BarTime
		}
		return out, nil

	case *dsl.Call:
		return s.evalValueCall(node)

	default:
		return SeriesValue{}, dsl.Errorf(dsl.KindMalformedAst, "boolean expression where a value was expected")
	}
}

func negate(v float64) float64 {
	if indicator.Defined(v) {
		return -v
	}
	return v
}

func binaryScalar(op dsl.BinaryOp, l, r float64) float64 {
	if !indicator.Defined(l) || !indicator.Defined(r) {
		return indicator.Missing()
	}
	switch op {
	case dsl.OpAdd:
		return l + r
	case dsl.OpSub:
		return l - r
	case dsl.OpMul:
		return l * r
	case dsl.OpDiv:
		if r == 0 {
			return indicator.Missing()
		}
		return l / r
	}
	return indicator.Missing()
}

// evalValueCall reduces a function call: user-defined indicators first, then
// built-ins computed over the call's timeframe and sampled at the last two
// bars.
func (s *session) evalValueCall(c *dsl.Call) (SeriesValue, error) {
	if custom, ok := s.e.customs[c.Name]; ok {
		return s.evalCustom(c, custom)
	}

	shape, err := dsl.ShapeCall(c)
	if err != nil {
		return SeriesValue{}, err
	}
	tf := shape.TF
	if tf == "" {
		tf = s.sctx.Timeframe
	}
	f, err := s.frame(tf)
	if err != nil {
		return SeriesValue{}, err
	}
	series, err := engine.CallSeries(shape, f,
		func(n dsl.Node) ([]float64, error) { return s.evalSeries(n, tf) },
		s.scalar)
	if err != nil {
		return SeriesValue{}, err
	}
	return lastTwo(series, f), nil
}

// evalCustom substitutes the call-site argument expressions for the
// indicator's parameters and evaluates the body in place. Depth across
// nested custom indicators is bounded by the call-depth limit.
func (s *session) evalCustom(c *dsl.Call, custom CustomIndicator) (SeriesValue, error) {
	if len(c.Args) != len(custom.Params) {
		return SeriesValue{}, dsl.Errorf(dsl.KindArityMismatch,
			"%s expects %d arguments, got %d", c.Name, len(custom.Params), len(c.Args))
	}
	if s.depth++; s.depth > s.e.limits.MaxCallDepth {
		return SeriesValue{}, dsl.Errorf(dsl.KindLimitExceeded,
			"custom indicator nesting exceeds depth %d", s.e.limits.MaxCallDepth)
	}
	defer func() { s.depth-- }()

	binds := make(map[string]dsl.Node, len(custom.Params))
	for i, p := range custom.Params {
		binds[p] = c.Args[i]
	}
	return s.evalValue(substitute(custom.Body, binds))
}

// lastTwo samples a computed series at the evaluation bar and the one
// before it.
func lastTwo(series []float64, f *candles.Frame) SeriesValue {
	v := SeriesValue{Now: indicator.Missing(), Prev: indicator.Missing()}
	n := len(series)
	if n > 0 {
		v.Now = series[n-1]
	}
	if n > 1 {
		v.Prev = series[n-2]
	}
	if f.Len() > 0 {
		v.BarTime = f.Times[f.Len()-1]
	}
	return v
}

func (s *session) resolveIdent(name string) (float64, error) {
	if v, ok := s.params[name]; ok {
		return v, nil
	}
	if s.e.portfolio != nil {
		if v, ok := s.e.portfolio.Metric(s.sctx.Symbol, s.sctx.Exchange, name); ok {
			return v, nil
		}
	}
	return 0, dsl.Errorf(dsl.KindUnknownIdentifier, "unknown identifier %q", name)
}

func (s *session) scalar(n dsl.Node) (float64, error) {
	switch node := n.(type) {
	case *dsl.Number:
		return node.Value, nil
	case *dsl.Unary:
		v, err := s.scalar(node.Child)
		if err != nil {
			return 0, err
		}
		if node.Op == dsl.UnaryMinus {
			return -v, nil
		}
		return v, nil
	case *dsl.Ident:
		return s.resolveIdent(node.Name)
	default:
		return 0, dsl.Errorf(dsl.KindMalformedAst, "indicator parameter must be a constant")
	}
}
