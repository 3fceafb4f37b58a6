package engine

import (
	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/indicator"
)

// evalBool evaluates a boolean node into a series indexed by the base
// timeframe's bars. Operands from coarser timeframes are aligned to the
// base index before combination; comparisons over missing values are false.
func (e *Engine) evalBool(n dsl.Node) ([]bool, error) {
	if err := e.checkDeadline(); err != nil {
		return nil, err
	}

	fp := e.fp(n)
	if s, ok := e.boolCache[fp]; ok {
		if e.met != nil {
			e.met.CacheHits.Inc()
		}
		return s, nil
	}

	s, err := e.computeBool(n)
	if err != nil {
		return nil, err
	}
	e.boolCache[fp] = s
	return s, nil
}

func (e *Engine) computeBool(n dsl.Node) ([]bool, error) {
	switch node := n.(type) {
	case *dsl.Compare:
		left, right, err := e.operandPair(node.Left, node.Right)
		if err != nil {
			return nil, err
		}
		return compareSeries(node.Op, left, right), nil

	case *dsl.Event:
		left, right, err := e.operandPair(node.Left, node.Right)
		if err != nil {
			return nil, err
		}
		return eventSeries(node.Op, left, right), nil

	case *dsl.Logical:
		out, err := e.evalBool(node.Children[0])
		if err != nil {
			return nil, err
		}
		acc := make([]bool, len(out))
		copy(acc, out)
		for _, c := range node.Children[1:] {
			s, err := e.evalBool(c)
			if err != nil {
				return nil, err
			}
			for i := range acc {
				if node.Op == dsl.LogicAnd {
					acc[i] = acc[i] && i < len(s) && s[i]
				} else {
					acc[i] = acc[i] || (i < len(s) && s[i])
				}
			}
		}
		return acc, nil

	case *dsl.Not:
		s, err := e.evalBool(node.Child)
		if err != nil {
			return nil, err
		}
		out := make([]bool, len(s))
		for i, v := range s {
			out[i] = !v
		}
		return out, nil

	case *dsl.Call:
		if !isBoolCall(node.Name) {
			return nil, dsl.Errorf(dsl.KindMalformedAst,
				"%s yields a series, not a boolean condition", node.Name)
		}
		shape, err := dsl.ShapeCall(node)
		if err != nil {
			return nil, err
		}
		left, right, err := e.operandPair(shape.Args[0], shape.Args[1])
		if err != nil {
			return nil, err
		}
		switch node.Name {
		case "CROSSOVER", "CROSSING_ABOVE":
			return indicator.Crossover(left, right), nil
		default:
			return indicator.Crossunder(left, right), nil
		}

	default:
		return nil, dsl.Errorf(dsl.KindMalformedAst, "numeric expression where a condition was expected")
	}
}

// operandPair evaluates two numeric operands, each in its own effective
// timeframe, and projects both onto the base index.
func (e *Engine) operandPair(l, r dsl.Node) ([]float64, []float64, error) {
	left, err := e.baseAligned(l)
	if err != nil {
		return nil, nil, err
	}
	right, err := e.baseAligned(r)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (e *Engine) baseAligned(n dsl.Node) ([]float64, error) {
	tf := e.tfOf(n)
	s, err := e.evalNum(n, tf)
	if err != nil {
		return nil, err
	}
	if tf == e.base {
		return s, nil
	}
	idx, err := e.alignIdx(tf)
	if err != nil {
		return nil, err
	}
	return alignNum(s, idx), nil
}

func compareSeries(op dsl.CmpOp, left, right []float64) []bool {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	out := make([]bool, n)
	for i := 0; i < n; i++ {
		l, r := left[i], right[i]
		if !indicator.Defined(l) || !indicator.Defined(r) {
			continue
		}
		switch op {
		case dsl.CmpGT:
			out[i] = l > r
		case dsl.CmpGTE:
			out[i] = l >= r
		case dsl.CmpLT:
			out[i] = l < r
		case dsl.CmpLTE:
			out[i] = l <= r
		case dsl.CmpEQ:
			out[i] = l == r
		case dsl.CmpNEQ:
			out[i] = l != r
		}
	}
	return out
}

// eventSeries computes bar-to-bar transition events. Crossings need both
// operands defined at i-1 and i. MOVING_UP/MOVING_DOWN fire when the left
// series rose (fell) and the move's magnitude in percent meets the right
// operand at the same bar.
func eventSeries(op dsl.EventOp, left, right []float64) []bool {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	out := make([]bool, n)
	for i := 1; i < n; i++ {
		l0, l1 := left[i-1], left[i]
		if !indicator.Defined(l0) || !indicator.Defined(l1) || !indicator.Defined(right[i]) {
			continue
		}
		switch op {
		case dsl.EventCrossesAbove:
			out[i] = indicator.Defined(right[i-1]) && l0 <= right[i-1] && l1 > right[i]
		case dsl.EventCrossesBelow:
			out[i] = indicator.Defined(right[i-1]) && l0 >= right[i-1] && l1 < right[i]
		case dsl.EventMovingUp:
			out[i] = l1 > l0 && l0 != 0 && (l1-l0)/l0*100 >= right[i]
		case dsl.EventMovingDown:
			out[i] = l1 < l0 && l0 != 0 && (l0-l1)/l0*100 >= right[i]
		}
	}
	return out
}
