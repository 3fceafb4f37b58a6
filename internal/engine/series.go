package engine

import (
	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/indicator"
)

// evalNum evaluates a numeric node into a series indexed by the bars of tf,
// memoized per (node fingerprint, timeframe).
func (e *Engine) evalNum(n dsl.Node, tf string) ([]float64, error) {
	if err := e.checkDeadline(); err != nil {
		return nil, err
	}

	key := seriesKey{fp: e.fp(n), tf: tf}
	if s, ok := e.numCache[key]; ok {
		if e.met != nil {
			e.met.CacheHits.Inc()
		}
		return s, nil
	}

	s, err := e.computeNum(n, tf)
	if err != nil {
		return nil, err
	}
	e.numCache[key] = s
	return s, nil
}

func (e *Engine) computeNum(n dsl.Node, tf string) ([]float64, error) {
	f, err := e.frame(tf)
	if err != nil {
		return nil, err
	}

	switch node := n.(type) {
	case *dsl.Number:
		return indicator.Constant(node.Value, f.Len()), nil

	case *dsl.Ident:
		if col, ok := f.Field(node.Name); ok {
			return col, nil
		}
		if v, ok := e.params[node.Name]; ok {
			return indicator.Constant(v, f.Len()), nil
		}
		return nil, dsl.Errorf(dsl.KindUnknownIdentifier, "unknown identifier %q", node.Name)

	case *dsl.Unary:
		child, err := e.evalNum(node.Child, tf)
		if err != nil {
			return nil, err
		}
		if node.Op == dsl.UnaryPlus {
			return child, nil
		}
		out := make([]float64, len(child))
		for i, v := range child {
			if indicator.Defined(v) {
				out[i] = -v
			} else {
				out[i] = indicator.Missing()
			}
		}
		return out, nil

	case *dsl.Binary:
		left, err := e.evalNum(node.Left, tf)
		if err != nil {
			return nil, err
		}
		right, err := e.evalNum(node.Right, tf)
		if err != nil {
			return nil, err
		}
		return applyBinary(node.Op, left, right), nil

	case *dsl.Call:
		return e.evalCall(node, tf)

	default:
		return nil, dsl.Errorf(dsl.KindMalformedAst, "boolean expression where a series was expected")
	}
}

func applyBinary(op dsl.BinaryOp, left, right []float64) []float64 {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	out := indicator.AllMissing(n)
	for i := 0; i < n; i++ {
		l, r := left[i], right[i]
		if !indicator.Defined(l) || !indicator.Defined(r) {
			continue
		}
		switch op {
		case dsl.OpAdd:
			out[i] = l + r
		case dsl.OpSub:
			out[i] = l - r
		case dsl.OpMul:
			out[i] = l * r
		case dsl.OpDiv:
			if r != 0 {
				out[i] = l / r
			}
		}
	}
	return out
}

// evalCall dispatches a built-in call. tf is the enclosing timeframe; an
// explicit trailing timeframe argument takes over for the whole call, as
// already resolved by the pre-pass.
func (e *Engine) evalCall(c *dsl.Call, tf string) ([]float64, error) {
	shape, err := dsl.ShapeCall(c)
	if err != nil {
		return nil, err
	}
	if shape.TF != "" {
		tf = shape.TF
	}
	f, err := e.frame(tf)
	if err != nil {
		return nil, err
	}
	callTF := tf
	return CallSeries(shape, f,
		func(n dsl.Node) ([]float64, error) { return e.evalNum(n, callTF) },
		e.scalarArg)
}

// scalarArg resolves an indicator parameter (length, multiplier) that must
// be constant across the window: a literal, a signed literal, or a bound
// parameter.
func (e *Engine) scalarArg(n dsl.Node) (float64, error) {
	switch node := n.(type) {
	case *dsl.Number:
		return node.Value, nil
	case *dsl.Unary:
		v, err := e.scalarArg(node.Child)
		if err != nil {
			return 0, err
		}
		if node.Op == dsl.UnaryMinus {
			return -v, nil
		}
		return v, nil
	case *dsl.Ident:
		if v, ok := e.params[node.Name]; ok {
			return v, nil
		}
		return 0, dsl.Errorf(dsl.KindUnknownIdentifier, "unknown identifier %q", node.Name)
	default:
		return 0, dsl.Errorf(dsl.KindMalformedAst, "indicator parameter must be a constant")
	}
}
