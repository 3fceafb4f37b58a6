package engine

import (
	"alert-systemv1/internal/dsl"
)

// resolveTimeframes walks the AST once before any series is computed,
// assigning every numeric node its effective timeframe and rejecting
// invalid combinations:
//
//   - a Call with an explicit timeframe argument evaluates its whole
//     subtree in that timeframe; an argument already pinned to a different
//     timeframe is a MIXED_TIMEFRAME error;
//   - arithmetic (Binary/Unary) requires both operands in one timeframe —
//     combining a 1h series with a 1d series without going through
//     alignment is rejected;
//   - comparisons, events and logical operators may span timeframes; their
//     operands are aligned to the base index before combination;
//   - a timeframe finer than the base is rejected as
//     UNSUPPORTED_LOWER_TIMEFRAME, and every referenced timeframe must have
//     a preloaded frame.
func (e *Engine) resolveTimeframes(root dsl.Node) error {
	e.effTF = make(map[dsl.Node]string)
	_, err := e.resolveTF(root)
	return err
}

// resolveTF returns the timeframe a numeric subtree is pinned to, or ""
// when it is timeframe-agnostic (literals, parameters).
func (e *Engine) resolveTF(n dsl.Node) (string, error) {
	switch node := n.(type) {
	case *dsl.Number, *dsl.Ident:
		return "", nil

	case *dsl.Call:
		return e.resolveCallTF(node)

	case *dsl.Unary:
		tf, err := e.resolveTF(node.Child)
		if err != nil {
			return "", err
		}
		e.effTF[n] = tf
		return tf, nil

	case *dsl.Binary:
		ltf, err := e.resolveTF(node.Left)
		if err != nil {
			return "", err
		}
		rtf, err := e.resolveTF(node.Right)
		if err != nil {
			return "", err
		}
		tf, err := mergeTF(ltf, rtf)
		if err != nil {
			return "", err
		}
		e.effTF[n] = tf
		return tf, nil

	case *dsl.Compare:
		if _, err := e.resolveTF(node.Left); err != nil {
			return "", err
		}
		_, err := e.resolveTF(node.Right)
		return "", err

	case *dsl.Event:
		if _, err := e.resolveTF(node.Left); err != nil {
			return "", err
		}
		_, err := e.resolveTF(node.Right)
		return "", err

	case *dsl.Logical:
		for _, c := range node.Children {
			if _, err := e.resolveTF(c); err != nil {
				return "", err
			}
		}
		return "", nil

	case *dsl.Not:
		_, err := e.resolveTF(node.Child)
		return "", err

	default:
		return "", dsl.Errorf(dsl.KindMalformedAst, "unknown node variant %T", n)
	}
}

func (e *Engine) resolveCallTF(c *dsl.Call) (string, error) {
	shape, err := dsl.ShapeCall(c)
	if err != nil {
		return "", err
	}

	// The boolean edge tests combine their operands at the base index like
	// comparisons do; their operands resolve independently.
	if isBoolCall(c.Name) {
		for _, a := range shape.Args {
			if _, err := e.resolveTF(a); err != nil {
				return "", err
			}
		}
		return "", nil
	}

	var argTF string
	for _, a := range shape.Args {
		tf, err := e.resolveTF(a)
		if err != nil {
			return "", err
		}
		argTF, err = mergeTF(argTF, tf)
		if err != nil {
			return "", err
		}
	}

	tf := shape.TF
	if tf == "" {
		tf = argTF
	} else if argTF != "" && argTF != tf {
		return "", dsl.Errorf(dsl.KindMixedTimeframe,
			"%s evaluated in %s over a %s series", c.Name, tf, argTF)
	}

	if tf != "" {
		if err := e.checkTimeframe(tf); err != nil {
			return "", err
		}
	}
	e.effTF[c] = tf
	return tf, nil
}

// mergeTF combines two operand timeframes; two distinct pinned timeframes
// cannot meet inside one arithmetic/indicator sub-expression.
func mergeTF(a, b string) (string, error) {
	switch {
	case a == "":
		return b, nil
	case b == "" || a == b:
		return a, nil
	default:
		return "", dsl.Errorf(dsl.KindMixedTimeframe,
			"sub-expression combines %s and %s series without alignment", a, b)
	}
}

func (e *Engine) checkTimeframe(tf string) error {
	dur, err := dsl.ParseTimeframe(tf)
	if err != nil {
		return err
	}
	if dur < e.baseDur {
		return dsl.Errorf(dsl.KindUnsupportedLowerTimeframe,
			"timeframe %s is finer than the base timeframe %s", tf, e.base)
	}
	if _, ok := e.frames[tf]; !ok {
		return dsl.Errorf(dsl.KindUnsupportedTimeframe, "no candle data loaded for timeframe %q", tf)
	}
	return nil
}
