package pointwise

import (
	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/engine"
	"alert-systemv1/internal/indicator"
)

// evalSeries computes the full series of a numeric argument over one
// timeframe's frame. Indicator history is re-derived here on every
// invocation; only the final now/prev pair surfaces to the caller. A nested
// call pinned to a different timeframe cannot feed a series expression, the
// lengths would not line up.
func (s *session) evalSeries(n dsl.Node, tf string) ([]float64, error) {
	if err := s.checkDeadline(); err != nil {
		return nil, err
	}
	f, err := s.frame(tf)
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
		v, err := s.resolveIdent(node.Name)
		if err != nil {
			return nil, err
		}
		return indicator.Constant(v, f.Len()), nil

	case *dsl.Unary:
		child, err := s.evalSeries(node.Child, tf)
		if err != nil {
			return nil, err
		}
		if node.Op == dsl.UnaryPlus {
			return child, nil
		}
		out := make([]float64, len(child))
		for i, v := range child {
			out[i] = negate(v)
		}
		return out, nil

	case *dsl.Binary:
		left, err := s.evalSeries(node.Left, tf)
		if err != nil {
			return nil, err
		}
		right, err := s.evalSeries(node.Right, tf)
		if err != nil {
			return nil, err
		}
		m := len(left)
		if len(right) < m {
			m = len(right)
		}
		out := make([]float64, m)
		for i := 0; i < m; i++ {
			out[i] = binaryScalar(node.Op, left[i], right[i])
		}
		return out, nil

	case *dsl.Call:
		if custom, ok := s.e.customs[node.Name]; ok {
			if len(node.Args) != len(custom.Params) {
				return nil, dsl.Errorf(dsl.KindArityMismatch,
					"%s expects %d arguments, got %d", node.Name, len(custom.Params), len(node.Args))
			}
			if s.depth++; s.depth > s.e.limits.MaxCallDepth {
				return nil, dsl.Errorf(dsl.KindLimitExceeded,
					"custom indicator nesting exceeds depth %d", s.e.limits.MaxCallDepth)
			}
			defer func() { s.depth-- }()
			binds := make(map[string]dsl.Node, len(custom.Params))
			for i, p := range custom.Params {
				binds[p] = node.Args[i]
			}
			return s.evalSeries(substitute(custom.Body, binds), tf)
		}
		shape, err := dsl.ShapeCall(node)
		if err != nil {
			return nil, err
		}
		if shape.TF != "" && shape.TF != tf {
			return nil, dsl.Errorf(dsl.KindMixedTimeframe,
				"%s pinned to %s inside a %s series expression", node.Name, shape.TF, tf)
		}
		return engine.CallSeries(shape, f,
			func(a dsl.Node) ([]float64, error) { return s.evalSeries(a, tf) },
			s.scalar)

	default:
		return nil, dsl.Errorf(dsl.KindMalformedAst, "boolean expression where a series was expected")
	}
}

// substitute returns the body with every identifier bound to a parameter
// replaced by the call-site argument node. Nodes without bound identifiers
// are shared, not copied.
func substitute(n dsl.Node, binds map[string]dsl.Node) dsl.Node {
	switch node := n.(type) {
	case *dsl.Ident:
		if b, ok := binds[node.Name]; ok {
			return b
		}
		return node

	case *dsl.Call:
		args := make([]dsl.Node, len(node.Args))
		for i, a := range node.Args {
			args[i] = substitute(a, binds)
		}
		return &dsl.Call{Name: node.Name, Args: args}

	case *dsl.Unary:
		return &dsl.Unary{Op: node.Op, Child: substitute(node.Child, binds)}

	case *dsl.Binary:
		return &dsl.Binary{Op: node.Op, Left: substitute(node.Left, binds), Right: substitute(node.Right, binds)}

	case *dsl.Compare:
		return &dsl.Compare{Op: node.Op, Left: substitute(node.Left, binds), Right: substitute(node.Right, binds)}

	case *dsl.Event:
		return &dsl.Event{Op: node.Op, Left: substitute(node.Left, binds), Right: substitute(node.Right, binds)}

	case *dsl.Logical:
		children := make([]dsl.Node, len(node.Children))
		for i, c := range node.Children {
			children[i] = substitute(c, binds)
		}
		return &dsl.Logical{Op: node.Op, Children: children}

	case *dsl.Not:
		return &dsl.Not{Child: substitute(node.Child, binds)}

	default:
		return n
	}
}
