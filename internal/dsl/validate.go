package dsl

import (
	"time"
)

// Limits bounds the static shape of an AST and the resources one evaluation
// may spend. Zero Timeout disables the wall-clock budget.
type Limits struct {
	MaxNodes      int           // total node count
	MaxCallDepth  int           // nesting depth of Call nodes (built-in or custom)
	MaxTimeframes int           // distinct timeframes referenced by one rule
	MaxLookback   int           // largest literal lookback length per indicator call
	Timeout       time.Duration // cooperative wall-clock budget, 0 = disabled
}

// DefaultLimits are the production defaults; generous enough for real rules,
// tight enough that a pathological AST cannot stall an evaluation worker.
func DefaultLimits() Limits {
	return Limits{
		MaxNodes:      256,
		MaxCallDepth:  16,
		MaxTimeframes: 4,
		MaxLookback:   1000,
		Timeout:       5 * time.Second,
	}
}

// Validate statically checks an AST against the limits. It must be called
// before vectorized evaluation; a rejected AST fails fast with LIMIT_EXCEEDED
// (or UNSUPPORTED_TIMEFRAME for unparseable timeframe tokens) before any
// series is computed.
func Validate(root Node, lim Limits) error {
	v := &validator{lim: lim, tfs: make(map[string]bool)}
	if err := v.walk(root, 0); err != nil {
		return err
	}
	if lim.MaxNodes > 0 && v.nodes > lim.MaxNodes {
		return Errorf(KindLimitExceeded, "AST has %d nodes, limit is %d", v.nodes, lim.MaxNodes)
	}
	if lim.MaxTimeframes > 0 && len(v.tfs) > lim.MaxTimeframes {
		return Errorf(KindLimitExceeded, "rule references %d timeframes, limit is %d", len(v.tfs), lim.MaxTimeframes)
	}
	return nil
}

type validator struct {
	lim   Limits
	nodes int
	tfs   map[string]bool
}

func (v *validator) walk(n Node, callDepth int) error {
	if n == nil {
		return Errorf(KindMalformedAst, "nil node")
	}
	v.nodes++

	switch node := n.(type) {
	case *Number, *Ident:
		return nil

	case *Call:
		callDepth++
		if v.lim.MaxCallDepth > 0 && callDepth > v.lim.MaxCallDepth {
			return Errorf(KindLimitExceeded, "call depth exceeds limit %d", v.lim.MaxCallDepth)
		}
		if err := v.checkCall(node); err != nil {
			return err
		}
		for _, a := range node.Args {
			if err := v.walk(a, callDepth); err != nil {
				return err
			}
		}
		return nil

	case *Unary:
		return v.walk(node.Child, callDepth)

	case *Binary:
		if err := v.walk(node.Left, callDepth); err != nil {
			return err
		}
		return v.walk(node.Right, callDepth)

	case *Compare:
		if err := v.walk(node.Left, callDepth); err != nil {
			return err
		}
		return v.walk(node.Right, callDepth)

	case *Event:
		if err := v.walk(node.Left, callDepth); err != nil {
			return err
		}
		return v.walk(node.Right, callDepth)

	case *Logical:
		for _, c := range node.Children {
			if err := v.walk(c, callDepth); err != nil {
				return err
			}
		}
		return nil

	case *Not:
		return v.walk(node.Child, callDepth)

	default:
		return Errorf(KindMalformedAst, "unknown node variant %T", n)
	}
}

// checkCall records referenced timeframes and enforces the lookback cap on
// literal length arguments. Custom (non-built-in) calls are shape-checked at
// evaluation time, but their timeframe-looking ident args still count toward
// the fan-out limit.
func (v *validator) checkCall(c *Call) error {
	shape, err := ShapeCall(c)
	if err != nil {
		if IsKind(err, KindArityMismatch) {
			// One extra trailing ident that starts with a digit is a
			// mistyped timeframe token, not a genuine argument-count
			// problem; report it as such here instead of letting the call
			// fail with ARITY_MISMATCH at evaluation time.
			if tferr := mistypedTrailingTF(c); tferr != nil {
				return tferr
			}
		}
		// Unknown functions are custom indicators resolved at evaluation
		// time, and remaining arity problems are evaluation errors. The
		// fan-out check still counts their timeframe idents.
		for _, a := range c.Args {
			if id, ok := a.(*Ident); ok && IsTimeframe(id.Name) {
				v.tfs[id.Name] = true
			}
		}
		return nil
	}

	if shape.TF != "" {
		v.tfs[shape.TF] = true
	}

	if err := v.checkLookback(shape); err != nil {
		return err
	}
	return nil
}

// mistypedTrailingTF reports UNSUPPORTED_TIMEFRAME for a built-in call with
// exactly one argument too many whose last argument is a digit-leading ident
// that fails to parse as a timeframe, e.g. SMA(close, 5, 13x).
func mistypedTrailingTF(c *Call) error {
	sig, ok := Builtins[c.Name]
	if !ok || !sig.TrailingTF || len(c.Args) != sig.MaxArgs+1 {
		return nil
	}
	id, ok := c.Args[len(c.Args)-1].(*Ident)
	if !ok || len(id.Name) == 0 || id.Name[0] < '0' || id.Name[0] > '9' {
		return nil
	}
	if IsTimeframe(id.Name) {
		return nil
	}
	return Errorf(KindUnsupportedTimeframe, "timeframe %q is not a valid duration token", id.Name)
}

func (v *validator) checkLookback(shape *CallShape) error {
	if v.lim.MaxLookback > 0 {
		for _, idx := range shape.LengthArgIndices() {
			if idx >= len(shape.Args) {
				continue
			}
			if num, ok := shape.Args[idx].(*Number); ok && int(num.Value) > v.lim.MaxLookback {
				return Errorf(KindLimitExceeded, "%s lookback %d exceeds limit %d",
					shape.Name, int(num.Value), v.lim.MaxLookback)
			}
		}
	}
	return nil
}
