// Package dsl defines the typed AST of the condition language used by alert
// rules and backtests, its canonical JSON wire format, structural
// fingerprints for sub-expression caching, and the static safety validator
// that runs before vectorized evaluation.
//
// Nodes are immutable once constructed. Evaluators type-switch over the
// closed Node set; an unhandled variant must be surfaced by the default case.
package dsl

// UnaryOp is a sign operator.
type UnaryOp string

// BinaryOp is a scalar/series arithmetic operator.
type BinaryOp string

// CmpOp is a boolean comparison operator.
type CmpOp string

// EventOp is an edge-triggered boolean operator using current+previous values.
type EventOp string

// LogicOp combines boolean children.
type LogicOp string

// Operator enums. These are wire-format strings and must never change.
const (
	UnaryPlus  UnaryOp = "+"
	UnaryMinus UnaryOp = "-"

	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"

	CmpGT  CmpOp = "GT"
	CmpGTE CmpOp = "GTE"
	CmpLT  CmpOp = "LT"
	CmpLTE CmpOp = "LTE"
	CmpEQ  CmpOp = "EQ"
	CmpNEQ CmpOp = "NEQ"

	EventCrossesAbove EventOp = "CROSSES_ABOVE"
	EventCrossesBelow EventOp = "CROSSES_BELOW"
	EventMovingUp     EventOp = "MOVING_UP"
	EventMovingDown   EventOp = "MOVING_DOWN"

	LogicAnd LogicOp = "AND"
	LogicOr  LogicOp = "OR"
)

// Node is one expression variant. The set is closed: Number, Ident, Call,
// Unary, Binary, Compare, Event, Logical, Not.
type Node interface {
	isNode()
}

// Number is a literal constant.
type Number struct {
	Value float64
}

// Ident is a bare identifier: a timeframe token ("1d"), a price-field name
// ("open", "hlc3"), or a bound parameter name.
type Ident struct {
	Name string
}

// Call invokes a built-in indicator or a user-defined custom indicator.
type Call struct {
	Name string
	Args []Node
}

// Unary applies a sign to a numeric child.
type Unary struct {
	Op    UnaryOp
	Child Node
}

// Binary applies arithmetic to two numeric operands (scalars or series).
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

// Compare tests two numeric operands and yields a boolean.
type Compare struct {
	Op    CmpOp
	Left  Node
	Right Node
}

// Event is an edge-triggered test: it consults both the current and the
// previous value of its operands.
type Event struct {
	Op    EventOp
	Left  Node
	Right Node
}

// Logical combines two or more boolean children.
type Logical struct {
	Op       LogicOp
	Children []Node
}

// Not negates a boolean child.
type Not struct {
	Child Node
}

func (*Number) isNode()  {}
func (*Ident) isNode()   {}
func (*Call) isNode()    {}
func (*Unary) isNode()   {}
func (*Binary) isNode()  {}
func (*Compare) isNode() {}
func (*Event) isNode()   {}
func (*Logical) isNode() {}
func (*Not) isNode()     {}

var validUnaryOps = map[UnaryOp]bool{UnaryPlus: true, UnaryMinus: true}

var validBinaryOps = map[BinaryOp]bool{OpAdd: true, OpSub: true, OpMul: true, OpDiv: true}

var validCmpOps = map[CmpOp]bool{
	CmpGT: true, CmpGTE: true, CmpLT: true, CmpLTE: true, CmpEQ: true, CmpNEQ: true,
}

var validEventOps = map[EventOp]bool{
	EventCrossesAbove: true, EventCrossesBelow: true, EventMovingUp: true, EventMovingDown: true,
}

var validLogicOps = map[LogicOp]bool{LogicAnd: true, LogicOr: true}

// IsBoolean reports whether a node produces a boolean (true for Compare,
// Event, Logical and Not; everything else is numeric).
func IsBoolean(n Node) bool {
	switch n.(type) {
	case *Compare, *Event, *Logical, *Not:
		return true
	default:
		return false
	}
}

// Walk calls fn for n and every node beneath it, pre-order. It stops early
// when fn returns false for a subtree root.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch v := n.(type) {
	case *Number, *Ident:
	case *Call:
		for _, a := range v.Args {
			Walk(a, fn)
		}
	case *Unary:
		Walk(v.Child, fn)
	case *Binary:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case *Compare:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case *Event:
		Walk(v.Left, fn)
		Walk(v.Right, fn)
	case *Logical:
		for _, c := range v.Children {
			Walk(c, fn)
		}
	case *Not:
		Walk(v.Child, fn)
	}
}
