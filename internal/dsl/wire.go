package dsl

import (
	"encoding/json"
)

// Wire-format type tags. One JSON object per node, discriminated by "type".
const (
	tagNumber  = "NUMBER"
	tagIdent   = "IDENT"
	tagCall    = "CALL"
	tagUnary   = "UNARY"
	tagBinary  = "BINARY"
	tagCmp     = "CMP"
	tagEvent   = "EVENT"
	tagLogical = "LOGICAL"
	tagNot     = "NOT"
)

// Marshal serializes a node to its canonical JSON wire form. Field order is
// fixed per variant, so the output doubles as a structural identity.
func Marshal(n Node) ([]byte, error) {
	switch v := n.(type) {
	case *Number:
		return json.Marshal(struct {
			Type  string  `json:"type"`
			Value float64 `json:"value"`
		}{tagNumber, v.Value})
	case *Ident:
		return json.Marshal(struct {
			Type string `json:"type"`
			Name string `json:"name"`
		}{tagIdent, v.Name})
	case *Call:
		args := make([]json.RawMessage, len(v.Args))
		for i, a := range v.Args {
			b, err := Marshal(a)
			if err != nil {
				return nil, err
			}
			args[i] = b
		}
		return json.Marshal(struct {
			Type string            `json:"type"`
			Name string            `json:"name"`
			Args []json.RawMessage `json:"args"`
		}{tagCall, v.Name, args})
	case *Unary:
		child, err := Marshal(v.Child)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Type  string          `json:"type"`
			Op    UnaryOp         `json:"op"`
			Child json.RawMessage `json:"child"`
		}{tagUnary, v.Op, child})
	case *Binary:
		return marshalPair(tagBinary, string(v.Op), v.Left, v.Right)
	case *Compare:
		return marshalPair(tagCmp, string(v.Op), v.Left, v.Right)
	case *Event:
		return marshalPair(tagEvent, string(v.Op), v.Left, v.Right)
	case *Logical:
		children := make([]json.RawMessage, len(v.Children))
		for i, c := range v.Children {
			b, err := Marshal(c)
			if err != nil {
				return nil, err
			}
			children[i] = b
		}
		return json.Marshal(struct {
			Type     string            `json:"type"`
			Op       LogicOp           `json:"op"`
			Children []json.RawMessage `json:"children"`
		}{tagLogical, v.Op, children})
	case *Not:
		child, err := Marshal(v.Child)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Type  string          `json:"type"`
			Child json.RawMessage `json:"child"`
		}{tagNot, child})
	default:
		return nil, Errorf(KindMalformedAst, "unknown node variant %T", n)
	}
}

func marshalPair(tag, op string, left, right Node) ([]byte, error) {
	l, err := Marshal(left)
	if err != nil {
		return nil, err
	}
	r, err := Marshal(right)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Type  string          `json:"type"`
		Op    string          `json:"op"`
		Left  json.RawMessage `json:"left"`
		Right json.RawMessage `json:"right"`
	}{tag, op, l, r})
}

// wireNode is the superset decoding target; required fields are pointers so
// absence is distinguishable from zero values.
type wireNode struct {
	Type     string            `json:"type"`
	Value    *float64          `json:"value"`
	Name     *string           `json:"name"`
	Op       *string           `json:"op"`
	Args     []json.RawMessage `json:"args"`
	Child    json.RawMessage   `json:"child"`
	Left     json.RawMessage   `json:"left"`
	Right    json.RawMessage   `json:"right"`
	Children []json.RawMessage `json:"children"`
}

// Unmarshal deserializes the canonical JSON wire form back into a node.
// It fails with a MALFORMED_AST error when the type tag is unrecognized or a
// required field is missing or mistyped.
func Unmarshal(data []byte) (Node, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, Errorf(KindMalformedAst, "invalid node JSON").WithCause(err)
	}
	switch w.Type {
	case tagNumber:
		if w.Value == nil {
			return nil, Errorf(KindMalformedAst, "NUMBER node missing value")
		}
		return &Number{Value: *w.Value}, nil

	case tagIdent:
		if w.Name == nil || *w.Name == "" {
			return nil, Errorf(KindMalformedAst, "IDENT node missing name")
		}
		return &Ident{Name: *w.Name}, nil

	case tagCall:
		if w.Name == nil || *w.Name == "" {
			return nil, Errorf(KindMalformedAst, "CALL node missing name")
		}
		args := make([]Node, len(w.Args))
		for i, raw := range w.Args {
			a, err := Unmarshal(raw)
			if err != nil {
				return nil, err
			}
			args[i] = a
		}
		return &Call{Name: *w.Name, Args: args}, nil

	case tagUnary:
		if w.Op == nil || w.Child == nil {
			return nil, Errorf(KindMalformedAst, "UNARY node missing op or child")
		}
		op := UnaryOp(*w.Op)
		if !validUnaryOps[op] {
			return nil, Errorf(KindMalformedAst, "unknown unary op %q", *w.Op)
		}
		child, err := Unmarshal(w.Child)
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op, Child: child}, nil

	case tagBinary:
		left, right, op, err := unmarshalPair(&w, "BINARY")
		if err != nil {
			return nil, err
		}
		bop := BinaryOp(op)
		if !validBinaryOps[bop] {
			return nil, Errorf(KindMalformedAst, "unknown binary op %q", op)
		}
		return &Binary{Op: bop, Left: left, Right: right}, nil

	case tagCmp:
		left, right, op, err := unmarshalPair(&w, "CMP")
		if err != nil {
			return nil, err
		}
		cop := CmpOp(op)
		if !validCmpOps[cop] {
			return nil, Errorf(KindMalformedAst, "unknown comparison op %q", op)
		}
		return &Compare{Op: cop, Left: left, Right: right}, nil

	case tagEvent:
		left, right, op, err := unmarshalPair(&w, "EVENT")
		if err != nil {
			return nil, err
		}
		eop := EventOp(op)
		if !validEventOps[eop] {
			return nil, Errorf(KindMalformedAst, "unknown event op %q", op)
		}
		return &Event{Op: eop, Left: left, Right: right}, nil

	case tagLogical:
		if w.Op == nil {
			return nil, Errorf(KindMalformedAst, "LOGICAL node missing op")
		}
		lop := LogicOp(*w.Op)
		if !validLogicOps[lop] {
			return nil, Errorf(KindMalformedAst, "unknown logical op %q", *w.Op)
		}
		if len(w.Children) == 0 {
			return nil, Errorf(KindMalformedAst, "LOGICAL node requires children")
		}
		children := make([]Node, len(w.Children))
		for i, raw := range w.Children {
			c, err := Unmarshal(raw)
			if err != nil {
				return nil, err
			}
			children[i] = c
		}
		return &Logical{Op: lop, Children: children}, nil

	case tagNot:
		if w.Child == nil {
			return nil, Errorf(KindMalformedAst, "NOT node missing child")
		}
		child, err := Unmarshal(w.Child)
		if err != nil {
			return nil, err
		}
		return &Not{Child: child}, nil

	case "":
		return nil, Errorf(KindMalformedAst, "node missing type tag")
	default:
		return nil, Errorf(KindMalformedAst, "unknown node type %q", w.Type)
	}
}

func unmarshalPair(w *wireNode, tag string) (left, right Node, op string, err error) {
	if w.Op == nil || w.Left == nil || w.Right == nil {
		return nil, nil, "", Errorf(KindMalformedAst, "%s node missing op, left or right", tag)
	}
	left, err = Unmarshal(w.Left)
	if err != nil {
		return nil, nil, "", err
	}
	right, err = Unmarshal(w.Right)
	if err != nil {
		return nil, nil, "", err
	}
	return left, right, *w.Op, nil
}
