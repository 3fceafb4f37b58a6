package dsl

import (
	"strconv"
	"strings"
)

// Fingerprint returns a compact canonical encoding of a node, used as a
// structural cache key: two nodes with equal fingerprints are structurally
// identical, even when they live in different parent trees.
//
// Fingerprints of hot sub-expressions should be computed once per evaluation
// session (the vectorized engine does a single pre-pass), never inside
// per-bar loops.
func Fingerprint(n Node) string {
	var b strings.Builder
	writeFingerprint(&b, n)
	return b.String()
}

func writeFingerprint(b *strings.Builder, n Node) {
	switch v := n.(type) {
	case *Number:
		b.WriteByte('n')
		b.WriteString(strconv.FormatFloat(v.Value, 'g', -1, 64))
	case *Ident:
		b.WriteString("i(")
		b.WriteString(v.Name)
		b.WriteByte(')')
	case *Call:
		b.WriteString("c(")
		b.WriteString(v.Name)
		for _, a := range v.Args {
			b.WriteByte(',')
			writeFingerprint(b, a)
		}
		b.WriteByte(')')
	case *Unary:
		b.WriteString("u(")
		b.WriteString(string(v.Op))
		b.WriteByte(',')
		writeFingerprint(b, v.Child)
		b.WriteByte(')')
	case *Binary:
		writePairFingerprint(b, 'b', string(v.Op), v.Left, v.Right)
	case *Compare:
		writePairFingerprint(b, 'p', string(v.Op), v.Left, v.Right)
	case *Event:
		writePairFingerprint(b, 'e', string(v.Op), v.Left, v.Right)
	case *Logical:
		b.WriteString("l(")
		b.WriteString(string(v.Op))
		for _, c := range v.Children {
			b.WriteByte(',')
			writeFingerprint(b, c)
		}
		b.WriteByte(')')
	case *Not:
		b.WriteString("!(")
		writeFingerprint(b, v.Child)
		b.WriteByte(')')
	}
}

func writePairFingerprint(b *strings.Builder, kind byte, op string, left, right Node) {
	b.WriteByte(kind)
	b.WriteByte('(')
	b.WriteString(op)
	b.WriteByte(',')
	writeFingerprint(b, left)
	b.WriteByte(',')
	writeFingerprint(b, right)
	b.WriteByte(')')
}

// Equal reports structural equality of two nodes.
func Equal(a, b Node) bool {
	return Fingerprint(a) == Fingerprint(b)
}
