package dsl

import (
	"errors"
	"fmt"
)

// Kind classifies rule-evaluation failures. Every failure an evaluator can
// produce is one of these; callers receive a typed *Error, never a panic.
type Kind string

const (
	KindMalformedAst              Kind = "MALFORMED_AST"
	KindUnknownIdentifier         Kind = "UNKNOWN_IDENTIFIER"
	KindUnknownFunction           Kind = "UNKNOWN_FUNCTION"
	KindArityMismatch             Kind = "ARITY_MISMATCH"
	KindUnsupportedTimeframe      Kind = "UNSUPPORTED_TIMEFRAME"
	KindMixedTimeframe            Kind = "MIXED_TIMEFRAME"
	KindUnsupportedLowerTimeframe Kind = "UNSUPPORTED_LOWER_TIMEFRAME"
	KindLimitExceeded             Kind = "LIMIT_EXCEEDED"
	KindEvaluationTimeout         Kind = "EVALUATION_TIMEOUT"
)

// Error is a structured rule-engine error carrying a Kind code.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// IsKind reports whether err is (or wraps) a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}
