// Package ingest implements the streaming CSV ingestion pipeline: row
// reading, parsing, per-batch reconciliation, batched upserts, and the
// run state machine.
package ingest

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure classes produced by pipeline
// components. Callers switch on the kind, never on error text.
type ErrorKind int

// Pipeline error kinds.
const (
	KindUnknown ErrorKind = iota
	KindParse
	KindValidation
	KindDuplicateKey
	KindIO
	KindTimeout
	KindConflict
)

func (k ErrorKind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindValidation:
		return "validation"
	case KindDuplicateKey:
		return "duplicate_key"
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error pairs an ErrorKind with an underlying cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError wraps err with a kind; fmt-style constructors below cover the
// common call sites.
func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func parseErrorf(format string, args ...any) *Error {
	return newError(KindParse, fmt.Errorf(format, args...))
}

func validationErrorf(format string, args ...any) *Error {
	return newError(KindValidation, fmt.Errorf(format, args...))
}

func ioErrorf(format string, args ...any) *Error {
	return newError(KindIO, fmt.Errorf(format, args...))
}

// KindOf extracts the ErrorKind from err, or KindUnknown for foreign
// errors.
func KindOf(err error) ErrorKind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindUnknown
}
