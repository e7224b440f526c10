// Package errs defines the error kinds surfaced by the ingest, index, retrieval, and generation pipeline.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindIngest        Kind = "ingest"
	KindEmbedding     Kind = "embedding"
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindCorruptIndex  Kind = "corrupt_index"
	KindGeneration    Kind = "generation"
	KindConfiguration Kind = "configuration"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrIngest        = errors.New("ingest error")
	ErrEmbedding     = errors.New("embedding error")
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrCorruptIndex  = errors.New("corrupt index")
	ErrGeneration    = errors.New("generation error")
	ErrConfiguration = errors.New("configuration error")
)

var sentinels = map[Kind]error{
	KindIngest:        ErrIngest,
	KindEmbedding:     ErrEmbedding,
	KindValidation:    ErrValidation,
	KindNotFound:      ErrNotFound,
	KindCorruptIndex:  ErrCorruptIndex,
	KindGeneration:    ErrGeneration,
	KindConfiguration: ErrConfiguration,
}

// Error is a classified failure. Op names the operation that failed (e.g. "index.Load").
// Cause is an optional finer classification, used by generation errors ("network", "auth", ...).
type Error struct {
	Kind  Kind
	Op    string
	Cause string
	Err   error
}

// New wraps err with kind and op. A nil err yields an error carrying only the kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds an error of kind from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithCause sets the finer classification and returns e.
func (e *Error) WithCause(cause string) *Error {
	e.Cause = cause
	return e
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CauseOf returns the cause of the first *Error in err's chain that has one.
func CauseOf(err error) string {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return ""
		}
		if e.Cause != "" {
			return e.Cause
		}
		err = e.Err
	}
	return ""
}
