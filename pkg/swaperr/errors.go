package swaperr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure so callers can decide whether to retry, report or give up.
type Kind string

const (
	KindUnknown               Kind = "Unknown"
	KindInvalidRequest        Kind = "InvalidRequest"
	KindQuoteUnavailable      Kind = "QuoteUnavailable"
	KindNetwork               Kind = "NetworkError"
	KindSigning               Kind = "SigningError"
	KindSubmissionRejected    Kind = "SubmissionRejected"
	KindExpired               Kind = "Expired"
	KindReconciliationWarning Kind = "ReconciliationWarning"
	KindCancelled             Kind = "Cancelled"
)

// Retryable reports whether failures of this kind are transient.
func (k Kind) Retryable() bool {
	return k == KindQuoteUnavailable || k == KindNetwork
}

// Error carries a Kind and the operation that failed alongside the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Cause exposes the cause to github.com/pkg/errors.Cause.
func (e *Error) Cause() error {
	return e.Err
}

// New creates an Error of the given kind from a message.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Errorf creates an Error of the given kind from a format string.
func Errorf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// Wrap attaches a kind and operation to err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether err is transient and may be retried with backoff.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}
