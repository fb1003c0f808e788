package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Error is a structured plugin error: an operation name, a high-level code
// for programmatic matching, and an optional wrapped cause. Only Init
// returns an *Error upward to the broker; every other failure is logged and
// absorbed (see spec.md §7's propagation policy).
type Error struct {
	Op    string // operation that failed, e.g. "store.open", "config.parse"
	Topic string // topic the error concerns, if any
	Code  Code
	Msg   string
	Inner error
}

// Code is a high-level error category, used for errors.Is-style matching
// without comparing message text.
type Code string

const (
	ErrCodeUnsupportedVersion Code = "unsupported broker version"
	ErrCodeStoreOpen          Code = "store open failed"
	ErrCodeStatementPrepare   Code = "statement prepare failed"
	ErrCodeQueueFull          Code = "queue full"
	ErrCodeBatchCommit        Code = "batch commit failed"
	ErrCodeRowStep            Code = "row step failed"
	ErrCodeInvalidOption      Code = "invalid option"
	ErrCodeTimeout            Code = "timeout"
	ErrCodeNotFound           Code = "not found"
)

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	switch {
	case e.Op != "" && e.Topic != "":
		return fmt.Sprintf("mqttpersist: %s: %s (topic=%s)", e.Op, msg, e.Topic)
	case e.Op != "":
		return fmt.Sprintf("mqttpersist: %s: %s", e.Op, msg)
	default:
		return fmt.Sprintf("mqttpersist: %s", msg)
	}
}

// Unwrap gives errors.Is/errors.As access to the wrapped cause.
func (e *Error) Unwrap() error { return e.Inner }

// Is matches on Code so callers can write errors.Is(err, &Error{Code: ...})
// without needing to know Op, Topic, or Msg.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError builds a plain *Error with no topic or wrapped cause.
func NewError(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewTopicError builds an *Error scoped to a specific topic, used by the
// event handler and store adapter when a failure is per-message.
func NewTopicError(op, topic string, code Code, msg string) *Error {
	return &Error{Op: op, Topic: topic, Code: code, Msg: msg}
}

// WrapError classifies inner (typically a database/sql or context error)
// into a plugin *Error, preserving it as Inner for errors.Is/As.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if pe, ok := inner.(*Error); ok {
		return &Error{Op: op, Topic: pe.Topic, Code: pe.Code, Msg: pe.Msg, Inner: pe.Inner}
	}
	return &Error{Op: op, Code: classify(inner), Msg: inner.Error(), Inner: inner}
}

func classify(err error) Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeout
	case errors.Is(err, sql.ErrNoRows):
		return ErrCodeNotFound
	case errors.Is(err, sql.ErrTxDone):
		return ErrCodeBatchCommit
	default:
		return ErrCodeRowStep
	}
}

// IsCode reports whether err is (or wraps) a plugin *Error with the given
// Code.
func IsCode(err error, code Code) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}
