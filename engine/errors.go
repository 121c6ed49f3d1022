package engine

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine and handler failures (see the report's
// node_results entries).
type ErrorKind string

const (
	KindInvalidWorkflow ErrorKind = "invalid_workflow"
	KindMissingInput    ErrorKind = "missing_input"
	KindUnknownNodeType ErrorKind = "unknown_node_type"
	KindHandlerError    ErrorKind = "handler_error"
	KindTimeout         ErrorKind = "timeout"
	KindCancelled       ErrorKind = "cancelled"
	KindUpstreamFailed  ErrorKind = "upstream_failed"
)

// Error is a failure with a kind and a human message. Handlers may wrap an
// underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a kinded error.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and message to an underlying error.
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from an error chain, defaulting to handler_error
// for plain errors surfaced by handlers.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindHandlerError
}

// errorInfo converts an error into its report form.
func errorInfo(err error) *ErrorInfo {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return &ErrorInfo{Kind: string(e.Kind), Message: e.Message}
	}
	return &ErrorInfo{Kind: string(KindHandlerError), Message: err.Error()}
}
