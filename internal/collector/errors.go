package collector

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a collector failure.
type ErrorKind string

const (
	// KindTimeout indicates the collector exceeded its time budget.
	KindTimeout ErrorKind = "TIMEOUT"
	// KindUnreachable indicates the probed process or network target did not respond.
	KindUnreachable ErrorKind = "UNREACHABLE"
	// KindParse indicates the probe answered with malformed output.
	KindParse ErrorKind = "PARSE_ERROR"
	// KindNotConfigured indicates a required dependency or setting is absent.
	KindNotConfigured ErrorKind = "NOT_CONFIGURED"
	// KindInternal indicates a bug inside the collector, such as a panic.
	KindInternal ErrorKind = "INTERNAL"
)

// Error is a classified collector failure. It is logged and counted but never
// aborts a collection cycle.
type Error struct {
	Kind      ErrorKind
	Collector string
	Message   string
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Kind)
	if e.Collector != "" {
		prefix = fmt.Sprintf("[%s] %s", e.Kind, e.Collector)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error without an underlying cause.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError wraps cause with a kind and message.
func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf classifies any error returned by a collector. Context deadline
// errors are timeouts; unclassified errors are treated as unreachable.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnreachable
}

// asCollectorError attributes err to the named collector, classifying it if needed.
func asCollectorError(name string, err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		out := *ce
		if out.Collector == "" {
			out.Collector = name
		}
		return &out
	}
	kind := KindOf(err)
	msg := "collection failed"
	if kind == KindTimeout {
		msg = "collection timed out"
	}
	return &Error{Kind: kind, Collector: name, Message: msg, Cause: err}
}
