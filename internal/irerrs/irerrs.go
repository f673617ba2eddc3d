// Package irerrs distinguishes internal invariant violations from the
// user-visible Diagnostic values produced by the verifier: an
// InternalError signals that the pass framework itself found its inputs
// in a state its algorithms never expect (e.g. a BinaryExpr operand that
// resolved to a tensor type), as opposed to a property the IR being
// transformed merely fails to satisfy.
package irerrs

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// InternalError wraps an invariant-violation message with a stack trace
// captured at the point of the check, via github.com/pkg/errors.
type InternalError struct {
	msg   string
	cause error
}

func (e *InternalError) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return e.msg
}

func (e *InternalError) Unwrap() error { return e.cause }

// StackTrace exposes the captured frames, satisfying pkg/errors'
// stackTracer interface for callers that want to log it.
func (e *InternalError) StackTrace() errors.StackTrace {
	type stackTracer interface{ StackTrace() errors.StackTrace }
	if st, ok := e.cause.(stackTracer); ok {
		return st.StackTrace()
	}
	return nil
}

// Internal builds an InternalError from a plain message, capturing a
// stack trace at the call site.
func Internal(msg string) error {
	return &InternalError{msg: msg, cause: errors.New(msg)}
}

// Internalf builds an InternalError from a format string, capturing a
// stack trace at the call site.
func Internalf(format string, args ...any) error {
	cause := errors.Errorf(format, args...)
	return &InternalError{msg: cause.Error(), cause: cause}
}

// Wrap turns an existing error into an InternalError, attaching a stack
// trace if cause does not already carry one.
func Wrap(cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &InternalError{msg: msg, cause: errors.WithMessage(errors.WithStack(cause), msg)}
}

// IsInternal reports whether err is (or wraps) an *InternalError.
func IsInternal(err error) bool {
	var target *InternalError
	return stderrors.As(err, &target)
}
