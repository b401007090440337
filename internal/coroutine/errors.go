package coroutine

import (
	"errors"
	"fmt"
)

// Result codes reported by handles. Handler errors keep their own codes.
const (
	CodeSuccess           = 0
	CodeUnknown           = 999
	CodeCreateCycleThread = 1004
	CodeThreadDisposed    = 1077
	CodeThreadInterrupted = 1078
	CodeThreadTerminated  = 1079
	CodeThreadDummy       = 1080
	CodeThreadStarted     = 1093
	CodeCyclePanic        = 1094
)

// Error is a coded result value. Two Errors match under errors.Is when their
// codes are equal.
type Error struct {
	Code    int
	Message string
	Err     error
}

// NewError returns an Error with the given code and message.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("code=%d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code=%d: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Code == other.Code
}

var (
	ErrDummy             = NewError(CodeThreadDummy, "dummy coroutine")
	ErrTerminated        = NewError(CodeThreadTerminated, "coroutine terminated before start")
	ErrDisposed          = NewError(CodeThreadDisposed, "coroutine disposed")
	ErrStarted           = NewError(CodeThreadStarted, "coroutine already started")
	ErrInterrupted       = NewError(CodeThreadInterrupted, "coroutine interrupted")
	ErrCreateCycleThread = NewError(CodeCreateCycleThread, "create cycle unit")
	ErrCyclePanic        = NewError(CodeCyclePanic, "cycle panicked")
)

// CodeOf extracts the result code carried by err: CodeSuccess for nil, the
// Error code when err wraps an *Error, and CodeUnknown otherwise.
func CodeOf(err error) int {
	if err == nil {
		return CodeSuccess
	}
	var coded *Error
	if errors.As(err, &coded) && coded != nil {
		return coded.Code
	}
	return CodeUnknown
}

func labelled(base *Error, label string, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: fmt.Sprintf("%s %q", base.Message, label),
		Err:     cause,
	}
}
