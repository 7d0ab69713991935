package cstone

import (
	"errors"
	"fmt"
)

// Error represents a structured cstone error with operation and component context.
type Error struct {
	Op        string    // Operation that failed (e.g., "propdb.Set", "logdb.Append")
	Component string    // Subsystem the error originated in (e.g., "propdb", "logdb", "umsg")
	Code      ErrorCode // High-level error category
	Msg       string    // Human-readable message
	Inner     error     // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("component=%s", e.Component))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("cstone: %s (%s)", msg, parts[0])
	}

	return fmt.Sprintf("cstone: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support based on error code
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}

	return false
}

// ErrorCode represents high-level error categories, mapped onto the four
// failure classes: validation, storage I/O, state invariant, and resource
// exhaustion.
type ErrorCode string

const (
	ErrCodeNotFound         ErrorCode = "not found"
	ErrCodeInvalidID        ErrorCode = "invalid identifier"
	ErrCodeInvalidArgument  ErrorCode = "invalid argument"
	ErrCodeReadOnly         ErrorCode = "read-only"
	ErrCodeCorrupt          ErrorCode = "corrupt data"
	ErrCodeFull             ErrorCode = "resource exhausted"
	ErrCodeBusy             ErrorCode = "busy"
	ErrCodeIO               ErrorCode = "I/O error"
	ErrCodeUnsupported      ErrorCode = "unsupported"
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewComponentError creates a new component-scoped error
func NewComponentError(op, component string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Component: component, Code: code, Msg: msg}
}

// WrapError wraps an existing error with cstone context
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if ce, ok := inner.(*Error); ok {
		return &Error{
			Op:        op,
			Component: ce.Component,
			Code:      ce.Code,
			Msg:       ce.Msg,
			Inner:     ce.Inner,
		}
	}

	return &Error{
		Op:    op,
		Code:  ErrCodeIO,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
