// Package apperrors defines the error taxonomy shared by the narrative core,
// the storage layer and the HTTP surface.
package apperrors

import (
	"errors"
	"strings"
)

// Code classifies an error for callers that need to decide how to surface it.
type Code int

const (
	Internal Code = iota
	// Validation means a scenario failed structural checks. Blocks publish.
	Validation
	// NotFound means a scenario or session id did not resolve, or the
	// scenario exists but is not playable.
	NotFound
	// InvalidReference means a condition or relationship points at an id the
	// scenario does not declare. Evaluation treats it as false.
	InvalidReference
	// Provider means the narrative generation call failed.
	Provider
	// Busy means a turn is already in flight for the session.
	Busy
)

func (c Code) String() string {
	switch c {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case InvalidReference:
		return "invalid_reference"
	case Provider:
		return "provider"
	case Busy:
		return "busy"
	default:
		return "internal"
	}
}

// Error is the domain error type.
type Error struct {
	Code    Code
	Message string
	// Fields lists violated field identifiers for Validation errors.
	Fields []string
	Cause  error
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		msg += " [" + strings.Join(e.Fields, ", ") + "]"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Invalid builds a Validation error carrying the violated fields.
func Invalid(message string, fields []string) *Error {
	return &Error{Code: Validation, Message: message, Fields: append([]string(nil), fields...)}
}

// CodeOf returns the code of the first *Error in err's chain, or Internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// FieldsOf returns the violated fields of a Validation error.
func FieldsOf(err error) []string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
