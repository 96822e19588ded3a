package errors

import (
	"errors"
	"fmt"
)

// Category represents the type of error.
type Category string

const (
	CategoryConfig Category = "config"
	CategoryStore  Category = "store"
	CategoryServer Category = "server"
	CategoryCLI    Category = "cli"
)

// BalcoError is a structured error with a code, an explanation and a hint.
type BalcoError struct {
	// Code is a unique error identifier (e.g., "E102").
	Code string

	// Category is the error type.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *BalcoError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *BalcoError) Unwrap() error {
	return e.Wrapped
}

// Is matches another *BalcoError with the same code.
func (e *BalcoError) Is(target error) bool {
	t, ok := target.(*BalcoError)
	return ok && t.Code != "" && t.Code == e.Code
}

// WithSuggestion adds a fix suggestion to the error.
func (e *BalcoError) WithSuggestion(s string) *BalcoError {
	e.Suggestion = s
	return e
}

// WithDetail replaces the detailed explanation.
func (e *BalcoError) WithDetail(d string) *BalcoError {
	e.Detail = d
	return e
}

// WithDetailf replaces the detailed explanation with a formatted one.
func (e *BalcoError) WithDetailf(format string, args ...any) *BalcoError {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// Wrap wraps another error.
func (e *BalcoError) Wrap(err error) *BalcoError {
	e.Wrapped = err
	return e
}

// New creates a BalcoError from a registered error code.
func New(code string) *BalcoError {
	template, ok := registry[code]
	if !ok {
		return &BalcoError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &BalcoError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates a new BalcoError with a formatted message (no code).
func Newf(category Category, format string, args ...any) *BalcoError {
	return &BalcoError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a BalcoError. An error that already
// is, or wraps, a BalcoError is returned as that BalcoError.
func FromError(err error, code string) *BalcoError {
	if err == nil {
		return nil
	}
	var be *BalcoError
	if errors.As(err, &be) {
		return be
	}
	return New(code).Wrap(err)
}

// CodeOf returns the code of the first BalcoError in err's chain, or "".
func CodeOf(err error) string {
	var be *BalcoError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
