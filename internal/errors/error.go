package errors

import (
	"errors"
	"fmt"
)

// Category represents the area an error belongs to.
type Category string

const (
	CategoryConfig  Category = "config"
	CategoryStore   Category = "store"
	CategoryServer  Category = "server"
	CategoryCLI     Category = "cli"
	CategoryProcess Category = "process"
)

// OltaError is a coded error with an explanation and a fix suggestion.
type OltaError struct {
	// Code is a unique error identifier (e.g., "E101").
	Code string

	// Category is the area the error belongs to.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation, usually naming the offending value.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *OltaError) Error() string {
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
func (e *OltaError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *OltaError) WithSuggestion(s string) *OltaError {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *OltaError) WithDetail(d string) *OltaError {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *OltaError) Wrap(err error) *OltaError {
	e.Wrapped = err
	return e
}

// New creates an OltaError from a registered error code.
func New(code string) *OltaError {
	template, ok := registry[code]
	if !ok {
		return &OltaError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &OltaError{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Suggestion: template.Suggestion,
	}
}

// Newf creates an OltaError with a formatted message and no code.
func Newf(category Category, format string, args ...any) *OltaError {
	return &OltaError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps err in an OltaError with the given code, unless it
// already carries one.
func FromError(err error, code string) *OltaError {
	if err == nil {
		return nil
	}
	var oe *OltaError
	if errors.As(err, &oe) {
		return oe
	}
	return New(code).Wrap(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}
