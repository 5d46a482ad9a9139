// Package errors provides coded, actionable errors for the Loom runtime.
//
// Every developer-facing failure carries a stable code (e.g. "E002") mapping
// to a short message, a detailed explanation, and a fix hint. Engine-fatal
// conditions (hook order violations, hooks outside render) panic with the
// formatted error; recoverable conditions are returned as error values that
// support errors.Is/As through Unwrap.
package errors

import (
	"fmt"
	"strings"
)

// Category represents the type of error.
type Category string

const (
	CategoryRuntime  Category = "runtime"
	CategoryProtocol Category = "protocol"
	CategoryConfig   Category = "config"
	CategorySession  Category = "session"
)

// Error is a coded Loom error.
type Error struct {
	// Code is the stable error code, e.g. "E002".
	Code string

	// Category groups related errors.
	Category Category

	// Message is the one-line description.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[LOOM %s] %s", e.Code, e.Message)
	}
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// Format renders the error with detail and hint for terminal output.
func (e *Error) Format() string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	if e.Detail != "" {
		sb.WriteString("\n\n  ")
		sb.WriteString(e.Detail)
	}
	if e.Suggestion != "" {
		sb.WriteString("\n\n  Hint: ")
		sb.WriteString(e.Suggestion)
	}
	if e.Wrapped != nil {
		sb.WriteString("\n\n  Caused by: ")
		sb.WriteString(e.Wrapped.Error())
	}
	return sb.String()
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{Code: code, Category: CategoryRuntime, Message: "Unknown error"}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
	}
}

// Newf creates an uncoded Error with a formatted message.
func Newf(category Category, format string, args ...any) *Error {
	return &Error{Category: category, Message: fmt.Sprintf(format, args...)}
}
