// Package errors provides structured error types for docmorph.
//
// Every fatal error in the conversion pipeline carries a machine-readable
// code so automation can branch on outcome without string-matching messages.
// Visual and font outcomes are never modeled here: "doesn't match" and
// "font missing" are expected results, not errors.
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

const (
	// Canonical document (de)serialization failures
	ErrCodeSchema             Code = "SCHEMA_ERROR"
	ErrCodeDuplicateElementID Code = "DUPLICATE_ELEMENT_ID"
	ErrCodeInvalidGeometry    Code = "INVALID_GEOMETRY"

	// Adapter failures
	ErrCodeParsing           Code = "PARSING_ERROR"
	ErrCodeRendering         Code = "RENDERING_ERROR"
	ErrCodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"

	// Registry failures
	ErrCodeEngineNotFound Code = "ENGINE_NOT_FOUND"
	ErrCodeEngineInit     Code = "ENGINE_INIT_FAILED"

	// Validation pipeline failures (the pipeline itself, not a failing score)
	ErrCodeValidation Code = "VALIDATION_ERROR"

	// Font store I/O failures (missing fonts are data, not errors)
	ErrCodeFontStore Code = "FONT_STORE_ERROR"

	// Generic
	ErrCodeFileNotFound Code = "FILE_NOT_FOUND"
	ErrCodeInternal     Code = "INTERNAL_ERROR"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error. If the cause already
// carries a code, the new code takes precedence but the cause stays
// discoverable through Unwrap.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err carries the given error code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if errors.As(err, &e) {
			if e.Code == code {
				return true
			}
			err = e.Cause
			continue
		}
		return false
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns ErrCodeInternal for non-nil errors without a code and empty string
// for nil.
func GetCode(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// As is a convenience re-export so callers don't need both error packages.
func As(err error, target any) bool {
	return errors.As(err, target)
}
