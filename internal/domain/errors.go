// Package domain holds the error taxonomy and result metadata shared by the content,
// social and reading list engines.
package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide how to present it.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindStorage      Kind = "storage"
)

var (
	// ErrNotFound matches any error of KindNotFound via errors.Is.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrUnauthorized matches any error of KindUnauthorized via errors.Is.
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	// ErrValidation matches any error of KindValidation via errors.Is.
	ErrValidation = &Error{Kind: KindValidation}
	// ErrConflict matches any error of KindConflict via errors.Is.
	ErrConflict = &Error{Kind: KindConflict}
	// ErrStorage matches any error of KindStorage via errors.Is.
	ErrStorage = &Error{Kind: KindStorage}
)

// Error is the typed failure returned by every engine operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]string
	err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	message := e.Message
	if message == "" {
		message = string(e.Kind)
	}
	if e.Code == "" {
		return message
	}
	if e.err == nil {
		return fmt.Sprintf("%s: %s", e.Code, message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, message, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is reports a match when target is a *Error of the same kind with no code, which is how
// the Err* sentinels are shaped.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil {
		return false
	}
	if other.Kind != e.Kind {
		return false
	}
	return other.Code == "" || other.Code == e.Code
}

// New builds an Error for the given operation and reason, producing a code in the form
// "operation.reason".
func New(kind Kind, operation, reason, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Code:    operation + "." + reason,
		Message: message,
		err:     cause,
	}
}

// NotFound reports that a referenced resource does not exist.
func NotFound(operation, reason, message string) *Error {
	return New(KindNotFound, operation, reason, message, nil)
}

// Unauthorized reports that the actor may not perform the operation.
func Unauthorized(operation, reason, message string) *Error {
	return New(KindUnauthorized, operation, reason, message, nil)
}

// Validation reports malformed input.
func Validation(operation, reason, message string) *Error {
	return New(KindValidation, operation, reason, message, nil)
}

// Conflict reports a uniqueness violation.
func Conflict(operation, reason, message string, cause error) *Error {
	return New(KindConflict, operation, reason, message, cause)
}

// Storage wraps a backend failure.
func Storage(operation, reason string, cause error) *Error {
	return New(KindStorage, operation, reason, "storage failure", cause)
}

// KindOf extracts the Kind of err, defaulting to KindStorage for foreign errors.
func KindOf(err error) Kind {
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr != nil {
		return domainErr.Kind
	}
	return KindStorage
}

// CodeOf extracts the machine-readable code of err when it carries one.
func CodeOf(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr != nil {
		return domainErr.Code
	}
	return ""
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr != nil && domainErr.Message != "" {
		return domainErr.Message
	}
	return "internal error"
}
