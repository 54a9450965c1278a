// Package apperr defines the domain error taxonomy shared by the approval engine.
package apperr

import (
	"errors"
	"fmt"
)

const (
	CodeNotFound               = "NOT_FOUND"
	CodeNotConfigured          = "NOT_CONFIGURED"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeAlreadyDecided         = "ALREADY_DECIDED"
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeExternalServiceFailure = "EXTERNAL_SERVICE_FAILURE"
	CodeConflict               = "CONFLICT"
	CodeEditLocked             = "EDIT_LOCKED"
)

// Sentinels for errors.Is matching. Any *Error with the same code matches.
var (
	ErrNotFound               = &Error{Code: CodeNotFound}
	ErrNotConfigured          = &Error{Code: CodeNotConfigured}
	ErrUnauthorized           = &Error{Code: CodeUnauthorized}
	ErrAlreadyDecided         = &Error{Code: CodeAlreadyDecided}
	ErrValidationFailed       = &Error{Code: CodeValidationFailed}
	ErrExternalServiceFailure = &Error{Code: CodeExternalServiceFailure}
	ErrConflict               = &Error{Code: CodeConflict}
	ErrEditLocked             = &Error{Code: CodeEditLocked}
)

type Error struct {
	Code    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Code == other.Code
}

func New(code, message string, details any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}

func Wrap(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func NotFound(what, id string) *Error {
	return New(CodeNotFound, what+" not found", map[string]string{"id": id})
}

func NotConfigured(message string) *Error {
	return New(CodeNotConfigured, message, nil)
}

func Unauthorized(message string) *Error {
	return New(CodeUnauthorized, message, nil)
}

func AlreadyDecided(message string) *Error {
	return New(CodeAlreadyDecided, message, nil)
}

func Validation(message string) *Error {
	return New(CodeValidationFailed, message, nil)
}

func EditLocked(reason string) *Error {
	return New(CodeEditLocked, "document is locked for editing", map[string]string{"reason": reason})
}

func External(message string, err error) *Error {
	return Wrap(CodeExternalServiceFailure, message, err)
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
