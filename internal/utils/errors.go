package utils

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by services wraps one of these so handlers
// can pick a status code with errors.Is.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence error")
	ErrUpstream    = errors.New("upstream dependency error")
	ErrConflict    = errors.New("conflict")
)

type AppError struct {
	Kind    error
	Message string
	Details map[string]string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func NewValidationError(message string, details map[string]string) *AppError {
	return &AppError{Kind: ErrValidation, Message: message, Details: details}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{Kind: ErrNotFound, Message: resource + " not found"}
}

func NewPersistenceError(message string, err error) *AppError {
	return &AppError{Kind: ErrPersistence, Message: message, Err: err}
}

func NewUpstreamError(message string, err error) *AppError {
	return &AppError{Kind: ErrUpstream, Message: message, Err: err}
}

// ErrorDetails returns field-level details carried by err, if any.
func ErrorDetails(err error) map[string]string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return nil
}
