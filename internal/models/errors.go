package models

import (
	"errors"
	"strings"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation failed")
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrRemoteInvocation     = errors.New("remote invocation failed")
	ErrPersistence          = errors.New("persistence failed")
	ErrProcessingInFlight   = errors.New("processing already in flight")
)

// ValidationError carries every rejected field so callers can report them at once.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}
