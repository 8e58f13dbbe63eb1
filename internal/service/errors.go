package service

import (
	"errors"
	"strings"
)

var (
	// ErrValidation marks failures caused by the caller's input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks lookups of unknown KCs or history.
	ErrNotFound = errors.New("not found")
)

// ValidationError describes rejected input. It matches ErrValidation.
type ValidationError struct {
	Message string
	Hint    string
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Details, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// notFoundError carries a caller-facing message and matches ErrNotFound.
type notFoundError struct {
	msg string
}

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func notFound(msg string) error {
	return &notFoundError{msg: msg}
}
