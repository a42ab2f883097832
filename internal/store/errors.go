package store

import (
	"errors"
	"fmt"
)

// Common store errors.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")

	// ErrInvalidID indicates the provided ID is invalid.
	ErrInvalidID = errors.New("invalid record ID")
)

// NotFoundError wraps ErrNotFound with record details.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a typed not found error.
func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
