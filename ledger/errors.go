package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when no transaction has the requested ID.
	ErrNotFound = errors.New("transaction not found")

	// ErrDuplicate is returned when a transaction ID is already stored.
	ErrDuplicate = errors.New("duplicate transaction id")

	// ErrValidation is the kind shared by every *ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError lists every rejected request field with its message.
type ValidationError struct {
	Fields map[string]string
}

// Error implements the error interface. Fields are listed in name order.
func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap returns ErrValidation for errors.Is compatibility.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError carries the ID that was looked up.
type NotFoundError struct {
	ID uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("transaction doesn't exist: %d", e.ID)
}

// Unwrap returns ErrNotFound for errors.Is compatibility.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// fieldErrors collects validation messages; the first message per field wins.
type fieldErrors map[string]string

func (f fieldErrors) add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Fields: f}
}
