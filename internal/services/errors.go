package services

import (
	"errors"
	"fmt"
)

// Error kinds returned by the session and device services. Callers match them
// with errors.Is; the wrapped message carries the detail.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrBudgetExceeded   = errors.New("swipe budget exceeded")
	ErrPersistence      = errors.New("persistence failure")
)

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}

// persistence hides the store error behind ErrPersistence
func persistence(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %v", ErrPersistence, op, err)
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidOperation) ||
		errors.Is(err, ErrBudgetExceeded) ||
		errors.Is(err, ErrPersistence)
}
