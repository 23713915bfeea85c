package services

import (
	"errors"
	"fmt"

	"quincy-backend/internal/repository"
)

var (
	// ErrValidation marks malformed input, rejected before any write
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing entity or one the caller does not own
	ErrNotFound = repository.ErrNotFound
	// ErrForbidden marks an entity the caller is not a member of
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized marks bad credentials
	ErrUnauthorized = errors.New("invalid credentials")
	// ErrConflict marks a duplicate that cannot be resolved silently
	ErrConflict = errors.New("conflict")
	// ErrTransient marks a store or network failure worth retrying
	ErrTransient = errors.New("temporarily unavailable")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeError classifies a repository error for op
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrValidation), errors.Is(err, ErrForbidden):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}
