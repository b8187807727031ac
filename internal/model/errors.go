package model

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation error")
)

var (
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrNoUnitsAvailable    = fmt.Errorf("%w: no units available", ErrResourceUnavailable)
	ErrSpaceConflict       = fmt.Errorf("%w: space already booked for an overlapping range", ErrResourceUnavailable)

	// ErrConflictRace is joined with one of the unavailable errors when a
	// request passed its pre-check but lost the commit.
	ErrConflictRace = errors.New("lost reservation race")
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("not allowed to act on this reservation")
)

var (
	ErrNotFound          = errors.New("reservation not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ErrStore marks transient persistence failures. Callers may retry.
var ErrStore = errors.New("store unavailable")

// Validationf wraps ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Race marks err as the loser of a commit race. The result still matches err.
func Race(err error) error {
	return fmt.Errorf("%w: %w", ErrConflictRace, err)
}
