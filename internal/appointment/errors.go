package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrBlockNotFound       = fmt.Errorf("blocked slot %w", ErrNotFound)

	ErrValidation        = errors.New("validation failed")
	ErrSlotUnavailable   = errors.New("requested time is not available")
	ErrAlreadyBlocked    = errors.New("an identical block already exists for that date")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDateBusy          = errors.New("date is currently being booked, please retry")
)

// ValidationError names the offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// unavailable wraps ErrSlotUnavailable with the reason the window was refused.
func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSlotUnavailable, fmt.Sprintf(format, args...))
}
