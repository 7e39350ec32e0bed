package domain

import (
	"errors"
	"fmt"

	"resortbook/internal/models"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrConcurrentModification = errors.New("booking was modified concurrently")
	ErrLockNotAcquired        = errors.New("unit lock not acquired")
)

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConflictError is returned when a request is infeasible against existing bookings.
type ConflictError struct {
	Reason      string
	Conflicting *models.ConflictRef
}

func (e *ConflictError) Error() string {
	if e.Conflicting == nil {
		return "conflict: " + e.Reason
	}
	return fmt.Sprintf("conflict: %s (%s booking %d on %s)",
		e.Reason, e.Conflicting.Type, e.Conflicting.ID, e.Conflicting.Date)
}

// ConflictFromVerdict converts an unavailable verdict into an error value.
func ConflictFromVerdict(v models.Verdict) *ConflictError {
	return &ConflictError{Reason: v.Reason, Conflicting: v.ConflictingBooking}
}

// NotFoundError wraps ErrNotFound with the booking it refers to.
func NotFoundError(kind models.BookingKind, id int64) error {
	return fmt.Errorf("%s booking %d: %w", kind, id, ErrNotFound)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
