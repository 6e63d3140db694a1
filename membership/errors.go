package membership

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrStudentNotFound = errors.New("student not found")
	ErrCourseNotFound  = errors.New("course not found")
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrCourseInUse is returned when deleting a course students still attend.
	ErrCourseInUse = errors.New("course has enrolled students")

	// ErrDuplicateEmail is returned by the store when another student already
	// uses the address.
	ErrDuplicateEmail = errors.New("email already registered")

	ErrStudentInactive = errors.New("student is inactive")
	ErrNoCourse        = errors.New("student has no course assigned")
	ErrInvalidPrice    = errors.New("course monthly price must be greater than zero")
	ErrNoStartDate     = errors.New("student has no classes start date")
	ErrInvalidAmount   = errors.New("amount must be greater than zero")
	ErrInvalidInput    = errors.New("invalid input")

	// ErrRepriceIncomplete is returned when a course was saved but some of its
	// students could not be replayed against the new pricing.
	ErrRepriceIncomplete = errors.New("course saved but some students were not replayed")

	// ErrLockTimeout is returned when the per-student lock could not be taken
	// before the context ended.
	ErrLockTimeout = errors.New("timed out waiting for student lock")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidInput
	}
	return e.Err
}

func invalid(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: err.Error(), Err: err}
}

func invalidf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Err: ErrInvalidInput}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrCourseNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsConflict returns true if the request clashes with existing data.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCourseInUse) ||
		errors.Is(err, ErrDuplicateEmail)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrStudentInactive) ||
		errors.Is(err, ErrNoCourse) ||
		errors.Is(err, ErrInvalidPrice) ||
		errors.Is(err, ErrNoStartDate)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
