// README: Error kinds shared by every module and mapped once at the HTTP edge.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidState       = errors.New("invalid state transition")
	ErrAlreadyClaimed     = errors.New("order already claimed")
	ErrNotFound           = errors.New("not found")
	ErrNotEligible        = errors.New("not eligible")
	ErrExpired            = errors.New("verification expired")
	ErrAttemptsExhausted  = errors.New("verification attempts exhausted")
	ErrCodeMismatch       = errors.New("verification code mismatch")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrUnavailable        = errors.New("service unavailable")
)

// ValidationError names the offending field and carries a user-facing message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// StateError reports a transition attempted from a state that does not allow it.
type StateError struct {
	Current   string
	Attempted string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.Current, e.Attempted)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

func InvalidState(current, attempted string) error {
	return &StateError{Current: current, Attempted: attempted}
}

type EligibilityError struct {
	Reason string
}

func (e *EligibilityError) Error() string { return "not eligible: " + e.Reason }

func (e *EligibilityError) Is(target error) bool { return target == ErrNotEligible }

func NotEligible(reason string) error {
	return &EligibilityError{Reason: reason}
}

type unavailableError struct {
	op  string
	err error
}

func (e *unavailableError) Error() string { return e.op + ": " + e.err.Error() }

func (e *unavailableError) Unwrap() error { return e.err }

func (e *unavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable marks a store or collaborator failure. Errors that already carry
// a domain kind pass through unchanged.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) || errors.Is(err, ErrUnavailable) {
		return err
	}
	return &unavailableError{op: op, err: err}
}

// IsDomain reports whether err is one of the business outcomes above rather
// than an infrastructure failure.
func IsDomain(err error) bool {
	for _, k := range []error{
		ErrValidation, ErrInvalidState, ErrAlreadyClaimed, ErrNotFound,
		ErrNotEligible, ErrExpired, ErrAttemptsExhausted, ErrCodeMismatch,
		ErrInvalidCredentials, ErrForbidden,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// Message returns the text shown to end users for err.
func Message(err error) string {
	var ve *ValidationError
	var se *StateError
	var ee *EligibilityError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ve.Message
	case errors.As(err, &se):
		return fmt.Sprintf("Cannot move from %s to %s", se.Current, se.Attempted)
	case errors.As(err, &ee):
		return ee.Reason
	case errors.Is(err, ErrAlreadyClaimed):
		return "This order has already been accepted by another rider"
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found"
	case errors.Is(err, ErrExpired):
		return "OTP has expired. Please request a new one"
	case errors.Is(err, ErrAttemptsExhausted):
		return "Too many incorrect attempts. Please request a new OTP"
	case errors.Is(err, ErrCodeMismatch):
		return "Invalid OTP code"
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to perform this action"
	case errors.Is(err, ErrUnavailable):
		return "Service temporarily unavailable. Please try again"
	default:
		return "Something went wrong"
	}
}
