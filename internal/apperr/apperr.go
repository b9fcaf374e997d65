// Package apperr defines the error taxonomy shared by services and handlers.
// Services return *Error values (optionally wrapping a cause); handlers map the
// Code to a user-facing response.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an error for the route layer.
type Code string

const (
	CodeValidation      Code = "validation"
	CodeNotFound        Code = "not_found"
	CodeUnauthenticated Code = "unauthenticated"
	CodeForbidden       Code = "forbidden"
	CodeConflict        Code = "conflict"
	CodeConfiguration   Code = "configuration"
	CodeStorage         Code = "storage"
)

// Error is a classified application error.
// Reason is a stable machine identifier; Message is safe to show to users.
type Error struct {
	Code    Code
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same Reason, so sentinels survive
// re-wrapping with a different message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Reason == t.Reason
}

// New returns an Error without a cause.
func New(code Code, reason, message string) *Error {
	return &Error{Code: code, Reason: reason, Message: message}
}

// Wrap attaches a cause to a sentinel, keeping its code, reason and message.
func Wrap(sentinel *Error, err error) *Error {
	return &Error{Code: sentinel.Code, Reason: sentinel.Reason, Message: sentinel.Message, Err: err}
}

// Storage wraps an infrastructure failure. The message never exposes err.
func Storage(op string, err error) *Error {
	return &Error{Code: CodeStorage, Reason: op, Message: "Something went wrong. Please try again.", Err: err}
}

// Classify returns err unchanged when it is already an *Error and wraps it as
// a storage failure otherwise.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Storage(op, err)
}

// CodeOf returns the code of the first *Error in err's chain.
// Unclassified errors are treated as storage failures.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeStorage
}

// MessageOf returns the user-facing message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "Something went wrong. Please try again."
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// InvalidScore names the first survey field outside 1..5.
func InvalidScore(field string) *Error {
	return &Error{
		Code:    CodeValidation,
		Reason:  ErrInvalidScore.Reason,
		Message: fmt.Sprintf("%s score must be a whole number between 1 and 5", field),
	}
}

var (
	ErrInvalidAccount   = New(CodeValidation, "invalid_account", "A valid account is required to record a donation")
	ErrInvalidAccountID = New(CodeValidation, "invalid_account_id", "A valid account id must be provided")
	ErrEmptyPassword    = New(CodeValidation, "empty_password", "Password cannot be empty")
	ErrPasswordTooLong  = New(CodeValidation, "password_too_long", "Password must be at most 72 bytes")
	ErrInvalidScore     = New(CodeValidation, "invalid_score", "All scores must be between 1 and 5")
	ErrInvalidAmount    = New(CodeValidation, "invalid_amount", "Donation amount must be greater than zero")

	ErrAccountNotFound      = New(CodeNotFound, "account_not_found", "Account not found")
	ErrEventNotFound        = New(CodeNotFound, "event_not_found", "Event not found")
	ErrRegistrationNotFound = New(CodeNotFound, "registration_not_found", "Registration not found")
	ErrSurveyNotFound       = New(CodeNotFound, "survey_not_found", "Survey not found")
	ErrDonationNotFound     = New(CodeNotFound, "donation_not_found", "Donation not found")
	ErrMilestoneNotFound    = New(CodeNotFound, "milestone_not_found", "Milestone not found")

	ErrUnauthenticated = New(CodeUnauthenticated, "unauthenticated", "Please log in to continue")
	ErrUnauthorized    = New(CodeForbidden, "unauthorized", "You do not have access to this page")

	ErrEventInPast         = New(CodeConflict, "event_in_past", "This event has already taken place")
	ErrDeadlinePassed      = New(CodeConflict, "deadline_passed", "The registration deadline for this event has passed")
	ErrEventFull           = New(CodeConflict, "event_full", "This event is full")
	ErrAlreadyRegistered   = New(CodeConflict, "already_registered", "You are already registered for this event")
	ErrEventAlreadyStarted = New(CodeConflict, "event_already_started", "This event has already started and can no longer be cancelled")
	ErrSurveyNotEligible   = New(CodeConflict, "survey_not_eligible", "You cannot submit a survey for this registration")
	ErrUsernameTaken       = New(CodeConflict, "username_taken", "Username already exists")

	ErrAnonymousDonorNotConfigured = New(CodeConfiguration, "anonymous_donor_not_configured",
		"Anonymous donations are not available right now")
	ErrAnonymousDonorNotFound = New(CodeNotFound, "anonymous_donor_not_found",
		"Anonymous donations are not available right now")

	ErrCascadeDeleteFailed = New(CodeStorage, "cascade_delete_failed", "Unable to delete the account. Nothing was removed.")
)
