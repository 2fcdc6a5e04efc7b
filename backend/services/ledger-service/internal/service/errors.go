package service

import (
	"errors"
	"fmt"
)

// ValidationError is a rejected request with no side effects. Safe to retry after correcting input.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return "ledger: " + e.Message
}

// ConflictError means the operation lost a race or found the desired end state already in place.
// It is a no-op outcome and never triggers a compensating credit.
type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string {
	return "ledger: " + e.Message
}

// PartialFailureError means the terminal transition committed but a follow-up step (closing the
// record or crediting the refund) did not. Retry only the pending settlement, never the whole stop.
type PartialFailureError struct {
	Pending PendingSettlement
	Err     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("ledger: terminal %s released but settlement is pending (%d seconds for user %s): %v",
		e.Pending.TerminalID, e.Pending.Seconds, e.Pending.UserID, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

var (
	ErrTerminalNotFound           = &ValidationError{Code: "terminal_not_found", Message: "terminal not found"}
	ErrUserNotFound               = &ValidationError{Code: "user_not_found", Message: "user not found"}
	ErrAlreadyOccupied            = &ValidationError{Code: "already_occupied", Message: "terminal is not idle"}
	ErrInsufficientBalance        = &ValidationError{Code: "insufficient_balance", Message: "wallet balance is empty"}
	ErrUserAlreadyActiveElsewhere = &ValidationError{Code: "user_already_active_elsewhere", Message: "user already occupies another terminal"}
	ErrOccupantMismatch           = &ValidationError{Code: "occupant_mismatch", Message: "user is not the occupant of this terminal"}
	ErrNotExpired                 = &ValidationError{Code: "not_expired", Message: "session has not reached its end time"}
	ErrInvalidDuration            = &ValidationError{Code: "invalid_duration", Message: "requested duration must be positive"}
	ErrInvalidCredit              = &ValidationError{Code: "invalid_credit", Message: "credit must not be negative"}
	ErrUsernameRequired           = &ValidationError{Code: "username_required", Message: "username is required"}
	ErrUsernameTaken              = &ValidationError{Code: "username_taken", Message: "username already taken"}
	ErrUserActive                 = &ValidationError{Code: "user_active", Message: "user has an active session"}
	ErrTerminalBusy               = &ValidationError{Code: "terminal_busy", Message: "terminal is in use"}

	ErrAlreadyTerminated = &ConflictError{Code: "already_terminated", Message: "session was already terminated"}
)

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// AsPartialFailure extracts a PartialFailureError from err.
func AsPartialFailure(err error) (*PartialFailureError, bool) {
	var target *PartialFailureError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}
