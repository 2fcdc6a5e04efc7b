package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrTerminalNotFound indicates an unknown terminal id.
	ErrTerminalNotFound = errors.New("terminal not found")
	// ErrUserNotFound indicates an unknown user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameTaken indicates a duplicate username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrTransitionRejected means the terminal no longer matches the expected state.
	ErrTransitionRejected = errors.New("terminal state changed")
	// ErrOccupantBusy means the user already occupies another in-use terminal.
	ErrOccupantBusy = errors.New("user already occupies a terminal")
	// ErrRecordAlreadyOpen means the terminal already has an open session record.
	ErrRecordAlreadyOpen = errors.New("terminal already has an open session record")
	// ErrEmptyWallet means an atomic start found nothing to withdraw.
	ErrEmptyWallet = errors.New("wallet is empty")
)

const (
	pgUniqueViolation = "23505"

	occupantIndex   = "terminals_one_in_use_per_occupant"
	openRecordIndex = "session_records_one_open_per_terminal"
	usernameIndex   = "user_accounts_username_active"
)

func pgErr(err error) (*pgconn.PgError, bool) {
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func isConstraint(err error, code, constraint string) bool {
	pe, ok := pgErr(err)
	return ok && pe.Code == code && pe.ConstraintName == constraint
}
