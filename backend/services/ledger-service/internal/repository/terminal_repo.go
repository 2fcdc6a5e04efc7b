package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"termledger/backend/services/ledger-service/internal/models"
)

const terminalColumns = `id, name, status, occupant_user_id, session_end_time, updated_at`

// TerminalRepository is the Postgres terminal registry.
type TerminalRepository struct {
	db *sql.DB
}

// NewTerminalRepository returns repository.
func NewTerminalRepository(db *sql.DB) *TerminalRepository {
	return &TerminalRepository{db: db}
}

// Get returns a terminal by id.
func (r *TerminalRepository) Get(ctx context.Context, id string) (*models.Terminal, error) {
	return getTerminal(ctx, r.db, id, "")
}

// getTerminal reads one terminal; lock is appended to the query, e.g. "FOR UPDATE".
func getTerminal(ctx context.Context, q dbtx, id, lock string) (*models.Terminal, error) {
	row := q.QueryRowContext(ctx, `SELECT `+terminalColumns+` FROM terminals WHERE id = $1 `+lock, id)
	t, err := scanTerminal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTerminalNotFound
	}
	return t, err
}

// List returns all terminals ordered by name.
func (r *TerminalRepository) List(ctx context.Context) ([]models.Terminal, error) {
	return r.query(ctx, `SELECT `+terminalColumns+` FROM terminals ORDER BY name`)
}

// ListInUse returns occupied terminals, earliest deadline first.
func (r *TerminalRepository) ListInUse(ctx context.Context) ([]models.Terminal, error) {
	return r.query(ctx, `
		SELECT `+terminalColumns+`
		FROM terminals
		WHERE status = 'in_use'
		ORDER BY session_end_time
	`)
}

// FindByOccupant returns the in-use terminal occupied by userID, or nil.
func (r *TerminalRepository) FindByOccupant(ctx context.Context, userID string) (*models.Terminal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+terminalColumns+`
		FROM terminals
		WHERE status = 'in_use' AND occupant_user_id = $1
	`, userID)
	t, err := scanTerminal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// CompareAndTransition moves the terminal from expected to next in a single conditional UPDATE.
// It returns ErrTransitionRejected when the stored tuple differs from expected and ErrOccupantBusy
// when next would give the occupant a second in-use terminal.
func (r *TerminalRepository) CompareAndTransition(ctx context.Context, id string, expected, next models.TerminalState, at time.Time) (*models.Terminal, error) {
	return transition(ctx, r.db, id, expected, next, at)
}

func transition(ctx context.Context, q dbtx, id string, expected, next models.TerminalState, at time.Time) (*models.Terminal, error) {
	if !next.Consistent() {
		return nil, fmt.Errorf("terminal %s: inconsistent target state %q", id, next.Status)
	}
	const query = `
		UPDATE terminals
		SET status = $2,
		    occupant_user_id = $3,
		    session_end_time = $4,
		    updated_at = $5
		WHERE id = $1
		  AND status = $6
		  AND occupant_user_id IS NOT DISTINCT FROM $7::text
		  AND session_end_time IS NOT DISTINCT FROM $8::timestamptz
		RETURNING ` + terminalColumns
	row := q.QueryRowContext(ctx, query,
		id,
		string(next.Status),
		nullString(next.OccupantUserID),
		nullTime(next.SessionEndTime),
		at,
		string(expected.Status),
		nullString(expected.OccupantUserID),
		nullTime(expected.SessionEndTime),
	)
	t, err := scanTerminal(row)
	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, sql.ErrNoRows):
		if _, getErr := getTerminal(ctx, q, id, ""); getErr != nil {
			return nil, getErr
		}
		return nil, ErrTransitionRejected
	case isConstraint(err, pgUniqueViolation, occupantIndex):
		return nil, ErrOccupantBusy
	default:
		return nil, err
	}
}

// UpsertByName provisions a terminal by name. Existing rows keep their id and state.
func (r *TerminalRepository) UpsertByName(ctx context.Context, id, name string, at time.Time) (*models.Terminal, bool, error) {
	const query = `
		INSERT INTO terminals (id, name, status, updated_at)
		VALUES ($1, $2, 'idle', $3)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING ` + terminalColumns + `, (xmax = 0) AS inserted`
	var inserted bool
	row := r.db.QueryRowContext(ctx, query, id, name, at)
	t, err := scanTerminal(scanFunc(func(dest ...any) error {
		return row.Scan(append(dest, &inserted)...)
	}))
	if err != nil {
		return nil, false, err
	}
	return t, inserted, nil
}

func (r *TerminalRepository) query(ctx context.Context, query string, args ...any) ([]models.Terminal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var terminals []models.Terminal
	for rows.Next() {
		t, err := scanTerminal(rows)
		if err != nil {
			return nil, err
		}
		terminals = append(terminals, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return terminals, nil
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }
