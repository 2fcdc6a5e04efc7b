package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"termledger/backend/services/ledger-service/internal/models"
)

const sessionColumns = `id, terminal_id, user_id, start_time, end_time, granted_seconds, closed_by`

// SessionRepository is the append-only Postgres session record store.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Open appends an open record. A second open record for the same terminal is ErrRecordAlreadyOpen.
func (r *SessionRepository) Open(ctx context.Context, record *models.SessionRecord) error {
	return openRecord(ctx, r.db, record)
}

func openRecord(ctx context.Context, q dbtx, record *models.SessionRecord) error {
	const query = `
		INSERT INTO session_records (id, terminal_id, user_id, start_time, granted_seconds)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := q.ExecContext(ctx, query,
		record.ID,
		record.TerminalID,
		record.UserID,
		record.StartTime,
		record.GrantedSeconds,
	)
	if isConstraint(err, pgUniqueViolation, openRecordIndex) {
		return ErrRecordAlreadyOpen
	}
	return err
}

// CloseOpen closes the terminal's open record, if any. It returns nil, nil when none is open.
func (r *SessionRepository) CloseOpen(ctx context.Context, terminalID string, endTime time.Time, by models.ClosePath) (*models.SessionRecord, error) {
	const query = `
		UPDATE session_records
		SET end_time = $2,
		    closed_by = $3
		WHERE terminal_id = $1 AND end_time IS NULL
		RETURNING ` + sessionColumns
	rec, err := scanSession(r.db.QueryRowContext(ctx, query, terminalID, endTime, string(by)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// CloseByID closes one specific record if it is still open. It returns nil, nil when the record
// is unknown or already closed.
func (r *SessionRepository) CloseByID(ctx context.Context, id string, endTime time.Time, by models.ClosePath) (*models.SessionRecord, error) {
	const query = `
		UPDATE session_records
		SET end_time = $2,
		    closed_by = $3
		WHERE id = $1 AND end_time IS NULL
		RETURNING ` + sessionColumns
	rec, err := scanSession(r.db.QueryRowContext(ctx, query, id, endTime, string(by)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// Discard deletes a record that is still open. It undoes an Open whose terminal transition
// never committed, so the record was never part of a session.
func (r *SessionRepository) Discard(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM session_records WHERE id = $1 AND end_time IS NULL`, id)
	return err
}

// FindOpen returns the terminal's open record, or nil.
func (r *SessionRepository) FindOpen(ctx context.Context, terminalID string) (*models.SessionRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM session_records
		WHERE terminal_id = $1 AND end_time IS NULL
	`, terminalID)
	rec, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListOpen returns every open record, oldest first.
func (r *SessionRepository) ListOpen(ctx context.Context) ([]models.SessionRecord, error) {
	return r.query(ctx, `
		SELECT `+sessionColumns+`
		FROM session_records
		WHERE end_time IS NULL
		ORDER BY start_time
	`)
}

// ListByUser returns last N records for the user, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT ` + sessionColumns + `
		FROM session_records
		WHERE user_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`
	return r.query(ctx, query, userID, limit)
}

func (r *SessionRepository) query(ctx context.Context, query string, args ...any) ([]models.SessionRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
