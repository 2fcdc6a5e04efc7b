package repository

import (
	"context"
	"database/sql"
	"time"

	"termledger/backend/services/ledger-service/internal/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// dbtx is the query surface shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func scanTerminal(row rowScanner) (*models.Terminal, error) {
	var (
		t        models.Terminal
		status   string
		occupant sql.NullString
		endTime  sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Name, &status, &occupant, &endTime, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = models.TerminalStatus(status)
	t.OccupantUserID = occupant.String
	if endTime.Valid {
		end := endTime.Time.UTC()
		t.SessionEndTime = &end
	}
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func scanUser(row rowScanner) (*models.UserAccount, error) {
	var u models.UserAccount
	if err := row.Scan(&u.ID, &u.Username, &u.WalletBalanceSeconds, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func scanSession(row rowScanner) (*models.SessionRecord, error) {
	var (
		s        models.SessionRecord
		endTime  sql.NullTime
		closedBy sql.NullString
	)
	if err := row.Scan(&s.ID, &s.TerminalID, &s.UserID, &s.StartTime, &endTime, &s.GrantedSeconds, &closedBy); err != nil {
		return nil, err
	}
	s.StartTime = s.StartTime.UTC()
	if endTime.Valid {
		end := endTime.Time.UTC()
		s.EndTime = &end
	}
	s.ClosedBy = models.ClosePath(closedBy.String)
	return &s, nil
}
