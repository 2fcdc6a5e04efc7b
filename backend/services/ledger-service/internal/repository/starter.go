package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"termledger/backend/services/ledger-service/internal/models"
)

// SessionStarter opens sessions in one transaction: the wallet withdrawal, the open record
// and the terminal transition commit together or not at all.
type SessionStarter struct {
	db *sql.DB
}

// NewSessionStarter returns a starter over db.
func NewSessionStarter(db *sql.DB) *SessionStarter {
	return &SessionStarter{db: db}
}

// Start takes the terminal for in.UserID. The terminal row is locked first, so a concurrent
// start on the same terminal waits and then sees it in use.
func (s *SessionStarter) Start(ctx context.Context, in models.SessionStart) (*models.Terminal, *models.SessionRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin start: %w", err)
	}
	defer tx.Rollback()

	current, err := getTerminal(ctx, tx, in.TerminalID, "FOR UPDATE")
	if err != nil {
		return nil, nil, err
	}
	if current.Status != models.TerminalIdle {
		return nil, nil, ErrTransitionRejected
	}

	granted, err := withdraw(ctx, tx, in.UserID, in.Limit)
	if err != nil {
		return nil, nil, err
	}
	if granted <= 0 {
		return nil, nil, ErrEmptyWallet
	}

	record := &models.SessionRecord{
		ID:             in.RecordID,
		TerminalID:     in.TerminalID,
		UserID:         in.UserID,
		StartTime:      in.At,
		GrantedSeconds: granted,
	}
	if err := openRecord(ctx, tx, record); err != nil {
		return nil, nil, err
	}

	end := in.At.Add(time.Duration(granted) * time.Second)
	terminal, err := transition(ctx, tx, in.TerminalID, models.IdleState(), models.InUseState(in.UserID, end), in.At)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit start: %w", err)
	}
	return terminal, record, nil
}
