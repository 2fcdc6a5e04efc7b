package memstore

import (
	"context"
	"time"

	"termledger/backend/services/ledger-service/internal/models"
	"termledger/backend/services/ledger-service/internal/repository"
)

// Starter opens sessions across the three in-memory stores under all their locks, so no
// reader sees a withdrawal without its record and terminal transition.
type Starter struct {
	terminals *Terminals
	users     *Users
	sessions  *Sessions
}

// NewStarter returns a starter over the given stores.
func NewStarter(terminals *Terminals, users *Users, sessions *Sessions) *Starter {
	return &Starter{terminals: terminals, users: users, sessions: sessions}
}

// Start checks every precondition before it mutates anything.
func (s *Starter) Start(_ context.Context, in models.SessionStart) (*models.Terminal, *models.SessionRecord, error) {
	s.terminals.mu.Lock()
	defer s.terminals.mu.Unlock()
	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()
	s.users.mu.Lock()
	defer s.users.mu.Unlock()

	t, ok := s.terminals.rows[in.TerminalID]
	if !ok {
		return nil, nil, repository.ErrTerminalNotFound
	}
	if t.Status != models.TerminalIdle {
		return nil, nil, repository.ErrTransitionRejected
	}
	u, ok := s.users.rows[in.UserID]
	if !ok {
		return nil, nil, repository.ErrUserNotFound
	}
	granted := u.WalletBalanceSeconds
	if in.Limit > 0 && in.Limit < granted {
		granted = in.Limit
	}
	if granted <= 0 {
		return nil, nil, repository.ErrEmptyWallet
	}
	if s.sessions.open(in.TerminalID) != nil {
		return nil, nil, repository.ErrRecordAlreadyOpen
	}
	if s.terminals.occupiedBy(in.UserID, in.TerminalID) != nil {
		return nil, nil, repository.ErrOccupantBusy
	}

	u.WalletBalanceSeconds -= granted
	record := &models.SessionRecord{
		ID:             in.RecordID,
		TerminalID:     in.TerminalID,
		UserID:         in.UserID,
		StartTime:      in.At,
		GrantedSeconds: granted,
	}
	s.sessions.records = append(s.sessions.records, cloneRecord(record))
	t.Apply(models.InUseState(in.UserID, in.At.Add(time.Duration(granted)*time.Second)), in.At)
	return cloneTerminal(t), record, nil
}
