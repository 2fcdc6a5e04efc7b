// Package memstore keeps the ledger's row sets in process memory. It follows the Postgres
// repositories' contracts and errors, and serves single-instance deployments and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"termledger/backend/services/ledger-service/internal/models"
	"termledger/backend/services/ledger-service/internal/repository"
)

// Terminals is an in-memory terminal registry.
type Terminals struct {
	mu   sync.RWMutex
	rows map[string]*models.Terminal
}

// NewTerminals returns an empty registry.
func NewTerminals() *Terminals {
	return &Terminals{rows: make(map[string]*models.Terminal)}
}

// Get returns a copy of the terminal.
func (s *Terminals) Get(_ context.Context, id string) (*models.Terminal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrTerminalNotFound
	}
	return cloneTerminal(t), nil
}

// List returns all terminals ordered by name.
func (s *Terminals) List(_ context.Context) ([]models.Terminal, error) {
	s.mu.RLock()
	out := make([]models.Terminal, 0, len(s.rows))
	for _, t := range s.rows {
		out = append(out, *cloneTerminal(t))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListInUse returns occupied terminals, earliest deadline first.
func (s *Terminals) ListInUse(_ context.Context) ([]models.Terminal, error) {
	s.mu.RLock()
	var out []models.Terminal
	for _, t := range s.rows {
		if t.Status == models.TerminalInUse {
			out = append(out, *cloneTerminal(t))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SessionEndTime.Before(*out[j].SessionEndTime) })
	return out, nil
}

// FindByOccupant returns the in-use terminal occupied by userID, or nil.
func (s *Terminals) FindByOccupant(_ context.Context, userID string) (*models.Terminal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t := s.occupiedBy(userID, ""); t != nil {
		return cloneTerminal(t), nil
	}
	return nil, nil
}

// CompareAndTransition applies next only if the stored state equals expected.
func (s *Terminals) CompareAndTransition(_ context.Context, id string, expected, next models.TerminalState, at time.Time) (*models.Terminal, error) {
	if !next.Consistent() {
		return nil, fmt.Errorf("terminal %s: inconsistent target state %q", id, next.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrTerminalNotFound
	}
	if !t.State().Equal(expected) {
		return nil, repository.ErrTransitionRejected
	}
	if next.Status == models.TerminalInUse && s.occupiedBy(next.OccupantUserID, id) != nil {
		return nil, repository.ErrOccupantBusy
	}
	t.Apply(next, at)
	return cloneTerminal(t), nil
}

// UpsertByName inserts a terminal unless one with the same name exists.
func (s *Terminals) UpsertByName(_ context.Context, id, name string, at time.Time) (*models.Terminal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.rows {
		if t.Name == name {
			return cloneTerminal(t), false, nil
		}
	}
	t := &models.Terminal{ID: id, Name: name, Status: models.TerminalIdle, UpdatedAt: at}
	s.rows[id] = t
	return cloneTerminal(t), true, nil
}

// occupiedBy must be called with the lock held.
func (s *Terminals) occupiedBy(userID, exceptID string) *models.Terminal {
	for id, t := range s.rows {
		if id != exceptID && t.Status == models.TerminalInUse && t.OccupantUserID == userID {
			return t
		}
	}
	return nil
}

func cloneTerminal(t *models.Terminal) *models.Terminal {
	c := *t
	if t.SessionEndTime != nil {
		end := *t.SessionEndTime
		c.SessionEndTime = &end
	}
	return &c
}
