package memstore

import (
	"context"
	"sort"
	"sync"

	"termledger/backend/services/ledger-service/internal/models"
	"termledger/backend/services/ledger-service/internal/repository"
)

// Users is an in-memory user ledger store. Credit keys are remembered for the life of the process.
type Users struct {
	mu      sync.RWMutex
	rows    map[string]*models.UserAccount
	credits map[string]string
}

// NewUsers returns an empty store.
func NewUsers() *Users {
	return &Users{
		rows:    make(map[string]*models.UserAccount),
		credits: make(map[string]string),
	}
}

// Create inserts the user.
func (s *Users) Create(_ context.Context, user *models.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.byName(user.Username, "") {
		return repository.ErrUsernameTaken
	}
	row := *user
	s.rows[user.ID] = &row
	return nil
}

// Get returns a copy of the user.
func (s *Users) Get(_ context.Context, id string) (*models.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

// List returns all users ordered by username.
func (s *Users) List(_ context.Context) ([]models.UserAccount, error) {
	s.mu.RLock()
	out := make([]models.UserAccount, 0, len(s.rows))
	for _, u := range s.rows {
		out = append(out, *u)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// Rename changes the username.
func (s *Users) Rename(_ context.Context, id, username string) (*models.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if s.byName(username, id) {
		return nil, repository.ErrUsernameTaken
	}
	u.Username = username
	out := *u
	return &out, nil
}

// Delete removes the user. Claimed credit keys stay claimed.
func (s *Users) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(s.rows, id)
	return nil
}

// AddBalance adds seconds to the wallet.
func (s *Users) AddBalance(_ context.Context, id string, seconds int64) (*models.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.rows[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	u.WalletBalanceSeconds += seconds
	out := *u
	return &out, nil
}

// AddBalanceOnce adds seconds unless key was applied before.
func (s *Users) AddBalanceOnce(_ context.Context, id string, seconds int64, key string) (*models.UserAccount, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.rows[id]
	if !ok {
		return nil, false, repository.ErrUserNotFound
	}
	applied := false
	if _, seen := s.credits[key]; !seen {
		s.credits[key] = id
		u.WalletBalanceSeconds += seconds
		applied = true
	}
	out := *u
	return &out, applied, nil
}

// Withdraw moves min(balance, limit) out of the wallet; limit <= 0 takes everything.
func (s *Users) Withdraw(_ context.Context, id string, limit int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.rows[id]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	amount := u.WalletBalanceSeconds
	if limit > 0 && limit < amount {
		amount = limit
	}
	u.WalletBalanceSeconds -= amount
	return amount, nil
}

func (s *Users) byName(username, exceptID string) bool {
	for id, u := range s.rows {
		if id != exceptID && u.Username == username {
			return true
		}
	}
	return false
}
