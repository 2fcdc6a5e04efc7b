package service

import (
	"context"
	"time"

	"termledger/backend/services/ledger-service/internal/models"
)

// TerminalRegistry holds terminal rows and the compare-and-set transition primitive.
type TerminalRegistry interface {
	Get(ctx context.Context, id string) (*models.Terminal, error)
	List(ctx context.Context) ([]models.Terminal, error)
	ListInUse(ctx context.Context) ([]models.Terminal, error)
	FindByOccupant(ctx context.Context, userID string) (*models.Terminal, error)
	CompareAndTransition(ctx context.Context, id string, expected, next models.TerminalState, at time.Time) (*models.Terminal, error)
	UpsertByName(ctx context.Context, id, name string, at time.Time) (*models.Terminal, bool, error)
}

// UserStore persists user accounts and their wallet balance.
type UserStore interface {
	Create(ctx context.Context, user *models.UserAccount) error
	Get(ctx context.Context, id string) (*models.UserAccount, error)
	List(ctx context.Context) ([]models.UserAccount, error)
	Rename(ctx context.Context, id, username string) (*models.UserAccount, error)
	Delete(ctx context.Context, id string) error
	AddBalance(ctx context.Context, id string, seconds int64) (*models.UserAccount, error)
	AddBalanceOnce(ctx context.Context, id string, seconds int64, key string) (*models.UserAccount, bool, error)
	Withdraw(ctx context.Context, id string, limit int64) (int64, error)
}

// SessionStore is the append-only session record log.
type SessionStore interface {
	Open(ctx context.Context, record *models.SessionRecord) error
	CloseOpen(ctx context.Context, terminalID string, endTime time.Time, by models.ClosePath) (*models.SessionRecord, error)
	CloseByID(ctx context.Context, id string, endTime time.Time, by models.ClosePath) (*models.SessionRecord, error)
	Discard(ctx context.Context, id string) error
	FindOpen(ctx context.Context, terminalID string) (*models.SessionRecord, error)
	ListOpen(ctx context.Context) ([]models.SessionRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.SessionRecord, error)
}

// AtomicStarter performs the withdrawal, record open and idle to in_use transition of a start
// as one unit. It reports the repository sentinels the separate stores would.
type AtomicStarter interface {
	Start(ctx context.Context, in models.SessionStart) (*models.Terminal, *models.SessionRecord, error)
}

// Notifier receives row changes after they commit. Implementations must not block.
type Notifier interface {
	Notify(event models.ChangeEvent)
}

// NopNotifier drops every event.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(models.ChangeEvent) {}

// Clock returns the current time.
type Clock func() time.Time

// SystemClock is UTC wall time at microsecond precision, matching what Postgres stores.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
