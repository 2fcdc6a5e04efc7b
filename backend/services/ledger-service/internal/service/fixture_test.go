package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"termledger/backend/services/ledger-service/internal/memstore"
	"termledger/backend/services/ledger-service/internal/models"
	"termledger/backend/services/ledger-service/internal/repository"
)

var errStoreDown = errors.New("store unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.ChangeEvent
}

func (n *recordingNotifier) Notify(e models.ChangeEvent) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) count(entity models.Entity) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e.Entity == entity {
			total++
		}
	}
	return total
}

// flakyUsers fails keyed credits while failCredits is set.
type flakyUsers struct {
	*memstore.Users
	failCredits atomic.Bool
}

func (u *flakyUsers) AddBalanceOnce(ctx context.Context, id string, seconds int64, key string) (*models.UserAccount, bool, error) {
	if u.failCredits.Load() {
		return nil, false, errStoreDown
	}
	return u.Users.AddBalanceOnce(ctx, id, seconds, key)
}

// flakySessions fails record closes while failClose is set and discards while failDiscard is.
type flakySessions struct {
	*memstore.Sessions
	failClose   atomic.Bool
	failDiscard atomic.Bool
}

func (s *flakySessions) Discard(ctx context.Context, id string) error {
	if s.failDiscard.Load() {
		return errStoreDown
	}
	return s.Sessions.Discard(ctx, id)
}

func (s *flakySessions) CloseByID(ctx context.Context, id string, end time.Time, by models.ClosePath) (*models.SessionRecord, error) {
	if s.failClose.Load() {
		return nil, errStoreDown
	}
	return s.Sessions.CloseByID(ctx, id, end, by)
}

// flakyTerminals rejects the next rejectNext transitions as if another writer got there first.
type flakyTerminals struct {
	*memstore.Terminals
	rejectNext atomic.Int32
}

func (t *flakyTerminals) CompareAndTransition(ctx context.Context, id string, expected, next models.TerminalState, at time.Time) (*models.Terminal, error) {
	if t.rejectNext.Load() > 0 {
		t.rejectNext.Add(-1)
		return nil, repository.ErrTransitionRejected
	}
	return t.Terminals.CompareAndTransition(ctx, id, expected, next, at)
}

type fixture struct {
	clock     *fakeClock
	terminals *flakyTerminals
	users     *flakyUsers
	sessions  *flakySessions
	events    *recordingNotifier
	ledger    *Ledger
	ctrl      *Controller
	sweeper   *Sweeper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clock:     newFakeClock(),
		terminals: &flakyTerminals{Terminals: memstore.NewTerminals()},
		users:     &flakyUsers{Users: memstore.NewUsers()},
		sessions:  &flakySessions{Sessions: memstore.NewSessions()},
		events:    &recordingNotifier{},
	}
	logger := zap.NewNop()
	f.ledger = NewLedger(f.users, f.terminals, f.events, f.clock.Now, logger)
	f.ctrl = NewController(f.terminals, f.sessions, f.ledger, f.events, f.clock.Now, logger)
	f.sweeper = NewSweeper(f.terminals, f.ctrl, time.Second, f.clock.Now, logger)
	return f
}

func (f *fixture) user(t *testing.T, name string, balance int64) string {
	t.Helper()
	ctx := context.Background()
	u, err := f.ledger.CreateUser(ctx, name)
	require.NoError(t, err)
	if balance > 0 {
		_, err = f.ledger.TopUp(ctx, u.ID, balance)
		require.NoError(t, err)
	}
	return u.ID
}

func (f *fixture) terminal(t *testing.T, name string) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.ctrl.ProvisionTerminals(ctx, []string{name}))
	list, err := f.terminals.List(ctx)
	require.NoError(t, err)
	for _, term := range list {
		if term.Name == name {
			return term.ID
		}
	}
	t.Fatalf("terminal %s not provisioned", name)
	return ""
}

func (f *fixture) wallet(t *testing.T, userID string) int64 {
	t.Helper()
	balance, err := f.ledger.BalanceOf(context.Background(), userID)
	require.NoError(t, err)
	return balance
}

func (f *fixture) status(t *testing.T, terminalID string) models.Terminal {
	t.Helper()
	term, err := f.terminals.Get(context.Background(), terminalID)
	require.NoError(t, err)
	return *term
}

func (f *fixture) history(t *testing.T, userID string) []models.SessionRecord {
	t.Helper()
	records, err := f.sessions.ListByUser(context.Background(), userID, 0)
	require.NoError(t, err)
	return records
}
