package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"termledger/backend/services/ledger-service/internal/models"
	"termledger/backend/services/ledger-service/internal/repository"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTerminalsCompareAndTransition(t *testing.T) {
	ctx := context.Background()
	s := NewTerminals()
	_, inserted, err := s.UpsertByName(ctx, "t1", "PC-01", t0)
	require.NoError(t, err)
	require.True(t, inserted)

	end := t0.Add(time.Hour)
	got, err := s.CompareAndTransition(ctx, "t1", models.IdleState(), models.InUseState("u1", end), t0)
	require.NoError(t, err)
	assert.Equal(t, models.TerminalInUse, got.Status)
	assert.Equal(t, "u1", got.OccupantUserID)
	require.NotNil(t, got.SessionEndTime)
	assert.True(t, end.Equal(*got.SessionEndTime))

	_, err = s.CompareAndTransition(ctx, "t1", models.IdleState(), models.InUseState("u2", end), t0)
	assert.ErrorIs(t, err, repository.ErrTransitionRejected)

	_, err = s.CompareAndTransition(ctx, "t1", models.InUseState("u1", end.Add(time.Second)), models.IdleState(), t0)
	assert.ErrorIs(t, err, repository.ErrTransitionRejected, "end time is part of the snapshot")

	_, err = s.CompareAndTransition(ctx, "missing", models.IdleState(), models.OfflineState(), t0)
	assert.ErrorIs(t, err, repository.ErrTerminalNotFound)

	_, err = s.CompareAndTransition(ctx, "t1", models.InUseState("u1", end), models.TerminalState{Status: models.TerminalIdle, OccupantUserID: "u1"}, t0)
	assert.Error(t, err)

	got, err = s.CompareAndTransition(ctx, "t1", models.InUseState("u1", end), models.IdleState(), t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.TerminalIdle, got.Status)
	assert.Empty(t, got.OccupantUserID)
	assert.Nil(t, got.SessionEndTime)
}

func TestTerminalsOneInUsePerOccupant(t *testing.T) {
	ctx := context.Background()
	s := NewTerminals()
	_, _, _ = s.UpsertByName(ctx, "t1", "PC-01", t0)
	_, _, _ = s.UpsertByName(ctx, "t2", "PC-02", t0)

	end := t0.Add(time.Hour)
	_, err := s.CompareAndTransition(ctx, "t1", models.IdleState(), models.InUseState("u1", end), t0)
	require.NoError(t, err)
	_, err = s.CompareAndTransition(ctx, "t2", models.IdleState(), models.InUseState("u1", end), t0)
	assert.ErrorIs(t, err, repository.ErrOccupantBusy)

	active, err := s.FindByOccupant(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "t1", active.ID)

	none, err := s.FindByOccupant(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestTerminalsConcurrentTransitionHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewTerminals()
	_, _, _ = s.UpsertByName(ctx, "t1", "PC-01", t0)
	end := t0.Add(time.Hour)
	_, err := s.CompareAndTransition(ctx, "t1", models.IdleState(), models.InUseState("u1", end), t0)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.CompareAndTransition(ctx, "t1", models.InUseState("u1", end), models.IdleState(), t0); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestTerminalsUpsertKeepsExisting(t *testing.T) {
	ctx := context.Background()
	s := NewTerminals()
	first, inserted, err := s.UpsertByName(ctx, "t1", "PC-01", t0)
	require.NoError(t, err)
	require.True(t, inserted)

	again, inserted, err := s.UpsertByName(ctx, "other", "PC-01", t0)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, first.ID, again.ID)

	_, _, _ = s.UpsertByName(ctx, "t0", "PC-00", t0)
	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "PC-00", list[0].Name)
}

func TestTerminalsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := NewTerminals()
	_, _, _ = s.UpsertByName(ctx, "t1", "PC-01", t0)

	got, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	got.Status = models.TerminalOffline

	again, err := s.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TerminalIdle, again.Status)
}

func TestUsersWithdraw(t *testing.T) {
	ctx := context.Background()
	s := NewUsers()
	require.NoError(t, s.Create(ctx, &models.UserAccount{ID: "u1", Username: "alice", WalletBalanceSeconds: 1000}))

	got, err := s.Withdraw(ctx, "u1", 300)
	require.NoError(t, err)
	assert.EqualValues(t, 300, got)

	got, err = s.Withdraw(ctx, "u1", 5000)
	require.NoError(t, err)
	assert.EqualValues(t, 700, got)

	got, err = s.Withdraw(ctx, "u1", 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got)

	_, err = s.Withdraw(ctx, "nobody", 0)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestUsersAddBalanceOnce(t *testing.T) {
	ctx := context.Background()
	s := NewUsers()
	require.NoError(t, s.Create(ctx, &models.UserAccount{ID: "u1", Username: "alice"}))

	u, applied, err := s.AddBalanceOnce(ctx, "u1", 60, "k1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.EqualValues(t, 60, u.WalletBalanceSeconds)

	u, applied, err = s.AddBalanceOnce(ctx, "u1", 60, "k1")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.EqualValues(t, 60, u.WalletBalanceSeconds)

	_, _, err = s.AddBalanceOnce(ctx, "nobody", 60, "k2")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestUsersConcurrentCreditsAreNotLost(t *testing.T) {
	ctx := context.Background()
	s := NewUsers()
	require.NoError(t, s.Create(ctx, &models.UserAccount{ID: "u1", Username: "alice"}))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.AddBalance(ctx, "u1", 10)
		}()
	}
	wg.Wait()

	u, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 500, u.WalletBalanceSeconds)
}

func TestUsersUsernameUnique(t *testing.T) {
	ctx := context.Background()
	s := NewUsers()
	require.NoError(t, s.Create(ctx, &models.UserAccount{ID: "u1", Username: "alice"}))
	require.NoError(t, s.Create(ctx, &models.UserAccount{ID: "u2", Username: "bob"}))

	assert.ErrorIs(t, s.Create(ctx, &models.UserAccount{ID: "u3", Username: "alice"}), repository.ErrUsernameTaken)

	_, err := s.Rename(ctx, "u2", "alice")
	assert.ErrorIs(t, err, repository.ErrUsernameTaken)

	u, err := s.Rename(ctx, "u1", "alice")
	require.NoError(t, err, "renaming to the same name is allowed")
	assert.Equal(t, "alice", u.Username)

	require.NoError(t, s.Delete(ctx, "u2"))
	assert.ErrorIs(t, s.Delete(ctx, "u2"), repository.ErrUserNotFound)
}

func TestSessionsOneOpenRecordPerTerminal(t *testing.T) {
	ctx := context.Background()
	s := NewSessions()
	require.NoError(t, s.Open(ctx, &models.SessionRecord{ID: "s1", TerminalID: "t1", UserID: "u1", StartTime: t0}))
	assert.ErrorIs(t, s.Open(ctx, &models.SessionRecord{ID: "s2", TerminalID: "t1", UserID: "u2", StartTime: t0}), repository.ErrRecordAlreadyOpen)

	open, err := s.FindOpen(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "s1", open.ID)

	closed, err := s.CloseOpen(ctx, "t1", t0.Add(time.Minute), models.ClosedByStop)
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, models.ClosedByStop, closed.ClosedBy)
	assert.False(t, closed.Open())

	again, err := s.CloseOpen(ctx, "t1", t0.Add(2*time.Minute), models.ClosedByExpire)
	require.NoError(t, err)
	assert.Nil(t, again, "closing with nothing open is a no-op")

	require.NoError(t, s.Open(ctx, &models.SessionRecord{ID: "s2", TerminalID: "t1", UserID: "u2", StartTime: t0.Add(time.Hour)}))
}

func TestSessionsCloseByIDClosesOnce(t *testing.T) {
	ctx := context.Background()
	s := NewSessions()
	require.NoError(t, s.Open(ctx, &models.SessionRecord{ID: "s1", TerminalID: "t1", UserID: "u1", StartTime: t0}))

	rec, err := s.CloseByID(ctx, "s1", t0.Add(time.Minute), models.ClosedByForceStop)
	require.NoError(t, err)
	require.NotNil(t, rec)

	rec, err = s.CloseByID(ctx, "s1", t0.Add(2*time.Minute), models.ClosedByExpire)
	require.NoError(t, err)
	assert.Nil(t, rec)

	history, err := s.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ClosedByForceStop, history[0].ClosedBy)
	assert.True(t, t0.Add(time.Minute).Equal(*history[0].EndTime))
}

func TestSessionsDiscardOnlyOpen(t *testing.T) {
	ctx := context.Background()
	s := NewSessions()
	require.NoError(t, s.Open(ctx, &models.SessionRecord{ID: "s1", TerminalID: "t1", UserID: "u1", StartTime: t0}))
	_, err := s.CloseByID(ctx, "s1", t0.Add(time.Minute), models.ClosedByStop)
	require.NoError(t, err)
	require.NoError(t, s.Open(ctx, &models.SessionRecord{ID: "s2", TerminalID: "t1", UserID: "u1", StartTime: t0.Add(time.Hour)}))

	require.NoError(t, s.Discard(ctx, "s1"))
	require.NoError(t, s.Discard(ctx, "s2"))

	history, err := s.ListByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "s1", history[0].ID)

	open, err := s.FindOpen(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestSessionsListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewSessions()
	for i, id := range []string{"a", "b", "c"} {
		start := t0.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.Open(ctx, &models.SessionRecord{ID: id, TerminalID: "t1", UserID: "u1", StartTime: start}))
		_, err := s.CloseByID(ctx, id, start.Add(time.Minute), models.ClosedByStop)
		require.NoError(t, err)
	}

	history, err := s.ListByUser(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "c", history[0].ID)
	assert.Equal(t, "b", history[1].ID)
}

func TestSessionsListOpenOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewSessions()
	require.NoError(t, s.Open(ctx, &models.SessionRecord{ID: "late", TerminalID: "t1", UserID: "u1", StartTime: t0.Add(time.Minute)}))
	require.NoError(t, s.Open(ctx, &models.SessionRecord{ID: "early", TerminalID: "t2", UserID: "u2", StartTime: t0}))
	require.NoError(t, s.Open(ctx, &models.SessionRecord{ID: "done", TerminalID: "t3", UserID: "u3", StartTime: t0}))
	_, err := s.CloseByID(ctx, "done", t0.Add(time.Second), models.ClosedByStop)
	require.NoError(t, err)

	open, err := s.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "early", open[0].ID)
	assert.Equal(t, "late", open[1].ID)
}

func TestUsersDeleteKeepsCreditKeysClaimed(t *testing.T) {
	ctx := context.Background()
	s := NewUsers()
	require.NoError(t, s.Create(ctx, &models.UserAccount{ID: "u1", Username: "alice"}))
	_, _, err := s.AddBalanceOnce(ctx, "u1", 60, "refund:s1")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "u1"))

	require.NoError(t, s.Create(ctx, &models.UserAccount{ID: "u1", Username: "alice"}))
	u, applied, err := s.AddBalanceOnce(ctx, "u1", 60, "refund:s1")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.EqualValues(t, 0, u.WalletBalanceSeconds)
}

type starterFixture struct {
	terminals *Terminals
	users     *Users
	sessions  *Sessions
	starter   *Starter
}

func newStarterFixture(t *testing.T, balance int64) *starterFixture {
	t.Helper()
	ctx := context.Background()
	f := &starterFixture{terminals: NewTerminals(), users: NewUsers(), sessions: NewSessions()}
	f.starter = NewStarter(f.terminals, f.users, f.sessions)
	_, _, err := f.terminals.UpsertByName(ctx, "t1", "PC-01", t0)
	require.NoError(t, err)
	_, _, err = f.terminals.UpsertByName(ctx, "t2", "PC-02", t0)
	require.NoError(t, err)
	require.NoError(t, f.users.Create(ctx, &models.UserAccount{ID: "u1", Username: "alice", WalletBalanceSeconds: balance}))
	return f
}

func (f *starterFixture) balance(t *testing.T) int64 {
	t.Helper()
	u, err := f.users.Get(context.Background(), "u1")
	require.NoError(t, err)
	return u.WalletBalanceSeconds
}

func TestStarterWritesAllThreeStores(t *testing.T) {
	ctx := context.Background()
	f := newStarterFixture(t, 600)

	term, rec, err := f.starter.Start(ctx, models.SessionStart{RecordID: "s1", TerminalID: "t1", UserID: "u1", Limit: 120, At: t0})
	require.NoError(t, err)
	assert.Equal(t, models.TerminalInUse, term.Status)
	assert.Equal(t, "u1", term.OccupantUserID)
	assert.True(t, t0.Add(120*time.Second).Equal(*term.SessionEndTime))
	assert.EqualValues(t, 120, rec.GrantedSeconds)
	assert.EqualValues(t, 480, f.balance(t))

	open, err := f.sessions.FindOpen(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, "s1", open.ID)
}

func TestStarterLeavesStoresUntouchedOnFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("empty wallet", func(t *testing.T) {
		f := newStarterFixture(t, 0)
		_, _, err := f.starter.Start(ctx, models.SessionStart{RecordID: "s1", TerminalID: "t1", UserID: "u1", At: t0})
		assert.ErrorIs(t, err, repository.ErrEmptyWallet)
	})

	t.Run("stale open record", func(t *testing.T) {
		f := newStarterFixture(t, 600)
		require.NoError(t, f.sessions.Open(ctx, &models.SessionRecord{ID: "old", TerminalID: "t1", UserID: "u1", StartTime: t0}))
		_, _, err := f.starter.Start(ctx, models.SessionStart{RecordID: "s1", TerminalID: "t1", UserID: "u1", At: t0})
		assert.ErrorIs(t, err, repository.ErrRecordAlreadyOpen)
		assert.EqualValues(t, 600, f.balance(t))
		term, err := f.terminals.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, models.TerminalIdle, term.Status)
	})

	t.Run("occupant elsewhere", func(t *testing.T) {
		f := newStarterFixture(t, 600)
		_, _, err := f.starter.Start(ctx, models.SessionStart{RecordID: "s1", TerminalID: "t1", UserID: "u1", Limit: 60, At: t0})
		require.NoError(t, err)
		_, _, err = f.starter.Start(ctx, models.SessionStart{RecordID: "s2", TerminalID: "t2", UserID: "u1", At: t0})
		assert.ErrorIs(t, err, repository.ErrOccupantBusy)
		assert.EqualValues(t, 540, f.balance(t))
		open, err := f.sessions.FindOpen(ctx, "t2")
		require.NoError(t, err)
		assert.Nil(t, open)
	})

	t.Run("terminal taken", func(t *testing.T) {
		f := newStarterFixture(t, 600)
		_, err := f.terminals.CompareAndTransition(ctx, "t1", models.IdleState(), models.OfflineState(), t0)
		require.NoError(t, err)
		_, _, err = f.starter.Start(ctx, models.SessionStart{RecordID: "s1", TerminalID: "t1", UserID: "u1", At: t0})
		assert.ErrorIs(t, err, repository.ErrTransitionRejected)
		assert.EqualValues(t, 600, f.balance(t))
	})

	t.Run("unknown terminal", func(t *testing.T) {
		f := newStarterFixture(t, 600)
		_, _, err := f.starter.Start(ctx, models.SessionStart{RecordID: "s1", TerminalID: "nope", UserID: "u1", At: t0})
		assert.ErrorIs(t, err, repository.ErrTerminalNotFound)
	})
}

func TestStarterConcurrentStartsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newStarterFixture(t, 600)
	for i := 2; i <= 8; i++ {
		id := "u" + string(rune('0'+i))
		require.NoError(t, f.users.Create(ctx, &models.UserAccount{ID: id, Username: id, WalletBalanceSeconds: 600}))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _, err := f.starter.Start(ctx, models.SessionStart{RecordID: "s-" + id, TerminalID: "t1", UserID: id, At: t0})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}("u" + string(rune('0'+i)))
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	open, err := f.sessions.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}
