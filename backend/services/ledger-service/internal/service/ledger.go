package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"termledger/backend/services/ledger-service/internal/models"
	"termledger/backend/services/ledger-service/internal/repository"
)

// Ledger owns user accounts and their wallet balance in seconds.
type Ledger struct {
	users     UserStore
	terminals TerminalRegistry
	notifier  Notifier
	now       Clock
	logger    *zap.Logger
}

// UserView pairs an account with its computed balance.
type UserView struct {
	models.UserAccount
	Balance models.Balance `json:"balance"`
}

// NewLedger builds the user ledger. terminals is only read, to fold in active-session time.
func NewLedger(users UserStore, terminals TerminalRegistry, notifier Notifier, now Clock, logger *zap.Logger) *Ledger {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if now == nil {
		now = SystemClock
	}
	return &Ledger{
		users:     users,
		terminals: terminals,
		notifier:  notifier,
		now:       now,
		logger:    logger,
	}
}

// Credit adds seconds to the wallet. Zero is a no-op; negative amounts are rejected.
func (l *Ledger) Credit(ctx context.Context, userID string, seconds int64) (*models.UserAccount, error) {
	if seconds < 0 {
		return nil, ErrInvalidCredit
	}
	if seconds == 0 {
		return l.get(ctx, userID)
	}
	user, err := l.users.AddBalance(ctx, userID, seconds)
	if err != nil {
		return nil, mapUserErr(err)
	}
	l.publish(models.OpUpdate, user)
	return user, nil
}

// CreditOnce credits seconds under an idempotency key; repeating a key never credits twice.
// applied reports whether this call moved the balance.
func (l *Ledger) CreditOnce(ctx context.Context, userID string, seconds int64, key string) (user *models.UserAccount, applied bool, err error) {
	if seconds < 0 {
		return nil, false, ErrInvalidCredit
	}
	if seconds == 0 {
		user, err = l.get(ctx, userID)
		return user, false, err
	}
	if key == "" {
		return nil, false, errors.New("ledger: credit key is required")
	}
	user, applied, err = l.users.AddBalanceOnce(ctx, userID, seconds, key)
	if err != nil {
		return nil, false, mapUserErr(err)
	}
	if applied {
		l.publish(models.OpUpdate, user)
	}
	return user, applied, nil
}

// WithdrawAll reads and zeroes the wallet in one step and returns what was there.
func (l *Ledger) WithdrawAll(ctx context.Context, userID string) (int64, error) {
	return l.withdraw(ctx, userID, 0)
}

// WithdrawUpTo moves min(balance, limit) seconds out of the wallet.
func (l *Ledger) WithdrawUpTo(ctx context.Context, userID string, limit int64) (int64, error) {
	if limit <= 0 {
		return 0, ErrInvalidDuration
	}
	return l.withdraw(ctx, userID, limit)
}

func (l *Ledger) withdraw(ctx context.Context, userID string, limit int64) (int64, error) {
	amount, err := l.users.Withdraw(ctx, userID, limit)
	if err != nil {
		return 0, mapUserErr(err)
	}
	if amount > 0 {
		if user, err := l.users.Get(ctx, userID); err == nil {
			l.publish(models.OpUpdate, user)
		}
	}
	return amount, nil
}

// BalanceOf returns the stored wallet balance.
func (l *Ledger) BalanceOf(ctx context.Context, userID string) (int64, error) {
	user, err := l.get(ctx, userID)
	if err != nil {
		return 0, err
	}
	return user.WalletBalanceSeconds, nil
}

// EffectiveBalanceOf returns the wallet plus the remainder of the user's active session,
// computed from the stored session end time at call time.
func (l *Ledger) EffectiveBalanceOf(ctx context.Context, userID string) (models.Balance, error) {
	view, err := l.User(ctx, userID)
	if err != nil {
		return models.Balance{}, err
	}
	return view.Balance, nil
}

// User returns one account with its effective balance.
func (l *Ledger) User(ctx context.Context, userID string) (*UserView, error) {
	user, err := l.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	active, err := l.terminals.FindByOccupant(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find active terminal: %w", err)
	}
	return &UserView{UserAccount: *user, Balance: balanceFor(*user, active, l.now())}, nil
}

// ListUsers returns every account with its effective balance, evaluated at one instant.
func (l *Ledger) ListUsers(ctx context.Context) ([]UserView, error) {
	users, err := l.users.List(ctx)
	if err != nil {
		return nil, err
	}
	inUse, err := l.terminals.ListInUse(ctx)
	if err != nil {
		return nil, err
	}
	byOccupant := make(map[string]*models.Terminal, len(inUse))
	for i := range inUse {
		byOccupant[inUse[i].OccupantUserID] = &inUse[i]
	}

	now := l.now()
	views := make([]UserView, 0, len(users))
	for _, u := range users {
		views = append(views, UserView{UserAccount: u, Balance: balanceFor(u, byOccupant[u.ID], now)})
	}
	return views, nil
}

// CreateUser registers a user with an empty wallet.
func (l *Ledger) CreateUser(ctx context.Context, username string) (*models.UserAccount, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	user := &models.UserAccount{
		ID:        uuid.NewString(),
		Username:  username,
		CreatedAt: l.now(),
	}
	if err := l.users.Create(ctx, user); err != nil {
		return nil, mapUserErr(err)
	}
	l.logger.Info("user created", zap.String("user_id", user.ID), zap.String("username", user.Username))
	l.publish(models.OpInsert, user)
	return user, nil
}

// RenameUser changes a username.
func (l *Ledger) RenameUser(ctx context.Context, userID, username string) (*models.UserAccount, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	user, err := l.users.Rename(ctx, userID, username)
	if err != nil {
		return nil, mapUserErr(err)
	}
	l.publish(models.OpUpdate, user)
	return user, nil
}

// DeleteUser removes a user who does not occupy a terminal.
func (l *Ledger) DeleteUser(ctx context.Context, userID string) error {
	user, err := l.get(ctx, userID)
	if err != nil {
		return err
	}
	active, err := l.terminals.FindByOccupant(ctx, userID)
	if err != nil {
		return fmt.Errorf("find active terminal: %w", err)
	}
	if active != nil {
		return ErrUserActive
	}
	if err := l.users.Delete(ctx, userID); err != nil {
		return mapUserErr(err)
	}
	l.logger.Info("user deleted", zap.String("user_id", userID))
	l.publish(models.OpDelete, user)
	return nil
}

// TopUp is the administrative grant entry point; it reuses Credit.
func (l *Ledger) TopUp(ctx context.Context, userID string, seconds int64) (*models.UserAccount, error) {
	user, err := l.Credit(ctx, userID, seconds)
	if err != nil {
		return nil, err
	}
	l.logger.Info("balance topped up",
		zap.String("user_id", userID),
		zap.Int64("seconds", seconds),
		zap.Int64("wallet_seconds", user.WalletBalanceSeconds),
	)
	return user, nil
}

func (l *Ledger) get(ctx context.Context, userID string) (*models.UserAccount, error) {
	user, err := l.users.Get(ctx, userID)
	if err != nil {
		return nil, mapUserErr(err)
	}
	return user, nil
}

func (l *Ledger) publish(op models.ChangeOp, user *models.UserAccount) {
	l.notifier.Notify(models.ChangeEvent{Entity: models.EntityUser, Op: op, Row: *user, At: l.now()})
}

func balanceFor(user models.UserAccount, active *models.Terminal, now time.Time) models.Balance {
	b := models.Balance{UserID: user.ID, WalletSeconds: user.WalletBalanceSeconds}
	if active != nil && active.OccupantUserID == user.ID {
		b.SessionSeconds = active.RemainingSeconds(now)
		b.ActiveTerminalID = active.ID
	}
	b.EffectiveSeconds = b.WalletSeconds + b.SessionSeconds
	return b
}

func mapUserErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, repository.ErrUsernameTaken):
		return ErrUsernameTaken
	default:
		return err
	}
}
