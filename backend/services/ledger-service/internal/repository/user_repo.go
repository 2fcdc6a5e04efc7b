package repository

import (
	"context"
	"database/sql"
	"errors"

	"termledger/backend/services/ledger-service/internal/models"
)

const userColumns = `id, username, wallet_balance_seconds, created_at`

// UserRepository is the Postgres store behind the user ledger.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository returns repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user with a zero wallet.
func (r *UserRepository) Create(ctx context.Context, user *models.UserAccount) error {
	const query = `
		INSERT INTO user_accounts (id, username, wallet_balance_seconds, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns
	created, err := scanUser(r.db.QueryRowContext(ctx, query, user.ID, user.Username, user.WalletBalanceSeconds, user.CreatedAt))
	if err != nil {
		if isConstraint(err, pgUniqueViolation, usernameIndex) {
			return ErrUsernameTaken
		}
		return err
	}
	*user = *created
	return nil
}

// Get returns a user by id.
func (r *UserRepository) Get(ctx context.Context, id string) (*models.UserAccount, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM user_accounts WHERE id = $1 AND deleted_at IS NULL`, id)
}

// List returns all live users ordered by username.
func (r *UserRepository) List(ctx context.Context) ([]models.UserAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM user_accounts
		WHERE deleted_at IS NULL
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.UserAccount
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Rename changes the username.
func (r *UserRepository) Rename(ctx context.Context, id, username string) (*models.UserAccount, error) {
	u, err := r.one(ctx, `
		UPDATE user_accounts
		SET username = $2
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+userColumns, id, username)
	if isConstraint(err, pgUniqueViolation, usernameIndex) {
		return nil, ErrUsernameTaken
	}
	return u, err
}

// Delete marks the user deleted. The row stays so session records and credit keys keep
// their owner, and the username becomes free for a new account.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE user_accounts
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AddBalance adds seconds to the wallet in one statement, so concurrent credits never lose updates.
func (r *UserRepository) AddBalance(ctx context.Context, id string, seconds int64) (*models.UserAccount, error) {
	return r.one(ctx, `
		UPDATE user_accounts
		SET wallet_balance_seconds = wallet_balance_seconds + $2
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+userColumns, id, seconds)
}

// AddBalanceOnce credits seconds unless key was already applied. The key claim and the balance
// update run as one statement; applied is false when the key existed. Deleted users claim
// nothing and get ErrUserNotFound.
func (r *UserRepository) AddBalanceOnce(ctx context.Context, id string, seconds int64, key string) (*models.UserAccount, bool, error) {
	const query = `
		WITH claimed AS (
			INSERT INTO wallet_credits (credit_key, user_id, seconds, created_at)
			SELECT $3, id, $2, NOW()
			FROM user_accounts
			WHERE id = $1 AND deleted_at IS NULL
			ON CONFLICT (credit_key) DO NOTHING
			RETURNING user_id, seconds
		)
		UPDATE user_accounts u
		SET wallet_balance_seconds = u.wallet_balance_seconds + c.seconds
		FROM claimed c
		WHERE u.id = c.user_id
		RETURNING u.id, u.username, u.wallet_balance_seconds, u.created_at
	`
	u, err := scanUser(r.db.QueryRowContext(ctx, query, id, seconds, key))
	switch {
	case err == nil:
		return u, true, nil
	case errors.Is(err, sql.ErrNoRows):
		existing, getErr := r.Get(ctx, id)
		return existing, false, getErr
	default:
		return nil, false, err
	}
}

// Withdraw atomically moves min(balance, limit) out of the wallet and returns the amount.
// A limit <= 0 withdraws the entire balance.
func (r *UserRepository) Withdraw(ctx context.Context, id string, limit int64) (int64, error) {
	return withdraw(ctx, r.db, id, limit)
}

func withdraw(ctx context.Context, q dbtx, id string, limit int64) (int64, error) {
	const query = `
		UPDATE user_accounts u
		SET wallet_balance_seconds = u.wallet_balance_seconds - taken.amount
		FROM (
			SELECT id,
			       CASE WHEN $2::bigint <= 0 THEN wallet_balance_seconds
			            ELSE LEAST(wallet_balance_seconds, $2::bigint) END AS amount
			FROM user_accounts
			WHERE id = $1 AND deleted_at IS NULL
			FOR UPDATE
		) taken
		WHERE u.id = taken.id
		RETURNING taken.amount
	`
	var amount int64
	err := q.QueryRowContext(ctx, query, id, limit).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return amount, err
}

func (r *UserRepository) one(ctx context.Context, query string, args ...any) (*models.UserAccount, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}
