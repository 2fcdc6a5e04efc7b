package models

import "time"

// UserAccount holds a user's unscheduled time. WalletBalanceSeconds is never negative.
type UserAccount struct {
	ID                   string    `db:"id" json:"id"`
	Username             string    `db:"username" json:"username"`
	WalletBalanceSeconds int64     `db:"wallet_balance_seconds" json:"wallet_balance_seconds"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// Balance is a read-only view: wallet plus whatever is left of an active session.
type Balance struct {
	UserID           string `json:"user_id"`
	WalletSeconds    int64  `json:"wallet_seconds"`
	SessionSeconds   int64  `json:"session_seconds"`
	EffectiveSeconds int64  `json:"effective_seconds"`
	ActiveTerminalID string `json:"active_terminal_id,omitempty"`
}
