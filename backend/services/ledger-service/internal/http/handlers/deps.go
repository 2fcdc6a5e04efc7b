package handlers

import (
	"context"

	"termledger/backend/services/ledger-service/internal/models"
	"termledger/backend/services/ledger-service/internal/service"
)

// SessionController is the part of service.Controller the handlers call.
type SessionController interface {
	StartSession(ctx context.Context, req service.StartRequest) (*service.StartResult, error)
	StopSession(ctx context.Context, terminalID, userID string) (*service.CloseResult, error)
	ForceStop(ctx context.Context, terminalID string) (*service.CloseResult, error)
	ListTerminals(ctx context.Context) ([]service.TerminalView, error)
	SetOffline(ctx context.Context, terminalID string) (*models.Terminal, error)
	SetOnline(ctx context.Context, terminalID string) (*models.Terminal, error)
	SessionsForUser(ctx context.Context, userID string, limit int) ([]models.SessionRecord, error)
	Pending() []service.PendingSettlement
	SettlePending(ctx context.Context) (int, error)
}

// UserLedger is the part of service.Ledger the handlers call.
type UserLedger interface {
	User(ctx context.Context, userID string) (*service.UserView, error)
	ListUsers(ctx context.Context) ([]service.UserView, error)
	CreateUser(ctx context.Context, username string) (*models.UserAccount, error)
	RenameUser(ctx context.Context, userID, username string) (*models.UserAccount, error)
	DeleteUser(ctx context.Context, userID string) error
	TopUp(ctx context.Context, userID string, seconds int64) (*models.UserAccount, error)
}
