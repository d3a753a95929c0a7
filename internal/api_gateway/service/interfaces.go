package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/coin-ledger/internal/domain/account"
	"github.com/coin-ledger/internal/domain/ledger"
)

// Balance sources reported by GetBalance
const (
	BalanceSourceCache    = "cache"
	BalanceSourceDatabase = "database"
)

// AccountCreation is the result of the signup workflow. Bonus is nil when no
// registration bonus is configured.
type AccountCreation struct {
	Account *account.Account
	Bonus   *ledger.Entry
}

// BalanceView is a balance for display. Only a database read is authoritative;
// a cached value may lag behind the latest commit.
type BalanceView struct {
	AccountID uuid.UUID
	Balance   int64
	Source    string
}

// AccountService defines the gateway's account workflows
type AccountService interface {
	// CreateAccount creates the account and grants the registration bonus once.
	// A nil id lets the service pick one; a taken id returns ErrDuplicateAccount.
	CreateAccount(ctx context.Context, id uuid.UUID) (*AccountCreation, error)

	// GetAccount returns the account with its authoritative balance
	// Returns ErrAccountNotFound if the account doesn't exist
	GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error)

	// GetBalance serves the advisory cached balance, falling back to the database
	GetBalance(ctx context.Context, id uuid.UUID) (*BalanceView, error)
}

// BalanceCache is the advisory cache read by GetBalance
type BalanceCache interface {
	Get(ctx context.Context, accountID uuid.UUID) (int64, bool, error)
	Set(ctx context.Context, accountID uuid.UUID, balance int64) error
}
