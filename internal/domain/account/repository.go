package account

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines account lifecycle persistence. It deliberately has no way
// to write a balance.
type Repository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	// GetIncludingDeleted also returns soft deleted accounts, for audit reads
	GetIncludingDeleted(ctx context.Context, id uuid.UUID) (*Account, error)
	SoftDelete(ctx context.Context, id uuid.UUID) error
	// Restore revives a soft deleted account that never received an entry.
	// It returns ErrAccountNotFound when no such account exists.
	Restore(ctx context.Context, id uuid.UUID) (*Account, error)
}

// BalanceStore is the locked read and balance write used by the ledger executor.
// Nothing else should depend on it.
type BalanceStore interface {
	// LockForUpdate acquires a row lock held until the surrounding transaction ends
	LockForUpdate(ctx context.Context, id uuid.UUID) (*Account, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, balance int64) error
	WithTx(tx pgx.Tx) BalanceStore
}

// ErrAccountNotFound indicates a missing or soft deleted account
type ErrAccountNotFound struct {
	AccountID uuid.UUID
}

func (e ErrAccountNotFound) Error() string {
	return "account not found: " + e.AccountID.String()
}

// Is matches any ErrAccountNotFound when the target carries no account id
func (e ErrAccountNotFound) Is(target error) bool {
	t, ok := target.(ErrAccountNotFound)
	if !ok {
		return false
	}
	if t.AccountID == uuid.Nil {
		return true
	}
	return e.AccountID == t.AccountID
}

// ErrDuplicateAccount indicates an account with the id already exists
type ErrDuplicateAccount struct {
	AccountID uuid.UUID
}

func (e ErrDuplicateAccount) Error() string {
	return "account already exists: " + e.AccountID.String()
}
