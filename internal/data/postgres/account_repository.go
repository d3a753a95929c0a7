// Package postgres provides PostgreSQL implementations of the domain repositories.
// Balance writes live on AccountBalanceStore, which only the ledger executor receives.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coin-ledger/internal/domain/account"
	"github.com/coin-ledger/internal/platform/persistence"
)

const accountColumns = `id, balance, version, created_at, updated_at, deleted_at`

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(logger *slog.Logger, db *persistence.PostgresDB) account.Repository {
	return &AccountRepository{
		querier: db.Querier(),
		logger:  logger,
	}
}

// Create stores a new account. The balance column is always written as zero;
// credits arrive only as ledger entries.
func (r *AccountRepository) Create(ctx context.Context, acc *account.Account) error {
	query := `
		INSERT INTO accounts (id, balance, version, created_at, updated_at)
		VALUES ($1, 0, $2, $3, $4)
	`

	_, err := r.querier.Exec(ctx, query,
		acc.ID,
		acc.Version,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrDuplicateAccount{AccountID: acc.ID}
		}
		r.logger.Error("Failed to create account", "id", acc.ID.String(), "error", err)
		return fmt.Errorf("failed to create account: %w", err)
	}

	acc.Balance = 0
	return nil
}

// GetByID retrieves a live account by its ID
func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.getAccount(ctx, query, id)
}

// GetIncludingDeleted retrieves the account whether or not it was soft deleted
func (r *AccountRepository) GetIncludingDeleted(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1
	`
	return r.getAccount(ctx, query, id)
}

// Restore clears deleted_at on an account without any ledger entry, which is
// what a failed registration bonus leaves behind
func (r *AccountRepository) Restore(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `
		UPDATE accounts
		SET deleted_at = NULL, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NOT NULL AND balance = 0
		  AND NOT EXISTS (SELECT 1 FROM coin_ledger_entries WHERE account_id = $1)
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to restore account", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to restore account: %w", err)
	}
	return acc, nil
}

func (r *AccountRepository) getAccount(ctx context.Context, query string, id uuid.UUID) (*account.Account, error) {
	acc, err := scanAccount(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to get account", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return acc, nil
}

// SoftDelete marks the account deleted. Entries are kept for audit.
func (r *AccountRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE accounts
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := r.querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to soft delete account", "id", id.String(), "error", err)
		return fmt.Errorf("failed to soft delete account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return account.ErrAccountNotFound{AccountID: id}
	}

	return nil
}

// AccountBalanceStore implements account.BalanceStore for PostgreSQL
type AccountBalanceStore struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewAccountBalanceStore creates the balance store handed to the ledger executor
func NewAccountBalanceStore(logger *slog.Logger, db *persistence.PostgresDB) account.BalanceStore {
	return &AccountBalanceStore{
		querier: db.Querier(),
		logger:  logger,
	}
}

// WithTx binds the store to a transaction so the row lock is held until commit
func (s *AccountBalanceStore) WithTx(tx pgx.Tx) account.BalanceStore {
	return &AccountBalanceStore{
		querier: tx,
		logger:  s.logger,
	}
}

// LockForUpdate obtains a pessimistic lock on a live account and returns its
// current state. Must run inside a transaction.
func (s *AccountBalanceStore) LockForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`

	acc, err := scanAccount(s.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
		s.logger.Error("Failed to lock account for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock account for update: %w", err)
	}

	return acc, nil
}

// UpdateBalance writes the balance computed under the row lock
func (s *AccountBalanceStore) UpdateBalance(ctx context.Context, id uuid.UUID, balance int64) error {
	query := `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := s.querier.Exec(ctx, query, balance, id)
	if err != nil {
		s.logger.Error("Failed to update account balance", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update account balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		return account.ErrAccountNotFound{AccountID: id}
	}

	return nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var acc account.Account
	err := row.Scan(
		&acc.ID,
		&acc.Balance,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
		&acc.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}
