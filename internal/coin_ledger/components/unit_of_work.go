package components

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/coin-ledger/internal/coin_ledger/service"
	"github.com/coin-ledger/internal/domain/account"
	"github.com/coin-ledger/internal/domain/ledger"
	"github.com/coin-ledger/internal/domain/outbox"
)

// Transactor runs fn in one database transaction
type Transactor interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// PostgresUnitOfWork binds the ledger repositories to one transaction, so the
// row lock, balance write, entry and outbox message commit together
type PostgresUnitOfWork struct {
	db       Transactor
	balances account.BalanceStore
	entries  ledger.Repository
	outbox   outbox.Repository
}

// NewPostgresUnitOfWork creates the transactional unit of work used by the executor
func NewPostgresUnitOfWork(db Transactor, balances account.BalanceStore, entries ledger.Repository, outboxRepo outbox.Repository) *PostgresUnitOfWork {
	return &PostgresUnitOfWork{
		db:       db,
		balances: balances,
		entries:  entries,
		outbox:   outboxRepo,
	}
}

func (u *PostgresUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context, stores service.Stores) error) error {
	return u.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, service.Stores{
			Balances: u.balances.WithTx(tx),
			Entries:  u.entries.WithTx(tx),
			Outbox:   u.outbox.WithTx(tx),
		})
	})
}
