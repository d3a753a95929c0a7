package components

import (
	"log/slog"

	"github.com/coin-ledger/internal/coin_ledger/service"
	"github.com/coin-ledger/internal/config"
	"github.com/coin-ledger/internal/data/postgres"
	"github.com/coin-ledger/internal/domain/account"
	"github.com/coin-ledger/internal/domain/ledger"
	"github.com/coin-ledger/internal/platform/persistence"
)

// Ledger holds the wired ledger services and the read repositories the
// gateway needs alongside them
type Ledger struct {
	Accounts account.Repository
	Entries  ledger.Repository
	Executor service.Executor
	Spend    service.SpendGateway
	Admin    service.AdminAdjuster
	Bonus    service.BonusGranter
	History  service.HistoryReader
	Reasons  service.ReasonCatalog
}

// CreateLedger wires the executor and its wrappers on top of PostgreSQL.
// observers are notified after every committed entry.
func CreateLedger(
	pgDB *persistence.PostgresDB,
	recorder service.MutationRecorder,
	logger *slog.Logger,
	cfg *config.LedgerConfig,
	observers ...service.BalanceObserver,
) *Ledger {
	accountRepo := postgres.NewAccountRepository(logger, pgDB)
	balanceStore := postgres.NewAccountBalanceStore(logger, pgDB)
	entryRepo := postgres.NewEntryRepository(logger, pgDB)
	outboxRepo := postgres.NewOutboxRepository(logger, pgDB)
	reasonRepo := postgres.NewReasonRepository(logger, pgDB)

	uow := NewPostgresUnitOfWork(pgDB, balanceStore, entryRepo, outboxRepo)
	executor := service.NewExecutor(uow, recorder, logger.With("component", "executor"), observers...)
	catalog := service.NewReasonCatalog(reasonRepo, entryRepo, logger.With("component", "reason_catalog"))

	logger.Info("Created coin ledger services",
		"strict_reasons", cfg.StrictReasons,
		"observers", len(observers))

	return &Ledger{
		Accounts: accountRepo,
		Entries:  entryRepo,
		Executor: executor,
		Spend:    service.NewSpendGateway(executor, logger.With("component", "spend_gateway")),
		Admin:    service.NewAdminAdjuster(executor, catalog, cfg.StrictReasons, logger.With("component", "admin_adjuster")),
		Bonus:    service.NewBonusGranter(executor, logger.With("component", "bonus_granter")),
		History:  service.NewHistoryReader(accountRepo, entryRepo, cfg.DefaultPageSize, cfg.MaxPageSize, logger.With("component", "history_reader")),
		Reasons:  catalog,
	}
}
