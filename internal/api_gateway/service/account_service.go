package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	ledgerservice "github.com/coin-ledger/internal/coin_ledger/service"
	"github.com/coin-ledger/internal/domain/account"
)

// AccountServiceImpl implements the AccountService interface
type AccountServiceImpl struct {
	accountRepo       account.Repository
	bonus             ledgerservice.BonusGranter
	cache             BalanceCache
	registrationBonus int64
	logger            *slog.Logger
}

// NewAccountService creates a new account service. cache may be nil.
func NewAccountService(
	accountRepo account.Repository,
	bonus ledgerservice.BonusGranter,
	cache BalanceCache,
	registrationBonus int64,
	logger *slog.Logger,
) AccountService {
	return &AccountServiceImpl{
		accountRepo:       accountRepo,
		bonus:             bonus,
		cache:             cache,
		registrationBonus: registrationBonus,
		logger:            logger,
	}
}

// CreateAccount stores an empty account, then credits the registration bonus
// through the ledger. If the grant fails the account is soft deleted, so the
// bonus is never granted twice to a live account. A retry with the same
// requested id revives that account when it never received an entry.
func (s *AccountServiceImpl) CreateAccount(ctx context.Context, id uuid.UUID) (*AccountCreation, error) {
	acc := account.NewAccount()
	if id != uuid.Nil {
		acc.ID = id
	}

	if err := s.accountRepo.Create(ctx, acc); err != nil {
		if id == uuid.Nil || !errors.As(err, new(account.ErrDuplicateAccount)) {
			return nil, err
		}
		restored, restoreErr := s.accountRepo.Restore(ctx, id)
		if restoreErr != nil {
			if errors.Is(restoreErr, account.ErrAccountNotFound{}) {
				return nil, err
			}
			return nil, restoreErr
		}
		s.logger.Info("Revived account left without registration bonus", "account_id", id.String())
		acc = restored
	}

	logger := s.logger.With("account_id", acc.ID.String())
	if cid := ledgerservice.CorrelationIDFrom(ctx); cid != "" {
		logger = logger.With("correlation_id", cid)
	}

	creation := &AccountCreation{Account: acc}
	if s.registrationBonus == 0 {
		logger.Info("Account created without registration bonus")
		return creation, nil
	}

	result, err := s.bonus.GrantRegistrationBonus(ctx, acc.ID, s.registrationBonus)
	if err != nil {
		logger.Error("Registration bonus failed, removing account", "bonus", s.registrationBonus, "error", err)
		if delErr := s.accountRepo.SoftDelete(context.WithoutCancel(ctx), acc.ID); delErr != nil {
			logger.Error("Failed to remove account after bonus failure", "error", delErr)
			return nil, fmt.Errorf("grant registration bonus: %w (cleanup failed: %v)", err, delErr)
		}
		return nil, fmt.Errorf("grant registration bonus: %w", err)
	}

	acc.Balance = result.NewBalance
	creation.Bonus = result.Entry
	logger.Info("Account created", "bonus", s.registrationBonus, "balance", acc.Balance)
	return creation, nil
}

// GetAccount retrieves an account by its ID, returns ErrAccountNotFound if not found
func (s *AccountServiceImpl) GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	return s.accountRepo.GetByID(ctx, id)
}

// GetBalance prefers the cache and repopulates it from the database on a miss.
// Cache failures only cost the fallback read.
func (s *AccountServiceImpl) GetBalance(ctx context.Context, id uuid.UUID) (*BalanceView, error) {
	if s.cache != nil {
		balance, ok, err := s.cache.Get(ctx, id)
		switch {
		case err != nil:
			s.logger.Warn("Balance cache read failed, using database", "account_id", id.String(), "error", err)
		case ok:
			return &BalanceView{AccountID: id, Balance: balance, Source: BalanceSourceCache}, nil
		}
	}

	acc, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, id, acc.Balance); err != nil {
			s.logger.Warn("Failed to populate balance cache", "account_id", id.String(), "error", err)
		}
	}
	return &BalanceView{AccountID: id, Balance: acc.Balance, Source: BalanceSourceDatabase}, nil
}
