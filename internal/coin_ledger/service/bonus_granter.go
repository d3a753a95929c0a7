package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/coin-ledger/internal/domain/ledger"
)

// BonusGranterImpl implements the BonusGranter interface
type BonusGranterImpl struct {
	executor Executor
	logger   *slog.Logger
}

// NewBonusGranter creates a new bonus granter
func NewBonusGranter(executor Executor, logger *slog.Logger) BonusGranter {
	return &BonusGranterImpl{
		executor: executor,
		logger:   logger,
	}
}

// GrantRegistrationBonus credits the signup bonus. Whether the account already
// received it is the account creation workflow's concern.
func (b *BonusGranterImpl) GrantRegistrationBonus(ctx context.Context, accountID uuid.UUID, amount int64) (*MutationResult, error) {
	if amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	return b.executor.Apply(ctx, &MutationRequest{
		AccountID:     accountID,
		Kind:          ledger.KindRegistrationBonus,
		Amount:        amount,
		Description:   "Registration bonus",
		CorrelationID: CorrelationIDFrom(ctx),
	})
}

// Earn credits coins earned through the product, such as a referral
func (b *BonusGranterImpl) Earn(ctx context.Context, req *EarnRequest) (*MutationResult, error) {
	if req.Amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	description := req.Description
	if description == "" {
		description = "Earned coins"
	}
	return b.executor.Apply(ctx, &MutationRequest{
		AccountID:      req.AccountID,
		Kind:           ledger.KindEarn,
		Amount:         req.Amount,
		Description:    description,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  req.CorrelationID,
	})
}
