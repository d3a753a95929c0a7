package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/coin-ledger/internal/domain/ledger"
)

// SpendGatewayImpl implements the SpendGateway interface
type SpendGatewayImpl struct {
	executor Executor
	logger   *slog.Logger
}

// NewSpendGateway creates a new spend gateway
func NewSpendGateway(executor Executor, logger *slog.Logger) SpendGateway {
	return &SpendGatewayImpl{
		executor: executor,
		logger:   logger,
	}
}

// Spend debits cost coins for one tool invocation. The affordability decision
// is made by the executor under lock; ExpectedBalance is only compared and logged.
func (g *SpendGatewayImpl) Spend(ctx context.Context, req *SpendRequest) (*SpendResult, error) {
	if req.Cost <= 0 {
		return nil, ledger.ErrInvalidAmount
	}

	result, err := g.executor.Apply(ctx, &MutationRequest{
		AccountID:      req.AccountID,
		Kind:           ledger.KindSpend,
		Amount:         -req.Cost,
		ToolReference:  req.ToolReference,
		Description:    "Tool usage: " + req.ToolReference,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  req.CorrelationID,
	})
	if err != nil {
		var insufficient ledger.ErrInsufficientBalance
		if errors.As(err, &insufficient) && req.ExpectedBalance != nil && *req.ExpectedBalance >= req.Cost {
			g.logger.Warn("Client balance hint allowed a spend the ledger refused",
				"account_id", req.AccountID.String(),
				"expected_balance", *req.ExpectedBalance,
				"balance", insufficient.Balance,
				"cost", req.Cost)
		}
		return nil, err
	}

	spend := &SpendResult{MutationResult: *result}
	if req.ExpectedBalance != nil && !result.Replayed && *req.ExpectedBalance != result.Entry.BalanceBefore {
		spend.StaleHint = true
		g.logger.Info("Stale client balance hint",
			"account_id", req.AccountID.String(),
			"expected_balance", *req.ExpectedBalance,
			"balance_before", result.Entry.BalanceBefore,
			"correlation_id", req.CorrelationID)
	}
	return spend, nil
}

// Refund credits back coins of an earlier spend of the same account. The
// executor checks, under the account lock, that earlier refunds of that spend
// plus this one stay within what was spent.
func (g *SpendGatewayImpl) Refund(ctx context.Context, req *RefundRequest) (*MutationResult, error) {
	if req.Amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	if req.OriginalEntryID == uuid.Nil {
		return nil, ledger.ErrInvalidRefund
	}

	metadata := map[string]any{
		ledger.MetadataRefundedEntryID: req.OriginalEntryID.String(),
	}
	description := "Refund"
	if req.ToolReference != "" {
		metadata["tool_reference"] = req.ToolReference
		description = fmt.Sprintf("Refund: %s", req.ToolReference)
	}
	if req.Reason != "" {
		metadata["reason"] = req.Reason
	}

	return g.executor.Apply(ctx, &MutationRequest{
		AccountID:      req.AccountID,
		Kind:           ledger.KindRefund,
		Amount:         req.Amount,
		Description:    description,
		Metadata:       metadata,
		RefundOf:       req.OriginalEntryID,
		IdempotencyKey: req.IdempotencyKey,
		CorrelationID:  req.CorrelationID,
	})
}
