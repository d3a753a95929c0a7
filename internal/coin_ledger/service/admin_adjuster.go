package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/coin-ledger/internal/domain/ledger"
)

// Reason sources recorded in admin entry metadata
const (
	ReasonSourceCatalog  = "catalog"
	ReasonSourceFreeText = "free_text"
)

// AdminAdjusterImpl implements the AdminAdjuster interface
type AdminAdjusterImpl struct {
	executor      Executor
	catalog       ReasonCatalog
	strictReasons bool
	logger        *slog.Logger
}

// NewAdminAdjuster creates the admin adjustment service. With strictReasons
// set, reasons missing from the active catalog are refused.
func NewAdminAdjuster(executor Executor, catalog ReasonCatalog, strictReasons bool, logger *slog.Logger) AdminAdjuster {
	return &AdminAdjusterImpl{
		executor:      executor,
		catalog:       catalog,
		strictReasons: strictReasons,
		logger:        logger,
	}
}

// Adjust credits or debits the account on behalf of an operator
func (a *AdminAdjusterImpl) Adjust(ctx context.Context, adj *AdminAdjustment) (*MutationResult, error) {
	logger := a.logger
	if adj.CorrelationID != "" {
		logger = a.logger.With("correlation_id", adj.CorrelationID)
	}

	if !adj.Direction.IsValid() {
		return nil, ledger.ErrInvalidDirection
	}
	if adj.Amount <= 0 {
		return nil, ledger.ErrInvalidAmount
	}
	text := strings.TrimSpace(adj.Reason)
	if text == "" {
		return nil, ledger.ErrInvalidReason{Direction: adj.Direction}
	}

	metadata := map[string]any{
		"admin_action": true,
		"reason_text":  text,
	}
	if adj.Operator != "" {
		metadata["operator"] = adj.Operator
	}

	matched, err := a.catalog.Match(ctx, adj.Direction, text)
	if err != nil {
		return nil, &ledger.StorageError{Op: "match reason", Err: err}
	}

	description := text
	if matched != nil {
		description = matched.Text
		metadata["reason_id"] = matched.ID.String()
		metadata["reason_source"] = ReasonSourceCatalog
	} else {
		if a.strictReasons {
			logger.Warn("Admin reason not in catalog, refusing adjustment",
				"account_id", adj.AccountID.String(),
				"direction", string(adj.Direction),
				"reason", text)
			return nil, ledger.ErrInvalidReason{Text: text, Direction: adj.Direction}
		}
		logger.Warn("Admin adjustment uses a free text reason outside the catalog",
			"account_id", adj.AccountID.String(),
			"direction", string(adj.Direction),
			"reason", text,
			"operator", adj.Operator)
		metadata["reason_source"] = ReasonSourceFreeText
	}

	kind := adj.Direction.Kind()
	return a.executor.Apply(ctx, &MutationRequest{
		AccountID:      adj.AccountID,
		Kind:           kind,
		Amount:         kind.Sign() * adj.Amount,
		Description:    description,
		Metadata:       metadata,
		IdempotencyKey: adj.IdempotencyKey,
		CorrelationID:  adj.CorrelationID,
	})
}
