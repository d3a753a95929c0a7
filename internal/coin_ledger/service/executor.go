// Package service implements the coin ledger operations. Every balance change
// goes through ExecutorImpl.Apply; the other services are thin wrappers.
package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coin-ledger/internal/domain/account"
	"github.com/coin-ledger/internal/domain/ledger"
	"github.com/coin-ledger/internal/domain/outbox"
	"github.com/coin-ledger/internal/domain/shared"
	"github.com/coin-ledger/internal/observability"
)

// ExecutorImpl implements the Executor interface
type ExecutorImpl struct {
	uow       UnitOfWork
	observers []BalanceObserver
	recorder  MutationRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewExecutor creates the ledger executor. recorder may be nil.
func NewExecutor(uow UnitOfWork, recorder MutationRecorder, logger *slog.Logger, observers ...BalanceObserver) *ExecutorImpl {
	return &ExecutorImpl{
		uow:       uow,
		observers: observers,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// Apply performs exactly one balance mutation. The account row is locked for
// the whole read, compute, write and append sequence; a mutation that would
// leave the balance negative writes nothing.
func (e *ExecutorImpl) Apply(ctx context.Context, req *MutationRequest) (*MutationResult, error) {
	start := e.now()
	logger := e.logger
	if req.CorrelationID != "" {
		logger = e.logger.With("correlation_id", req.CorrelationID)
	}

	if err := validateMutation(req); err != nil {
		logger.Warn("Rejected invalid ledger mutation",
			"account_id", req.AccountID.String(),
			"kind", string(req.Kind),
			"amount", req.Amount,
			"error", err)
		e.observe(req.Kind, observability.OutcomeRejected, start)
		return nil, err
	}

	var result *MutationResult
	err := e.uow.Do(ctx, func(ctx context.Context, stores Stores) error {
		res, err := e.applyLocked(ctx, stores, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		err = classifyError(err)
		e.logFailure(logger, req, err)
		e.observe(req.Kind, outcomeOf(err), start)
		return nil, err
	}

	if result.Replayed {
		logger.Info("Replayed ledger mutation",
			"account_id", req.AccountID.String(),
			"entry_id", result.Entry.ID.String(),
			"idempotency_key", req.IdempotencyKey)
		e.observe(req.Kind, observability.OutcomeReplayed, start)
		return result, nil
	}

	logger.Info("Ledger entry committed",
		"account_id", req.AccountID.String(),
		"entry_id", result.Entry.ID.String(),
		"kind", string(result.Entry.Kind),
		"amount", result.Entry.Amount,
		"balance_before", result.Entry.BalanceBefore,
		"balance_after", result.Entry.BalanceAfter)
	e.observe(req.Kind, observability.OutcomeCommitted, start)
	e.notify(ctx, result.Entry)

	return result, nil
}

func (e *ExecutorImpl) applyLocked(ctx context.Context, stores Stores, req *MutationRequest) (*MutationResult, error) {
	acc, err := stores.Balances.LockForUpdate(ctx, req.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound{}) {
			return nil, err
		}
		return nil, &ledger.StorageError{Op: "lock account", Err: err}
	}

	if req.IdempotencyKey != "" {
		existing, err := stores.Entries.GetByIdempotencyKey(ctx, req.AccountID, req.IdempotencyKey)
		switch {
		case err == nil:
			if existing.Kind != req.Kind || existing.Amount != req.Amount {
				return nil, ledger.ErrIdempotencyConflict
			}
			return &MutationResult{Entry: existing, NewBalance: acc.Balance, Replayed: true}, nil
		case !errors.Is(err, ledger.ErrEntryNotFound{}):
			return nil, &ledger.StorageError{Op: "idempotency lookup", Err: err}
		}
	}

	if req.Kind == ledger.KindRefund {
		original, err := refundTarget(ctx, stores.Entries, req)
		if err != nil {
			return nil, err
		}
		req = inheritSpendTool(req, original)
	}

	after, ok := acc.Projected(req.Amount)
	if !ok {
		return nil, ledger.ErrInvalidAmount
	}
	if after < 0 {
		return nil, ledger.ErrInsufficientBalance{
			AccountID: acc.ID,
			Balance:   acc.Balance,
			Requested: -req.Amount,
		}
	}

	if err := stores.Balances.UpdateBalance(ctx, acc.ID, after); err != nil {
		return nil, &ledger.StorageError{Op: "update balance", Err: err}
	}

	entry := &ledger.Entry{
		ID:             uuid.New(),
		AccountID:      acc.ID,
		Kind:           req.Kind,
		Amount:         req.Amount,
		BalanceBefore:  acc.Balance,
		BalanceAfter:   after,
		Description:    req.Description,
		Metadata:       req.Metadata,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.ToolReference != "" {
		tool := req.ToolReference
		entry.ToolReference = &tool
	}

	if err := stores.Entries.Append(ctx, entry); err != nil {
		if errors.Is(err, ledger.ErrIdempotencyConflict) {
			return nil, ledger.ErrIdempotencyConflict
		}
		return nil, &ledger.StorageError{Op: "append entry", Err: err}
	}

	message, err := outbox.NewMessage(shared.NewLedgerEvent(entry, req.CorrelationID))
	if err != nil {
		return nil, &ledger.StorageError{Op: "encode ledger event", Err: err}
	}
	if err := stores.Outbox.Create(ctx, message); err != nil {
		return nil, &ledger.StorageError{Op: "write outbox", Err: err}
	}

	return &MutationResult{Entry: entry, NewBalance: after}, nil
}

// refundTarget loads the reversed spend and checks the refund fits in what is
// left of it. Refunds of one spend share its account, so the account lock held
// by the caller serializes them.
func refundTarget(ctx context.Context, entries ledger.Repository, req *MutationRequest) (*ledger.Entry, error) {
	original, err := entries.GetByID(ctx, req.RefundOf)
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound{}) {
			return nil, ledger.ErrEntryNotFound{EntryID: req.RefundOf}
		}
		return nil, &ledger.StorageError{Op: "load refunded entry", Err: err}
	}
	if original.AccountID != req.AccountID || original.Kind != ledger.KindSpend {
		return nil, ledger.ErrInvalidRefund
	}

	refunded, err := entries.RefundedAmount(ctx, original.ID)
	if err != nil {
		return nil, &ledger.StorageError{Op: "sum refunds", Err: err}
	}
	if req.Amount > original.Magnitude()-refunded {
		return nil, ledger.ErrInvalidRefund
	}
	return original, nil
}

// inheritSpendTool records the spend's tool on a refund that named none
func inheritSpendTool(req *MutationRequest, original *ledger.Entry) *MutationRequest {
	if original.ToolReference == nil {
		return req
	}
	if _, ok := req.Metadata["tool_reference"]; ok {
		return req
	}
	out := *req
	out.Metadata = maps.Clone(req.Metadata)
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	out.Metadata["tool_reference"] = *original.ToolReference
	out.Description = "Refund: " + *original.ToolReference
	return &out
}

// validateMutation checks kind, sign and tool reference before any storage access
func validateMutation(req *MutationRequest) error {
	if req.AccountID == uuid.Nil {
		return account.ErrAccountNotFound{}
	}
	if !req.Kind.IsValid() {
		return ledger.ErrInvalidKind
	}
	if req.Amount == 0 || (req.Amount < 0) != req.Kind.IsDebit() {
		return ledger.ErrInvalidAmount
	}
	hasTool := strings.TrimSpace(req.ToolReference) != ""
	if req.Kind == ledger.KindRefund && req.RefundOf == uuid.Nil {
		return ledger.ErrInvalidRefund
	}
	if req.Kind.RequiresToolReference() && !hasTool {
		return ledger.ErrToolReferenceRequired
	}
	if !req.Kind.RequiresToolReference() && req.ToolReference != "" {
		return ledger.ErrUnexpectedToolReference
	}
	return nil
}

// classifyError passes domain errors through and wraps anything else, such as a
// failed begin or commit, as a storage failure
func classifyError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrStorageFailure),
		errors.Is(err, ledger.ErrInsufficientBalance{}),
		errors.Is(err, account.ErrAccountNotFound{}),
		errors.Is(err, ledger.ErrIdempotencyConflict),
		errors.Is(err, ledger.ErrInvalidRefund),
		errors.Is(err, ledger.ErrEntryNotFound{}),
		errors.Is(err, ledger.ErrInvalidAmount):
		return err
	}
	return &ledger.StorageError{Op: "unit of work", Err: err}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance{}):
		return observability.OutcomeInsufficientBalance
	case errors.Is(err, ledger.ErrStorageFailure):
		return observability.OutcomeFailed
	}
	return observability.OutcomeRejected
}

func (e *ExecutorImpl) logFailure(logger *slog.Logger, req *MutationRequest, err error) {
	attrs := []any{
		"account_id", req.AccountID.String(),
		"kind", string(req.Kind),
		"amount", req.Amount,
		"error", err,
	}
	if errors.Is(err, ledger.ErrStorageFailure) {
		logger.Error("Ledger mutation failed", attrs...)
		return
	}
	logger.Warn("Ledger mutation refused", attrs...)
}

func (e *ExecutorImpl) observe(kind ledger.Kind, outcome string, start time.Time) {
	if e.recorder == nil {
		return
	}
	e.recorder.ObserveMutation(kind, outcome, e.now().Sub(start))
}

// notify runs the observers on a context that outlives request cancellation
func (e *ExecutorImpl) notify(ctx context.Context, entry *ledger.Entry) {
	ctx = context.WithoutCancel(ctx)
	for _, o := range e.observers {
		o.EntryCommitted(ctx, entry)
	}
}
