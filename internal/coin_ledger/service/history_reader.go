package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/coin-ledger/internal/domain/account"
	"github.com/coin-ledger/internal/domain/ledger"
)

// HistoryReaderImpl implements the HistoryReader interface
type HistoryReaderImpl struct {
	accounts        account.Repository
	entries         ledger.Repository
	defaultPageSize int
	maxPageSize     int
	logger          *slog.Logger
}

// NewHistoryReader creates a new history reader
func NewHistoryReader(accounts account.Repository, entries ledger.Repository, defaultPageSize, maxPageSize int, logger *slog.Logger) HistoryReader {
	return &HistoryReaderImpl{
		accounts:        accounts,
		entries:         entries,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
		logger:          logger,
	}
}

// ListEntries returns one page of the account history, newest first
func (h *HistoryReaderImpl) ListEntries(ctx context.Context, accountID uuid.UUID, query HistoryQuery) (*HistoryPage, error) {
	for _, k := range query.Kinds {
		if !k.IsValid() {
			return nil, ledger.ErrInvalidKind
		}
	}
	if query.From != nil && query.To != nil && query.From.After(*query.To) {
		return nil, ledger.ErrInvalidDateRange
	}
	if _, err := h.liveAccount(ctx, accountID); err != nil {
		return nil, err
	}

	page, pageSize := h.normalisePage(query.Page, query.PageSize)
	filter := ledger.Filter{
		AccountID: accountID,
		Kinds:     query.Kinds,
		From:      query.From,
		To:        query.To,
	}

	total, err := h.entries.Count(ctx, filter)
	if err != nil {
		return nil, &ledger.StorageError{Op: "count entries", Err: err}
	}

	result := &HistoryPage{
		Entries:    []*ledger.Entry{},
		TotalCount: total,
		PageCount:  int((total + int64(pageSize) - 1) / int64(pageSize)),
		Page:       page,
		PageSize:   pageSize,
	}
	// Past the last page; also keeps the offset below total so it cannot overflow
	if int64(page-1) >= int64(result.PageCount) {
		return result, nil
	}

	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize
	entries, err := h.entries.List(ctx, filter)
	if err != nil {
		return nil, &ledger.StorageError{Op: "list entries", Err: err}
	}
	result.Entries = entries
	return result, nil
}

// GetEntry returns one entry, provided it belongs to the account
func (h *HistoryReaderImpl) GetEntry(ctx context.Context, accountID, entryID uuid.UUID) (*ledger.Entry, error) {
	entry, err := h.entries.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound{}) {
			return nil, err
		}
		return nil, &ledger.StorageError{Op: "get entry", Err: err}
	}
	if entry.AccountID != accountID {
		return nil, ledger.ErrEntryNotFound{EntryID: entryID}
	}
	return entry, nil
}

// GetStats aggregates the whole history of the account
func (h *HistoryReaderImpl) GetStats(ctx context.Context, accountID uuid.UUID) (*ledger.Stats, error) {
	if _, err := h.liveAccount(ctx, accountID); err != nil {
		return nil, err
	}
	stats, err := h.entries.Stats(ctx, accountID)
	if err != nil {
		return nil, &ledger.StorageError{Op: "entry stats", Err: err}
	}
	return stats, nil
}

// Reconcile checks the balance field against the sum of entries and the last
// entry's balance_after. It reports and never repairs. Soft deleted accounts
// are included since their entries are kept for audit.
func (h *HistoryReaderImpl) Reconcile(ctx context.Context, accountID uuid.UUID) (*Reconciliation, error) {
	acc, err := h.accounts.GetIncludingDeleted(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound{}) {
			return nil, err
		}
		return nil, &ledger.StorageError{Op: "get account", Err: err}
	}
	stats, err := h.entries.Stats(ctx, accountID)
	if err != nil {
		return nil, &ledger.StorageError{Op: "entry stats", Err: err}
	}

	rec := &Reconciliation{
		AccountID:  accountID,
		Balance:    acc.Balance,
		EntrySum:   stats.Net(),
		EntryCount: stats.EntryCount,
		Deleted:    acc.DeletedAt != nil,
	}

	last, err := h.entries.LastEntry(ctx, accountID)
	switch {
	case err == nil:
		after := last.BalanceAfter
		rec.LastBalanceAfter = &after
	case !errors.Is(err, ledger.ErrEntryNotFound{}):
		return nil, &ledger.StorageError{Op: "last entry", Err: err}
	}

	rec.Consistent = rec.EntrySum == rec.Balance &&
		(rec.LastBalanceAfter == nil && rec.Balance == 0 || rec.LastBalanceAfter != nil && *rec.LastBalanceAfter == rec.Balance)

	if !rec.Consistent {
		h.logger.Error("Ledger reconciliation mismatch",
			"account_id", accountID.String(),
			"balance", rec.Balance,
			"entry_sum", rec.EntrySum,
			"entry_count", rec.EntryCount)
	}
	return rec, nil
}

func (h *HistoryReaderImpl) liveAccount(ctx context.Context, accountID uuid.UUID) (*account.Account, error) {
	acc, err := h.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound{}) {
			return nil, err
		}
		return nil, &ledger.StorageError{Op: "get account", Err: err}
	}
	return acc, nil
}

func (h *HistoryReaderImpl) normalisePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = h.defaultPageSize
	}
	if pageSize > h.maxPageSize {
		pageSize = h.maxPageSize
	}
	return page, pageSize
}
