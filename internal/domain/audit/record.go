// Package audit describes the read-side archive of committed ledger entries.
// Archived records are copies and are never consulted for balance decisions.
package audit

import (
	"context"
	"time"

	"github.com/coin-ledger/internal/domain/shared"
)

// Record is an archived ledger entry. Identifiers are stored as strings so the
// archive stays queryable from any tooling.
type Record struct {
	EntryID        string         `bson:"entry_id" json:"entry_id"`
	EventID        string         `bson:"event_id" json:"event_id"`
	Sequence       int64          `bson:"sequence" json:"sequence"`
	AccountID      string         `bson:"account_id" json:"account_id"`
	Kind           string         `bson:"kind" json:"kind"`
	Amount         int64          `bson:"amount" json:"amount"`
	BalanceBefore  int64          `bson:"balance_before" json:"balance_before"`
	BalanceAfter   int64          `bson:"balance_after" json:"balance_after"`
	ToolReference  string         `bson:"tool_reference,omitempty" json:"tool_reference,omitempty"`
	Description    string         `bson:"description" json:"description"`
	Metadata       map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
	IdempotencyKey string         `bson:"idempotency_key,omitempty" json:"idempotency_key,omitempty"`
	CorrelationID  string         `bson:"correlation_id,omitempty" json:"correlation_id,omitempty"`
	CreatedAt      time.Time      `bson:"created_at" json:"created_at"`
	ArchivedAt     time.Time      `bson:"archived_at" json:"archived_at"`
}

// NewRecord flattens a committed ledger event into an archive record
func NewRecord(event *shared.LedgerEvent, archivedAt time.Time) *Record {
	entry := event.Entry
	rec := &Record{
		EntryID:        entry.ID.String(),
		EventID:        event.EventID.String(),
		Sequence:       entry.Sequence,
		AccountID:      entry.AccountID.String(),
		Kind:           string(entry.Kind),
		Amount:         entry.Amount,
		BalanceBefore:  entry.BalanceBefore,
		BalanceAfter:   entry.BalanceAfter,
		Description:    entry.Description,
		Metadata:       entry.Metadata,
		IdempotencyKey: entry.IdempotencyKey,
		CorrelationID:  event.CorrelationID,
		CreatedAt:      entry.CreatedAt,
		ArchivedAt:     archivedAt,
	}
	if entry.ToolReference != nil {
		rec.ToolReference = *entry.ToolReference
	}
	return rec
}

// Repository stores archive records. Archive must be idempotent per entry.
type Repository interface {
	Archive(ctx context.Context, record *Record) (inserted bool, err error)
	GetByEntryID(ctx context.Context, entryID string) (*Record, error)
	ListByAccount(ctx context.Context, accountID string, limit int64) ([]*Record, error)
	EnsureIndexes(ctx context.Context) error
}

// ErrRecordNotFound indicates missing archive record
type ErrRecordNotFound struct {
	EntryID string
}

func (e ErrRecordNotFound) Error() string {
	return "audit record not found: " + e.EntryID
}

// Is implements the errors.Is interface for ErrRecordNotFound
func (e ErrRecordNotFound) Is(target error) bool {
	t, ok := target.(ErrRecordNotFound)
	if !ok {
		return false
	}
	return t.EntryID == "" || t.EntryID == e.EntryID
}
