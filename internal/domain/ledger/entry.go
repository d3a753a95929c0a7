package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one immutable record of a balance mutation. Amount is signed and
// BalanceAfter always equals BalanceBefore + Amount.
type Entry struct {
	ID             uuid.UUID      `json:"id"`
	Sequence       int64          `json:"sequence"`
	AccountID      uuid.UUID      `json:"account_id"`
	Kind           Kind           `json:"kind"`
	Amount         int64          `json:"amount"`
	BalanceBefore  int64          `json:"balance_before"`
	BalanceAfter   int64          `json:"balance_after"`
	ToolReference  *string        `json:"tool_reference,omitempty"`
	Description    string         `json:"description"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// MetadataRefundedEntryID links a refund entry to the spend it reverses
const MetadataRefundedEntryID = "refunded_entry_id"

// Magnitude is the unsigned size of the mutation
func (e *Entry) Magnitude() int64 {
	if e.Amount < 0 {
		return -e.Amount
	}
	return e.Amount
}

// Consistent reports whether the captured balances agree with the amount
func (e *Entry) Consistent() bool {
	return e.BalanceAfter == e.BalanceBefore+e.Amount && e.BalanceAfter >= 0
}

// Filter narrows a history read for one account. Zero values mean no constraint.
type Filter struct {
	AccountID uuid.UUID
	Kinds     []Kind
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// Stats aggregates an account's entries. TotalCredited - TotalDebited equals
// the balance when the ledger is consistent.
type Stats struct {
	AccountID     uuid.UUID  `json:"account_id"`
	TotalCredited int64      `json:"total_credited"`
	TotalDebited  int64      `json:"total_debited"`
	EntryCount    int64      `json:"entry_count"`
	FirstEntryAt  *time.Time `json:"first_entry_at,omitempty"`
	LastEntryAt   *time.Time `json:"last_entry_at,omitempty"`
}

// Net is the signed sum of every entry amount
func (s *Stats) Net() int64 {
	return s.TotalCredited - s.TotalDebited
}
