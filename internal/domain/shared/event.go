package shared

import (
	"time"

	"github.com/google/uuid"

	"github.com/coin-ledger/internal/domain/ledger"
)

// EventTypeEntryCommitted is emitted once per committed ledger entry
const EventTypeEntryCommitted = "coin_ledger.entry_committed"

// LedgerEvent is the stream message describing a committed entry. Consumers
// treat it as a read-side copy; it is never used to decide a balance.
type LedgerEvent struct {
	EventID       uuid.UUID    `json:"event_id"`
	EventType     string       `json:"event_type"`
	Entry         ledger.Entry `json:"entry"`
	NewBalance    int64        `json:"new_balance"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

// NewLedgerEvent builds the committed event for an entry
func NewLedgerEvent(entry *ledger.Entry, correlationID string) *LedgerEvent {
	return &LedgerEvent{
		EventID:       uuid.New(),
		EventType:     EventTypeEntryCommitted,
		Entry:         *entry,
		NewBalance:    entry.BalanceAfter,
		CorrelationID: correlationID,
		OccurredAt:    entry.CreatedAt,
	}
}
