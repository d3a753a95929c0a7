package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/coin-ledger/internal/domain/account"
	"github.com/coin-ledger/internal/domain/ledger"
	"github.com/coin-ledger/internal/domain/outbox"
	"github.com/coin-ledger/internal/domain/reason"
)

// Stores are the repositories bound to one unit of work
type Stores struct {
	Balances account.BalanceStore
	Entries  ledger.Repository
	Outbox   outbox.Repository
}

// UnitOfWork runs fn atomically. Everything fn wrote is rolled back when it
// returns an error, panics, or ctx ends before commit.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// BalanceObserver is notified after an entry commits. It cannot fail the mutation.
type BalanceObserver interface {
	EntryCommitted(ctx context.Context, entry *ledger.Entry)
}

// MutationRecorder records the outcome of every executor call
type MutationRecorder interface {
	ObserveMutation(kind ledger.Kind, outcome string, elapsed time.Duration)
}

// MutationRequest is one signed balance change
type MutationRequest struct {
	AccountID      uuid.UUID
	Kind           ledger.Kind
	Amount         int64 // signed; negative for spend and admin_subtract
	ToolReference  string
	Description    string
	Metadata       map[string]any
	RefundOf       uuid.UUID // spend reversed by a refund; required for KindRefund
	IdempotencyKey string
	CorrelationID  string
}

// MutationResult is the committed entry and the authoritative balance.
// Replayed is set when an idempotency key matched an earlier entry.
type MutationResult struct {
	Entry      *ledger.Entry
	NewBalance int64
	Replayed   bool
}

// Executor is the only writer of balances and ledger entries
type Executor interface {
	Apply(ctx context.Context, req *MutationRequest) (*MutationResult, error)
}

// SpendRequest debits the cost of one tool invocation
type SpendRequest struct {
	AccountID       uuid.UUID
	ToolReference   string
	Cost            int64
	ExpectedBalance *int64 // advisory client hint, never used for the decision
	IdempotencyKey  string
	CorrelationID   string
}

// SpendResult reports the authoritative balance after a spend. StaleHint is
// true when the caller's expected balance did not match the locked read.
type SpendResult struct {
	MutationResult
	StaleHint bool
}

// RefundRequest credits back a previous spend
type RefundRequest struct {
	AccountID       uuid.UUID
	ToolReference   string
	Amount          int64
	OriginalEntryID uuid.UUID
	Reason          string
	IdempotencyKey  string
	CorrelationID   string
}

// SpendGateway gates feature invocations behind affordability
type SpendGateway interface {
	Spend(ctx context.Context, req *SpendRequest) (*SpendResult, error)
	Refund(ctx context.Context, req *RefundRequest) (*MutationResult, error)
}

// AdminAdjustment is an operator correction with a mandatory reason
type AdminAdjustment struct {
	AccountID      uuid.UUID
	Direction      ledger.Direction
	Amount         int64 // positive magnitude
	Reason         string
	Operator       string
	IdempotencyKey string
	CorrelationID  string
}

// AdminAdjuster applies operator corrections
type AdminAdjuster interface {
	Adjust(ctx context.Context, adj *AdminAdjustment) (*MutationResult, error)
}

// EarnRequest credits coins earned outside the signup flow
type EarnRequest struct {
	AccountID      uuid.UUID
	Amount         int64
	Description    string
	Metadata       map[string]any
	IdempotencyKey string
	CorrelationID  string
}

// BonusGranter issues fixed-kind credits. It keeps no record of earlier grants;
// calling GrantRegistrationBonus twice credits the account twice.
type BonusGranter interface {
	GrantRegistrationBonus(ctx context.Context, accountID uuid.UUID, amount int64) (*MutationResult, error)
	Earn(ctx context.Context, req *EarnRequest) (*MutationResult, error)
}

// HistoryQuery narrows and paginates an account history. Page starts at 1.
type HistoryQuery struct {
	Kinds    []ledger.Kind
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// HistoryPage is one page of entries, newest first
type HistoryPage struct {
	Entries    []*ledger.Entry `json:"entries"`
	TotalCount int64           `json:"total_count"`
	PageCount  int             `json:"page_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}

// Reconciliation compares the balance field with the entry history
type Reconciliation struct {
	AccountID        uuid.UUID `json:"account_id"`
	Balance          int64     `json:"balance"`
	EntrySum         int64     `json:"entry_sum"`
	LastBalanceAfter *int64    `json:"last_balance_after,omitempty"`
	EntryCount       int64     `json:"entry_count"`
	Consistent       bool      `json:"consistent"`
	Deleted          bool      `json:"deleted"`
}

// HistoryReader is the read-only view of an account ledger. Reads take no locks.
type HistoryReader interface {
	ListEntries(ctx context.Context, accountID uuid.UUID, query HistoryQuery) (*HistoryPage, error)
	GetEntry(ctx context.Context, accountID, entryID uuid.UUID) (*ledger.Entry, error)
	GetStats(ctx context.Context, accountID uuid.UUID) (*ledger.Stats, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (*Reconciliation, error)
}

// ReasonUpdate holds the optional fields of a catalog edit
type ReasonUpdate struct {
	Text      *string
	Polarity  *reason.Polarity
	SortOrder *int
	Active    *bool
}

// ReasonCatalog manages the admin adjustment reasons
type ReasonCatalog interface {
	ListReasons(ctx context.Context, direction *reason.Polarity, includeInactive bool) ([]*reason.Reason, error)
	GetReason(ctx context.Context, id uuid.UUID) (*reason.Reason, error)
	CreateReason(ctx context.Context, text string, polarity reason.Polarity, sortOrder int) (*reason.Reason, error)
	UpdateReason(ctx context.Context, id uuid.UUID, update ReasonUpdate) (*reason.Reason, error)
	DeactivateReason(ctx context.Context, id uuid.UUID) error
	DeleteReason(ctx context.Context, id uuid.UUID) error
	// Match returns the active reason usable for text in direction, or nil
	Match(ctx context.Context, direction ledger.Direction, text string) (*reason.Reason, error)
}
