package handler

import (
	"time"

	ledgerservice "github.com/coin-ledger/internal/coin_ledger/service"
	"github.com/coin-ledger/internal/domain/account"
	"github.com/coin-ledger/internal/domain/ledger"
	"github.com/coin-ledger/internal/domain/reason"
)

// CreateAccountRequest represents a request to create a new account. The id is
// optional; supplying one makes a retried signup detectable.
type CreateAccountRequest struct {
	AccountID string `json:"account_id" binding:"omitempty,uuid"`
}

// AccountResponse represents an account in API responses
type AccountResponse struct {
	ID        string `json:"id"`
	Balance   int64  `json:"balance"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// AccountCreatedResponse is returned by the signup workflow
type AccountCreatedResponse struct {
	Account AccountResponse `json:"account"`
	Bonus   *EntryResponse  `json:"bonus,omitempty"`
}

// BalanceResponse represents a displayed balance and where it was read from
type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
	Source    string `json:"source"`
}

// SpendRequest debits the cost of one tool invocation
type SpendRequest struct {
	ToolReference   string `json:"tool_reference" binding:"required,max=255"`
	Cost            int64  `json:"cost" binding:"required,gt=0"`
	ExpectedBalance *int64 `json:"expected_balance" binding:"omitempty,min=0"`
}

// RefundRequest credits back coins of an earlier spend named by OriginalEntryID
type RefundRequest struct {
	Amount          int64  `json:"amount" binding:"required,gt=0"`
	ToolReference   string `json:"tool_reference" binding:"omitempty,max=255"`
	OriginalEntryID string `json:"original_entry_id" binding:"required,uuid"`
	Reason          string `json:"reason" binding:"omitempty,max=500"`
}

// EarnRequest credits coins earned outside the signup flow
type EarnRequest struct {
	Amount      int64          `json:"amount" binding:"required,gt=0"`
	Description string         `json:"description" binding:"required,max=500"`
	Metadata    map[string]any `json:"metadata"`
}

// AdjustmentRequest is an operator correction
type AdjustmentRequest struct {
	Direction string `json:"direction" binding:"required,direction"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Reason    string `json:"reason" binding:"required,max=500"`
}

// HistoryParams are the query parameters of a history listing. kind may be repeated.
type HistoryParams struct {
	Kinds   []string `form:"kind" binding:"omitempty,dive,coinkind"`
	From    string   `form:"from"`
	To      string   `form:"to"`
	Page    int      `form:"page,default=1" binding:"min=1"`
	PerPage int      `form:"per_page" binding:"omitempty,min=1"`
}

// ReasonListParams are the query parameters of a catalog listing
type ReasonListParams struct {
	Direction       string `form:"direction" binding:"omitempty,polarity"`
	IncludeInactive bool   `form:"include_inactive"`
}

// CreateReasonRequest adds a custom reason to the catalog
type CreateReasonRequest struct {
	Text      string `json:"text" binding:"required,max=200"`
	Polarity  string `json:"polarity" binding:"required,polarity"`
	SortOrder int    `json:"sort_order" binding:"min=0"`
}

// UpdateReasonRequest edits a reason. Absent fields stay unchanged.
type UpdateReasonRequest struct {
	Text      *string `json:"text" binding:"omitempty,min=1,max=200"`
	Polarity  *string `json:"polarity" binding:"omitempty,polarity"`
	SortOrder *int    `json:"sort_order" binding:"omitempty,min=0"`
	Active    *bool   `json:"active"`
}

// EntryResponse represents a ledger entry in API responses
type EntryResponse struct {
	ID            string         `json:"id"`
	AccountID     string         `json:"account_id"`
	Kind          string         `json:"kind"`
	Amount        int64          `json:"amount"`
	BalanceBefore int64          `json:"balance_before"`
	BalanceAfter  int64          `json:"balance_after"`
	ToolReference string         `json:"tool_reference,omitempty"`
	Description   string         `json:"description"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     string         `json:"created_at"`
}

// MutationResponse is returned by every balance mutation
type MutationResponse struct {
	Entry      EntryResponse `json:"entry"`
	NewBalance int64         `json:"new_balance"`
	Replayed   bool          `json:"replayed"`
}

// SpendResponse adds the stale hint flag to a spend result
type SpendResponse struct {
	MutationResponse
	StaleHint bool `json:"stale_hint"`
}

// StatsResponse represents aggregated entry statistics
type StatsResponse struct {
	AccountID     string `json:"account_id"`
	TotalCredited int64  `json:"total_credited"`
	TotalDebited  int64  `json:"total_debited"`
	Net           int64  `json:"net"`
	EntryCount    int64  `json:"entry_count"`
	FirstEntryAt  string `json:"first_entry_at,omitempty"`
	LastEntryAt   string `json:"last_entry_at,omitempty"`
}

// ReconciliationResponse compares the stored balance with the entry history
type ReconciliationResponse struct {
	AccountID        string `json:"account_id"`
	Balance          int64  `json:"balance"`
	EntrySum         int64  `json:"entry_sum"`
	LastBalanceAfter *int64 `json:"last_balance_after,omitempty"`
	EntryCount       int64  `json:"entry_count"`
	Consistent       bool   `json:"consistent"`
	Deleted          bool   `json:"deleted"`
}

// ReasonResponse represents a catalog reason
type ReasonResponse struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Polarity  string `json:"polarity"`
	Active    bool   `json:"active"`
	SortOrder int    `json:"sort_order"`
	System    bool   `json:"system"`
}

func mapAccountToResponse(acc *account.Account) AccountResponse {
	return AccountResponse{
		ID:        acc.ID.String(),
		Balance:   acc.Balance,
		CreatedAt: acc.CreatedAt.Format(time.RFC3339),
		UpdatedAt: acc.UpdatedAt.Format(time.RFC3339),
	}
}

func mapEntryToResponse(entry *ledger.Entry) EntryResponse {
	response := EntryResponse{
		ID:            entry.ID.String(),
		AccountID:     entry.AccountID.String(),
		Kind:          string(entry.Kind),
		Amount:        entry.Amount,
		BalanceBefore: entry.BalanceBefore,
		BalanceAfter:  entry.BalanceAfter,
		Description:   entry.Description,
		Metadata:      entry.Metadata,
		CreatedAt:     entry.CreatedAt.Format(time.RFC3339Nano),
	}
	if entry.ToolReference != nil {
		response.ToolReference = *entry.ToolReference
	}
	return response
}

func mapMutationToResponse(result *ledgerservice.MutationResult) MutationResponse {
	return MutationResponse{
		Entry:      mapEntryToResponse(result.Entry),
		NewBalance: result.NewBalance,
		Replayed:   result.Replayed,
	}
}

func mapStatsToResponse(stats *ledger.Stats) StatsResponse {
	response := StatsResponse{
		AccountID:     stats.AccountID.String(),
		TotalCredited: stats.TotalCredited,
		TotalDebited:  stats.TotalDebited,
		Net:           stats.Net(),
		EntryCount:    stats.EntryCount,
	}
	if stats.FirstEntryAt != nil {
		response.FirstEntryAt = stats.FirstEntryAt.Format(time.RFC3339Nano)
	}
	if stats.LastEntryAt != nil {
		response.LastEntryAt = stats.LastEntryAt.Format(time.RFC3339Nano)
	}
	return response
}

func mapReasonToResponse(r *reason.Reason) ReasonResponse {
	return ReasonResponse{
		ID:        r.ID.String(),
		Text:      r.Text,
		Polarity:  string(r.Polarity),
		Active:    r.Active,
		SortOrder: r.SortOrder,
		System:    r.System,
	}
}
