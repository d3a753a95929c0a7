package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coin-ledger/internal/api_gateway/middleware"
	ledgerservice "github.com/coin-ledger/internal/coin_ledger/service"
	"github.com/coin-ledger/internal/domain/ledger"
)

// LedgerHandler exposes spending, refunds, earnings and history of one account
type LedgerHandler struct {
	spend   ledgerservice.SpendGateway
	bonus   ledgerservice.BonusGranter
	history ledgerservice.HistoryReader
	logger  *slog.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(
	logger *slog.Logger,
	spend ledgerservice.SpendGateway,
	bonus ledgerservice.BonusGranter,
	history ledgerservice.HistoryReader,
) *LedgerHandler {
	return &LedgerHandler{
		spend:   spend,
		bonus:   bonus,
		history: history,
		logger:  logger,
	}
}

// Spend debits the cost of a tool invocation. 402 means the caller must not
// run the tool.
func (h *LedgerHandler) Spend(c *gin.Context) {
	accountID, key, ok := mutationTarget(c, h.logger)
	if !ok {
		return
	}

	var req SpendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid spend request", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.spend.Spend(c.Request.Context(), &ledgerservice.SpendRequest{
		AccountID:       accountID,
		ToolReference:   req.ToolReference,
		Cost:            req.Cost,
		ExpectedBalance: req.ExpectedBalance,
		IdempotencyKey:  key,
		CorrelationID:   middleware.GetCorrelationID(c),
	})
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	respondMutation(c, &result.MutationResult, SpendResponse{
		MutationResponse: mapMutationToResponse(&result.MutationResult),
		StaleHint:        result.StaleHint,
	})
}

// Refund credits back coins of an earlier spend
func (h *LedgerHandler) Refund(c *gin.Context) {
	accountID, key, ok := mutationTarget(c, h.logger)
	if !ok {
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid refund request", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.spend.Refund(c.Request.Context(), &ledgerservice.RefundRequest{
		AccountID:       accountID,
		ToolReference:   req.ToolReference,
		Amount:          req.Amount,
		OriginalEntryID: uuid.MustParse(req.OriginalEntryID),
		Reason:          req.Reason,
		IdempotencyKey:  key,
		CorrelationID:   middleware.GetCorrelationID(c),
	})
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	respondMutation(c, result, mapMutationToResponse(result))
}

// Earn credits coins earned through platform activity
func (h *LedgerHandler) Earn(c *gin.Context) {
	accountID, key, ok := mutationTarget(c, h.logger)
	if !ok {
		return
	}

	var req EarnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid earn request", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.bonus.Earn(c.Request.Context(), &ledgerservice.EarnRequest{
		AccountID:      accountID,
		Amount:         req.Amount,
		Description:    req.Description,
		Metadata:       req.Metadata,
		IdempotencyKey: key,
		CorrelationID:  middleware.GetCorrelationID(c),
	})
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	respondMutation(c, result, mapMutationToResponse(result))
}

// ListEntries returns a page of the account history, newest first
func (h *LedgerHandler) ListEntries(c *gin.Context) {
	accountID, ok := parseUUIDParam(c, h.logger, "id", "account")
	if !ok {
		return
	}

	var params HistoryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Warn("Invalid history parameters", "error", err)
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	from, err := parseTimeParam(params.From, false)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}
	to, err := parseTimeParam(params.To, true)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return
	}

	kinds := make([]ledger.Kind, 0, len(params.Kinds))
	for _, raw := range params.Kinds {
		k, err := ledger.ParseKind(raw)
		if err != nil {
			RespondBadRequest(c, "Unknown entry kind: "+raw)
			return
		}
		kinds = append(kinds, k)
	}

	page, err := h.history.ListEntries(c.Request.Context(), accountID, ledgerservice.HistoryQuery{
		Kinds:    kinds,
		From:     from,
		To:       to,
		Page:     params.Page,
		PageSize: params.PerPage,
	})
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	entries := make([]EntryResponse, 0, len(page.Entries))
	for _, entry := range page.Entries {
		entries = append(entries, mapEntryToResponse(entry))
	}

	RespondWithPaginatedData(c, http.StatusOK, entries, page.Page, page.PageSize, int(page.TotalCount))
}

// GetEntry returns one entry of the account
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	accountID, ok := parseUUIDParam(c, h.logger, "id", "account")
	if !ok {
		return
	}
	entryID, ok := parseUUIDParam(c, h.logger, "entryId", "entry")
	if !ok {
		return
	}

	entry, err := h.history.GetEntry(c.Request.Context(), accountID, entryID)
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	RespondOK(c, mapEntryToResponse(entry))
}

// GetStats returns the aggregated totals of the account history
func (h *LedgerHandler) GetStats(c *gin.Context) {
	accountID, ok := parseUUIDParam(c, h.logger, "id", "account")
	if !ok {
		return
	}

	stats, err := h.history.GetStats(c.Request.Context(), accountID)
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	RespondOK(c, mapStatsToResponse(stats))
}

// mutationTarget reads the account id and the idempotency key shared by every mutation
func mutationTarget(c *gin.Context, logger *slog.Logger) (uuid.UUID, string, bool) {
	accountID, ok := parseUUIDParam(c, logger, "id", "account")
	if !ok {
		return uuid.Nil, "", false
	}
	key, err := idempotencyKey(c)
	if err != nil {
		RespondBadRequest(c, err.Error())
		return uuid.Nil, "", false
	}
	return accountID, key, true
}

// respondMutation answers 201 for a new entry and 200 for an idempotent replay
func respondMutation(c *gin.Context, result *ledgerservice.MutationResult, body interface{}) {
	if result.Replayed {
		RespondOK(c, body)
		return
	}
	RespondCreated(c, body)
}
