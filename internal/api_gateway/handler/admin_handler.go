package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/coin-ledger/internal/api_gateway/middleware"
	ledgerservice "github.com/coin-ledger/internal/coin_ledger/service"
	"github.com/coin-ledger/internal/domain/ledger"
	"github.com/coin-ledger/internal/domain/reason"
)

// AdminHandler serves operator adjustments, reconciliation and the reason catalog.
// Routes are expected behind middleware.RequireOperator.
type AdminHandler struct {
	admin   ledgerservice.AdminAdjuster
	history ledgerservice.HistoryReader
	reasons ledgerservice.ReasonCatalog
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	logger *slog.Logger,
	admin ledgerservice.AdminAdjuster,
	history ledgerservice.HistoryReader,
	reasons ledgerservice.ReasonCatalog,
) *AdminHandler {
	return &AdminHandler{
		admin:   admin,
		history: history,
		reasons: reasons,
		logger:  logger,
	}
}

// Adjust applies an operator correction to an account
func (h *AdminHandler) Adjust(c *gin.Context) {
	accountID, key, ok := mutationTarget(c, h.logger)
	if !ok {
		return
	}

	var req AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid adjustment request", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	operator := middleware.GetOperatorID(c)
	result, err := h.admin.Adjust(c.Request.Context(), &ledgerservice.AdminAdjustment{
		AccountID:      accountID,
		Direction:      ledger.Direction(req.Direction),
		Amount:         req.Amount,
		Reason:         req.Reason,
		Operator:       operator,
		IdempotencyKey: key,
		CorrelationID:  middleware.GetCorrelationID(c),
	})
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	h.logger.Info("Admin adjustment applied",
		"account_id", accountID.String(),
		"operator", operator,
		"direction", req.Direction,
		"amount", req.Amount,
		"replayed", result.Replayed)
	respondMutation(c, result, mapMutationToResponse(result))
}

// Reconcile compares the stored balance of an account with its entry history
func (h *AdminHandler) Reconcile(c *gin.Context) {
	accountID, ok := parseUUIDParam(c, h.logger, "id", "account")
	if !ok {
		return
	}

	rec, err := h.history.Reconcile(c.Request.Context(), accountID)
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	if !rec.Consistent {
		h.logger.Error("Ledger drift detected",
			"account_id", accountID.String(),
			"balance", rec.Balance,
			"entry_sum", rec.EntrySum,
			"correlation_id", middleware.GetCorrelationID(c))
	}

	RespondOK(c, ReconciliationResponse{
		AccountID:        rec.AccountID.String(),
		Balance:          rec.Balance,
		EntrySum:         rec.EntrySum,
		LastBalanceAfter: rec.LastBalanceAfter,
		EntryCount:       rec.EntryCount,
		Consistent:       rec.Consistent,
		Deleted:          rec.Deleted,
	})
}

// ListReasons returns the catalog, optionally narrowed to one direction
func (h *AdminHandler) ListReasons(c *gin.Context) {
	var params ReasonListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Warn("Invalid reason list parameters", "error", err)
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	var direction *reason.Polarity
	if params.Direction != "" {
		p := reason.Polarity(params.Direction)
		direction = &p
	}

	reasons, err := h.reasons.ListReasons(c.Request.Context(), direction, params.IncludeInactive)
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	response := make([]ReasonResponse, 0, len(reasons))
	for _, r := range reasons {
		response = append(response, mapReasonToResponse(r))
	}
	RespondOK(c, response)
}

// CreateReason adds a custom reason to the catalog
func (h *AdminHandler) CreateReason(c *gin.Context) {
	var req CreateReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid reason request", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	created, err := h.reasons.CreateReason(c.Request.Context(), req.Text, reason.Polarity(req.Polarity), req.SortOrder)
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	h.logger.Info("Reason created", "reason_id", created.ID.String(), "operator", middleware.GetOperatorID(c))
	RespondCreated(c, mapReasonToResponse(created))
}

// UpdateReason edits the fields present in the request body
func (h *AdminHandler) UpdateReason(c *gin.Context) {
	id, ok := parseUUIDParam(c, h.logger, "id", "reason")
	if !ok {
		return
	}

	var req UpdateReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid reason update", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	update := ledgerservice.ReasonUpdate{
		Text:      req.Text,
		SortOrder: req.SortOrder,
		Active:    req.Active,
	}
	if req.Polarity != nil {
		p := reason.Polarity(*req.Polarity)
		update.Polarity = &p
	}

	updated, err := h.reasons.UpdateReason(c.Request.Context(), id, update)
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	RespondOK(c, mapReasonToResponse(updated))
}

// DeactivateReason hides a reason from future adjustments while keeping history intact
func (h *AdminHandler) DeactivateReason(c *gin.Context) {
	id, ok := parseUUIDParam(c, h.logger, "id", "reason")
	if !ok {
		return
	}

	if err := h.reasons.DeactivateReason(c.Request.Context(), id); err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}
	RespondNoContent(c)
}

// DeleteReason removes a custom reason that no entry has used
func (h *AdminHandler) DeleteReason(c *gin.Context) {
	id, ok := parseUUIDParam(c, h.logger, "id", "reason")
	if !ok {
		return
	}

	if err := h.reasons.DeleteReason(c.Request.Context(), id); err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	h.logger.Info("Reason deleted", "reason_id", id.String(), "operator", middleware.GetOperatorID(c))
	RespondNoContent(c)
}
