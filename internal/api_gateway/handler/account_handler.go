package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coin-ledger/internal/api_gateway/service"
)

// AccountHandler handles HTTP requests for account operations
type AccountHandler struct {
	accountService service.AccountService
	logger         *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(logger *slog.Logger, accountService service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// Create runs the signup workflow: the account is created and credited with
// the registration bonus once. An empty body lets the server pick the id.
func (h *AccountHandler) Create(c *gin.Context) {
	var req CreateAccountRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("Invalid request body", "error", err)
			RespondBadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	id := uuid.Nil
	if req.AccountID != "" {
		id = uuid.MustParse(req.AccountID)
	}

	created, err := h.accountService.CreateAccount(c.Request.Context(), id)
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	response := AccountCreatedResponse{Account: mapAccountToResponse(created.Account)}
	if created.Bonus != nil {
		bonus := mapEntryToResponse(created.Bonus)
		response.Bonus = &bonus
		response.Account.Balance = created.Bonus.BalanceAfter
	}
	RespondCreated(c, response)
}

// GetByID returns the account with its authoritative balance
func (h *AccountHandler) GetByID(c *gin.Context) {
	id, ok := h.accountIDParam(c)
	if !ok {
		return
	}

	acc, err := h.accountService.GetAccount(c.Request.Context(), id)
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	RespondOK(c, mapAccountToResponse(acc))
}

// GetBalance returns the balance for display. It may be served from the cache.
func (h *AccountHandler) GetBalance(c *gin.Context) {
	id, ok := h.accountIDParam(c)
	if !ok {
		return
	}

	view, err := h.accountService.GetBalance(c.Request.Context(), id)
	if err != nil {
		RespondWithLedgerError(c, h.logger, err)
		return
	}

	RespondOK(c, BalanceResponse{
		AccountID: view.AccountID.String(),
		Balance:   view.Balance,
		Source:    view.Source,
	})
}

func (h *AccountHandler) accountIDParam(c *gin.Context) (uuid.UUID, bool) {
	return parseUUIDParam(c, h.logger, "id", "account")
}

// parseUUIDParam reads a path parameter as a uuid, answering 400 when it is not one
func parseUUIDParam(c *gin.Context, logger *slog.Logger, name, label string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		logger.Warn("Invalid "+label+" ID", "id", raw, "error", err)
		RespondBadRequest(c, "Invalid "+label+" ID")
		return uuid.Nil, false
	}
	return id, true
}
