package archiver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coin-ledger/internal/domain/audit"
	"github.com/coin-ledger/internal/domain/shared"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditReader is the read side of the archive
type AuditReader interface {
	GetByEntryID(ctx context.Context, entryID string) (*audit.Record, error)
	ListByAccount(ctx context.Context, accountID string, limit int64) ([]*audit.Record, error)
}

// QueryHandler serves archived entries for operators. Answers may lag the ledger
// by the relay delay and must not be used to decide a balance.
type QueryHandler struct {
	reader AuditReader
	logger *slog.Logger
}

func NewQueryHandler(reader AuditReader, logger *slog.Logger) *QueryHandler {
	return &QueryHandler{reader: reader, logger: logger}
}

// Register mounts the audit routes on r
func (h *QueryHandler) Register(r gin.IRouter) {
	g := r.Group("/audit")
	g.GET("/entries/:entryId", h.GetEntry)
	g.GET("/accounts/:id/entries", h.ListAccountEntries)
}

// GetEntry returns one archived entry
func (h *QueryHandler) GetEntry(c *gin.Context) {
	entryID, err := uuid.Parse(c.Param("entryId"))
	if err != nil {
		auditError(c, http.StatusBadRequest, shared.ErrorCodeValidation, "Invalid entry ID format")
		return
	}

	record, err := h.reader.GetByEntryID(c.Request.Context(), entryID.String())
	if errors.Is(err, audit.ErrRecordNotFound{}) {
		auditError(c, http.StatusNotFound, shared.ErrorCodeEntryNotFound, "Entry is not archived")
		return
	}
	if err != nil {
		h.logger.Error("Failed to read audit record", "entry_id", entryID.String(), "error", err)
		auditError(c, http.StatusInternalServerError, shared.ErrorCodeInternal, "Failed to read the audit archive")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": record})
}

// ListAccountEntries returns the newest archived entries of an account
func (h *QueryHandler) ListAccountEntries(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		auditError(c, http.StatusBadRequest, shared.ErrorCodeValidation, "Invalid account ID format")
		return
	}

	limit := int64(defaultAuditLimit)
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || limit < 1 {
			auditError(c, http.StatusBadRequest, shared.ErrorCodeValidation, "limit must be a positive integer")
			return
		}
		limit = min(limit, maxAuditLimit)
	}

	records, err := h.reader.ListByAccount(c.Request.Context(), accountID.String(), limit)
	if err != nil {
		h.logger.Error("Failed to list audit records", "account_id", accountID.String(), "error", err)
		auditError(c, http.StatusInternalServerError, shared.ErrorCodeInternal, "Failed to read the audit archive")
		return
	}
	if records == nil {
		records = []*audit.Record{}
	}

	c.JSON(http.StatusOK, gin.H{"data": records, "count": len(records)})
}

func auditError(c *gin.Context, status int, code shared.ErrorCode, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}
