package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/coin-ledger/internal/api_gateway/middleware"
	"github.com/coin-ledger/internal/domain/account"
	"github.com/coin-ledger/internal/domain/ledger"
	"github.com/coin-ledger/internal/domain/reason"
	"github.com/coin-ledger/internal/domain/shared"
)

// Response represents a standard API response
type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Error         *ErrorInfo  `json:"error,omitempty"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Meta          *MetaInfo   `json:"meta,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// MetaInfo represents metadata in a response
type MetaInfo struct {
	Page       int `json:"page,omitempty"`
	PerPage    int `json:"per_page,omitempty"`
	TotalPages int `json:"total_pages,omitempty"`
	TotalItems int `json:"total_items,omitempty"`
}

// NewResponse creates a new response with data
func NewResponse(data interface{}) *Response {
	return &Response{
		Data: data,
	}
}

// NewErrorResponse creates a new error response
func NewErrorResponse(code, message string) *Response {
	return &Response{
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// NewPaginatedResponse creates a new paginated response
func NewPaginatedResponse(data interface{}, page, perPage, totalItems int) *Response {
	totalPages := 0
	if perPage > 0 {
		totalPages = totalItems / perPage
		if totalItems%perPage > 0 {
			totalPages++
		}
	}

	return &Response{
		Data: data,
		Meta: &MetaInfo{
			Page:       page,
			PerPage:    perPage,
			TotalPages: totalPages,
			TotalItems: totalItems,
		},
	}
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	response := NewResponse(data)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code shared.ErrorCode, message string) {
	respondWithErrorDetails(c, statusCode, code, message, nil)
}

func respondWithErrorDetails(c *gin.Context, statusCode int, code shared.ErrorCode, message string, details map[string]any) {
	response := NewErrorResponse(string(code), message)
	response.Error.Details = details
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithPaginatedData sends a JSON response with paginated data
func RespondWithPaginatedData(c *gin.Context, statusCode int, data interface{}, page, perPage, totalItems int) {
	response := NewPaginatedResponse(data, page, perPage, totalItems)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondOK sends a 200 OK response with data
func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with data
func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

// RespondNoContent sends a 204 No Content response
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// RespondBadRequest sends a 400 Bad Request response with a validation error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, shared.ErrorCodeValidation, message)
}

// RespondInternalError sends a 500 Internal Server Error response with an error
func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, shared.ErrorCodeInternal, "An internal server error occurred")
}

// validationErrors are request faults detected before any state was touched
var validationErrors = []error{
	ledger.ErrInvalidAmount,
	ledger.ErrInvalidKind,
	ledger.ErrInvalidDirection,
	ledger.ErrToolReferenceRequired,
	ledger.ErrUnexpectedToolReference,
	ledger.ErrInvalidDateRange,
	reason.ErrEmptyText,
	reason.ErrInvalidPolarity,
}

// RespondWithLedgerError maps a domain error to its status code and error code.
// Unknown errors are logged and reported as internal errors without detail.
func RespondWithLedgerError(c *gin.Context, logger *slog.Logger, err error) {
	var (
		insufficient  ledger.ErrInsufficientBalance
		invalidReason ledger.ErrInvalidReason
		inUse         reason.ErrReasonInUse
		duplicate     reason.ErrDuplicateReason
		system        reason.ErrSystemReason
		accountTaken  account.ErrDuplicateAccount
	)

	switch {
	case errors.As(err, &insufficient):
		respondWithErrorDetails(c, http.StatusPaymentRequired, shared.ErrorCodeInsufficientBalance, "Insufficient coin balance", map[string]any{
			"balance":  insufficient.Balance,
			"required": insufficient.Requested,
		})
	case errors.Is(err, account.ErrAccountNotFound{}):
		RespondWithError(c, http.StatusNotFound, shared.ErrorCodeAccountNotFound, "Account not found")
	case errors.Is(err, ledger.ErrEntryNotFound{}):
		RespondWithError(c, http.StatusNotFound, shared.ErrorCodeEntryNotFound, "Ledger entry not found")
	case errors.Is(err, reason.ErrReasonNotFound{}):
		RespondWithError(c, http.StatusNotFound, shared.ErrorCodeReasonNotFound, "Reason not found")
	case errors.As(err, &invalidReason):
		RespondWithError(c, http.StatusUnprocessableEntity, shared.ErrorCodeInvalidReason, invalidReason.Error())
	case errors.Is(err, ledger.ErrInvalidRefund):
		RespondWithError(c, http.StatusUnprocessableEntity, shared.ErrorCodeInvalidRefund, ledger.ErrInvalidRefund.Error())
	case errors.Is(err, ledger.ErrIdempotencyConflict):
		RespondWithError(c, http.StatusConflict, shared.ErrorCodeIdempotencyConflict, ledger.ErrIdempotencyConflict.Error())
	case errors.As(err, &inUse):
		respondWithErrorDetails(c, http.StatusConflict, shared.ErrorCodeReasonInUse, inUse.Error(), map[string]any{
			"references": inUse.References,
		})
	case errors.As(err, &duplicate):
		RespondWithError(c, http.StatusConflict, shared.ErrorCodeDuplicateReason, duplicate.Error())
	case errors.As(err, &system):
		RespondWithError(c, http.StatusConflict, shared.ErrorCodeSystemReason, system.Error())
	case errors.As(err, &accountTaken):
		RespondWithError(c, http.StatusConflict, shared.ErrorCodeAccountExists, accountTaken.Error())
	case isValidationError(err):
		RespondBadRequest(c, err.Error())
	case errors.Is(err, ledger.ErrStorageFailure):
		logger.Error("Ledger storage failure", "error", err, "correlation_id", middleware.GetCorrelationID(c))
		RespondWithError(c, http.StatusInternalServerError, shared.ErrorCodeStorageFailure, "The ledger could not complete the operation")
	default:
		logger.Error("Unhandled ledger error", "error", err, "correlation_id", middleware.GetCorrelationID(c))
		RespondInternalError(c)
	}
}

func isValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
