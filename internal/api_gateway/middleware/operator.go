package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/coin-ledger/internal/domain/shared"
)

const (
	// OperatorIDHeader identifies the operator behind an admin request
	OperatorIDHeader = "X-Operator-ID"

	// OperatorIDKey is the key used to store the operator in the gin context
	OperatorIDKey = "operator_id"
)

// RequireOperator rejects admin requests that do not name an operator.
// Authenticating the operator is the job of the surrounding platform.
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		operator := strings.TrimSpace(c.GetHeader(OperatorIDHeader))
		if operator == "" {
			response := gin.H{
				"error": gin.H{
					"code":    shared.ErrorCodeValidation,
					"message": OperatorIDHeader + " header is required for admin operations",
				},
			}
			if correlationID := GetCorrelationID(c); correlationID != "" {
				response["correlation_id"] = correlationID
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, response)
			return
		}
		c.Set(OperatorIDKey, operator)
		c.Next()
	}
}

// GetOperatorID returns the operator recorded by RequireOperator
func GetOperatorID(c *gin.Context) string {
	return c.GetString(OperatorIDKey)
}
