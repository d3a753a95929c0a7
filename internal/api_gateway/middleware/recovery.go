package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/coin-ledger/internal/domain/shared"
)

// Recovery turns a handler panic into a 500 in the regular error envelope.
// A panic inside a ledger mutation has already rolled its unit of work back by
// the time it gets here. http.ErrAbortHandler is passed through to net/http.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}

			correlationID := GetCorrelationID(c)
			logger.Error("Panic recovered",
				"error", r,
				"stack", string(debug.Stack()),
				"route", c.FullPath(),
				"method", c.Request.Method,
				"correlation_id", correlationID,
			)

			// Headers are gone once the handler started writing; only stop the chain
			if c.Writer.Written() {
				c.Abort()
				return
			}

			body := gin.H{
				"error": gin.H{
					"code":    shared.ErrorCodeInternal,
					"message": "An internal server error occurred",
				},
			}
			if correlationID != "" {
				body["correlation_id"] = correlationID
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		}()

		c.Next()
	}
}
