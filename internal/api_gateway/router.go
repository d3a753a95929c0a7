package api_gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/coin-ledger/internal/api_gateway/handler"
	"github.com/coin-ledger/internal/api_gateway/middleware"
	"github.com/coin-ledger/internal/observability"
)

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// routes groups the handlers mounted by setupRouter
type routes struct {
	accounts *handler.AccountHandler
	ledger   *handler.LedgerHandler
	admin    *handler.AdminHandler
}

// setupRouter configures API routes and middleware for the application.
// CorrelationID runs before Logger so request logs carry the id.
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	requestTimeout time.Duration,
	metrics *observability.Metrics,
	health HealthChecker,
	h routes,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(metrics.GinMiddleware())

	// API v1 endpoints
	v1 := r.Group("/api/v1", middleware.RequestTimeout(requestTimeout))
	{
		v1.POST("/accounts", h.accounts.Create)

		// Account ledger operations
		accounts := v1.Group("/accounts/:id")
		{
			accounts.GET("", h.accounts.GetByID)
			accounts.GET("/balance", h.accounts.GetBalance)
			accounts.POST("/spend", h.ledger.Spend)
			accounts.POST("/refunds", h.ledger.Refund)
			accounts.POST("/earnings", h.ledger.Earn)
			accounts.GET("/entries", h.ledger.ListEntries)
			accounts.GET("/entries/:entryId", h.ledger.GetEntry)
			accounts.GET("/stats", h.ledger.GetStats)
		}

		// Operator endpoints
		admin := v1.Group("/admin", middleware.RequireOperator())
		{
			admin.POST("/accounts/:id/adjustments", h.admin.Adjust)
			admin.GET("/accounts/:id/reconciliation", h.admin.Reconcile)

			admin.GET("/reasons", h.admin.ListReasons)
			admin.POST("/reasons", h.admin.CreateReason)
			admin.PUT("/reasons/:id", h.admin.UpdateReason)
			admin.DELETE("/reasons/:id", h.admin.DeleteReason)
			admin.POST("/reasons/:id/deactivate", h.admin.DeactivateReason)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health.Ping(ctx); err != nil {
				logger.Error("Health check failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "timestamp": time.Now().UTC()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	r.GET("/metrics", gin.WrapH(metrics.Handler()))
}
