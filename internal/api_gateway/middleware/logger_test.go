package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		method    string
		target    string
		status    int
		wantLevel string
		wantPath  string
		wantRoute string
	}{
		{
			name:      "success logs at info with query",
			method:    http.MethodGet,
			target:    "/accounts/abc/entries?kind=spend&page=2",
			status:    http.StatusOK,
			wantLevel: "INFO",
			wantPath:  "/accounts/abc/entries?kind=spend&page=2",
			wantRoute: "/accounts/:id/entries",
		},
		{
			name:      "refused spend logs at warn",
			method:    http.MethodPost,
			target:    "/accounts/abc/spend",
			status:    http.StatusPaymentRequired,
			wantLevel: "WARN",
			wantPath:  "/accounts/abc/spend",
			wantRoute: "/accounts/:id/spend",
		},
		{
			name:      "server error logs at error",
			method:    http.MethodPost,
			target:    "/accounts/abc/refund",
			status:    http.StatusInternalServerError,
			wantLevel: "ERROR",
			wantPath:  "/accounts/abc/refund",
			wantRoute: "/accounts/:id/refund",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			router := gin.New()
			router.Use(CorrelationID())
			router.Use(Logger(slog.New(slog.NewJSONHandler(&logs, nil))))

			status := tt.status
			handler := func(c *gin.Context) { c.Status(status) }
			router.GET("/accounts/:id/entries", handler)
			router.POST("/accounts/:id/spend", handler)
			router.POST("/accounts/:id/refund", handler)

			req := httptest.NewRequest(tt.method, tt.target, nil)
			req.Header.Set("User-Agent", "ledger-test")
			req.Header.Set(CorrelationIDHeader, "corr-log-1")
			router.ServeHTTP(httptest.NewRecorder(), req)

			var record map[string]any
			require.NoError(t, json.Unmarshal(logs.Bytes(), &record))
			assert.Equal(t, "HTTP request", record["msg"])
			assert.Equal(t, tt.wantLevel, record["level"])
			assert.Equal(t, tt.method, record["method"])
			assert.Equal(t, tt.wantPath, record["path"])
			assert.Equal(t, tt.wantRoute, record["route"])
			assert.Equal(t, float64(tt.status), record["status"])
			assert.Equal(t, "ledger-test", record["user_agent"])
			assert.Equal(t, "corr-log-1", record["correlation_id"])
			assert.Contains(t, record, "latency")
			assert.Contains(t, record, "client_ip")
		})
	}
}

func TestLogger_IncludesGinErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var logs bytes.Buffer
	router := gin.New()
	router.Use(Logger(slog.New(slog.NewJSONHandler(&logs, nil))))
	router.GET("/fails", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusBadRequest)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/fails", nil))

	assert.Contains(t, logs.String(), assert.AnError.Error())
	assert.NotContains(t, logs.String(), "correlation_id")
}
