// Package observability exposes the Prometheus collectors of the coin ledger
package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coin-ledger/internal/domain/ledger"
)

// Mutation outcomes
const (
	OutcomeCommitted           = "committed"
	OutcomeReplayed            = "replayed"
	OutcomeInsufficientBalance = "insufficient_balance"
	OutcomeRejected            = "rejected"
	OutcomeFailed              = "failed"
)

// Metrics collects ledger, relay and HTTP metrics on a private registry
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	coinsMoved       *prometheus.CounterVec
	outboxPublished  *prometheus.CounterVec
	outboxBacklog    prometheus.Gauge
	archived         *prometheus.CounterVec
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// NewMetrics initialises the registry and every collector
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coin_ledger_mutations_total",
			Help: "Ledger mutations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		mutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coin_ledger_mutation_duration_seconds",
			Help:    "Executor unit of work latency by kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		coinsMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coin_ledger_coins_total",
			Help: "Coins credited or debited by committed entries.",
		}, []string{"kind"}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coin_ledger_outbox_published_total",
			Help: "Outbox messages handled by the relay by status.",
		}, []string{"status"}),
		outboxBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coin_ledger_outbox_pending",
			Help: "Outbox messages waiting for the relay after the last batch.",
		}),
		archived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coin_ledger_archived_total",
			Help: "Ledger events handled by the audit archiver by result.",
		}, []string{"result"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coin_ledger_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coin_ledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	registry.MustRegister(
		m.mutations, m.mutationDuration, m.coinsMoved,
		m.outboxPublished, m.outboxBacklog, m.archived,
		m.requestsTotal, m.requestDuration,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler returns the /metrics handler
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the registry for tests and custom collectors
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveMutation records the outcome and latency of one executor call
func (m *Metrics) ObserveMutation(kind ledger.Kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(string(kind), outcome).Inc()
	m.mutationDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// EntryCommitted counts the coins moved by a committed entry
func (m *Metrics) EntryCommitted(_ context.Context, entry *ledger.Entry) {
	if m == nil {
		return
	}
	m.coinsMoved.WithLabelValues(string(entry.Kind)).Add(float64(entry.Magnitude()))
}

// ObserveOutbox counts a relay publish attempt by resulting status
func (m *Metrics) ObserveOutbox(status string) {
	if m == nil {
		return
	}
	m.outboxPublished.WithLabelValues(status).Inc()
}

// SetOutboxBacklog records the pending outbox size
func (m *Metrics) SetOutboxBacklog(pending int64) {
	if m == nil {
		return
	}
	m.outboxBacklog.Set(float64(pending))
}

// ObserveArchive counts an archiver result (inserted, duplicate, failed, dead_lettered)
func (m *Metrics) ObserveArchive(result string) {
	if m == nil {
		return
	}
	m.archived.WithLabelValues(result).Inc()
}

// GinMiddleware records request counts and latency per matched route
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
