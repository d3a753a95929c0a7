package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/coin-ledger/internal/coin_ledger/archiver"
	"github.com/coin-ledger/internal/coin_ledger/relay"
	"github.com/coin-ledger/internal/config"
	"github.com/coin-ledger/internal/data/mongo"
	"github.com/coin-ledger/internal/data/postgres"
	"github.com/coin-ledger/internal/domain/shared"
	"github.com/coin-ledger/internal/logger"
	"github.com/coin-ledger/internal/observability"
	"github.com/coin-ledger/internal/platform/messaging/consumers"
	"github.com/coin-ledger/internal/platform/messaging/producers"
	"github.com/coin-ledger/internal/platform/persistence"
)

func main() {
	// Initialize configuration
	cfg, err := config.LoadConfig("ledger_relay")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting coin ledger relay",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	// Cancelled on SIGINT/SIGTERM/SIGQUIT
	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(appCtx, log, cfg); err != nil {
		log.Error("Ledger relay shutdown with errors", "error", err)
		os.Exit(1)
	}
	log.Info("Ledger relay shutdown completed successfully")
}

func run(ctx context.Context, log *slog.Logger, cfg *config.Config) error {
	// Initialize databases
	postgresDB, err := persistence.NewPostgresDB(ctx, log, &cfg.Postgres)
	if err != nil {
		return fmt.Errorf("initialize PostgreSQL: %w", err)
	}
	defer postgresDB.Close()

	mongoDB, err := persistence.NewMongoDB(ctx, log, &cfg.MongoDB)
	if err != nil {
		return fmt.Errorf("initialize MongoDB: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.MongoDB.Timeout)
		defer cancel()
		if err := mongoDB.Close(closeCtx); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
		}
	}()

	auditRepo := mongo.NewAuditRepository(log, mongoDB.Database())
	if err := auditRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("ensure audit indexes: %w", err)
	}

	metrics := observability.NewMetrics()

	// Outbox relay: committed entries to the event stream
	eventProducer, err := producers.NewLedgerEventProducer(ctx, log, &cfg.Kafka, shared.EventTypeEntryCommitted)
	if err != nil {
		return fmt.Errorf("initialize ledger event producer: %w", err)
	}
	defer closeWith(log, "ledger event producer", eventProducer.Close)

	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	publisher := relay.NewEventPublisher(outboxRepo, eventProducer, log.With("component", "event_publisher"))
	poller := relay.NewPoller(&cfg.Outbox, outboxRepo, publisher, metrics, log.With("component", "outbox_relay"))

	// Archiver: event stream to the audit collection
	dlqProducer, err := producers.NewDLQProducer(ctx, log, &cfg.Kafka)
	if err != nil {
		return fmt.Errorf("initialize DLQ producer: %w", err)
	}
	// dlqProducer is nil when no DLQ topic is configured; its methods are nil-safe
	defer closeWith(log, "DLQ producer", dlqProducer.Close)

	eventHandler := archiver.NewEventHandler(log.With("component", "archiver"), auditRepo, dlqProducer, metrics)
	pool, err := archiver.NewWorkerPool(eventHandler.HandleMessage, cfg.WorkerPool.Size, log.With("component", "archive_pool"))
	if err != nil {
		return fmt.Errorf("initialize archive worker pool: %w", err)
	}
	defer pool.Shutdown()
	log.Info("Archive worker pool ready", "capacity", pool.Capacity())

	// One reader per partition; each keeps its partition's order while the pool bounds total work
	readers := max(cfg.Kafka.NumPartitions, 1)
	kafkaConsumers := make([]*consumers.KafkaConsumer, 0, readers)
	for i := 0; i < readers; i++ {
		kafkaConsumers = append(kafkaConsumers, consumers.NewKafkaConsumer(ctx, log.With("consumer", i), &cfg.Kafka))
	}
	defer func() {
		for _, c := range kafkaConsumers {
			closeWith(log, "Kafka consumer", c.Close)
		}
	}()

	auditQueries := archiver.NewQueryHandler(auditRepo, log.With("component", "audit_query"))
	metricsServer := newMetricsServer(cfg, metrics, auditQueries, postgresDB, mongoDB)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return poller.Start(gctx)
	})

	for _, c := range kafkaConsumers {
		g.Go(func() error {
			log.Info("Starting archive consumer", "topic", cfg.Kafka.EventsTopic, "group", cfg.Kafka.ConsumerGroup)
			if err := c.Consume(gctx, pool.HandleMessage); err != nil {
				return fmt.Errorf("kafka consumer error: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Info("Starting metrics server", "port", cfg.Server.Port)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Starting graceful shutdown...", "running_workers", pool.Running())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type pinger interface {
	Ping(ctx context.Context) error
}

// newMetricsServer exposes /metrics, /health and the audit archive queries of the
// relay process. Health fails when any store the relay depends on is unreachable.
func newMetricsServer(cfg *config.Config, metrics *observability.Metrics, audits *archiver.QueryHandler, stores ...pinger) *http.Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	audits.Register(r)
	r.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		for _, store := range stores {
			if err := store.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error(), "timestamp": time.Now().UTC()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func closeWith(log *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Error("Error closing "+name, "error", err)
	}
}
