package producers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/coin-ledger/internal/config"
)

// HeaderEventType names the ledger event type on every published message
const HeaderEventType = "event-type"

// KafkaWriter is the subset of kafka.Writer the producers use
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// LedgerEventProducer publishes committed ledger events keyed by account id.
// Writes are synchronous so the relay only marks an outbox row processed after
// the brokers acknowledged it.
type LedgerEventProducer struct {
	logger    *slog.Logger
	writer    KafkaWriter
	topic     string
	eventType string
}

// NewLedgerEventProducer ensures the events topic exists and opens a writer on it
func NewLedgerEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig, eventType string) (*LedgerEventProducer, error) {
	if cfg.EventsTopic == "" {
		return nil, fmt.Errorf("kafka events topic is not configured")
	}

	dialer := &kafka.Dialer{Timeout: cfg.MaxWait}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for ledger event producer: %w", err)
	}
	defer conn.Close()

	if err := createKafkaTopicIfNotExists(conn, cfg.EventsTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure events topic %s exists: %w", cfg.EventsTopic, err)
	}

	// keyed by account id: one account's entries stay on one partition in commit order
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &LedgerEventProducer{
		logger:    logger,
		writer:    writer,
		topic:     cfg.EventsTopic,
		eventType: eventType,
	}, nil
}

// Publish writes one event and blocks until it is acknowledged
func (p *LedgerEventProducer) Publish(ctx context.Context, key string, value interface{}) error {
	payload, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("failed to encode ledger event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
	}
	if p.eventType != "" {
		msg.Headers = []kafka.Header{{Key: HeaderEventType, Value: []byte(p.eventType)}}
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish ledger event",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish ledger event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published ledger event", "topic", p.topic, "key", key)
	return nil
}

func (p *LedgerEventProducer) Close() error {
	p.logger.Info("Closing ledger event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
