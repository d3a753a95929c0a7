package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coin-ledger/internal/domain/outbox"
	"github.com/coin-ledger/internal/domain/shared"
)

// ErrUndecodablePayload marks an outbox row whose payload is not a ledger event.
// Such rows are parked as FAILED_TO_PUBLISH at once instead of being retried.
var ErrUndecodablePayload = errors.New("outbox payload is not a ledger event")

// Producer writes a keyed message to the event stream and returns once the
// brokers acknowledged it
type Producer interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// EventPublisher moves one outbox message onto the event stream
type EventPublisher interface {
	PublishMessage(ctx context.Context, message *outbox.Message) error
}

// EventPublisherImpl publishes the stored payload keyed by account and then
// marks the row processed. A crash between the two republishes the event;
// the archiver deduplicates on entry id.
type EventPublisherImpl struct {
	outboxRepo outbox.Repository
	producer   Producer
	logger     *slog.Logger
}

func NewEventPublisher(
	outboxRepo outbox.Repository,
	producer Producer,
	logger *slog.Logger,
) *EventPublisherImpl {
	return &EventPublisherImpl{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishMessage decodes, publishes and acknowledges one outbox message
func (p *EventPublisherImpl) PublishMessage(ctx context.Context, message *outbox.Message) error {
	event, err := message.Event()
	if err != nil || event.Entry.ID != message.EntryID {
		p.logger.Error("Outbox payload does not carry the expected ledger event",
			"outbox_id", message.ID, "entry_id", message.EntryID.String(), "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Failed to park undecodable outbox message", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("outbox %d: %w", message.ID, ErrUndecodablePayload)
	}

	logger := p.logger
	if event.CorrelationID != "" {
		logger = p.logger.With("correlation_id", event.CorrelationID)
	}

	if err := p.producer.Publish(ctx, message.AccountID.String(), message.Payload); err != nil {
		return fmt.Errorf("publish outbox %d: %w", message.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Event published but outbox row not marked PROCESSED",
			"outbox_id", message.ID, "entry_id", message.EntryID.String(), "error", err,
		)
		return fmt.Errorf("event for outbox %d published, but marking it PROCESSED failed: %w", message.ID, err)
	}

	logger.Info("Ledger event published",
		"outbox_id", message.ID,
		"entry_id", message.EntryID.String(),
		"account_id", message.AccountID.String(),
		"kind", event.Entry.Kind,
	)
	return nil
}
