// Package archiver copies ledger events from the stream into the MongoDB audit
// archive. The archive is a read-side copy and never decides a balance.
package archiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/coin-ledger/internal/domain/audit"
	"github.com/coin-ledger/internal/domain/shared"
	"github.com/coin-ledger/internal/platform/messaging/producers"
)

// Archive results reported to the recorder
const (
	ResultInserted     = "inserted"
	ResultDuplicate    = "duplicate"
	ResultFailed       = "failed"
	ResultDeadLettered = "dead_lettered"
	ResultDropped      = "dropped"
)

// ArchiveRecorder receives one result per handled event
type ArchiveRecorder interface {
	ObserveArchive(result string)
}

// DeadLetterSink parks messages that cannot be archived
type DeadLetterSink interface {
	PublishToDLQ(ctx context.Context, letter producers.DeadLetter) error
}

// EventHandler archives ledger events consumed from Kafka
type EventHandler struct {
	archive  audit.Repository
	dlq      DeadLetterSink
	recorder ArchiveRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewEventHandler(
	logger *slog.Logger,
	archive audit.Repository,
	dlq DeadLetterSink,
	recorder ArchiveRecorder,
) *EventHandler {
	return &EventHandler{
		archive:  archive,
		dlq:      dlq,
		recorder: recorder,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HandleMessage archives one event. Returning an error leaves the message
// uncommitted so the consumer retries it.
func (h *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	event, err := decodeEvent(msg.Value)
	if err != nil {
		return h.deadLetter(ctx, msg, err)
	}

	logger := h.logger.With("entry_id", event.Entry.ID.String(), "account_id", event.Entry.AccountID.String())
	if event.CorrelationID != "" {
		logger = logger.With("correlation_id", event.CorrelationID)
	}

	inserted, err := h.archive.Archive(ctx, audit.NewRecord(event, h.now()))
	if err != nil {
		h.observe(ResultFailed)
		logger.Error("Failed to archive ledger event", "error", err)
		return fmt.Errorf("archive entry %s: %w", event.Entry.ID, err)
	}

	if !inserted {
		h.observe(ResultDuplicate)
		logger.Debug("Ledger event already archived")
		return nil
	}

	h.observe(ResultInserted)
	logger.Info("Ledger event archived", "kind", event.Entry.Kind, "sequence", event.Entry.Sequence)
	return nil
}

func decodeEvent(value []byte) (*shared.LedgerEvent, error) {
	var event shared.LedgerEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("unmarshal ledger event: %w", err)
	}
	if event.EventType != shared.EventTypeEntryCommitted {
		return nil, fmt.Errorf("unexpected event type %q", event.EventType)
	}
	if event.Entry.ID == uuid.Nil || !event.Entry.Consistent() {
		return nil, errors.New("ledger event carries an incomplete or inconsistent entry")
	}
	return &event, nil
}

// deadLetter parks an undecodable message. When no DLQ is configured the
// message is dropped so it cannot block the partition.
func (h *EventHandler) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	logger := h.logger.With("topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
	logger.Error("Received an unprocessable ledger event", "error", cause)

	err := producers.ErrDLQDisabled
	if h.dlq != nil {
		err = h.dlq.PublishToDLQ(ctx, producers.DeadLetter{
			Key:         msg.Key,
			Value:       msg.Value,
			SourceTopic: msg.Topic,
			Partition:   msg.Partition,
			Offset:      msg.Offset,
			Reason:      cause.Error(),
		})
	}
	switch {
	case err == nil:
		h.observe(ResultDeadLettered)
		return nil
	case errors.Is(err, producers.ErrDLQDisabled):
		h.observe(ResultDropped)
		logger.Warn("DLQ disabled, dropping unprocessable ledger event")
		return nil
	default:
		logger.Error("Failed to publish unprocessable ledger event to DLQ", "dlq_error", err)
		return fmt.Errorf("dead letter offset %d: %w", msg.Offset, err)
	}
}

func (h *EventHandler) observe(result string) {
	if h.recorder != nil {
		h.recorder.ObserveArchive(result)
	}
}
