// Package relay publishes committed ledger events from the transactional outbox
// to Kafka. Published events are a read-side copy of the ledger.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coin-ledger/internal/config"
	"github.com/coin-ledger/internal/domain/outbox"
	"github.com/coin-ledger/internal/domain/shared"
)

// Outbox relay statuses reported to the recorder
const (
	StatusPublished = "published"
	StatusRetrying  = "retrying"
	StatusFailed    = "failed"
)

// OutboxRecorder receives one status per handled outbox message and the
// backlog left after each batch
type OutboxRecorder interface {
	ObserveOutbox(status string)
	SetOutboxBacklog(pending int64)
}

// Poller processes pending outbox messages
type Poller struct {
	outboxRepo       outbox.Repository
	publisher        EventPublisher
	recorder         OutboxRecorder
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	publisher EventPublisher,
	recorder OutboxRecorder,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		recorder:         recorder,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start polls until ctx is cancelled. It always returns nil so it can run in an errgroup.
func (p *Poller) Start(ctx context.Context) error {
	p.logger.Info("Starting outbox relay",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox relay stopping")
			return nil
		case <-ticker.C:
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		}
	}
}

func (p *Poller) processPendingMessages(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}

	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages")
		return nil
	}

	p.logger.Debug("Fetched pending outbox messages", "count", len(messages))

	for _, msg := range messages {
		if ctx.Err() != nil {
			return nil
		}

		err := p.publisher.PublishMessage(ctx, msg)
		if err == nil {
			p.observe(StatusPublished)
			continue
		}

		logger := p.logger.With("outbox_id", msg.ID, "entry_id", msg.EntryID.String())
		if errors.Is(err, ErrUndecodablePayload) {
			p.observe(StatusFailed)
			continue
		}

		logger.Error("Failed to publish outbox message", "current_attempts", msg.Attempts, "error", err)

		attempts, errInc := p.outboxRepo.RecordFailedAttempt(ctx, msg.ID)
		if errInc != nil {
			logger.Error("Failed to record publish attempt for outbox message", "error", errInc)
			continue
		}

		if attempts < p.maxRetryAttempts {
			p.observe(StatusRetrying)
			continue
		}

		logger.Warn("Max retry attempts reached, marking outbox message FAILED_TO_PUBLISH", "attempts_made", attempts)
		if errUpdate := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); errUpdate != nil {
			logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH", "error", errUpdate)
			continue
		}
		p.observe(StatusFailed)
	}

	p.reportBacklog(ctx)
	return nil
}

func (p *Poller) reportBacklog(ctx context.Context) {
	if p.recorder == nil || ctx.Err() != nil {
		return
	}
	pending, err := p.outboxRepo.CountPending(ctx)
	if err != nil {
		p.logger.Warn("Failed to count outbox backlog", "error", err)
		return
	}
	p.recorder.SetOutboxBacklog(pending)
}

func (p *Poller) observe(status string) {
	if p.recorder != nil {
		p.recorder.ObserveOutbox(status)
	}
}
