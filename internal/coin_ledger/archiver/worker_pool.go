package archiver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"
	"github.com/segmentio/kafka-go"

	"github.com/coin-ledger/internal/platform/messaging/consumers"
)

// WorkerPool bounds how many events are archived concurrently across all
// partition consumers sharing it
type WorkerPool struct {
	handler consumers.MessageHandler
	pool    *ants.Pool
	logger  *slog.Logger
}

func NewWorkerPool(handler consumers.MessageHandler, size int, logger *slog.Logger) (*WorkerPool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("archive worker pool size must be positive, got %d", size)
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("create archive worker pool: %w", err)
	}

	return &WorkerPool{
		handler: handler,
		pool:    pool,
		logger:  logger,
	}, nil
}

// HandleMessage runs the handler on a pool worker and waits for its result,
// so offsets are still committed in order by the calling consumer
func (w *WorkerPool) HandleMessage(ctx context.Context, msg kafka.Message) error {
	result := make(chan error, 1)

	err := w.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Archive worker panicked", "offset", msg.Offset, "panic", r)
				result <- fmt.Errorf("archive worker panicked: %v", r)
			}
		}()
		result <- w.handler(ctx, msg)
	})
	if err != nil {
		w.logger.Error("Failed to submit ledger event to worker pool", "offset", msg.Offset, "error", err)
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown releases the pool after in-flight tasks finish
func (w *WorkerPool) Shutdown() {
	w.logger.Info("Shutting down archive worker pool", "running_workers", w.pool.Running())
	w.pool.Release()
}

func (w *WorkerPool) Running() int {
	return w.pool.Running()
}

func (w *WorkerPool) Capacity() int {
	return w.pool.Cap()
}
