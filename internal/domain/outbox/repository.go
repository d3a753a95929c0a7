package outbox

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/coin-ledger/internal/domain/shared"
)

// Repository persists outbox messages. Create runs inside the ledger unit of
// work; everything else is called by the relay outside of it.
type Repository interface {
	Create(ctx context.Context, message *Message) error
	// GetPending returns pending messages oldest first
	GetPending(ctx context.Context, limit int) ([]*Message, error)
	UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error
	// RecordFailedAttempt bumps the attempt counter and returns its new value
	RecordFailedAttempt(ctx context.Context, id int64) (int, error)
	// CountPending reports the relay backlog
	CountPending(ctx context.Context) (int64, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrMessageNotFound is returned when no outbox row has the given id
type ErrMessageNotFound struct {
	ID int64
}

func (e ErrMessageNotFound) Error() string {
	return "outbox message " + strconv.FormatInt(e.ID, 10) + " not found"
}
