package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository persists the append-only entry log. There is no update or delete.
type Repository interface {
	// Append inserts the entry and fills Sequence and CreatedAt from the store
	Append(ctx context.Context, entry *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	GetByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*Entry, error)
	// List returns entries newest first (created_at DESC, sequence DESC)
	List(ctx context.Context, filter Filter) ([]*Entry, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	Stats(ctx context.Context, accountID uuid.UUID) (*Stats, error)
	LastEntry(ctx context.Context, accountID uuid.UUID) (*Entry, error)
	// CountByReasonID counts admin entries that recorded the reason in metadata
	CountByReasonID(ctx context.Context, reasonID uuid.UUID) (int64, error)
	// RefundedAmount sums the refunds already issued against a spend
	RefundedAmount(ctx context.Context, spendID uuid.UUID) (int64, error)
	WithTx(tx pgx.Tx) Repository
}
