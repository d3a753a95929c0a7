package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coin-ledger/internal/domain/ledger"
	"github.com/coin-ledger/internal/platform/persistence"
)

const (
	entryColumns = `id, seq, account_id, kind, amount, balance_before, balance_after, tool_reference, description, metadata, idempotency_key, created_at`

	uniqueViolation = "23505"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// EntryRepository implements ledger.Repository for PostgreSQL. The table is
// append-only; a trigger rejects UPDATE and DELETE.
type EntryRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewEntryRepository creates a new PostgreSQL ledger entry repository
func NewEntryRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &EntryRepository{
		querier: db.Querier(),
		logger:  logger,
	}
}

// WithTx binds the repository to the executor's transaction
func (r *EntryRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &EntryRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Append inserts the entry. created_at is taken with clock_timestamp() so that,
// under the account row lock, it follows commit order.
func (r *EntryRepository) Append(ctx context.Context, entry *ledger.Entry) error {
	query := `
		INSERT INTO coin_ledger_entries (id, account_id, kind, amount, balance_before, balance_after, tool_reference, description, metadata, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, clock_timestamp())
		RETURNING seq, created_at
	`

	metadata, err := encodeMetadata(entry.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode entry metadata: %w", err)
	}

	err = r.querier.QueryRow(ctx, query,
		entry.ID,
		entry.AccountID,
		string(entry.Kind),
		entry.Amount,
		entry.BalanceBefore,
		entry.BalanceAfter,
		entry.ToolReference,
		entry.Description,
		metadata,
		nullableString(entry.IdempotencyKey),
	).Scan(&entry.Sequence, &entry.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: key %q", ledger.ErrIdempotencyConflict, entry.IdempotencyKey)
		}
		r.logger.Error("Failed to append ledger entry",
			"entry_id", entry.ID.String(),
			"account_id", entry.AccountID.String(),
			"kind", string(entry.Kind),
			"error", err,
		)
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

// GetByID retrieves a single entry
func (r *EntryRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM coin_ledger_entries WHERE id = $1`

	entry, err := scanEntry(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{EntryID: id}
		}
		r.logger.Error("Failed to get ledger entry", "entry_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return entry, nil
}

// GetByIdempotencyKey finds the entry an earlier request with the same key produced
func (r *EntryRepository) GetByIdempotencyKey(ctx context.Context, accountID uuid.UUID, key string) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM coin_ledger_entries WHERE account_id = $1 AND idempotency_key = $2`

	entry, err := scanEntry(r.querier.QueryRow(ctx, query, accountID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{}
		}
		r.logger.Error("Failed to get ledger entry by idempotency key", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger entry by idempotency key: %w", err)
	}
	return entry, nil
}

// List returns a page of entries newest first
func (r *EntryRepository) List(ctx context.Context, filter ledger.Filter) ([]*ledger.Entry, error) {
	where, args := entryFilterClause(filter)
	query := `SELECT ` + entryColumns + ` FROM coin_ledger_entries WHERE ` + where + ` ORDER BY created_at DESC, seq DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", "account_id", filter.AccountID.String(), "error", err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*ledger.Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			r.logger.Error("Failed to scan ledger entry", "error", err)
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over ledger entries", "error", err)
		return nil, fmt.Errorf("error iterating over ledger entries: %w", err)
	}

	return entries, nil
}

// Count returns how many entries match the filter, ignoring Limit and Offset
func (r *EntryRepository) Count(ctx context.Context, filter ledger.Filter) (int64, error) {
	where, args := entryFilterClause(filter)
	query := `SELECT COUNT(*) FROM coin_ledger_entries WHERE ` + where

	var count int64
	if err := r.querier.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		r.logger.Error("Failed to count ledger entries", "account_id", filter.AccountID.String(), "error", err)
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}
	return count, nil
}

// Stats aggregates the account's whole history
func (r *EntryRepository) Stats(ctx context.Context, accountID uuid.UUID) (*ledger.Stats, error) {
	query := `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE amount > 0), 0)::BIGINT,
			COALESCE(-SUM(amount) FILTER (WHERE amount < 0), 0)::BIGINT,
			COUNT(*),
			MIN(created_at),
			MAX(created_at)
		FROM coin_ledger_entries
		WHERE account_id = $1
	`

	stats := ledger.Stats{AccountID: accountID}
	err := r.querier.QueryRow(ctx, query, accountID).Scan(
		&stats.TotalCredited,
		&stats.TotalDebited,
		&stats.EntryCount,
		&stats.FirstEntryAt,
		&stats.LastEntryAt,
	)
	if err != nil {
		r.logger.Error("Failed to aggregate ledger stats", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to aggregate ledger stats: %w", err)
	}
	return &stats, nil
}

// LastEntry returns the most recently committed entry of the account
func (r *EntryRepository) LastEntry(ctx context.Context, accountID uuid.UUID) (*ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM coin_ledger_entries WHERE account_id = $1 ORDER BY created_at DESC, seq DESC LIMIT 1`

	entry, err := scanEntry(r.querier.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{}
		}
		r.logger.Error("Failed to get last ledger entry", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to get last ledger entry: %w", err)
	}
	return entry, nil
}

// CountByReasonID counts entries whose metadata recorded the catalog reason
func (r *EntryRepository) CountByReasonID(ctx context.Context, reasonID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM coin_ledger_entries WHERE metadata ->> 'reason_id' = $1`

	var count int64
	if err := r.querier.QueryRow(ctx, query, reasonID.String()).Scan(&count); err != nil {
		r.logger.Error("Failed to count reason references", "reason_id", reasonID.String(), "error", err)
		return 0, fmt.Errorf("failed to count reason references: %w", err)
	}
	return count, nil
}

// RefundedAmount sums refund entries linked to the spend through metadata
func (r *EntryRepository) RefundedAmount(ctx context.Context, spendID uuid.UUID) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM coin_ledger_entries
		WHERE kind = $1 AND metadata ->> 'refunded_entry_id' = $2`

	var total int64
	if err := r.querier.QueryRow(ctx, query, string(ledger.KindRefund), spendID.String()).Scan(&total); err != nil {
		r.logger.Error("Failed to sum refunds", "entry_id", spendID.String(), "error", err)
		return 0, fmt.Errorf("failed to sum refunds: %w", err)
	}
	return total, nil
}

func entryFilterClause(filter ledger.Filter) (string, []any) {
	conds := []string{"account_id = $1"}
	args := []any{filter.AccountID}

	if len(filter.Kinds) > 0 {
		kinds := make([]string, len(filter.Kinds))
		for i, k := range filter.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, kinds)
		conds = append(conds, fmt.Sprintf("kind = ANY($%d)", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	return strings.Join(conds, " AND "), args
}

func scanEntry(row rowScanner) (*ledger.Entry, error) {
	var (
		entry          ledger.Entry
		kind           string
		metadata       []byte
		idempotencyKey *string
	)
	err := row.Scan(
		&entry.ID,
		&entry.Sequence,
		&entry.AccountID,
		&kind,
		&entry.Amount,
		&entry.BalanceBefore,
		&entry.BalanceAfter,
		&entry.ToolReference,
		&entry.Description,
		&metadata,
		&idempotencyKey,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Kind = ledger.Kind(kind)
	if idempotencyKey != nil {
		entry.IdempotencyKey = *idempotencyKey
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode entry metadata: %w", err)
		}
	}
	return &entry, nil
}

func encodeMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
