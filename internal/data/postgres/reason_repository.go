package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coin-ledger/internal/domain/reason"
	"github.com/coin-ledger/internal/platform/persistence"
)

const reasonColumns = `id, polarity, text, active, sort_order, system, created_at, updated_at`

// ReasonRepository implements reason.Repository for PostgreSQL
type ReasonRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewReasonRepository creates a new PostgreSQL reason catalog repository
func NewReasonRepository(logger *slog.Logger, db *persistence.PostgresDB) reason.Repository {
	return &ReasonRepository{
		querier: db.Querier(),
		logger:  logger,
	}
}

func (r *ReasonRepository) Create(ctx context.Context, rsn *reason.Reason) error {
	query := `
		INSERT INTO coin_reasons (id, polarity, text, active, sort_order, system, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		rsn.ID,
		string(rsn.Polarity),
		rsn.Text,
		rsn.Active,
		rsn.SortOrder,
		rsn.System,
		rsn.CreatedAt,
		rsn.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return reason.ErrDuplicateReason{Text: rsn.Text, Polarity: rsn.Polarity}
		}
		r.logger.Error("Failed to create reason", "reason_id", rsn.ID.String(), "error", err)
		return fmt.Errorf("failed to create reason: %w", err)
	}
	return nil
}

func (r *ReasonRepository) GetByID(ctx context.Context, id uuid.UUID) (*reason.Reason, error) {
	query := `SELECT ` + reasonColumns + ` FROM coin_reasons WHERE id = $1`

	rsn, err := scanReason(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reason.ErrReasonNotFound{ReasonID: id}
		}
		r.logger.Error("Failed to get reason", "reason_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get reason: %w", err)
	}
	return rsn, nil
}

// List returns catalog reasons in display order
func (r *ReasonRepository) List(ctx context.Context, filter reason.ListFilter) ([]*reason.Reason, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Direction != nil {
		args = append(args, string(*filter.Direction))
		conds = append(conds, fmt.Sprintf("polarity IN ($%d, 'both')", len(args)))
	}
	if !filter.IncludeInactive {
		conds = append(conds, "active = TRUE")
	}

	query := `SELECT ` + reasonColumns + ` FROM coin_reasons`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY sort_order ASC, text ASC`

	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list reasons", "error", err)
		return nil, fmt.Errorf("failed to list reasons: %w", err)
	}
	defer rows.Close()

	reasons := make([]*reason.Reason, 0)
	for rows.Next() {
		rsn, err := scanReason(rows)
		if err != nil {
			r.logger.Error("Failed to scan reason", "error", err)
			return nil, fmt.Errorf("failed to scan reason: %w", err)
		}
		reasons = append(reasons, rsn)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over reasons", "error", err)
		return nil, fmt.Errorf("error iterating over reasons: %w", err)
	}
	return reasons, nil
}

// FindActiveByText looks up an active reason usable for direction, ignoring case
func (r *ReasonRepository) FindActiveByText(ctx context.Context, direction reason.Polarity, text string) (*reason.Reason, error) {
	query := `
		SELECT ` + reasonColumns + `
		FROM coin_reasons
		WHERE active = TRUE AND polarity IN ($1, 'both') AND lower(text) = lower($2)
		ORDER BY sort_order ASC
		LIMIT 1
	`

	rsn, err := scanReason(r.querier.QueryRow(ctx, query, string(direction), strings.TrimSpace(text)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reason.ErrReasonNotFound{}
		}
		r.logger.Error("Failed to find reason by text", "direction", string(direction), "error", err)
		return nil, fmt.Errorf("failed to find reason by text: %w", err)
	}
	return rsn, nil
}

func (r *ReasonRepository) Update(ctx context.Context, rsn *reason.Reason) error {
	query := `
		UPDATE coin_reasons
		SET polarity = $1, text = $2, active = $3, sort_order = $4, updated_at = NOW()
		WHERE id = $5
	`

	result, err := r.querier.Exec(ctx, query, string(rsn.Polarity), rsn.Text, rsn.Active, rsn.SortOrder, rsn.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return reason.ErrDuplicateReason{Text: rsn.Text, Polarity: rsn.Polarity}
		}
		r.logger.Error("Failed to update reason", "reason_id", rsn.ID.String(), "error", err)
		return fmt.Errorf("failed to update reason: %w", err)
	}
	if result.RowsAffected() == 0 {
		return reason.ErrReasonNotFound{ReasonID: rsn.ID}
	}
	return nil
}

func (r *ReasonRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE coin_reasons SET active = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.querier.Exec(ctx, query, active, id)
	if err != nil {
		r.logger.Error("Failed to change reason state", "reason_id", id.String(), "active", active, "error", err)
		return fmt.Errorf("failed to change reason state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return reason.ErrReasonNotFound{ReasonID: id}
	}
	return nil
}

// Delete removes a custom reason. System reasons are never matched.
func (r *ReasonRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM coin_reasons WHERE id = $1 AND system = FALSE`

	result, err := r.querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete reason", "reason_id", id.String(), "error", err)
		return fmt.Errorf("failed to delete reason: %w", err)
	}
	if result.RowsAffected() == 0 {
		return reason.ErrReasonNotFound{ReasonID: id}
	}
	return nil
}

func scanReason(row rowScanner) (*reason.Reason, error) {
	var (
		rsn      reason.Reason
		polarity string
	)
	err := row.Scan(
		&rsn.ID,
		&polarity,
		&rsn.Text,
		&rsn.Active,
		&rsn.SortOrder,
		&rsn.System,
		&rsn.CreatedAt,
		&rsn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rsn.Polarity = reason.Polarity(polarity)
	return &rsn, nil
}
