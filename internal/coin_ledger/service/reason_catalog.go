package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coin-ledger/internal/domain/ledger"
	"github.com/coin-ledger/internal/domain/reason"
)

// ReasonCatalogImpl implements the ReasonCatalog interface
type ReasonCatalogImpl struct {
	reasons reason.Repository
	entries ledger.Repository
	logger  *slog.Logger
}

// NewReasonCatalog creates the catalog service. entries is read to refuse
// deleting reasons that history still points at.
func NewReasonCatalog(reasons reason.Repository, entries ledger.Repository, logger *slog.Logger) ReasonCatalog {
	return &ReasonCatalogImpl{
		reasons: reasons,
		entries: entries,
		logger:  logger,
	}
}

// ListReasons lists reasons usable for direction (nil lists all), ordered by sort order
func (c *ReasonCatalogImpl) ListReasons(ctx context.Context, direction *reason.Polarity, includeInactive bool) ([]*reason.Reason, error) {
	if direction != nil && !direction.IsValid() {
		return nil, reason.ErrInvalidPolarity
	}
	return c.reasons.List(ctx, reason.ListFilter{Direction: direction, IncludeInactive: includeInactive})
}

func (c *ReasonCatalogImpl) GetReason(ctx context.Context, id uuid.UUID) (*reason.Reason, error) {
	return c.reasons.GetByID(ctx, id)
}

// CreateReason adds an active custom reason
func (c *ReasonCatalogImpl) CreateReason(ctx context.Context, text string, polarity reason.Polarity, sortOrder int) (*reason.Reason, error) {
	rsn, err := reason.NewReason(text, polarity, sortOrder)
	if err != nil {
		return nil, err
	}
	if err := c.reasons.Create(ctx, rsn); err != nil {
		return nil, err
	}
	c.logger.Info("Reason created", "reason_id", rsn.ID.String(), "polarity", string(rsn.Polarity))
	return rsn, nil
}

// UpdateReason applies the non-nil fields of update
func (c *ReasonCatalogImpl) UpdateReason(ctx context.Context, id uuid.UUID, update ReasonUpdate) (*reason.Reason, error) {
	rsn, err := c.reasons.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Text != nil {
		text := strings.TrimSpace(*update.Text)
		if text == "" {
			return nil, reason.ErrEmptyText
		}
		rsn.Text = text
	}
	if update.Polarity != nil {
		if !update.Polarity.IsValid() {
			return nil, reason.ErrInvalidPolarity
		}
		rsn.Polarity = *update.Polarity
	}
	if update.SortOrder != nil {
		rsn.SortOrder = *update.SortOrder
	}
	if update.Active != nil {
		rsn.Active = *update.Active
	}
	rsn.UpdatedAt = time.Now().UTC()

	if err := c.reasons.Update(ctx, rsn); err != nil {
		return nil, err
	}
	return rsn, nil
}

// DeactivateReason hides the reason from new adjustments. History keeps it.
func (c *ReasonCatalogImpl) DeactivateReason(ctx context.Context, id uuid.UUID) error {
	if err := c.reasons.SetActive(ctx, id, false); err != nil {
		return err
	}
	c.logger.Info("Reason deactivated", "reason_id", id.String())
	return nil
}

// DeleteReason removes a custom reason no entry references
func (c *ReasonCatalogImpl) DeleteReason(ctx context.Context, id uuid.UUID) error {
	rsn, err := c.reasons.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rsn.System {
		return reason.ErrSystemReason{ReasonID: id}
	}

	refs, err := c.entries.CountByReasonID(ctx, id)
	if err != nil {
		return &ledger.StorageError{Op: "count reason references", Err: err}
	}
	if refs > 0 {
		return reason.ErrReasonInUse{ReasonID: id, References: refs}
	}

	if err := c.reasons.Delete(ctx, id); err != nil {
		return err
	}
	c.logger.Info("Reason deleted", "reason_id", id.String())
	return nil
}

// Match finds the active catalog reason for text in direction. A miss is not an error.
func (c *ReasonCatalogImpl) Match(ctx context.Context, direction ledger.Direction, text string) (*reason.Reason, error) {
	if !direction.IsValid() {
		return nil, ledger.ErrInvalidDirection
	}
	rsn, err := c.reasons.FindActiveByText(ctx, reason.Polarity(direction), strings.TrimSpace(text))
	if err != nil {
		if errors.Is(err, reason.ErrReasonNotFound{}) {
			return nil, nil
		}
		return nil, err
	}
	return rsn, nil
}
