package reason

import (
	"context"
	"strconv"

	"github.com/google/uuid"
)

// ListFilter narrows a catalog listing. A nil Direction lists every polarity;
// otherwise reasons of that direction and "both" are returned.
type ListFilter struct {
	Direction       *Polarity
	IncludeInactive bool
}

// Repository persists the reason catalog
type Repository interface {
	Create(ctx context.Context, reason *Reason) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reason, error)
	List(ctx context.Context, filter ListFilter) ([]*Reason, error)
	FindActiveByText(ctx context.Context, direction Polarity, text string) (*Reason, error)
	Update(ctx context.Context, reason *Reason) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ErrReasonNotFound indicates missing catalog reason
type ErrReasonNotFound struct {
	ReasonID uuid.UUID
}

func (e ErrReasonNotFound) Error() string {
	if e.ReasonID == uuid.Nil {
		return "reason not found"
	}
	return "reason not found: " + e.ReasonID.String()
}

// Is implements the errors.Is interface for ErrReasonNotFound
func (e ErrReasonNotFound) Is(target error) bool {
	t, ok := target.(ErrReasonNotFound)
	if !ok {
		return false
	}
	if t.ReasonID == uuid.Nil {
		return true
	}
	return e.ReasonID == t.ReasonID
}

// ErrReasonInUse indicates a hard delete of a reason recorded by history
type ErrReasonInUse struct {
	ReasonID   uuid.UUID
	References int64
}

func (e ErrReasonInUse) Error() string {
	return "reason " + e.ReasonID.String() + " is referenced by " + strconv.FormatInt(e.References, 10) + " ledger entries"
}

// ErrSystemReason indicates an attempt to delete a built-in reason
type ErrSystemReason struct {
	ReasonID uuid.UUID
}

func (e ErrSystemReason) Error() string {
	return "system reason cannot be deleted: " + e.ReasonID.String()
}

// ErrDuplicateReason indicates another reason already uses the text for the polarity
type ErrDuplicateReason struct {
	Text     string
	Polarity Polarity
}

func (e ErrDuplicateReason) Error() string {
	return "reason " + strconv.Quote(e.Text) + " already exists for polarity " + string(e.Polarity)
}
