package reason

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coin-ledger/internal/domain/ledger"
)

var (
	ErrEmptyText       = errors.New("reason text cannot be empty")
	ErrInvalidPolarity = errors.New("polarity must be add, subtract or both")
)

// Polarity tells which adjustment directions may use a reason
type Polarity string

const (
	PolarityAdd      Polarity = "add"
	PolaritySubtract Polarity = "subtract"
	PolarityBoth     Polarity = "both"
)

func (p Polarity) IsValid() bool {
	switch p {
	case PolarityAdd, PolaritySubtract, PolarityBoth:
		return true
	}
	return false
}

// Allows reports whether a reason of this polarity may justify the direction
func (p Polarity) Allows(d ledger.Direction) bool {
	return p == PolarityBoth || string(p) == string(d)
}

// Reason is an operator-curated justification for admin adjustments.
// Inactive reasons stay attached to history but are not offered again.
type Reason struct {
	ID        uuid.UUID `json:"id"`
	Polarity  Polarity  `json:"polarity"`
	Text      string    `json:"text"`
	Active    bool      `json:"active"`
	SortOrder int       `json:"sort_order"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewReason creates an active custom reason
func NewReason(text string, polarity Polarity, sortOrder int) (*Reason, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if !polarity.IsValid() {
		return nil, ErrInvalidPolarity
	}

	now := time.Now().UTC()
	return &Reason{
		ID:        uuid.New(),
		Polarity:  polarity,
		Text:      text,
		Active:    true,
		SortOrder: sortOrder,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

