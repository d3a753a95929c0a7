package account

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Account is the owner of a coin balance. Balance is a projection of the
// account's ledger entries and is never written outside the ledger executor.
type Account struct {
	ID        uuid.UUID  `json:"id"`
	Balance   int64      `json:"balance"`
	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// NewAccount creates an account with an empty balance
func NewAccount() *Account {
	now := time.Now().UTC()
	return &Account{
		ID:        uuid.New(),
		Balance:   0,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Projected returns the balance that results from applying a signed delta.
// The second value is false when the addition would overflow.
func (a *Account) Projected(delta int64) (int64, bool) {
	if delta > 0 && a.Balance > math.MaxInt64-delta {
		return 0, false
	}
	return a.Balance + delta, true
}
