package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Validation errors raised before any storage access
var (
	ErrInvalidAmount           = errors.New("amount must be a non-zero value matching the kind's sign")
	ErrInvalidKind             = errors.New("invalid ledger entry kind")
	ErrInvalidDirection        = errors.New("direction must be add or subtract")
	ErrToolReferenceRequired   = errors.New("spend entries require a tool reference")
	ErrUnexpectedToolReference = errors.New("only spend entries may carry a tool reference")
	ErrIdempotencyConflict     = errors.New("idempotency key already used for a different mutation")
	ErrInvalidDateRange        = errors.New("date range start must not be after its end")
	ErrInvalidRefund           = errors.New("refund must reference a spend of the same account with enough unrefunded coins left")
)

// ErrStorageFailure matches every StorageError
var ErrStorageFailure = errors.New("ledger storage failure")

// StorageError wraps an infrastructure failure during a ledger operation.
// Whether the unit of work committed is unknown to the caller.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is implements the errors.Is interface against ErrStorageFailure
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure
}

// ErrInsufficientBalance indicates a mutation would drive the balance negative
type ErrInsufficientBalance struct {
	AccountID uuid.UUID
	Balance   int64
	Requested int64
}

func (e ErrInsufficientBalance) Error() string {
	return fmt.Sprintf("insufficient balance on account %s: balance %d, requested %d", e.AccountID, e.Balance, e.Requested)
}

// Is implements the errors.Is interface for ErrInsufficientBalance
func (e ErrInsufficientBalance) Is(target error) bool {
	t, ok := target.(ErrInsufficientBalance)
	if !ok {
		return false
	}
	// If the target AccountID is empty, consider it a match for any ErrInsufficientBalance
	if t.AccountID == uuid.Nil {
		return true
	}
	return e.AccountID == t.AccountID
}

// ErrInvalidReason indicates an empty admin reason, or one that matched no
// catalog entry while strict reasons are enforced
type ErrInvalidReason struct {
	Text      string
	Direction Direction
}

func (e ErrInvalidReason) Error() string {
	if e.Text == "" {
		return "admin adjustment reason cannot be empty"
	}
	return fmt.Sprintf("reason %q is not an active catalog reason for %s", e.Text, e.Direction)
}

// Is implements the errors.Is interface for ErrInvalidReason
func (e ErrInvalidReason) Is(target error) bool {
	t, ok := target.(ErrInvalidReason)
	if !ok {
		return false
	}
	if t.Text == "" && t.Direction == "" {
		return true
	}
	return e.Text == t.Text && e.Direction == t.Direction
}

// ErrEntryNotFound indicates missing ledger entry
type ErrEntryNotFound struct {
	EntryID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	if e.EntryID == uuid.Nil {
		return "ledger entry not found"
	}
	return "ledger entry not found: " + e.EntryID.String()
}

// Is implements the errors.Is interface for ErrEntryNotFound
func (e ErrEntryNotFound) Is(target error) bool {
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	if t.EntryID == uuid.Nil {
		return true
	}
	return e.EntryID == t.EntryID
}
