package shared

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)

// ErrorCode is the machine readable code attached to API errors
type ErrorCode string

const (
	ErrorCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"
	ErrorCodeAccountNotFound     ErrorCode = "ACCOUNT_NOT_FOUND"
	ErrorCodeEntryNotFound       ErrorCode = "ENTRY_NOT_FOUND"
	ErrorCodeReasonNotFound      ErrorCode = "REASON_NOT_FOUND"
	ErrorCodeInvalidReason       ErrorCode = "INVALID_REASON"
	ErrorCodeInvalidRefund       ErrorCode = "INVALID_REFUND"
	ErrorCodeReasonInUse         ErrorCode = "REASON_IN_USE"
	ErrorCodeDuplicateReason     ErrorCode = "DUPLICATE_REASON"
	ErrorCodeSystemReason        ErrorCode = "SYSTEM_REASON"
	ErrorCodeAccountExists       ErrorCode = "ACCOUNT_EXISTS"
	ErrorCodeIdempotencyConflict ErrorCode = "IDEMPOTENCY_CONFLICT"
	ErrorCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrorCodeStorageFailure      ErrorCode = "STORAGE_FAILURE"
	ErrorCodeInternal            ErrorCode = "INTERNAL_ERROR"
)
