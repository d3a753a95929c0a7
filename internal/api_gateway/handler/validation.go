package handler

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/coin-ledger/internal/domain/ledger"
	"github.com/coin-ledger/internal/domain/reason"
)

// IdempotencyKeyHeader carries the client key that makes a mutation replayable
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLength = 255

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators installs the ledger binding tags on gin's validator engine:
// coinkind, polarity and direction. It is safe to call more than once.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
			return
		}

		tags := map[string]validator.Func{
			"coinkind": func(fl validator.FieldLevel) bool {
				return ledger.Kind(fl.Field().String()).IsValid()
			},
			"polarity": func(fl validator.FieldLevel) bool {
				return reason.Polarity(fl.Field().String()).IsValid()
			},
			"direction": func(fl validator.FieldLevel) bool {
				return ledger.Direction(fl.Field().String()).IsValid()
			},
		}
		for tag, fn := range tags {
			if err := v.RegisterValidation(tag, fn); err != nil {
				registerErr = fmt.Errorf("register %s validator: %w", tag, err)
				return
			}
		}
	})
	return registerErr
}

// idempotencyKey reads the optional Idempotency-Key header
func idempotencyKey(c *gin.Context) (string, error) {
	key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLength {
		return "", fmt.Errorf("%s header must not exceed %d characters", IdempotencyKeyHeader, maxIdempotencyKeyLength)
	}
	return key, nil
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates. An empty value yields nil.
// A plain date used as an upper bound covers the whole day.
func parseTimeParam(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: expected RFC 3339 or YYYY-MM-DD", value)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
